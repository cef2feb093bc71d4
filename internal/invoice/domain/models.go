// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft   InvoiceStatus = "draft"
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusFailed  InvoiceStatus = "failed"
	InvoiceStatusVoid    InvoiceStatus = "void"
)

// Valid reports whether s is one of the lifecycle states.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusDraft, InvoiceStatusPending, InvoiceStatusPaid,
		InvoiceStatusFailed, InvoiceStatusVoid:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transition.
// A paid invoice is never voided or modified; void stays void.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusVoid
}

// Invoice represents a bill issued to a customer.
type Invoice struct {
	ID            snowflake.ID    `json:"id" gorm:"primaryKey"`
	CustomerID    snowflake.ID    `json:"customer_id" gorm:"not null;index"`
	InvoiceNumber string          `json:"invoice_number" gorm:"type:text;not null;uniqueIndex"`
	Status        InvoiceStatus   `json:"status" gorm:"type:text;not null;default:'draft'"`
	IssueDate     time.Time       `json:"issue_date" gorm:"not null"`
	DueDate       time.Time       `json:"due_date" gorm:"not null"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric;not null"`
	PaidDate      *time.Time      `json:"paid_date,omitempty"`
	Notes         string          `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt     time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	Items []InvoiceItem `json:"invoice_items,omitempty" gorm:"-"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem represents a line on an invoice. Credit draws appear as
// negative lines; residual commitment charges carry zero quantity.
type InvoiceItem struct {
	ID             snowflake.ID     `json:"id" gorm:"primaryKey"`
	InvoiceID      snowflake.ID     `json:"invoice_id" gorm:"not null;index"`
	Description    string           `json:"description" gorm:"type:text;not null"`
	MetricName     *string          `json:"metric_name,omitempty" gorm:"type:text"`
	Quantity       *decimal.Decimal `json:"quantity,omitempty" gorm:"type:numeric"`
	UnitPrice      decimal.Decimal  `json:"unit_price" gorm:"type:numeric;not null"`
	Amount         decimal.Decimal  `json:"amount" gorm:"type:numeric;not null"`
	SubscriptionID *snowflake.ID    `json:"subscription_id,omitempty" gorm:"index"`
	CreatedAt      time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }
