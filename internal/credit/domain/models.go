// Package domain contains credit balance and transaction models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreditType string

const (
	CreditTypePrepaid     CreditType = "prepaid"
	CreditTypeRefund      CreditType = "refund"
	CreditTypePromotional CreditType = "promotional"
	CreditTypeAdjustment  CreditType = "adjustment"
)

func (t CreditType) Valid() bool {
	switch t {
	case CreditTypePrepaid, CreditTypeRefund, CreditTypePromotional, CreditTypeAdjustment:
		return true
	default:
		return false
	}
}

// NormalizeCreditType maps unknown inputs to prepaid.
func NormalizeCreditType(value string) CreditType {
	t := CreditType(value)
	if !t.Valid() {
		return CreditTypePrepaid
	}
	return t
}

type CreditStatus string

const (
	CreditStatusActive    CreditStatus = "active"
	CreditStatusExpired   CreditStatus = "expired"
	CreditStatusConsumed  CreditStatus = "consumed"
	CreditStatusCancelled CreditStatus = "cancelled"
)

// CreditBalance tracks granted credit and what is left of it. A nil
// ExpiresAt never expires.
type CreditBalance struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	CustomerID      snowflake.ID    `json:"customer_id" gorm:"not null;index"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:numeric;not null"`
	RemainingAmount decimal.Decimal `json:"remaining_amount" gorm:"type:numeric;not null"`
	CreditType      CreditType      `json:"credit_type" gorm:"type:text;not null"`
	Status          CreditStatus    `json:"status" gorm:"type:text;not null"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
	Description     string          `json:"description,omitempty" gorm:"type:text"`
	InvoiceID       *snowflake.ID   `json:"invoice_id,omitempty"`
	SubscriptionID  *snowflake.ID   `json:"subscription_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CreditBalance) TableName() string { return "credit_balances" }

// Usable reports whether the balance can still be drawn from at t.
func (b CreditBalance) Usable(t time.Time) bool {
	if b.Status != CreditStatusActive || b.RemainingAmount.Sign() <= 0 {
		return false
	}
	return b.ExpiresAt == nil || b.ExpiresAt.After(t)
}

// CreditTransaction is an append-only ledger entry: positive grants,
// negative draws.
type CreditTransaction struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	CreditBalanceID snowflake.ID    `json:"credit_balance_id" gorm:"not null;index"`
	Amount          decimal.Decimal `json:"amount" gorm:"type:numeric;not null"`
	Description     string          `json:"description" gorm:"type:text"`
	InvoiceID       *snowflake.ID   `json:"invoice_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }
