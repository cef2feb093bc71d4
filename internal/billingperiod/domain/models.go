// Package domain contains the billing period persistence model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// BillingPeriod is one contiguous billing window of a subscription.
// Periods never overlap and each period's start equals the previous
// period's end.
type BillingPeriod struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	SubscriptionID snowflake.ID  `json:"subscription_id" gorm:"not null;index"`
	StartDate      time.Time     `json:"start_date" gorm:"not null"`
	EndDate        time.Time     `json:"end_date" gorm:"not null"`
	InvoiceID      *snowflake.ID `json:"invoice_id,omitempty" gorm:"index"`
	CreatedAt      time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (BillingPeriod) TableName() string { return "billing_periods" }

// Contains reports whether t falls inside the period. Both boundaries
// are inclusive; ties at a period joint resolve to the earlier period
// because lookups scan in ascending start order.
func (p BillingPeriod) Contains(t time.Time) bool {
	return !t.Before(p.StartDate) && !t.After(p.EndDate)
}
