// Package domain contains the subscription persistence model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Subscription attaches a customer to a plan for a time window. A nil
// EndDate means the subscription is ongoing; cancellation always sets
// one.
type Subscription struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	CustomerID snowflake.ID `json:"customer_id" gorm:"not null;index"`
	PlanID     snowflake.ID `json:"plan_id" gorm:"not null;index"`
	StartDate  time.Time    `json:"start_date" gorm:"not null"`
	EndDate    *time.Time   `json:"end_date,omitempty"`
	Active     bool         `json:"active" gorm:"not null;default:true"`
	CreatedAt  time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Subscription) TableName() string { return "subscriptions" }

// CoversTime reports whether t falls inside the subscription window.
func (s Subscription) CoversTime(t time.Time) bool {
	if t.Before(s.StartDate) {
		return false
	}
	return s.EndDate == nil || !t.After(*s.EndDate)
}
