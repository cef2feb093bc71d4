// Package domain contains the commitment tier persistence model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// CommitmentTier guarantees a minimum spend on one metric for a
// subscription. OverageRate, when set, prices usage above the
// committed amount; a nil EndDate keeps the commitment open.
type CommitmentTier struct {
	ID              snowflake.ID     `json:"id" gorm:"primaryKey"`
	SubscriptionID  snowflake.ID     `json:"subscription_id" gorm:"not null;index"`
	MetricID        snowflake.ID     `json:"metric_id" gorm:"not null"`
	CommittedAmount decimal.Decimal  `json:"committed_amount" gorm:"type:numeric;not null"`
	Rate            decimal.Decimal  `json:"rate" gorm:"type:numeric;not null"`
	OverageRate     *decimal.Decimal `json:"overage_rate,omitempty" gorm:"type:numeric"`
	StartDate       time.Time        `json:"start_date" gorm:"not null"`
	EndDate         *time.Time       `json:"end_date,omitempty"`
	CreatedAt       time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CommitmentTier) TableName() string { return "commitment_tiers" }

// Overlaps reports whether the commitment window intersects [start, end].
func (c CommitmentTier) Overlaps(start, end time.Time) bool {
	if c.StartDate.After(end) {
		return false
	}
	return c.EndDate == nil || !c.EndDate.Before(start)
}
