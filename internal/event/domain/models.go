// Package domain contains the usage event persistence model.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// UsageEvent is one unit of metered activity. SubscriptionID and
// BillingPeriodID are filled at ingest when the event falls inside an
// active subscription's period; events are stored either way.
type UsageEvent struct {
	ID              snowflake.ID      `json:"id" gorm:"primaryKey"`
	CustomerID      snowflake.ID      `json:"customer_id" gorm:"not null;index:idx_usage_events_customer_time,priority:1"`
	SubscriptionID  *snowflake.ID     `json:"subscription_id,omitempty"`
	BillingPeriodID *snowflake.ID     `json:"billing_period_id,omitempty"`
	MetricName      string            `json:"metric_name" gorm:"type:text;not null;index"`
	MetricID        *snowflake.ID     `json:"metric_id,omitempty"`
	Quantity        decimal.Decimal   `json:"quantity" gorm:"type:numeric;not null"`
	EventTime       time.Time         `json:"event_time" gorm:"not null;index:idx_usage_events_customer_time,priority:2"`
	Properties      datatypes.JSONMap `json:"properties,omitempty" gorm:"type:jsonb"`
	CreatedAt       time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (UsageEvent) TableName() string { return "usage_events" }
