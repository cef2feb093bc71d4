// Package domain contains persistence models for plans and their price
// components.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/pricing"
	"gorm.io/datatypes"
)

type BillingFrequency string

const (
	FrequencyMonthly   BillingFrequency = "monthly"
	FrequencyQuarterly BillingFrequency = "quarterly"
	FrequencyYearly    BillingFrequency = "yearly"
)

func (f BillingFrequency) Valid() bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	default:
		return false
	}
}

// NormalizeFrequency maps anything outside the enumeration to monthly.
func NormalizeFrequency(v string) BillingFrequency {
	f := BillingFrequency(v)
	if !f.Valid() {
		return FrequencyMonthly
	}
	return f
}

// Plan groups price components under a billing frequency.
type Plan struct {
	ID               snowflake.ID     `json:"id" gorm:"primaryKey"`
	Name             string           `json:"name" gorm:"type:text;not null"`
	Description      string           `json:"description,omitempty" gorm:"type:text"`
	BillingFrequency BillingFrequency `json:"billing_frequency" gorm:"type:text;not null"`
	Active           bool             `json:"active" gorm:"not null;default:true"`
	CreatedAt        time.Time        `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time        `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`

	// Filled by the service; ownership stays FK-only.
	Components []PriceComponent `json:"price_components,omitempty" gorm:"-"`
}

func (Plan) TableName() string { return "plans" }

// PriceComponent binds one metric to one pricing rule within a plan.
type PriceComponent struct {
	ID             snowflake.ID      `json:"id" gorm:"primaryKey"`
	PlanID         snowflake.ID      `json:"plan_id" gorm:"not null;index"`
	MetricName     string            `json:"metric_name" gorm:"type:text;not null"`
	MetricID       *snowflake.ID     `json:"metric_id,omitempty" gorm:"index"`
	DisplayName    string            `json:"display_name" gorm:"type:text;not null"`
	PricingType    pricing.Type      `json:"pricing_type" gorm:"type:text;not null"`
	PricingDetails datatypes.JSONMap `json:"pricing_details" gorm:"type:jsonb;not null"`
	OverrideLimits datatypes.JSONMap `json:"override_limits,omitempty" gorm:"type:jsonb"`
	CreatedAt      time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PriceComponent) TableName() string { return "price_components" }

// PricingComponent adapts the stored component to the evaluator's view.
func (c PriceComponent) PricingComponent() pricing.Component {
	return pricing.Component{
		DisplayName: c.DisplayName,
		MetricName:  c.MetricName,
		Type:        c.PricingType,
		Details:     map[string]any(c.PricingDetails),
	}
}
