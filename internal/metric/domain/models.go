package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Metric defines a named measurable quantity emitted per customer.
type Metric struct {
	ID                snowflake.ID      `json:"id" gorm:"primaryKey"`
	Name              string            `json:"name" gorm:"type:text;not null;uniqueIndex"`
	DisplayName       string            `json:"display_name" gorm:"type:text;not null"`
	Unit              string            `json:"unit" gorm:"type:text"`
	Type              MetricType        `json:"type" gorm:"type:text;not null"`
	Aggregation       AggregationType   `json:"aggregation" gorm:"type:text;not null"`
	Formula           datatypes.JSONMap `json:"formula,omitempty" gorm:"type:jsonb"`
	DisplayProperties datatypes.JSONMap `json:"display_properties,omitempty" gorm:"type:jsonb"`
	CreatedAt         time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Metric) TableName() string { return "metrics" }

type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeDimension MetricType = "dimension"
	MetricTypeTime      MetricType = "time"
	MetricTypeComposite MetricType = "composite"
)

func (t MetricType) Valid() bool {
	switch t {
	case MetricTypeCounter, MetricTypeGauge, MetricTypeDimension, MetricTypeTime, MetricTypeComposite:
		return true
	default:
		return false
	}
}

type AggregationType string

const (
	AggregationSum        AggregationType = "sum"
	AggregationMax        AggregationType = "max"
	AggregationMin        AggregationType = "min"
	AggregationAvg        AggregationType = "avg"
	AggregationLast       AggregationType = "last"
	AggregationPercentile AggregationType = "percentile"
)

func (t AggregationType) Valid() bool {
	switch t {
	case AggregationSum, AggregationMax, AggregationMin, AggregationAvg, AggregationLast, AggregationPercentile:
		return true
	default:
		return false
	}
}
