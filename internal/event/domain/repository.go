package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// EventCursor keys list pagination on (event_time, id) descending.
type EventCursor struct {
	ID        snowflake.ID
	EventTime time.Time
}

type ListFilter struct {
	CustomerID snowflake.ID
	StartDate  time.Time
	EndDate    time.Time
	MetricName string
	Cursor     *EventCursor
	Limit      int
}

// MetricTotal is one row of an aggregate query.
type MetricTotal struct {
	MetricName string
	Total      decimal.Decimal
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *UsageEvent) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*UsageEvent, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*UsageEvent, error)

	// SumByMetric aggregates quantities grouped by metric name with
	// event_time bounds inclusive on both ends.
	SumByMetric(ctx context.Context, db *gorm.DB, customerID snowflake.ID, start, end time.Time) ([]MetricTotal, error)

	// DistinctCustomers returns the ids of every customer with at
	// least one event in the window.
	DistinctCustomers(ctx context.Context, db *gorm.DB, start, end time.Time) ([]snowflake.ID, error)
}
