package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tally/pkg/db/pagination"
)

type TrackEventRequest struct {
	CustomerID string          `json:"customer_id" binding:"required"`
	MetricName string          `json:"metric_name" binding:"required"`
	Quantity   decimal.Decimal `json:"quantity"`
	EventTime  *time.Time      `json:"-"`
	Properties map[string]any  `json:"properties"`
}

type BatchTrackRequest struct {
	Events []TrackEventRequest
}

// BatchFailure reports one rejected event by its position in the batch.
// The rest of the batch is unaffected.
type BatchFailure struct {
	Index int    `json:"index"`
	Error string `json:"error"`
}

type BatchTrackResponse struct {
	Tracked  []UsageEvent   `json:"tracked"`
	Failures []BatchFailure `json:"failures,omitempty"`
}

type ListEventsRequest struct {
	CustomerID string
	StartDate  time.Time
	EndDate    time.Time
	MetricName string
	PageToken  string
	PageSize   int32
}

type ListEventsResponse struct {
	pagination.PageInfo
	Events []UsageEvent `json:"events"`
}

type Service interface {
	Track(ctx context.Context, req TrackEventRequest) (*UsageEvent, error)
	BatchTrack(ctx context.Context, req BatchTrackRequest) (BatchTrackResponse, error)
	List(ctx context.Context, req ListEventsRequest) (ListEventsResponse, error)

	// AggregateRange sums quantities per metric name over the window,
	// inclusive of both bounds.
	AggregateRange(ctx context.Context, customerID snowflake.ID, start, end time.Time) (map[string]decimal.Decimal, error)

	// CustomersWithUsage lists customers that produced at least one
	// event inside the window.
	CustomersWithUsage(ctx context.Context, start, end time.Time) ([]snowflake.ID, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidMetric    = errors.New("invalid_metric_name")
	ErrInvalidQuantity  = errors.New("invalid_quantity")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrCustomerNotFound = errors.New("customer_not_found")
)
