package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateCommitmentRequest struct {
	SubscriptionID  string           `json:"-"`
	MetricID        string           `json:"metric_id" binding:"required"`
	CommittedAmount decimal.Decimal  `json:"committed_amount"`
	Rate            decimal.Decimal  `json:"rate"`
	OverageRate     *decimal.Decimal `json:"overage_rate"`
	StartDate       *time.Time       `json:"-"`
	EndDate         *time.Time       `json:"-"`
}

type Service interface {
	Create(ctx context.Context, req CreateCommitmentRequest) (*CommitmentTier, error)
	ListForSubscription(ctx context.Context, subscriptionID string) ([]CommitmentTier, error)

	// CalculateCharges returns the minimum charge per metric id for
	// every commitment intersecting [start, end] whose committed
	// charge exceeds the charge the actual usage would produce.
	CalculateCharges(ctx context.Context, subscriptionID snowflake.ID, start, end time.Time, usageByMetric map[string]decimal.Decimal) (map[snowflake.ID]decimal.Decimal, error)
}

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidCommitment    = errors.New("invalid_committed_amount")
	ErrInvalidRate          = errors.New("invalid_rate")
	ErrInvalidDateRange     = errors.New("invalid_date_range")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrMetricNotFound       = errors.New("metric_not_found")
)
