package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateSubscriptionRequest struct {
	CustomerID string     `json:"-"`
	PlanID     string     `json:"plan_id" binding:"required"`
	StartDate  *time.Time `json:"-"`
	EndDate    *time.Time `json:"-"`
}

type CancelSubscriptionRequest struct {
	ID      string
	EndDate *time.Time
}

type ListSubscriptionsRequest struct {
	CustomerID string
	ActiveOnly bool
}

type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*Subscription, error)
	Cancel(ctx context.Context, req CancelSubscriptionRequest) (*Subscription, error)
	GetByID(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context, req ListSubscriptionsRequest) ([]Subscription, error)

	// ListActiveAt feeds billing-period attachment on the ingest path.
	ListActiveAt(ctx context.Context, customerID snowflake.ID, t time.Time) ([]Subscription, error)

	// ListOverlapping feeds invoice assembly over a date range.
	ListOverlapping(ctx context.Context, customerID snowflake.ID, start, end time.Time) ([]Subscription, error)
}

var (
	ErrInvalidID        = errors.New("invalid_id")
	ErrInvalidDateRange = errors.New("invalid_date_range")
	ErrCustomerNotFound = errors.New("customer_not_found")
	ErrPlanNotFound     = errors.New("plan_not_found")
	ErrNotFound         = errors.New("subscription_not_found")
)
