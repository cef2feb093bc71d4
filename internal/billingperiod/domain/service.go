package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/tally/internal/plan/domain"
	"gorm.io/gorm"
)

type Service interface {
	// GeneratePeriods computes the contiguous period sequence for a
	// subscription window without persisting it. Callers insert the
	// result inside their own transaction.
	GeneratePeriods(subscriptionID snowflake.ID, frequency plandomain.BillingFrequency, start time.Time, end *time.Time) []BillingPeriod

	// PersistPeriods inserts generated periods using the given handle,
	// which may be a transaction.
	PersistPeriods(ctx context.Context, db *gorm.DB, periods []BillingPeriod) error

	GetByID(ctx context.Context, id string) (*BillingPeriod, error)
	ListBySubscription(ctx context.Context, subscriptionID snowflake.ID) ([]BillingPeriod, error)
	FindForTime(ctx context.Context, subscriptionID snowflake.ID, t time.Time) (*BillingPeriod, error)

	// LinkInvoice stamps the invoice generated for a period, using the
	// caller's handle so the link commits with the invoice itself.
	LinkInvoice(ctx context.Context, db *gorm.DB, periodID, invoiceID snowflake.ID) error
}

var (
	ErrInvalidID = errors.New("invalid_id")
	ErrNotFound  = errors.New("billing_period_not_found")
)
