package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	BatchInsert(ctx context.Context, db *gorm.DB, periods []BillingPeriod) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BillingPeriod, error)
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]BillingPeriod, error)
	FindForTime(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, t time.Time) (*BillingPeriod, error)
	LinkInvoice(ctx context.Context, db *gorm.DB, periodID, invoiceID snowflake.ID) error
}
