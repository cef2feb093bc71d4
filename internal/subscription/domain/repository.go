package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, activeOnly bool) ([]Subscription, error)

	// ListActiveAt returns the customer's active subscriptions whose
	// window contains t.
	ListActiveAt(ctx context.Context, db *gorm.DB, customerID snowflake.ID, t time.Time) ([]Subscription, error)

	// ListOverlapping returns subscriptions intersecting [start, end]
	// regardless of the active flag.
	ListOverlapping(ctx context.Context, db *gorm.DB, customerID snowflake.ID, start, end time.Time) ([]Subscription, error)
}
