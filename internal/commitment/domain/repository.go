package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tier *CommitmentTier) error
	ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]CommitmentTier, error)

	// ListOverlapping returns tiers whose window intersects [start, end].
	ListOverlapping(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, start, end time.Time) ([]CommitmentTier, error)
}
