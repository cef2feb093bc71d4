package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/commitment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tier *domain.CommitmentTier) error {
	return db.WithContext(ctx).Create(tier).Error
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]domain.CommitmentTier, error) {
	var tiers []domain.CommitmentTier
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("start_date asc, id asc").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

func (r *repo) ListOverlapping(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, start, end time.Time) ([]domain.CommitmentTier, error) {
	var tiers []domain.CommitmentTier
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Where("start_date <= ?", end.UTC()).
		Where("end_date IS NULL OR end_date >= ?", start.UTC()).
		Order("start_date asc, id asc").
		Find(&tiers).Error
	if err != nil {
		return nil, err
	}
	return tiers, nil
}
