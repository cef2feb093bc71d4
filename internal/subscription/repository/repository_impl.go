package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Create(subscription).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Save(subscription).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Where("id = ?", id).First(&subscription).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &subscription, nil
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, activeOnly bool) ([]domain.Subscription, error) {
	query := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("start_date asc")
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var subscriptions []domain.Subscription
	if err := query.Find(&subscriptions).Error; err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) ListActiveAt(ctx context.Context, db *gorm.DB, customerID snowflake.ID, t time.Time) ([]domain.Subscription, error) {
	var subscriptions []domain.Subscription
	err := db.WithContext(ctx).
		Where("customer_id = ? AND active = ? AND start_date <= ?", customerID, true, t).
		Where("end_date IS NULL OR end_date >= ?", t).
		Order("start_date asc").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) ListOverlapping(ctx context.Context, db *gorm.DB, customerID snowflake.ID, start, end time.Time) ([]domain.Subscription, error) {
	var subscriptions []domain.Subscription
	err := db.WithContext(ctx).
		Where("customer_id = ? AND start_date <= ?", customerID, end).
		Where("end_date IS NULL OR end_date >= ?", start).
		Order("start_date asc").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}
