package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/billingperiod/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) BatchInsert(ctx context.Context, db *gorm.DB, periods []domain.BillingPeriod) error {
	if len(periods) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&periods).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.BillingPeriod, error) {
	var period domain.BillingPeriod
	err := db.WithContext(ctx).Where("id = ?", id).First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &period, nil
}

func (r *repo) ListBySubscription(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]domain.BillingPeriod, error) {
	var periods []domain.BillingPeriod
	err := db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("start_date asc").
		Find(&periods).Error
	if err != nil {
		return nil, err
	}
	return periods, nil
}

func (r *repo) FindForTime(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, t time.Time) (*domain.BillingPeriod, error) {
	var period domain.BillingPeriod
	err := db.WithContext(ctx).
		Where("subscription_id = ? AND start_date <= ? AND end_date >= ?", subscriptionID, t, t).
		Order("start_date asc").
		First(&period).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &period, nil
}

func (r *repo) LinkInvoice(ctx context.Context, db *gorm.DB, periodID, invoiceID snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.BillingPeriod{}).
		Where("id = ?", periodID).
		Update("invoice_id", invoiceID).Error
}
