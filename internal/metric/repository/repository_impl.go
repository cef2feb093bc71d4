package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/metric/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, metric *domain.Metric) error {
	return db.WithContext(ctx).Create(metric).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, metric *domain.Metric) error {
	return db.WithContext(ctx).Save(metric).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Metric{}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Metric, error) {
	var metric domain.Metric
	err := db.WithContext(ctx).Where("id = ?", id).First(&metric).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &metric, nil
}

func (r *repo) FindByName(ctx context.Context, db *gorm.DB, name string) (*domain.Metric, error) {
	var metric domain.Metric
	err := db.WithContext(ctx).Where("name = ?", name).First(&metric).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &metric, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Metric, error) {
	var metrics []domain.Metric
	err := db.WithContext(ctx).
		Model(&domain.Metric{}).
		Order("name asc").
		Find(&metrics).Error
	if err != nil {
		return nil, err
	}
	return metrics, nil
}
