package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/event/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.UsageEvent) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.UsageEvent, error) {
	var event domain.UsageEvent
	err := db.WithContext(ctx).Where("id = ?", id).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.UsageEvent, error) {
	var events []*domain.UsageEvent
	stmt := db.WithContext(ctx).Model(&domain.UsageEvent{}).
		Where("customer_id = ?", filter.CustomerID).
		Where("event_time >= ?", filter.StartDate.UTC()).
		Where("event_time <= ?", filter.EndDate.UTC())

	if name := strings.TrimSpace(filter.MetricName); name != "" {
		stmt = stmt.Where("metric_name = ?", name)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(event_time < ?) OR (event_time = ? AND id < ?)",
			filter.Cursor.EventTime,
			filter.Cursor.EventTime,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("event_time desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) SumByMetric(ctx context.Context, db *gorm.DB, customerID snowflake.ID, start, end time.Time) ([]domain.MetricTotal, error) {
	var rows []domain.MetricTotal
	err := db.WithContext(ctx).Model(&domain.UsageEvent{}).
		Select("metric_name, SUM(quantity) AS total").
		Where("customer_id = ?", customerID).
		Where("event_time >= ?", start.UTC()).
		Where("event_time <= ?", end.UTC()).
		Group("metric_name").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) DistinctCustomers(ctx context.Context, db *gorm.DB, start, end time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Model(&domain.UsageEvent{}).
		Distinct("customer_id").
		Where("event_time >= ?", start.UTC()).
		Where("event_time <= ?", end.UTC()).
		Order("customer_id asc").
		Pluck("customer_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
