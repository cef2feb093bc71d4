package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Create(plan).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Save(plan).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	var plan domain.Plan
	err := db.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Plan, error) {
	query := db.WithContext(ctx).Model(&domain.Plan{}).Order("name asc")
	if activeOnly {
		query = query.Where("active = ?", true)
	}

	var plans []domain.Plan
	if err := query.Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repo) InsertComponent(ctx context.Context, db *gorm.DB, component *domain.PriceComponent) error {
	return db.WithContext(ctx).Create(component).Error
}

func (r *repo) DeleteComponent(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.PriceComponent{}).Error
}

func (r *repo) FindComponentByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.PriceComponent, error) {
	var component domain.PriceComponent
	err := db.WithContext(ctx).Where("id = ?", id).First(&component).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &component, nil
}

func (r *repo) ListComponents(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]domain.PriceComponent, error) {
	var components []domain.PriceComponent
	err := db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("id asc").
		Find(&components).Error
	if err != nil {
		return nil, err
	}
	return components, nil
}

func (r *repo) ListComponentsForPlans(ctx context.Context, db *gorm.DB, planIDs []snowflake.ID) ([]domain.PriceComponent, error) {
	if len(planIDs) == 0 {
		return nil, nil
	}

	var components []domain.PriceComponent
	err := db.WithContext(ctx).
		Where("plan_id IN ?", planIDs).
		Order("id asc").
		Find(&components).Error
	if err != nil {
		return nil, err
	}
	return components, nil
}
