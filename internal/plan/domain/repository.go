package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *Plan) error
	Update(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]Plan, error)

	InsertComponent(ctx context.Context, db *gorm.DB, component *PriceComponent) error
	DeleteComponent(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindComponentByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PriceComponent, error)
	ListComponents(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]PriceComponent, error)
	ListComponentsForPlans(ctx context.Context, db *gorm.DB, planIDs []snowflake.ID) ([]PriceComponent, error)
}
