package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, metric *Metric) error
	Update(ctx context.Context, db *gorm.DB, metric *Metric) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Metric, error)
	FindByName(ctx context.Context, db *gorm.DB, name string) (*Metric, error)
	List(ctx context.Context, db *gorm.DB) ([]Metric, error)
}
