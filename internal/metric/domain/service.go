package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type CreateMetricRequest struct {
	Name              string         `json:"name" binding:"required"`
	DisplayName       string         `json:"display_name"`
	Unit              string         `json:"unit"`
	Type              string         `json:"type" binding:"required"`
	Aggregation       string         `json:"aggregation" binding:"required"`
	Formula           map[string]any `json:"formula"`
	DisplayProperties map[string]any `json:"display_properties"`
}

type UpdateMetricRequest struct {
	ID                string         `json:"-"`
	DisplayName       *string        `json:"display_name"`
	Unit              *string        `json:"unit"`
	Aggregation       *string        `json:"aggregation"`
	Formula           map[string]any `json:"formula"`
	DisplayProperties map[string]any `json:"display_properties"`
}

// EvaluateCompositeRequest feeds source-metric values into a composite
// metric's formula.
type EvaluateCompositeRequest struct {
	ID     string
	Inputs map[string]decimal.Decimal
}

type Service interface {
	Create(ctx context.Context, req CreateMetricRequest) (*Metric, error)
	Update(ctx context.Context, req UpdateMetricRequest) (*Metric, error)
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*Metric, error)
	GetByName(ctx context.Context, name string) (*Metric, error)
	List(ctx context.Context) ([]Metric, error)
	EvaluateComposite(ctx context.Context, req EvaluateCompositeRequest) (decimal.Decimal, error)
}

var (
	ErrInvalidName        = errors.New("invalid_metric_name")
	ErrInvalidType        = errors.New("invalid_metric_type")
	ErrInvalidAggregation = errors.New("invalid_aggregation_type")
	ErrDuplicateName      = errors.New("duplicate_metric_name")
	ErrMissingFormula     = errors.New("composite_metric_requires_formula")
	ErrNotComposite       = errors.New("metric_not_composite")
	ErrFormulaFailed      = errors.New("formula_evaluation_failed")
	ErrInvalidID          = errors.New("invalid_id")
	ErrNotFound           = errors.New("metric_not_found")
)
