package domain

import (
	"context"
	"errors"
)

type ComponentRequest struct {
	MetricName     string         `json:"metric_name" binding:"required"`
	DisplayName    string         `json:"display_name"`
	PricingType    string         `json:"pricing_type" binding:"required"`
	PricingDetails map[string]any `json:"pricing_details" binding:"required"`
	OverrideLimits map[string]any `json:"override_limits"`
}

type CreatePlanRequest struct {
	Name             string             `json:"name" binding:"required"`
	Description      string             `json:"description"`
	BillingFrequency string             `json:"billing_frequency"`
	PriceComponents  []ComponentRequest `json:"price_components"`
}

type UpdatePlanRequest struct {
	ID               string  `json:"-"`
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	BillingFrequency *string `json:"billing_frequency"`
	Active           *bool   `json:"active"`
}

type Service interface {
	Create(ctx context.Context, req CreatePlanRequest) (*Plan, error)
	Update(ctx context.Context, req UpdatePlanRequest) (*Plan, error)
	Deactivate(ctx context.Context, id string) (*Plan, error)
	GetByID(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context, activeOnly bool) ([]Plan, error)

	AddComponent(ctx context.Context, planID string, req ComponentRequest) (*PriceComponent, error)
	RemoveComponent(ctx context.Context, planID, componentID string) error
	ListComponents(ctx context.Context, planID string) ([]PriceComponent, error)
}

var (
	ErrInvalidName           = errors.New("invalid_plan_name")
	ErrInvalidMetricName     = errors.New("invalid_metric_name")
	ErrInvalidPricingType    = errors.New("invalid_pricing_type")
	ErrInvalidPricingDetails = errors.New("invalid_pricing_details")
	ErrInvalidID             = errors.New("invalid_id")
	ErrNotFound              = errors.New("plan_not_found")
	ErrComponentNotFound     = errors.New("price_component_not_found")
)
