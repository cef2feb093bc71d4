package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/smallbiznis/tally/internal/clock"
	metricdomain "github.com/smallbiznis/tally/internal/metric/domain"
	"github.com/smallbiznis/tally/internal/plan/domain"
	"github.com/smallbiznis/tally/internal/pricing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics metricdomain.Service
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics metricdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("plan.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePlanRequest) (*domain.Plan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	plan := &domain.Plan{
		ID:               s.genID.Generate(),
		Name:             name,
		Description:      strings.TrimSpace(req.Description),
		BillingFrequency: domain.NormalizeFrequency(strings.TrimSpace(req.BillingFrequency)),
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	components := make([]*domain.PriceComponent, 0, len(req.PriceComponents))
	for _, cr := range req.PriceComponents {
		component, err := s.buildComponent(ctx, plan.ID, cr)
		if err != nil {
			return nil, err
		}
		components = append(components, component)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, plan); err != nil {
			return err
		}
		for _, component := range components {
			if err := s.repo.InsertComponent(ctx, tx, component); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	plan.Components = dereferenceComponents(components)
	return plan, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdatePlanRequest) (*domain.Plan, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return nil, err
	}

	plan, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrNotFound
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		plan.Name = name
	}
	if req.Description != nil {
		plan.Description = strings.TrimSpace(*req.Description)
	}
	if req.BillingFrequency != nil {
		plan.BillingFrequency = domain.NormalizeFrequency(strings.TrimSpace(*req.BillingFrequency))
	}
	if req.Active != nil {
		plan.Active = *req.Active
	}

	plan.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, plan); err != nil {
		return nil, err
	}

	return s.withComponents(ctx, plan)
}

func (s *Service) Deactivate(ctx context.Context, rawID string) (*domain.Plan, error) {
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, err
	}

	plan, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrNotFound
	}

	// Existing subscriptions keep billing; deactivation only stops new
	// sign-ups.
	plan.Active = false
	plan.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, plan); err != nil {
		return nil, err
	}

	return s.withComponents(ctx, plan)
}

func (s *Service) GetByID(ctx context.Context, rawID string) (*domain.Plan, error) {
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, err
	}

	plan, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrNotFound
	}

	return s.withComponents(ctx, plan)
}

func (s *Service) List(ctx context.Context, activeOnly bool) ([]domain.Plan, error) {
	plans, err := s.repo.List(ctx, s.db, activeOnly)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return plans, nil
	}

	planIDs := lo.Map(plans, func(p domain.Plan, _ int) snowflake.ID { return p.ID })
	components, err := s.repo.ListComponentsForPlans(ctx, s.db, planIDs)
	if err != nil {
		return nil, err
	}

	byPlan := lo.GroupBy(components, func(c domain.PriceComponent) snowflake.ID { return c.PlanID })
	for i := range plans {
		plans[i].Components = byPlan[plans[i].ID]
	}
	return plans, nil
}

func (s *Service) AddComponent(ctx context.Context, rawPlanID string, req domain.ComponentRequest) (*domain.PriceComponent, error) {
	planID, err := s.parseID(rawPlanID)
	if err != nil {
		return nil, err
	}

	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrNotFound
	}

	component, err := s.buildComponent(ctx, planID, req)
	if err != nil {
		return nil, err
	}

	if err := s.repo.InsertComponent(ctx, s.db, component); err != nil {
		return nil, err
	}
	return component, nil
}

func (s *Service) RemoveComponent(ctx context.Context, rawPlanID, rawComponentID string) error {
	planID, err := s.parseID(rawPlanID)
	if err != nil {
		return err
	}
	componentID, err := s.parseID(rawComponentID)
	if err != nil {
		return err
	}

	component, err := s.repo.FindComponentByID(ctx, s.db, componentID)
	if err != nil {
		return err
	}
	if component == nil || component.PlanID != planID {
		return domain.ErrComponentNotFound
	}

	return s.repo.DeleteComponent(ctx, s.db, componentID)
}

func (s *Service) ListComponents(ctx context.Context, rawPlanID string) ([]domain.PriceComponent, error) {
	planID, err := s.parseID(rawPlanID)
	if err != nil {
		return nil, err
	}

	plan, err := s.repo.FindByID(ctx, s.db, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrNotFound
	}

	return s.repo.ListComponents(ctx, s.db, planID)
}

// buildComponent validates the request against the full pricing-type
// enumeration and its per-type details schema, and resolves the metric
// id when a metric with that name is registered.
func (s *Service) buildComponent(ctx context.Context, planID snowflake.ID, req domain.ComponentRequest) (*domain.PriceComponent, error) {
	metricName := strings.TrimSpace(req.MetricName)
	if metricName == "" {
		return nil, domain.ErrInvalidMetricName
	}

	pricingType := pricing.Type(strings.TrimSpace(req.PricingType))
	if !pricingType.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidPricingType, req.PricingType)
	}
	if err := pricing.ValidateDetails(pricingType, req.PricingDetails); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPricingDetails, err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = metricName
	}

	var metricID *snowflake.ID
	metric, err := s.metrics.GetByName(ctx, metricName)
	switch {
	case err == nil:
		metricID = &metric.ID
	case errors.Is(err, metricdomain.ErrNotFound):
		// Components may reference metrics registered later.
	default:
		return nil, err
	}

	now := s.clock.Now()
	return &domain.PriceComponent{
		ID:             s.genID.Generate(),
		PlanID:         planID,
		MetricName:     metricName,
		MetricID:       metricID,
		DisplayName:    displayName,
		PricingType:    pricingType,
		PricingDetails: datatypes.JSONMap(req.PricingDetails),
		OverrideLimits: datatypes.JSONMap(req.OverrideLimits),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *Service) withComponents(ctx context.Context, plan *domain.Plan) (*domain.Plan, error) {
	components, err := s.repo.ListComponents(ctx, s.db, plan.ID)
	if err != nil {
		return nil, err
	}
	plan.Components = components
	return plan, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func dereferenceComponents(components []*domain.PriceComponent) []domain.PriceComponent {
	out := make([]domain.PriceComponent, 0, len(components))
	for _, c := range components {
		out = append(out, *c)
	}
	return out
}
