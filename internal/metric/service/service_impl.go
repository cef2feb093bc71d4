package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tally/internal/cache"
	"github.com/smallbiznis/tally/internal/clock"
	"github.com/smallbiznis/tally/internal/metric/domain"
	"github.com/smallbiznis/tally/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
	Cache cache.MetricResolverCache
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
	cache cache.MetricResolverCache
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("metric.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		cache: p.Cache,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateMetricRequest) (*domain.Metric, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	metricType := domain.MetricType(strings.TrimSpace(req.Type))
	if !metricType.Valid() {
		return nil, domain.ErrInvalidType
	}

	aggregation := domain.AggregationType(strings.TrimSpace(req.Aggregation))
	if !aggregation.Valid() {
		return nil, domain.ErrInvalidAggregation
	}

	if metricType == domain.MetricTypeComposite && len(req.Formula) == 0 {
		return nil, domain.ErrMissingFormula
	}

	existing, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateName
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = name
	}

	now := s.clock.Now()
	metric := &domain.Metric{
		ID:                s.genID.Generate(),
		Name:              name,
		DisplayName:       displayName,
		Unit:              strings.TrimSpace(req.Unit),
		Type:              metricType,
		Aggregation:       aggregation,
		Formula:           datatypes.JSONMap(req.Formula),
		DisplayProperties: datatypes.JSONMap(req.DisplayProperties),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Insert(ctx, s.db, metric); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}

	s.cache.Invalidate(name)
	return metric, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateMetricRequest) (*domain.Metric, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return nil, err
	}

	metric, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if metric == nil {
		return nil, domain.ErrNotFound
	}

	if req.DisplayName != nil {
		displayName := strings.TrimSpace(*req.DisplayName)
		if displayName == "" {
			return nil, domain.ErrInvalidName
		}
		metric.DisplayName = displayName
	}
	if req.Unit != nil {
		metric.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.Aggregation != nil {
		aggregation := domain.AggregationType(strings.TrimSpace(*req.Aggregation))
		if !aggregation.Valid() {
			return nil, domain.ErrInvalidAggregation
		}
		metric.Aggregation = aggregation
	}
	if req.Formula != nil {
		metric.Formula = datatypes.JSONMap(req.Formula)
	}
	if req.DisplayProperties != nil {
		metric.DisplayProperties = datatypes.JSONMap(req.DisplayProperties)
	}

	if metric.Type == domain.MetricTypeComposite && len(metric.Formula) == 0 {
		return nil, domain.ErrMissingFormula
	}

	metric.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, metric); err != nil {
		return nil, err
	}

	s.cache.Invalidate(metric.Name)
	return metric, nil
}

func (s *Service) Delete(ctx context.Context, rawID string) error {
	id, err := s.parseID(rawID)
	if err != nil {
		return err
	}

	metric, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if metric == nil {
		return domain.ErrNotFound
	}

	if err := s.repo.Delete(ctx, s.db, id); err != nil {
		return err
	}

	s.cache.Invalidate(metric.Name)
	return nil
}

func (s *Service) GetByID(ctx context.Context, rawID string) (*domain.Metric, error) {
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, err
	}

	metric, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if metric == nil {
		return nil, domain.ErrNotFound
	}
	return metric, nil
}

func (s *Service) GetByName(ctx context.Context, name string) (*domain.Metric, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	if cached, ok := s.cache.GetMetric(name); ok {
		return cached, nil
	}

	metric, err := s.repo.FindByName(ctx, s.db, name)
	if err != nil {
		return nil, err
	}
	if metric == nil {
		return nil, domain.ErrNotFound
	}

	s.cache.SetMetric(name, metric)
	return metric, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Metric, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) EvaluateComposite(ctx context.Context, req domain.EvaluateCompositeRequest) (decimal.Decimal, error) {
	metric, err := s.GetByID(ctx, req.ID)
	if err != nil {
		return decimal.Zero, err
	}

	if metric.Type != domain.MetricTypeComposite {
		return decimal.Zero, domain.ErrNotComposite
	}
	if len(metric.Formula) == 0 {
		return decimal.Zero, domain.ErrMissingFormula
	}

	value, err := evaluateFormula(metric.Formula, req.Inputs)
	if err != nil {
		s.log.Warn("composite evaluation failed",
			zap.String("metric", metric.Name),
			zap.Error(err),
		)
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrFormulaFailed, err)
	}
	return value, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
