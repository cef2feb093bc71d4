package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tally/internal/clock"
	"github.com/smallbiznis/tally/internal/commitment/domain"
	metricdomain "github.com/smallbiznis/tally/internal/metric/domain"
	subscriptiondomain "github.com/smallbiznis/tally/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	Subscriptions subscriptiondomain.Service
	Metrics       metricdomain.Service
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	subscriptions subscriptiondomain.Service
	metrics       metricdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("commitment.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		subscriptions: p.Subscriptions,
		metrics:       p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateCommitmentRequest) (*domain.CommitmentTier, error) {
	subscriptionID, err := s.parseID(req.SubscriptionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.subscriptions.GetByID(ctx, req.SubscriptionID); err != nil {
		return nil, domain.ErrSubscriptionNotFound
	}

	metricID, err := s.parseID(req.MetricID)
	if err != nil {
		return nil, err
	}
	if _, err := s.metrics.GetByID(ctx, req.MetricID); err != nil {
		if errors.Is(err, metricdomain.ErrNotFound) {
			return nil, domain.ErrMetricNotFound
		}
		return nil, err
	}

	if req.CommittedAmount.Sign() <= 0 {
		return nil, domain.ErrInvalidCommitment
	}
	if req.Rate.Sign() < 0 {
		return nil, domain.ErrInvalidRate
	}
	if req.OverageRate != nil && req.OverageRate.Sign() < 0 {
		return nil, domain.ErrInvalidRate
	}

	start := s.clock.Now()
	if req.StartDate != nil {
		start = *req.StartDate
	}
	if req.EndDate != nil && req.EndDate.Before(start) {
		return nil, domain.ErrInvalidDateRange
	}

	now := s.clock.Now()
	tier := &domain.CommitmentTier{
		ID:              s.genID.Generate(),
		SubscriptionID:  subscriptionID,
		MetricID:        metricID,
		CommittedAmount: req.CommittedAmount,
		Rate:            req.Rate,
		OverageRate:     req.OverageRate,
		StartDate:       start,
		EndDate:         req.EndDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Insert(ctx, s.db, tier); err != nil {
		return nil, err
	}

	s.log.Info("commitment tier created",
		zap.String("subscription_id", subscriptionID.String()),
		zap.String("metric_id", metricID.String()),
		zap.String("committed_amount", req.CommittedAmount.String()),
	)
	return tier, nil
}

func (s *Service) ListForSubscription(ctx context.Context, subscriptionID string) ([]domain.CommitmentTier, error) {
	id, err := s.parseID(subscriptionID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListBySubscription(ctx, s.db, id)
}

// CalculateCharges compares the committed minimum against the charge
// actual usage would produce and keeps the minimum only when it wins.
// Usage above the committed amount is priced at the overage rate when
// one is set.
func (s *Service) CalculateCharges(ctx context.Context, subscriptionID snowflake.ID, start, end time.Time, usageByMetric map[string]decimal.Decimal) (map[snowflake.ID]decimal.Decimal, error) {
	tiers, err := s.repo.ListOverlapping(ctx, s.db, subscriptionID, start, end)
	if err != nil {
		return nil, err
	}

	charges := make(map[snowflake.ID]decimal.Decimal)
	for _, tier := range tiers {
		metric, err := s.metrics.GetByID(ctx, tier.MetricID.String())
		if err != nil {
			if errors.Is(err, metricdomain.ErrNotFound) {
				continue
			}
			return nil, err
		}

		usage := usageByMetric[metric.Name]
		committedCharge := tier.CommittedAmount.Mul(tier.Rate)

		actualCharge := decimal.Zero
		if usage.Sign() > 0 {
			if tier.OverageRate != nil && usage.GreaterThan(tier.CommittedAmount) {
				overage := usage.Sub(tier.CommittedAmount)
				actualCharge = tier.CommittedAmount.Mul(tier.Rate).Add(overage.Mul(*tier.OverageRate))
			} else {
				actualCharge = usage.Mul(tier.Rate)
			}
		}

		if committedCharge.GreaterThan(actualCharge) {
			charges[tier.MetricID] = committedCharge
		}
	}
	return charges, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
