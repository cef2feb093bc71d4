package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingperioddomain "github.com/smallbiznis/tally/internal/billingperiod/domain"
	"github.com/smallbiznis/tally/internal/clock"
	customerdomain "github.com/smallbiznis/tally/internal/customer/domain"
	plandomain "github.com/smallbiznis/tally/internal/plan/domain"
	"github.com/smallbiznis/tally/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Customers customerdomain.Service
	Plans     plandomain.Service
	Periods   billingperioddomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	customers customerdomain.Service
	plans     plandomain.Service
	periods   billingperioddomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("subscription.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		customers: p.Customers,
		plans:     p.Plans,
		periods:   p.Periods,
	}
}

// Create persists the subscription together with its pre-generated
// billing periods in one transaction.
func (s *Service) Create(ctx context.Context, req domain.CreateSubscriptionRequest) (*domain.Subscription, error) {
	customerID, err := s.parseID(req.CustomerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.customers.GetByID(ctx, customerdomain.GetCustomerRequest{ID: req.CustomerID}); err != nil {
		return nil, domain.ErrCustomerNotFound
	}

	planID, err := s.parseID(req.PlanID)
	if err != nil {
		return nil, err
	}
	plan, err := s.plans.GetByID(ctx, req.PlanID)
	if err != nil {
		return nil, domain.ErrPlanNotFound
	}

	start := s.clock.Now()
	if req.StartDate != nil {
		start = *req.StartDate
	}
	if req.EndDate != nil && req.EndDate.Before(start) {
		return nil, domain.ErrInvalidDateRange
	}

	now := s.clock.Now()
	subscription := &domain.Subscription{
		ID:         s.genID.Generate(),
		CustomerID: customerID,
		PlanID:     planID,
		StartDate:  start,
		EndDate:    req.EndDate,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	periods := s.periods.GeneratePeriods(subscription.ID, plan.BillingFrequency, start, req.EndDate)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, subscription); err != nil {
			return err
		}
		return s.periods.PersistPeriods(ctx, tx, periods)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription created",
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("customer_id", customerID.String()),
		zap.String("plan_id", planID.String()),
		zap.Int("billing_periods", len(periods)),
	)
	return subscription, nil
}

// Cancel deactivates the subscription. Already-generated billing
// periods stay behind as historical boundaries.
func (s *Service) Cancel(ctx context.Context, req domain.CancelSubscriptionRequest) (*domain.Subscription, error) {
	id, err := s.parseID(req.ID)
	if err != nil {
		return nil, err
	}

	subscription, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, domain.ErrNotFound
	}

	end := s.clock.Now()
	if req.EndDate != nil {
		end = *req.EndDate
	}
	if end.Before(subscription.StartDate) {
		return nil, domain.ErrInvalidDateRange
	}

	subscription.Active = false
	subscription.EndDate = &end
	subscription.UpdatedAt = s.clock.Now()

	if err := s.repo.Update(ctx, s.db, subscription); err != nil {
		return nil, err
	}
	return subscription, nil
}

func (s *Service) GetByID(ctx context.Context, rawID string) (*domain.Subscription, error) {
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, err
	}

	subscription, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, domain.ErrNotFound
	}
	return subscription, nil
}

func (s *Service) List(ctx context.Context, req domain.ListSubscriptionsRequest) ([]domain.Subscription, error) {
	customerID, err := s.parseID(req.CustomerID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByCustomer(ctx, s.db, customerID, req.ActiveOnly)
}

func (s *Service) ListActiveAt(ctx context.Context, customerID snowflake.ID, t time.Time) ([]domain.Subscription, error) {
	return s.repo.ListActiveAt(ctx, s.db, customerID, t)
}

func (s *Service) ListOverlapping(ctx context.Context, customerID snowflake.ID, start, end time.Time) ([]domain.Subscription, error) {
	return s.repo.ListOverlapping(ctx, s.db, customerID, start, end)
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
