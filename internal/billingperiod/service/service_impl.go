package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/billingperiod/domain"
	"github.com/smallbiznis/tally/internal/clock"
	plandomain "github.com/smallbiznis/tally/internal/plan/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Subscriptions without an end date get one year of periods up front.
const openEndedHorizonYears = 1

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("billingperiod.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) GeneratePeriods(subscriptionID snowflake.ID, frequency plandomain.BillingFrequency, start time.Time, end *time.Time) []domain.BillingPeriod {
	bound := addClampedDate(start, openEndedHorizonYears, 0, 0)
	if end != nil {
		bound = *end
	}

	now := s.clock.Now()
	var periods []domain.BillingPeriod

	current := start
	for current.Before(bound) {
		next := nextPeriodEnd(current, frequency)
		if next.After(bound) {
			next = bound
		}

		periods = append(periods, domain.BillingPeriod{
			ID:             s.genID.Generate(),
			SubscriptionID: subscriptionID,
			StartDate:      current,
			EndDate:        next,
			CreatedAt:      now,
		})
		current = next
	}
	return periods
}

func (s *Service) PersistPeriods(ctx context.Context, db *gorm.DB, periods []domain.BillingPeriod) error {
	return s.repo.BatchInsert(ctx, db, periods)
}

func (s *Service) GetByID(ctx context.Context, rawID string) (*domain.BillingPeriod, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(rawID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidID
	}

	period, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if period == nil {
		return nil, domain.ErrNotFound
	}
	return period, nil
}

func (s *Service) ListBySubscription(ctx context.Context, subscriptionID snowflake.ID) ([]domain.BillingPeriod, error) {
	return s.repo.ListBySubscription(ctx, s.db, subscriptionID)
}

// FindForTime returns the earliest period containing t, or nil when the
// subscription has none. Boundary instants shared by two periods
// resolve to the earlier one.
func (s *Service) FindForTime(ctx context.Context, subscriptionID snowflake.ID, t time.Time) (*domain.BillingPeriod, error) {
	return s.repo.FindForTime(ctx, s.db, subscriptionID, t)
}

func (s *Service) LinkInvoice(ctx context.Context, db *gorm.DB, periodID, invoiceID snowflake.ID) error {
	return s.repo.LinkInvoice(ctx, db, periodID, invoiceID)
}

// nextPeriodEnd advances one billing interval. Unrecognized frequencies
// fall back to monthly.
func nextPeriodEnd(start time.Time, frequency plandomain.BillingFrequency) time.Time {
	switch frequency {
	case plandomain.FrequencyQuarterly:
		return addClampedDate(start, 0, 3, 0)
	case plandomain.FrequencyYearly:
		return addClampedDate(start, 1, 0, 0)
	default:
		return addClampedDate(start, 0, 1, 0)
	}
}

// addClampedDate steps by calendar units, clamping the day-of-month to
// the target month's last day instead of rolling over the way
// time.AddDate does (Jan 31 + 1 month = Feb 28, not Mar 3).
func addClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	year := y + years
	month := int(m) + months
	for month > 12 {
		month -= 12
		year++
	}
	for month < 1 {
		month += 12
		year--
	}

	day := d + days
	if last := lastDayOfMonth(year, time.Month(month), t.Location()); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, h, min, sec, t.Nanosecond(), t.Location())
}

// lastDayOfMonth relies on time.Date normalizing day zero to the final
// day of the preceding month.
func lastDayOfMonth(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
