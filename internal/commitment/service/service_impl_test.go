package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	billingperioddomain "github.com/smallbiznis/tally/internal/billingperiod/domain"
	billingperiodrepository "github.com/smallbiznis/tally/internal/billingperiod/repository"
	billingperiodservice "github.com/smallbiznis/tally/internal/billingperiod/service"
	"github.com/smallbiznis/tally/internal/cache"
	"github.com/smallbiznis/tally/internal/clock"
	"github.com/smallbiznis/tally/internal/commitment/domain"
	"github.com/smallbiznis/tally/internal/commitment/repository"
	customerdomain "github.com/smallbiznis/tally/internal/customer/domain"
	customerrepository "github.com/smallbiznis/tally/internal/customer/repository"
	customerservice "github.com/smallbiznis/tally/internal/customer/service"
	metricdomain "github.com/smallbiznis/tally/internal/metric/domain"
	metricrepository "github.com/smallbiznis/tally/internal/metric/repository"
	metricservice "github.com/smallbiznis/tally/internal/metric/service"
	plandomain "github.com/smallbiznis/tally/internal/plan/domain"
	planrepository "github.com/smallbiznis/tally/internal/plan/repository"
	planservice "github.com/smallbiznis/tally/internal/plan/service"
	subscriptiondomain "github.com/smallbiznis/tally/internal/subscription/domain"
	subscriptionrepository "github.com/smallbiznis/tally/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/tally/internal/subscription/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	svc           domain.Service
	metrics       metricdomain.Service
	subscriptions subscriptiondomain.Service
	customers     customerdomain.Service
	plans         plandomain.Service
	clock         *clock.FakeClock
	db            *gorm.DB
}

func setupCommitmentService(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&customerdomain.Customer{},
		&metricdomain.Metric{},
		&plandomain.Plan{},
		&plandomain.PriceComponent{},
		&subscriptiondomain.Subscription{},
		&billingperioddomain.BillingPeriod{},
		&domain.CommitmentTier{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	customerSvc := customerservice.New(customerservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo: customerrepository.Provide(),
	})
	metricSvc := metricservice.New(metricservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo:  metricrepository.Provide(),
		Cache: cache.NewMetricResolverCache(),
	})
	planSvc := planservice.New(planservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo:    planrepository.Provide(),
		Metrics: metricSvc,
	})
	periodSvc := billingperiodservice.New(billingperiodservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo: billingperiodrepository.Provide(),
	})
	subscriptionSvc := subscriptionservice.New(subscriptionservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo:      subscriptionrepository.Provide(),
		Customers: customerSvc,
		Plans:     planSvc,
		Periods:   periodSvc,
	})

	svc := New(Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo:          repository.Provide(),
		Subscriptions: subscriptionSvc,
		Metrics:       metricSvc,
	})

	return &testEnv{
		svc:           svc,
		metrics:       metricSvc,
		subscriptions: subscriptionSvc,
		customers:     customerSvc,
		plans:         planSvc,
		clock:         fake,
		db:            db,
	}
}

func (e *testEnv) seed(t *testing.T) (*subscriptiondomain.Subscription, *metricdomain.Metric) {
	t.Helper()
	ctx := context.Background()

	customer, err := e.customers.Create(ctx, customerdomain.CreateCustomerRequest{
		Name:  "Acme",
		Email: fmt.Sprintf("commit+%s@acme.test", t.Name()),
	})
	require.NoError(t, err)

	plan, err := e.plans.Create(ctx, plandomain.CreatePlanRequest{
		Name:             "Enterprise",
		BillingFrequency: "monthly",
	})
	require.NoError(t, err)

	subscription, err := e.subscriptions.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
		CustomerID: customer.ID.String(),
		PlanID:     plan.ID.String(),
	})
	require.NoError(t, err)

	metric, err := e.metrics.Create(ctx, metricdomain.CreateMetricRequest{
		Name:        "api_calls",
		DisplayName: "API Calls",
		Type:        "counter",
		Aggregation: "sum",
	})
	require.NoError(t, err)

	return subscription, metric
}

func ratePtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestCommitmentCreateAndList(t *testing.T) {
	env := setupCommitmentService(t)
	ctx := context.Background()
	subscription, metric := env.seed(t)

	tier, err := env.svc.Create(ctx, domain.CreateCommitmentRequest{
		SubscriptionID:  subscription.ID.String(),
		MetricID:        metric.ID.String(),
		CommittedAmount: decimal.NewFromInt(5000),
		Rate:            decimal.RequireFromString("0.008"),
		OverageRate:     ratePtr("0.012"),
	})
	require.NoError(t, err)
	assert.True(t, tier.StartDate.Equal(env.clock.Now()), "start defaults to now")
	assert.Nil(t, tier.EndDate)

	tiers, err := env.svc.ListForSubscription(ctx, subscription.ID.String())
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.Equal(t, metric.ID, tiers[0].MetricID)
}

func TestCommitmentCreate_Validation(t *testing.T) {
	env := setupCommitmentService(t)
	ctx := context.Background()
	subscription, metric := env.seed(t)

	_, err := env.svc.Create(ctx, domain.CreateCommitmentRequest{
		SubscriptionID:  snowflake.ID(404).String(),
		MetricID:        metric.ID.String(),
		CommittedAmount: decimal.NewFromInt(100),
		Rate:            decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)

	_, err = env.svc.Create(ctx, domain.CreateCommitmentRequest{
		SubscriptionID:  subscription.ID.String(),
		MetricID:        snowflake.ID(404).String(),
		CommittedAmount: decimal.NewFromInt(100),
		Rate:            decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrMetricNotFound)

	_, err = env.svc.Create(ctx, domain.CreateCommitmentRequest{
		SubscriptionID:  subscription.ID.String(),
		MetricID:        metric.ID.String(),
		CommittedAmount: decimal.Zero,
		Rate:            decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidCommitment)

	_, err = env.svc.Create(ctx, domain.CreateCommitmentRequest{
		SubscriptionID:  subscription.ID.String(),
		MetricID:        metric.ID.String(),
		CommittedAmount: decimal.NewFromInt(100),
		Rate:            decimal.NewFromInt(-1),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	start := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = env.svc.Create(ctx, domain.CreateCommitmentRequest{
		SubscriptionID:  subscription.ID.String(),
		MetricID:        metric.ID.String(),
		CommittedAmount: decimal.NewFromInt(100),
		Rate:            decimal.NewFromInt(1),
		StartDate:       &start,
		EndDate:         &end,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)
}

func TestCalculateCharges(t *testing.T) {
	env := setupCommitmentService(t)
	ctx := context.Background()
	subscription, metric := env.seed(t)

	_, err := env.svc.Create(ctx, domain.CreateCommitmentRequest{
		SubscriptionID:  subscription.ID.String(),
		MetricID:        metric.ID.String(),
		CommittedAmount: decimal.NewFromInt(5000),
		Rate:            decimal.RequireFromString("0.008"),
		OverageRate:     ratePtr("0.012"),
	})
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	// Usage below commitment: the $40 minimum wins over $24 actual.
	charges, err := env.svc.CalculateCharges(ctx, subscription.ID, start, end,
		map[string]decimal.Decimal{"api_calls": decimal.NewFromInt(3000)})
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.True(t, charges[metric.ID].Equal(decimal.NewFromInt(40)))

	// No usage at all still owes the minimum.
	charges, err = env.svc.CalculateCharges(ctx, subscription.ID, start, end, nil)
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.True(t, charges[metric.ID].Equal(decimal.NewFromInt(40)))

	// Overage beats the minimum: 5000*.008 + 3000*.012 = 76 > 40.
	charges, err = env.svc.CalculateCharges(ctx, subscription.ID, start, end,
		map[string]decimal.Decimal{"api_calls": decimal.NewFromInt(8000)})
	require.NoError(t, err)
	assert.Empty(t, charges)

	// Usage exactly at commitment: actual equals committed, no minimum.
	charges, err = env.svc.CalculateCharges(ctx, subscription.ID, start, end,
		map[string]decimal.Decimal{"api_calls": decimal.NewFromInt(5000)})
	require.NoError(t, err)
	assert.Empty(t, charges)
}

func TestCalculateCharges_NoOverageRate(t *testing.T) {
	env := setupCommitmentService(t)
	ctx := context.Background()
	subscription, metric := env.seed(t)

	_, err := env.svc.Create(ctx, domain.CreateCommitmentRequest{
		SubscriptionID:  subscription.ID.String(),
		MetricID:        metric.ID.String(),
		CommittedAmount: decimal.NewFromInt(1000),
		Rate:            decimal.RequireFromString("0.05"),
	})
	require.NoError(t, err)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	// Without an overage rate all usage is priced at the base rate, so
	// 2000*.05 = 100 > 50 and no minimum applies.
	charges, err := env.svc.CalculateCharges(ctx, subscription.ID, start, end,
		map[string]decimal.Decimal{"api_calls": decimal.NewFromInt(2000)})
	require.NoError(t, err)
	assert.Empty(t, charges)

	charges, err = env.svc.CalculateCharges(ctx, subscription.ID, start, end,
		map[string]decimal.Decimal{"api_calls": decimal.NewFromInt(500)})
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.True(t, charges[metric.ID].Equal(decimal.NewFromInt(50)))
}

func TestCalculateCharges_WindowIntersection(t *testing.T) {
	env := setupCommitmentService(t)
	ctx := context.Background()
	subscription, metric := env.seed(t)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	_, err := env.svc.Create(ctx, domain.CreateCommitmentRequest{
		SubscriptionID:  subscription.ID.String(),
		MetricID:        metric.ID.String(),
		CommittedAmount: decimal.NewFromInt(100),
		Rate:            decimal.NewFromInt(1),
		StartDate:       &start,
		EndDate:         &end,
	})
	require.NoError(t, err)

	// A window after the tier ended sees no commitments.
	charges, err := env.svc.CalculateCharges(ctx, subscription.ID,
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	assert.Empty(t, charges)

	// Partial overlap still applies.
	charges, err = env.svc.CalculateCharges(ctx, subscription.ID,
		time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.True(t, charges[metric.ID].Equal(decimal.NewFromInt(100)))
}
