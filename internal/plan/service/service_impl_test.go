package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/tally/internal/cache"
	"github.com/smallbiznis/tally/internal/clock"
	metricdomain "github.com/smallbiznis/tally/internal/metric/domain"
	metricrepository "github.com/smallbiznis/tally/internal/metric/repository"
	metricservice "github.com/smallbiznis/tally/internal/metric/service"
	"github.com/smallbiznis/tally/internal/plan/domain"
	"github.com/smallbiznis/tally/internal/plan/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupPlanService(t *testing.T) (domain.Service, metricdomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&domain.Plan{}, &domain.PriceComponent{}, &metricdomain.Metric{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	metricSvc := metricservice.New(metricservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  metricrepository.Provide(),
		Cache: cache.NewMetricResolverCache(),
	})

	svc := New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fake,
		Repo:    repository.Provide(),
		Metrics: metricSvc,
	})

	return svc, metricSvc, db
}

func tieredComponentRequest() domain.ComponentRequest {
	return domain.ComponentRequest{
		MetricName:  "api_calls",
		DisplayName: "API Calls",
		PricingType: "tiered",
		PricingDetails: map[string]any{
			"tiers": []any{
				map[string]any{"start": 0.0, "end": 1000.0, "price": 0.01},
				map[string]any{"start": 1000.0, "price": 0.005},
			},
		},
	}
}

func TestPlanCreate_NormalizesFrequency(t *testing.T) {
	svc, _, _ := setupPlanService(t)
	ctx := context.Background()

	cases := map[string]domain.BillingFrequency{
		"monthly":   domain.FrequencyMonthly,
		"quarterly": domain.FrequencyQuarterly,
		"yearly":    domain.FrequencyYearly,
		"weekly":    domain.FrequencyMonthly,
		"":          domain.FrequencyMonthly,
	}
	for input, expected := range cases {
		plan, err := svc.Create(ctx, domain.CreatePlanRequest{
			Name:             "Plan " + input,
			BillingFrequency: input,
		})
		require.NoError(t, err)
		assert.Equal(t, expected, plan.BillingFrequency, "input %q", input)
		assert.True(t, plan.Active)
	}
}

func TestPlanCreate_WithComponents(t *testing.T) {
	svc, metricSvc, _ := setupPlanService(t)
	ctx := context.Background()

	metric, err := metricSvc.Create(ctx, metricdomain.CreateMetricRequest{
		Name: "api_calls", Type: "counter", Aggregation: "sum",
	})
	require.NoError(t, err)

	plan, err := svc.Create(ctx, domain.CreatePlanRequest{
		Name:             "Pro",
		Description:      "Pro tier",
		BillingFrequency: "monthly",
		PriceComponents: []domain.ComponentRequest{
			tieredComponentRequest(),
			{
				MetricName:     "platform_fee",
				PricingType:    "flat",
				PricingDetails: map[string]any{"amount": 99.0},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, plan.Components, 2)

	// api_calls is registered so its id resolves; platform_fee is not.
	require.NotNil(t, plan.Components[0].MetricID)
	assert.Equal(t, metric.ID, *plan.Components[0].MetricID)
	assert.Nil(t, plan.Components[1].MetricID)
	assert.Equal(t, "platform_fee", plan.Components[1].DisplayName)

	fetched, err := svc.GetByID(ctx, plan.ID.String())
	require.NoError(t, err)
	assert.Len(t, fetched.Components, 2)
}

func TestPlanCreate_RejectsInvalidPricing(t *testing.T) {
	svc, _, _ := setupPlanService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreatePlanRequest{
		Name: "Bad Type",
		PriceComponents: []domain.ComponentRequest{{
			MetricName:     "api_calls",
			PricingType:    "surge",
			PricingDetails: map[string]any{},
		}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPricingType)

	_, err = svc.Create(ctx, domain.CreatePlanRequest{
		Name: "Bad Details",
		PriceComponents: []domain.ComponentRequest{{
			MetricName:     "api_calls",
			PricingType:    "tiered",
			PricingDetails: map[string]any{"tiers": []any{}},
		}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPricingDetails)

	// A failed component validation must not leave a half-created plan.
	plans, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestPlanCreate_AcceptsAllPricingTypes(t *testing.T) {
	svc, _, _ := setupPlanService(t)
	ctx := context.Background()

	components := []domain.ComponentRequest{
		{MetricName: "m1", PricingType: "flat", PricingDetails: map[string]any{"amount": 1.0}},
		{MetricName: "m2", PricingType: "subscription", PricingDetails: map[string]any{"amount": 1.0}},
		{MetricName: "m3", PricingType: "tiered", PricingDetails: map[string]any{"tiers": []any{map[string]any{"price": 0.1}}}},
		{MetricName: "m4", PricingType: "volume", PricingDetails: map[string]any{"tiers": []any{map[string]any{"price": 0.1}}}},
		{MetricName: "m5", PricingType: "graduated", PricingDetails: map[string]any{"tiers": []any{map[string]any{"price": 0.1}}}},
		{MetricName: "m6", PricingType: "package", PricingDetails: map[string]any{"package_size": 10.0, "package_price": 1.0}},
		{MetricName: "m7", PricingType: "threshold", PricingDetails: map[string]any{"thresholds": []any{map[string]any{"threshold": 1.0, "price": 1.0}}}},
		{MetricName: "m8", PricingType: "usage_based_subscription", PricingDetails: map[string]any{"base_fee": 1.0}},
		{MetricName: "m9", PricingType: "time_based", PricingDetails: map[string]any{"rate_per_unit": 1.0}},
		{MetricName: "m10", PricingType: "dimension_based", PricingDetails: map[string]any{"base_rate": 1.0}},
		{MetricName: "m11", PricingType: "dynamic", PricingDetails: map[string]any{"base_rate": 1.0}},
	}

	plan, err := svc.Create(ctx, domain.CreatePlanRequest{Name: "Everything", PriceComponents: components})
	require.NoError(t, err)
	assert.Len(t, plan.Components, len(components))
}

func TestPlanAddRemoveComponent(t *testing.T) {
	svc, _, _ := setupPlanService(t)
	ctx := context.Background()

	plan, err := svc.Create(ctx, domain.CreatePlanRequest{Name: "Starter"})
	require.NoError(t, err)

	component, err := svc.AddComponent(ctx, plan.ID.String(), tieredComponentRequest())
	require.NoError(t, err)
	assert.Equal(t, plan.ID, component.PlanID)

	other, err := svc.Create(ctx, domain.CreatePlanRequest{Name: "Other"})
	require.NoError(t, err)

	// Components are only removable through their own plan.
	err = svc.RemoveComponent(ctx, other.ID.String(), component.ID.String())
	assert.ErrorIs(t, err, domain.ErrComponentNotFound)

	require.NoError(t, svc.RemoveComponent(ctx, plan.ID.String(), component.ID.String()))

	components, err := svc.ListComponents(ctx, plan.ID.String())
	require.NoError(t, err)
	assert.Empty(t, components)

	_, err = svc.AddComponent(ctx, snowflake.ID(123456789).String(), tieredComponentRequest())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPlanDeactivateAndList(t *testing.T) {
	svc, _, _ := setupPlanService(t)
	ctx := context.Background()

	active, err := svc.Create(ctx, domain.CreatePlanRequest{Name: "Active"})
	require.NoError(t, err)
	retired, err := svc.Create(ctx, domain.CreatePlanRequest{Name: "Retired"})
	require.NoError(t, err)

	deactivated, err := svc.Deactivate(ctx, retired.ID.String())
	require.NoError(t, err)
	assert.False(t, deactivated.Active)

	all, err := svc.List(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	activeOnly, err := svc.List(ctx, true)
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, active.ID, activeOnly[0].ID)
}

func TestPlanUpdate(t *testing.T) {
	svc, _, _ := setupPlanService(t)
	ctx := context.Background()

	plan, err := svc.Create(ctx, domain.CreatePlanRequest{Name: "Starter", BillingFrequency: "monthly"})
	require.NoError(t, err)

	name := "Starter v2"
	frequency := "yearly"
	updated, err := svc.Update(ctx, domain.UpdatePlanRequest{
		ID:               plan.ID.String(),
		Name:             &name,
		BillingFrequency: &frequency,
	})
	require.NoError(t, err)
	assert.Equal(t, "Starter v2", updated.Name)
	assert.Equal(t, domain.FrequencyYearly, updated.BillingFrequency)

	empty := "  "
	_, err = svc.Update(ctx, domain.UpdatePlanRequest{ID: plan.ID.String(), Name: &empty})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Update(ctx, domain.UpdatePlanRequest{ID: "not-a-snowflake"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}
