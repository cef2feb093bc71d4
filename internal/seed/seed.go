// Package seed installs a small demo dataset so a fresh install can
// exercise the billing pipeline end to end.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingperioddomain "github.com/smallbiznis/tally/internal/billingperiod/domain"
	creditdomain "github.com/smallbiznis/tally/internal/credit/domain"
	customerdomain "github.com/smallbiznis/tally/internal/customer/domain"
	eventdomain "github.com/smallbiznis/tally/internal/event/domain"
	metricdomain "github.com/smallbiznis/tally/internal/metric/domain"
	plandomain "github.com/smallbiznis/tally/internal/plan/domain"
	"github.com/smallbiznis/tally/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/tally/internal/subscription/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const demoCustomerEmail = "demo@tally.dev"

// EnsureDemoData seeds a demo customer, plan, subscription, usage and
// credit when they are not present. Safe to run on every startup.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing customerdomain.Customer
		err := tx.Where("email = ?", demoCustomerEmail).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return seedDemoDataTx(tx, node)
	})
}

func seedDemoDataTx(tx *gorm.DB, node *snowflake.Node) error {
	now := time.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	apiCalls := metricdomain.Metric{
		ID:          node.Generate(),
		Name:        "api_calls",
		DisplayName: "API Calls",
		Unit:        "call",
		Type:        metricdomain.MetricTypeCounter,
		Aggregation: metricdomain.AggregationSum,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	dataTransfer := metricdomain.Metric{
		ID:          node.Generate(),
		Name:        "data_transfer_gb",
		DisplayName: "Data Transfer",
		Unit:        "GB",
		Type:        metricdomain.MetricTypeCounter,
		Aggregation: metricdomain.AggregationSum,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Create(&apiCalls).Error; err != nil {
		return err
	}
	if err := tx.Create(&dataTransfer).Error; err != nil {
		return err
	}

	plan := plandomain.Plan{
		ID:               node.Generate(),
		Name:             "Starter",
		Description:      "Demo plan with a base fee, tiered API calls and packaged data transfer",
		BillingFrequency: plandomain.FrequencyMonthly,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := tx.Create(&plan).Error; err != nil {
		return err
	}

	apiCallsID := apiCalls.ID
	dataTransferID := dataTransfer.ID
	components := []plandomain.PriceComponent{
		{
			ID:          node.Generate(),
			PlanID:      plan.ID,
			MetricName:  "base_fee",
			DisplayName: "Base Fee",
			PricingType: pricing.TypeSubscription,
			PricingDetails: datatypes.JSONMap{
				"amount": 29.0,
			},
		},
		{
			ID:          node.Generate(),
			PlanID:      plan.ID,
			MetricName:  apiCalls.Name,
			MetricID:    &apiCallsID,
			DisplayName: apiCalls.DisplayName,
			PricingType: pricing.TypeTiered,
			PricingDetails: datatypes.JSONMap{
				"tiers": []any{
					map[string]any{"start": 0.0, "end": 1000.0, "price": 0.01},
					map[string]any{"start": 1000.0, "end": 10000.0, "price": 0.005},
					map[string]any{"start": 10000.0, "price": 0.002},
				},
			},
		},
		{
			ID:          node.Generate(),
			PlanID:      plan.ID,
			MetricName:  dataTransfer.Name,
			MetricID:    &dataTransferID,
			DisplayName: dataTransfer.DisplayName,
			PricingType: pricing.TypePackage,
			PricingDetails: datatypes.JSONMap{
				"package_size":  100.0,
				"package_price": 5.0,
			},
		},
	}
	for i := range components {
		components[i].CreatedAt = now
		components[i].UpdatedAt = now
		if err := tx.Create(&components[i]).Error; err != nil {
			return err
		}
	}

	customer := customerdomain.Customer{
		ID:        node.Generate(),
		Name:      "Demo Customer",
		Email:     demoCustomerEmail,
		Company:   "Tally Demo",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.Create(&customer).Error; err != nil {
		return err
	}

	subscription := subscriptiondomain.Subscription{
		ID:         node.Generate(),
		CustomerID: customer.ID,
		PlanID:     plan.ID,
		StartDate:  periodStart,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tx.Create(&subscription).Error; err != nil {
		return err
	}

	// Twelve monthly periods starting on the first of the month, so
	// the simple AddDate step never needs day clamping here.
	start := periodStart
	var currentPeriod *billingperioddomain.BillingPeriod
	for i := 0; i < 12; i++ {
		end := start.AddDate(0, 1, 0)
		period := billingperioddomain.BillingPeriod{
			ID:             node.Generate(),
			SubscriptionID: subscription.ID,
			StartDate:      start,
			EndDate:        end,
			CreatedAt:      now,
		}
		if err := tx.Create(&period).Error; err != nil {
			return err
		}
		if i == 0 {
			p := period
			currentPeriod = &p
		}
		start = end
	}

	subID := subscription.ID
	events := []struct {
		metric   metricdomain.Metric
		quantity decimal.Decimal
		at       time.Time
	}{
		{apiCalls, decimal.NewFromInt(1200), periodStart.Add(2 * time.Hour)},
		{apiCalls, decimal.NewFromInt(300), periodStart.Add(26 * time.Hour)},
		{dataTransfer, decimal.NewFromInt(42), periodStart.Add(30 * time.Hour)},
	}
	for _, e := range events {
		metricID := e.metric.ID
		event := eventdomain.UsageEvent{
			ID:              node.Generate(),
			CustomerID:      customer.ID,
			SubscriptionID:  &subID,
			BillingPeriodID: &currentPeriod.ID,
			MetricName:      e.metric.Name,
			MetricID:        &metricID,
			Quantity:        e.quantity,
			EventTime:       e.at,
			CreatedAt:       now,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
	}

	expiresAt := periodStart.AddDate(0, 3, 0)
	balance := creditdomain.CreditBalance{
		ID:              node.Generate(),
		CustomerID:      customer.ID,
		Amount:          decimal.NewFromInt(25),
		RemainingAmount: decimal.NewFromInt(25),
		CreditType:      creditdomain.CreditTypePromotional,
		Status:          creditdomain.CreditStatusActive,
		ExpiresAt:       &expiresAt,
		Description:     "Welcome credit",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.Create(&balance).Error; err != nil {
		return err
	}
	grant := creditdomain.CreditTransaction{
		ID:              node.Generate(),
		CreditBalanceID: balance.ID,
		Amount:          balance.Amount,
		Description:     "Initial credit: Welcome credit",
		CreatedAt:       now,
	}
	return tx.Create(&grant).Error
}
