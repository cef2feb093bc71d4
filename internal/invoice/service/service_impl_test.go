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
	commitmentdomain "github.com/smallbiznis/tally/internal/commitment/domain"
	commitmentrepository "github.com/smallbiznis/tally/internal/commitment/repository"
	commitmentservice "github.com/smallbiznis/tally/internal/commitment/service"
	"github.com/smallbiznis/tally/internal/config"
	creditdomain "github.com/smallbiznis/tally/internal/credit/domain"
	creditrepository "github.com/smallbiznis/tally/internal/credit/repository"
	creditservice "github.com/smallbiznis/tally/internal/credit/service"
	customerdomain "github.com/smallbiznis/tally/internal/customer/domain"
	customerrepository "github.com/smallbiznis/tally/internal/customer/repository"
	customerservice "github.com/smallbiznis/tally/internal/customer/service"
	eventdomain "github.com/smallbiznis/tally/internal/event/domain"
	eventrepository "github.com/smallbiznis/tally/internal/event/repository"
	eventservice "github.com/smallbiznis/tally/internal/event/service"
	"github.com/smallbiznis/tally/internal/invoice/domain"
	"github.com/smallbiznis/tally/internal/invoice/repository"
	metricdomain "github.com/smallbiznis/tally/internal/metric/domain"
	metricrepository "github.com/smallbiznis/tally/internal/metric/repository"
	metricservice "github.com/smallbiznis/tally/internal/metric/service"
	plandomain "github.com/smallbiznis/tally/internal/plan/domain"
	planrepository "github.com/smallbiznis/tally/internal/plan/repository"
	planservice "github.com/smallbiznis/tally/internal/plan/service"
	"github.com/smallbiznis/tally/internal/pricing"
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
	customers     customerdomain.Service
	metrics       metricdomain.Service
	plans         plandomain.Service
	subscriptions subscriptiondomain.Service
	periods       billingperioddomain.Service
	events        eventdomain.Service
	commitments   commitmentdomain.Service
	credits       creditdomain.Service
	clock         *clock.FakeClock
	db            *gorm.DB
}

func setupInvoiceService(t *testing.T) *testEnv {
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
		&eventdomain.UsageEvent{},
		&commitmentdomain.CommitmentTier{},
		&creditdomain.CreditBalance{},
		&creditdomain.CreditTransaction{},
		&domain.Invoice{},
		&domain.InvoiceItem{},
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
	eventSvc := eventservice.New(eventservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo:          eventrepository.Provide(),
		Customers:     customerSvc,
		Metrics:       metricSvc,
		Subscriptions: subscriptionSvc,
		Periods:       periodSvc,
	})
	commitmentSvc := commitmentservice.New(commitmentservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo:          commitmentrepository.Provide(),
		Subscriptions: subscriptionSvc,
		Metrics:       metricSvc,
	})
	creditSvc := creditservice.New(creditservice.Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Repo:      creditrepository.Provide(),
		Customers: customerSvc,
	})

	settings := config.StaticBillingSettings(config.BillingSettings{
		PaymentTermDays:     30,
		Currency:            "USD",
		CreditSweepInterval: time.Hour,
	})

	svc := New(Params{
		DB: db, Log: log, GenID: node, Clock: fake,
		Settings:      settings,
		Evaluator:     pricing.New(log),
		Repo:          repository.Provide(),
		Customers:     customerSvc,
		Subscriptions: subscriptionSvc,
		Plans:         planSvc,
		Metrics:       metricSvc,
		Events:        eventSvc,
		Commitments:   commitmentSvc,
		Credits:       creditSvc,
		Periods:       periodSvc,
	})

	return &testEnv{
		svc:           svc,
		customers:     customerSvc,
		metrics:       metricSvc,
		plans:         planSvc,
		subscriptions: subscriptionSvc,
		periods:       periodSvc,
		events:        eventSvc,
		commitments:   commitmentSvc,
		credits:       creditSvc,
		clock:         fake,
		db:            db,
	}
}

func (e *testEnv) createCustomer(t *testing.T, name string) customerdomain.Customer {
	t.Helper()
	customer, err := e.customers.Create(context.Background(), customerdomain.CreateCustomerRequest{
		Name:  name,
		Email: fmt.Sprintf("%s+%s@acme.test", name, t.Name()),
	})
	require.NoError(t, err)
	return customer
}

func (e *testEnv) createAPICallsMetric(t *testing.T) *metricdomain.Metric {
	t.Helper()
	metric, err := e.metrics.Create(context.Background(), metricdomain.CreateMetricRequest{
		Name:        "api_calls",
		DisplayName: "API Calls",
		Type:        "counter",
		Aggregation: "sum",
	})
	require.NoError(t, err)
	return metric
}

func (e *testEnv) createPlan(t *testing.T, name string, components ...plandomain.ComponentRequest) *plandomain.Plan {
	t.Helper()
	plan, err := e.plans.Create(context.Background(), plandomain.CreatePlanRequest{
		Name:             name,
		BillingFrequency: "monthly",
		PriceComponents:  components,
	})
	require.NoError(t, err)
	return plan
}

func (e *testEnv) subscribe(t *testing.T, customerID, planID snowflake.ID) *subscriptiondomain.Subscription {
	t.Helper()
	subscription, err := e.subscriptions.Create(context.Background(), subscriptiondomain.CreateSubscriptionRequest{
		CustomerID: customerID.String(),
		PlanID:     planID.String(),
	})
	require.NoError(t, err)
	return subscription
}

func (e *testEnv) track(t *testing.T, customerID snowflake.ID, metric string, quantity int64, at time.Time) {
	t.Helper()
	_, err := e.events.Track(context.Background(), eventdomain.TrackEventRequest{
		CustomerID: customerID.String(),
		MetricName: metric,
		Quantity:   decimal.NewFromInt(quantity),
		EventTime:  &at,
	})
	require.NoError(t, err)
}

func tieredAPICalls() plandomain.ComponentRequest {
	return plandomain.ComponentRequest{
		MetricName:  "api_calls",
		DisplayName: "API Calls",
		PricingType: "tiered",
		PricingDetails: map[string]any{
			"tiers": []any{
				map[string]any{"start": 0, "end": 1000, "price": 0.01},
				map[string]any{"start": 1000, "price": 0.008},
			},
		},
	}
}

func platformFee(amount float64) plandomain.ComponentRequest {
	return plandomain.ComponentRequest{
		MetricName:     "platform_fee",
		DisplayName:    "Platform",
		PricingType:    "flat",
		PricingDetails: map[string]any{"amount": amount},
	}
}

func findItem(t *testing.T, items []domain.InvoiceItem, description string) domain.InvoiceItem {
	t.Helper()
	for _, item := range items {
		if item.Description == description {
			return item
		}
	}
	t.Fatalf("no item with description %q", description)
	return domain.InvoiceItem{}
}

func itemTotal(items []domain.InvoiceItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Amount)
	}
	return total
}

func decPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func intPtr(v int) *int { return &v }

func TestGenerateForBillingPeriod_FullAssembly(t *testing.T) {
	env := setupInvoiceService(t)
	ctx := context.Background()

	customer := env.createCustomer(t, "acme")
	metric := env.createAPICallsMetric(t)
	plan := env.createPlan(t, "Pro", platformFee(50), tieredAPICalls())
	subscription := env.subscribe(t, customer.ID, plan.ID)

	_, err := env.commitments.Create(ctx, commitmentdomain.CreateCommitmentRequest{
		SubscriptionID:  subscription.ID.String(),
		MetricID:        metric.ID.String(),
		CommittedAmount: decimal.NewFromInt(5000),
		Rate:            decimal.RequireFromString("0.008"),
	})
	require.NoError(t, err)

	env.track(t, customer.ID, "api_calls", 3000, time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	periods, err := env.periods.ListBySubscription(ctx, subscription.ID)
	require.NoError(t, err)
	require.NotEmpty(t, periods)

	inv, err := env.svc.GenerateForBillingPeriod(ctx, periods[0].ID)
	require.NoError(t, err)

	assert.Equal(t, domain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, fmt.Sprintf("INV-20240101000000-%d-20240101", customer.ID), inv.InvoiceNumber)
	assert.Equal(t, "Invoice for billing period 2024-01-01 to 2024-02-01", inv.Notes)
	assert.True(t, inv.DueDate.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)), "due 30 days after issue")

	require.Len(t, inv.Items, 2)

	fee := findItem(t, inv.Items, "Flat fee for Platform")
	assert.True(t, fee.Amount.Equal(decimal.NewFromInt(50)))
	assert.True(t, fee.Quantity.Equal(decimal.NewFromInt(1)))
	require.NotNil(t, fee.SubscriptionID)
	assert.Equal(t, subscription.ID, *fee.SubscriptionID)

	// Tiered charge at 3000 is $26; the $40 minimum wins.
	commitment := findItem(t, inv.Items, "Minimum commitment for API Calls: $40")
	assert.True(t, commitment.Amount.Equal(decimal.NewFromInt(40)))
	assert.True(t, commitment.Quantity.Equal(decimal.NewFromInt(3000)))
	require.NotNil(t, commitment.MetricName)
	assert.Equal(t, "api_calls", *commitment.MetricName)

	assert.True(t, inv.Amount.Equal(decimal.NewFromInt(90)), "amount %s", inv.Amount)
	assert.True(t, itemTotal(inv.Items).Equal(inv.Amount), "items sum to the invoice amount")

	linked, err := env.periods.GetByID(ctx, periods[0].ID.String())
	require.NoError(t, err)
	require.NotNil(t, linked.InvoiceID)
	assert.Equal(t, inv.ID, *linked.InvoiceID)
}

func TestGenerate_CommitmentNotBindingAtHigherUsage(t *testing.T) {
	env := setupInvoiceService(t)
	ctx := context.Background()

	customer := env.createCustomer(t, "acme")
	metric := env.createAPICallsMetric(t)
	plan := env.createPlan(t, "Pro", tieredAPICalls())
	subscription := env.subscribe(t, customer.ID, plan.ID)

	_, err := env.commitments.Create(ctx, commitmentdomain.CreateCommitmentRequest{
		SubscriptionID:  subscription.ID.String(),
		MetricID:        metric.ID.String(),
		CommittedAmount: decimal.NewFromInt(5000),
		Rate:            decimal.RequireFromString("0.008"),
	})
	require.NoError(t, err)

	env.track(t, customer.ID, "api_calls", 7000, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))

	inv, err := env.svc.Generate(ctx, domain.GenerateInvoiceRequest{
		CustomerID:     customer.ID,
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		SubscriptionID: &subscription.ID,
	})
	require.NoError(t, err)

	// 1000 @ $0.01 + 6000 @ $0.008 = $58, above the $40 minimum.
	require.Len(t, inv.Items, 1)
	assert.Contains(t, inv.Items[0].Description, "Tiered pricing for API Calls")
	assert.True(t, inv.Items[0].Amount.Equal(decimal.NewFromInt(58)), "amount %s", inv.Items[0].Amount)
	assert.True(t, inv.Amount.Equal(decimal.NewFromInt(58)))
	assert.Equal(t, "Invoice for usage from 2024-01-01 to 2024-02-01", inv.Notes)
}

func TestGenerate_CreditsReduceTotal(t *testing.T) {
	env := setupInvoiceService(t)
	ctx := context.Background()

	customer := env.createCustomer(t, "acme")
	plan := env.createPlan(t, "Retainer", platformFee(60))
	subscription := env.subscribe(t, customer.ID, plan.ID)

	balanceA, err := env.credits.Add(ctx, creditdomain.AddCreditsRequest{
		CustomerID:    customer.ID.String(),
		Amount:        decimal.NewFromInt(50),
		CreditType:    "prepaid",
		Description:   "Annual prepay",
		ExpiresInDays: intPtr(61),
	})
	require.NoError(t, err)
	balanceB, err := env.credits.Add(ctx, creditdomain.AddCreditsRequest{
		CustomerID:    customer.ID.String(),
		Amount:        decimal.NewFromInt(30),
		CreditType:    "promotional",
		ExpiresInDays: intPtr(30),
	})
	require.NoError(t, err)

	inv, err := env.svc.Generate(ctx, domain.GenerateInvoiceRequest{
		CustomerID:     customer.ID,
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		SubscriptionID: &subscription.ID,
	})
	require.NoError(t, err)

	// $60 fee, then $30 from the sooner-expiring balance and $30 from
	// the other. The invoice lands at zero.
	require.Len(t, inv.Items, 3)
	promo := findItem(t, inv.Items, "Credit applied (promotional): Credit balance")
	assert.True(t, promo.Amount.Equal(decimal.NewFromInt(-30)))
	assert.True(t, promo.UnitPrice.Equal(decimal.NewFromInt(-30)))
	prepaid := findItem(t, inv.Items, "Credit applied (prepaid): Annual prepay")
	assert.True(t, prepaid.Amount.Equal(decimal.NewFromInt(-30)))

	assert.True(t, inv.Amount.IsZero(), "amount %s", inv.Amount)
	assert.True(t, itemTotal(inv.Items).IsZero())

	balances, err := env.credits.ListBalances(ctx, creditdomain.ListBalancesRequest{
		CustomerID:      customer.ID.String(),
		IncludeInactive: true,
	})
	require.NoError(t, err)
	require.Len(t, balances, 2)
	for _, balance := range balances {
		switch balance.ID {
		case balanceA.ID:
			assert.True(t, balance.RemainingAmount.Equal(decimal.NewFromInt(20)))
			assert.Equal(t, creditdomain.CreditStatusActive, balance.Status)
		case balanceB.ID:
			assert.True(t, balance.RemainingAmount.IsZero())
			assert.Equal(t, creditdomain.CreditStatusConsumed, balance.Status)
		}
	}

	transactions, err := env.credits.ListTransactions(ctx, balanceB.ID.String())
	require.NoError(t, err)
	require.Len(t, transactions, 2)
	assert.Equal(t, fmt.Sprintf("Applied to invoice %s", inv.InvoiceNumber), transactions[1].Description)

	// The stored invoice matches what Generate returned.
	stored, err := env.svc.Get(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.True(t, stored.Amount.IsZero())
	assert.Len(t, stored.Items, 3)
}

func TestGenerateForRange_CustomersWithUsage(t *testing.T) {
	env := setupInvoiceService(t)
	ctx := context.Background()

	withUsage := env.createCustomer(t, "usage")
	quiet := env.createCustomer(t, "quiet")
	env.createAPICallsMetric(t)

	env.track(t, withUsage.ID, "api_calls", 500, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))

	invoices, err := env.svc.GenerateForRange(ctx, domain.GenerateForRangeRequest{
		StartDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	// Only the customer with events is invoiced, and without a
	// subscription there is no plan to price against.
	require.Len(t, invoices, 1)
	assert.Equal(t, withUsage.ID, invoices[0].CustomerID)
	assert.Empty(t, invoices[0].Items)
	assert.True(t, invoices[0].Amount.IsZero())
	assert.Equal(t, domain.InvoiceStatusDraft, invoices[0].Status)

	// An explicit customer is invoiced regardless of usage.
	quietID := quiet.ID.String()
	invoices, err = env.svc.GenerateForRange(ctx, domain.GenerateForRangeRequest{
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		CustomerID: &quietID,
	})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.Equal(t, quiet.ID, invoices[0].CustomerID)
	assert.True(t, invoices[0].Amount.IsZero())
}

func TestGenerate_Validation(t *testing.T) {
	env := setupInvoiceService(t)
	ctx := context.Background()

	customer := env.createCustomer(t, "acme")
	other := env.createCustomer(t, "other")
	plan := env.createPlan(t, "Pro")
	otherSub := env.subscribe(t, other.ID, plan.ID)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := env.svc.Generate(ctx, domain.GenerateInvoiceRequest{
		CustomerID: customer.ID, StartDate: end, EndDate: start,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDateRange)

	_, err = env.svc.Generate(ctx, domain.GenerateInvoiceRequest{
		CustomerID: snowflake.ID(404), StartDate: start, EndDate: end,
	})
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)

	missing := snowflake.ID(404)
	_, err = env.svc.Generate(ctx, domain.GenerateInvoiceRequest{
		CustomerID: customer.ID, StartDate: start, EndDate: end, SubscriptionID: &missing,
	})
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)

	// A subscription belonging to someone else is not billable here.
	_, err = env.svc.Generate(ctx, domain.GenerateInvoiceRequest{
		CustomerID: customer.ID, StartDate: start, EndDate: end, SubscriptionID: &otherSub.ID,
	})
	assert.ErrorIs(t, err, domain.ErrSubscriptionNotFound)
}

func TestGenerate_NumberRetryWithinSameSecond(t *testing.T) {
	env := setupInvoiceService(t)
	ctx := context.Background()

	customer := env.createCustomer(t, "acme")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	first, err := env.svc.Generate(ctx, domain.GenerateInvoiceRequest{
		CustomerID: customer.ID, StartDate: start, EndDate: end,
	})
	require.NoError(t, err)

	// The clock has not moved, so the second invoice shifts its issue
	// timestamp to stay unique.
	second, err := env.svc.Generate(ctx, domain.GenerateInvoiceRequest{
		CustomerID: customer.ID, StartDate: start, EndDate: end,
	})
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("INV-20240101000000-%d-20240101", customer.ID), first.InvoiceNumber)
	assert.Equal(t, fmt.Sprintf("INV-20240101000001-%d-20240101", customer.ID), second.InvoiceNumber)
}

func TestCreate_ManualInvoiceLifecycle(t *testing.T) {
	env := setupInvoiceService(t)
	ctx := context.Background()

	customer := env.createCustomer(t, "acme")

	inv, err := env.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Notes:      "Consulting retainer",
		Items: []domain.AddItemRequest{
			{Description: "Implementation hours", Amount: decimal.NewFromInt(100), Quantity: decPtr("4")},
			{Description: "Onboarding", Amount: decimal.NewFromInt(50)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, fmt.Sprintf("INV-20240101-%d-%d", customer.ID, env.clock.Now().Unix()), inv.InvoiceNumber)
	assert.True(t, inv.Amount.Equal(decimal.NewFromInt(150)))
	require.Len(t, inv.Items, 2)

	hours := findItem(t, inv.Items, "Implementation hours")
	assert.True(t, hours.UnitPrice.Equal(decimal.NewFromInt(25)), "unit price derived from quantity")
	onboarding := findItem(t, inv.Items, "Onboarding")
	assert.True(t, onboarding.UnitPrice.Equal(decimal.NewFromInt(50)), "unit price defaults to amount")
	assert.Nil(t, onboarding.Quantity)

	item, err := env.svc.AddItem(ctx, inv.ID.String(), domain.AddItemRequest{
		Description: "Support hours", Amount: decimal.NewFromInt(50), Quantity: decPtr("2"), UnitPrice: decPtr("25"),
	})
	require.NoError(t, err)
	assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(25)))

	updated, err := env.svc.Get(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(200)))
	assert.Len(t, updated.Items, 3)

	require.NoError(t, env.svc.RemoveItem(ctx, inv.ID.String(), hours.ID.String()))
	updated, err = env.svc.Get(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(decimal.NewFromInt(100)))
	assert.Len(t, updated.Items, 2)

	finalized, err := env.svc.Finalize(ctx, inv.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusPending, finalized.Status)

	_, err = env.svc.AddItem(ctx, inv.ID.String(), domain.AddItemRequest{
		Description: "Late addition", Amount: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, domain.ErrNotDraft)
	assert.ErrorIs(t, env.svc.RemoveItem(ctx, inv.ID.String(), item.ID.String()), domain.ErrNotDraft)
	_, err = env.svc.Finalize(ctx, inv.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotDraft)

	env.clock.Advance(48 * time.Hour)
	paid, err := env.svc.UpdateStatus(ctx, inv.ID.String(), "paid")
	require.NoError(t, err)
	require.NotNil(t, paid.PaidDate)
	assert.True(t, paid.PaidDate.Equal(env.clock.Now()))

	// Paid is terminal: no voiding, no reopening.
	_, err = env.svc.Void(ctx, inv.ID.String(), "oops")
	assert.ErrorIs(t, err, domain.ErrTerminalStatus)
	_, err = env.svc.UpdateStatus(ctx, inv.ID.String(), "draft")
	assert.ErrorIs(t, err, domain.ErrTerminalStatus)

	// Re-marking paid is a no-op that keeps the original stamp.
	again, err := env.svc.UpdateStatus(ctx, inv.ID.String(), "paid")
	require.NoError(t, err)
	assert.True(t, again.PaidDate.Equal(*paid.PaidDate))
}

func TestVoid_AppendsReason(t *testing.T) {
	env := setupInvoiceService(t)
	ctx := context.Background()

	customer := env.createCustomer(t, "acme")
	inv, err := env.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Notes:      "Monthly retainer",
	})
	require.NoError(t, err)

	voided, err := env.svc.Void(ctx, inv.ID.String(), "duplicate billing")
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusVoid, voided.Status)
	assert.Equal(t, "Monthly retainer\nVoided: duplicate billing", voided.Notes)

	_, err = env.svc.AddItem(ctx, inv.ID.String(), domain.AddItemRequest{
		Description: "Extra", Amount: decimal.NewFromInt(10),
	})
	assert.ErrorIs(t, err, domain.ErrNotDraft)

	_, err = env.svc.Void(ctx, snowflake.ID(404).String(), "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListByCustomer_StatusFilter(t *testing.T) {
	env := setupInvoiceService(t)
	ctx := context.Background()

	customer := env.createCustomer(t, "acme")

	older, err := env.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []domain.AddItemRequest{{Description: "Setup", Amount: decimal.NewFromInt(10)}},
	})
	require.NoError(t, err)

	env.clock.Advance(24 * time.Hour)
	newer, err := env.svc.Create(ctx, domain.CreateInvoiceRequest{CustomerID: customer.ID.String()})
	require.NoError(t, err)
	_, err = env.svc.Finalize(ctx, newer.ID.String())
	require.NoError(t, err)

	all, err := env.svc.ListByCustomer(ctx, customer.ID.String(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID, "newest issue date first")
	assert.Equal(t, older.ID, all[1].ID)
	assert.Len(t, all[1].Items, 1, "line items ride along on listings")

	pending, err := env.svc.ListByCustomer(ctx, customer.ID.String(), "pending")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, newer.ID, pending[0].ID)

	_, err = env.svc.ListByCustomer(ctx, customer.ID.String(), "overdue")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestCreate_Validation(t *testing.T) {
	env := setupInvoiceService(t)
	ctx := context.Background()

	customer := env.createCustomer(t, "acme")

	_, err := env.svc.Create(ctx, domain.CreateInvoiceRequest{CustomerID: "not-a-number"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = env.svc.Create(ctx, domain.CreateInvoiceRequest{CustomerID: snowflake.ID(404).String()})
	assert.ErrorIs(t, err, domain.ErrCustomerNotFound)

	_, err = env.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []domain.AddItemRequest{{Description: "Free", Amount: decimal.Zero}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = env.svc.Create(ctx, domain.CreateInvoiceRequest{
		CustomerID: customer.ID.String(),
		Items:      []domain.AddItemRequest{{Description: "   ", Amount: decimal.NewFromInt(5)}},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidDescription)

	_, err = env.svc.UpdateStatus(ctx, snowflake.ID(404).String(), "paid")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	inv, err := env.svc.Create(ctx, domain.CreateInvoiceRequest{CustomerID: customer.ID.String()})
	require.NoError(t, err)
	_, err = env.svc.UpdateStatus(ctx, inv.ID.String(), "overdue")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}
