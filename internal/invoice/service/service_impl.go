package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	bpdomain "github.com/smallbiznis/tally/internal/billingperiod/domain"
	"github.com/smallbiznis/tally/internal/clock"
	commitmentdomain "github.com/smallbiznis/tally/internal/commitment/domain"
	"github.com/smallbiznis/tally/internal/config"
	creditdomain "github.com/smallbiznis/tally/internal/credit/domain"
	customerdomain "github.com/smallbiznis/tally/internal/customer/domain"
	eventdomain "github.com/smallbiznis/tally/internal/event/domain"
	"github.com/smallbiznis/tally/internal/invoice/domain"
	"github.com/smallbiznis/tally/internal/invoice/format"
	metricdomain "github.com/smallbiznis/tally/internal/metric/domain"
	plandomain "github.com/smallbiznis/tally/internal/plan/domain"
	"github.com/smallbiznis/tally/internal/pricing"
	subscriptiondomain "github.com/smallbiznis/tally/internal/subscription/domain"
	"github.com/smallbiznis/tally/pkg/db/option"
	"github.com/smallbiznis/tally/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// numberAttempts bounds the unique-number retry loop. Candidates only
// collide when the same customer and period start are invoiced within
// one clock second, so each retry shifts the timestamp forward.
const numberAttempts = 5

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Settings      *config.BillingSettingsHolder
	Evaluator     *pricing.Evaluator
	Repo          domain.Repository
	Customers     customerdomain.Service
	Subscriptions subscriptiondomain.Service
	Plans         plandomain.Service
	Metrics       metricdomain.Service
	Events        eventdomain.Service
	Commitments   commitmentdomain.Service
	Credits       creditdomain.Service
	Periods       bpdomain.Service
	Telemetry     *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	settings      *config.BillingSettingsHolder
	evaluator     *pricing.Evaluator
	repo          domain.Repository
	customers     customerdomain.Service
	subscriptions subscriptiondomain.Service
	plans         plandomain.Service
	metrics       metricdomain.Service
	events        eventdomain.Service
	commitments   commitmentdomain.Service
	credits       creditdomain.Service
	periods       bpdomain.Service
	telemetry     *telemetry.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("invoice.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		settings:      p.Settings,
		evaluator:     p.Evaluator,
		repo:          p.Repo,
		customers:     p.Customers,
		subscriptions: p.Subscriptions,
		plans:         p.Plans,
		metrics:       p.Metrics,
		events:        p.Events,
		commitments:   p.Commitments,
		credits:       p.Credits,
		periods:       p.Periods,
		telemetry:     p.Telemetry,
	}
}

func (s *Service) Generate(ctx context.Context, req domain.GenerateInvoiceRequest) (*domain.Invoice, error) {
	if req.EndDate.Before(req.StartDate) {
		return nil, domain.ErrInvalidDateRange
	}
	if _, err := s.customers.GetByID(ctx, customerdomain.GetCustomerRequest{ID: req.CustomerID.String()}); err != nil {
		return nil, domain.ErrCustomerNotFound
	}

	start, end := req.StartDate.UTC(), req.EndDate.UTC()

	subs, err := s.resolveSubscriptions(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		s.log.Warn("no subscriptions overlap invoice window",
			zap.String("customer_id", req.CustomerID.String()),
			zap.Time("start", start), zap.Time("end", end))
	}

	usage, err := s.events.AggregateRange(ctx, req.CustomerID, start, end)
	if err != nil {
		return nil, err
	}

	notes := fmt.Sprintf("Invoice for usage from %s to %s",
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	return s.assemble(ctx, req.CustomerID, start, end, req.SubscriptionID != nil, subs, usage, notes, nil)
}

func (s *Service) GenerateForBillingPeriod(ctx context.Context, periodID snowflake.ID) (*domain.Invoice, error) {
	period, err := s.periods.GetByID(ctx, periodID.String())
	if err != nil {
		return nil, err
	}
	sub, err := s.subscriptions.GetByID(ctx, period.SubscriptionID.String())
	if err != nil {
		return nil, domain.ErrSubscriptionNotFound
	}

	start, end := period.StartDate.UTC(), period.EndDate.UTC()
	usage, err := s.events.AggregateRange(ctx, sub.CustomerID, start, end)
	if err != nil {
		return nil, err
	}

	notes := fmt.Sprintf("Invoice for billing period %s to %s",
		start.Format("2006-01-02"), end.Format("2006-01-02"))
	return s.assemble(ctx, sub.CustomerID, start, end, true, []subscriptiondomain.Subscription{*sub}, usage, notes, &period.ID)
}

func (s *Service) GenerateForRange(ctx context.Context, req domain.GenerateForRangeRequest) ([]domain.Invoice, error) {
	if req.EndDate.Before(req.StartDate) {
		return nil, domain.ErrInvalidDateRange
	}

	if req.CustomerID != nil {
		customerID, err := s.parseID(*req.CustomerID)
		if err != nil {
			return nil, err
		}
		inv, err := s.Generate(ctx, domain.GenerateInvoiceRequest{
			CustomerID: customerID,
			StartDate:  req.StartDate,
			EndDate:    req.EndDate,
		})
		if err != nil {
			return nil, err
		}
		return []domain.Invoice{*inv}, nil
	}

	customerIDs, err := s.events.CustomersWithUsage(ctx, req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	invoices := make([]domain.Invoice, 0, len(customerIDs))
	for _, customerID := range customerIDs {
		inv, err := s.Generate(ctx, domain.GenerateInvoiceRequest{
			CustomerID: customerID,
			StartDate:  req.StartDate,
			EndDate:    req.EndDate,
		})
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}

	s.log.Info("range invoicing finished",
		zap.Time("start", req.StartDate), zap.Time("end", req.EndDate),
		zap.Int("invoices", len(invoices)))
	return invoices, nil
}

// resolveSubscriptions picks the subscription set for an invoice: the
// explicit one when given (it must belong to the customer), otherwise
// every subscription overlapping the window.
func (s *Service) resolveSubscriptions(ctx context.Context, req domain.GenerateInvoiceRequest) ([]subscriptiondomain.Subscription, error) {
	if req.SubscriptionID == nil {
		return s.subscriptions.ListOverlapping(ctx, req.CustomerID, req.StartDate, req.EndDate)
	}

	sub, err := s.subscriptions.GetByID(ctx, req.SubscriptionID.String())
	if err != nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	if sub.CustomerID != req.CustomerID {
		return nil, domain.ErrSubscriptionNotFound
	}
	return []subscriptiondomain.Subscription{*sub}, nil
}

// assemble builds and persists one invoice in a single transaction.
// Charges are computed up front; the transaction covers the number
// reservation, the invoice and item rows, the credit draws with their
// negative line items, and the optional billing-period link.
func (s *Service) assemble(ctx context.Context, customerID snowflake.ID, start, end time.Time, explicit bool, subs []subscriptiondomain.Subscription, usage map[string]decimal.Decimal, notes string, periodID *snowflake.ID) (*domain.Invoice, error) {
	now := s.clock.Now()
	inv := &domain.Invoice{
		ID:         s.genID.Generate(),
		CustomerID: customerID,
		Status:     domain.InvoiceStatusDraft,
		IssueDate:  now,
		DueDate:    now.AddDate(0, 0, s.settings.Get().PaymentTermDays),
		Amount:     decimal.Zero,
		Notes:      notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	items, total, err := s.buildCharges(ctx, inv.ID, subs, usage, explicit, start, end)
	if err != nil {
		return nil, err
	}
	preCredit := total.Round(2)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.reserveUsageNumber(ctx, tx, customerID, start)
		if err != nil {
			return err
		}
		inv.InvoiceNumber = number
		inv.Amount = preCredit

		if err := s.repo.Insert(ctx, tx, inv); err != nil {
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}

		remainder, applications, err := s.credits.ApplyToInvoice(ctx, tx, customerID, inv.ID, inv.InvoiceNumber, preCredit)
		if err != nil {
			return err
		}

		creditItems := make([]*domain.InvoiceItem, 0, len(applications))
		for _, app := range applications {
			one := decimal.NewFromInt(1)
			creditItems = append(creditItems, &domain.InvoiceItem{
				ID:          s.genID.Generate(),
				InvoiceID:   inv.ID,
				Description: fmt.Sprintf("Credit applied (%s): %s", app.CreditType, app.Description),
				Quantity:    &one,
				UnitPrice:   app.Amount.Neg(),
				Amount:      app.Amount.Neg(),
				CreatedAt:   now,
			})
		}
		if err := s.repo.InsertItems(ctx, tx, creditItems); err != nil {
			return err
		}
		items = append(items, creditItems...)

		if remainder.Cmp(preCredit) != 0 {
			inv.Amount = remainder
			if err := s.repo.Update(ctx, tx, inv); err != nil {
				return err
			}
		}

		if periodID != nil {
			if err := s.periods.LinkInvoice(ctx, tx, *periodID, inv.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv.Items = lo.Map(items, func(item *domain.InvoiceItem, _ int) domain.InvoiceItem { return *item })
	amount, _ := inv.Amount.Float64()
	s.telemetry.ObserveInvoice(string(inv.Status), amount)
	s.log.Info("invoice generated",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("customer_id", customerID.String()),
		zap.String("amount", inv.Amount.String()),
		zap.Int("items", len(inv.Items)))
	return inv, nil
}

// buildCharges evaluates every plan component for the subscription set
// and returns the invoice items with their exact (unrounded) total.
// Flat and subscription fees plus commitment minimums apply only when
// the invoice targets one explicit subscription.
func (s *Service) buildCharges(ctx context.Context, invoiceID snowflake.ID, subs []subscriptiondomain.Subscription, usage map[string]decimal.Decimal, explicit bool, start, end time.Time) ([]*domain.InvoiceItem, decimal.Decimal, error) {
	var items []*domain.InvoiceItem
	total := decimal.Zero
	now := s.clock.Now()

	for i := range subs {
		sub := subs[i]
		plan, err := s.plans.GetByID(ctx, sub.PlanID.String())
		if err != nil {
			return nil, decimal.Zero, err
		}

		var commitCharges map[snowflake.ID]decimal.Decimal
		if explicit {
			for _, comp := range plan.Components {
				if comp.PricingType != pricing.TypeFlat && comp.PricingType != pricing.TypeSubscription {
					continue
				}
				res := s.evaluator.Evaluate(comp.PricingComponent(), decimal.NewFromInt(1))
				if res.Malformed {
					s.telemetry.ObservePricingFailure(string(comp.PricingType))
				}
				one := decimal.NewFromInt(1)
				metricName := comp.MetricName
				items = append(items, &domain.InvoiceItem{
					ID:             s.genID.Generate(),
					InvoiceID:      invoiceID,
					Description:    res.Description,
					MetricName:     &metricName,
					Quantity:       &one,
					UnitPrice:      res.UnitPrice,
					Amount:         res.Charge,
					SubscriptionID: &sub.ID,
					CreatedAt:      now,
				})
				total = total.Add(res.Charge)
			}

			commitCharges, err = s.commitments.CalculateCharges(ctx, sub.ID, start, end, usage)
			if err != nil {
				return nil, decimal.Zero, err
			}
		}

		for _, comp := range plan.Components {
			// Flat and subscription fees never price by usage; outside
			// the explicit path they do not bill at all.
			if comp.PricingType == pricing.TypeFlat || comp.PricingType == pricing.TypeSubscription {
				continue
			}

			q := usage[comp.MetricName]
			res := s.evaluator.Evaluate(comp.PricingComponent(), q)
			if res.Malformed {
				s.telemetry.ObservePricingFailure(string(comp.PricingType))
			}
			charge, description := res.Charge, res.Description

			// A commitment minimum replaces the computed charge when it
			// is larger; either way it is consumed here so it does not
			// bill again as a residual line.
			if explicit && comp.MetricID != nil {
				if minimum, ok := commitCharges[*comp.MetricID]; ok {
					if minimum.GreaterThan(charge) {
						charge = minimum
						description = fmt.Sprintf("Minimum commitment for %s: $%s", comp.DisplayName, minimum.String())
					}
					delete(commitCharges, *comp.MetricID)
				}
			}

			if charge.Sign() > 0 || q.Sign() > 0 {
				qty := q
				metricName := comp.MetricName
				items = append(items, &domain.InvoiceItem{
					ID:             s.genID.Generate(),
					InvoiceID:      invoiceID,
					Description:    description,
					MetricName:     &metricName,
					Quantity:       &qty,
					UnitPrice:      res.UnitPrice,
					Amount:         charge,
					SubscriptionID: &sub.ID,
					CreatedAt:      now,
				})
				total = total.Add(charge)
			}
		}

		// Commitments on metrics the plan no longer prices still bill.
		if explicit && len(commitCharges) > 0 {
			metricIDs := lo.Keys(commitCharges)
			sort.Slice(metricIDs, func(i, j int) bool { return metricIDs[i] < metricIDs[j] })

			for _, metricID := range metricIDs {
				charge := commitCharges[metricID]
				if charge.Sign() <= 0 {
					continue
				}
				metric, err := s.metrics.GetByID(ctx, metricID.String())
				if err != nil {
					if errors.Is(err, metricdomain.ErrNotFound) {
						continue
					}
					return nil, decimal.Zero, err
				}

				zero := decimal.Zero
				items = append(items, &domain.InvoiceItem{
					ID:             s.genID.Generate(),
					InvoiceID:      invoiceID,
					Description:    fmt.Sprintf("Minimum commitment for %s", metric.DisplayName),
					MetricName:     &metric.Name,
					Quantity:       &zero,
					UnitPrice:      decimal.Zero,
					Amount:         charge,
					SubscriptionID: &sub.ID,
					CreatedAt:      now,
				})
				total = total.Add(charge)
			}
		}
	}

	return items, total, nil
}

// reserveUsageNumber returns a usage invoice number no existing invoice
// holds yet. The unique index on invoice_number backstops races between
// concurrent generators.
func (s *Service) reserveUsageNumber(ctx context.Context, tx *gorm.DB, customerID snowflake.ID, periodStart time.Time) (string, error) {
	for attempt := 0; attempt < numberAttempts; attempt++ {
		issuedAt := s.clock.Now().Add(time.Duration(attempt) * time.Second)
		candidate := format.UsageInvoiceNumber(issuedAt, customerID, periodStart)

		existing, err := s.repo.FindByNumber(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
	}
	return "", domain.ErrNumberConflict
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (*domain.Invoice, error) {
	customerID, err := s.parseID(req.CustomerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.customers.GetByID(ctx, customerdomain.GetCustomerRequest{ID: req.CustomerID}); err != nil {
		return nil, domain.ErrCustomerNotFound
	}

	now := s.clock.Now()
	issue := now
	if req.IssueDate != nil {
		issue = req.IssueDate.UTC()
	}
	due := issue.AddDate(0, 0, s.settings.Get().PaymentTermDays)
	if req.DueDate != nil {
		due = req.DueDate.UTC()
	}

	invoiceID := s.genID.Generate()
	items := make([]*domain.InvoiceItem, 0, len(req.Items))
	total := decimal.Zero
	for _, itemReq := range req.Items {
		item, err := s.buildItem(invoiceID, itemReq, now)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		total = total.Add(item.Amount)
	}

	inv := &domain.Invoice{
		ID:            invoiceID,
		CustomerID:    customerID,
		InvoiceNumber: format.ManualInvoiceNumber(issue, customerID, now),
		Status:        domain.InvoiceStatusDraft,
		IssueDate:     issue,
		DueDate:       due,
		Amount:        total,
		Notes:         strings.TrimSpace(req.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, inv); err != nil {
			return err
		}
		return s.repo.InsertItems(ctx, tx, items)
	})
	if err != nil {
		return nil, err
	}

	inv.Items = lo.Map(items, func(item *domain.InvoiceItem, _ int) domain.InvoiceItem { return *item })
	amount, _ := inv.Amount.Float64()
	s.telemetry.ObserveInvoice(string(inv.Status), amount)
	return inv, nil
}

func (s *Service) Get(ctx context.Context, rawID string) (*domain.Invoice, error) {
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, err
	}

	inv, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return inv, nil
}

func (s *Service) ListByCustomer(ctx context.Context, rawCustomerID, rawStatus string) ([]domain.Invoice, error) {
	customerID, err := s.parseID(rawCustomerID)
	if err != nil {
		return nil, err
	}

	var status *domain.InvoiceStatus
	if trimmed := strings.TrimSpace(rawStatus); trimmed != "" {
		st := domain.InvoiceStatus(strings.ToLower(trimmed))
		if !st.Valid() {
			return nil, domain.ErrInvalidStatus
		}
		status = &st
	}

	invoices, err := s.repo.ListByCustomer(ctx, s.db, customerID, status)
	if err != nil {
		return nil, err
	}
	return s.withItems(ctx, invoices)
}

func (s *Service) ListItems(ctx context.Context, rawInvoiceID string) ([]domain.InvoiceItem, error) {
	id, err := s.parseID(rawInvoiceID)
	if err != nil {
		return nil, err
	}

	inv, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	return s.repo.ListItems(ctx, s.db, id)
}

func (s *Service) Finalize(ctx context.Context, rawID string) (*domain.Invoice, error) {
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, err
	}

	var inv *domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err = s.repo.FindByID(ctx, tx, id, option.WithForUpdate())
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if inv.Status != domain.InvoiceStatusDraft {
			return domain.ErrNotDraft
		}

		inv.Status = domain.InvoiceStatusPending
		inv.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) Void(ctx context.Context, rawID, reason string) (*domain.Invoice, error) {
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, err
	}

	var inv *domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err = s.repo.FindByID(ctx, tx, id, option.WithForUpdate())
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if inv.Status == domain.InvoiceStatusPaid {
			return domain.ErrTerminalStatus
		}

		inv.Status = domain.InvoiceStatusVoid
		if trimmed := strings.TrimSpace(reason); trimmed != "" {
			inv.Notes = fmt.Sprintf("%s\nVoided: %s", inv.Notes, trimmed)
		}
		inv.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) UpdateStatus(ctx context.Context, rawID, rawStatus string) (*domain.Invoice, error) {
	id, err := s.parseID(rawID)
	if err != nil {
		return nil, err
	}
	status := domain.InvoiceStatus(strings.ToLower(strings.TrimSpace(rawStatus)))
	if !status.Valid() {
		return nil, domain.ErrInvalidStatus
	}

	var inv *domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err = s.repo.FindByID(ctx, tx, id, option.WithForUpdate())
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if inv.Status == status {
			return nil
		}
		if inv.Status.Terminal() {
			return domain.ErrTerminalStatus
		}

		inv.Status = status
		if status == domain.InvoiceStatusPaid && inv.PaidDate == nil {
			paidAt := s.clock.Now()
			inv.PaidDate = &paidAt
		}
		inv.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *Service) AddItem(ctx context.Context, rawInvoiceID string, req domain.AddItemRequest) (*domain.InvoiceItem, error) {
	invoiceID, err := s.parseID(rawInvoiceID)
	if err != nil {
		return nil, err
	}

	var item *domain.InvoiceItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.repo.FindByID(ctx, tx, invoiceID, option.WithForUpdate())
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if inv.Status != domain.InvoiceStatusDraft {
			return domain.ErrNotDraft
		}

		item, err = s.buildItem(invoiceID, req, s.clock.Now())
		if err != nil {
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, []*domain.InvoiceItem{item}); err != nil {
			return err
		}

		inv.Amount = inv.Amount.Add(item.Amount)
		inv.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, inv)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) RemoveItem(ctx context.Context, rawInvoiceID, rawItemID string) error {
	invoiceID, err := s.parseID(rawInvoiceID)
	if err != nil {
		return err
	}
	itemID, err := s.parseID(rawItemID)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := s.repo.FindByID(ctx, tx, invoiceID, option.WithForUpdate())
		if err != nil {
			return err
		}
		if inv == nil {
			return domain.ErrNotFound
		}
		if inv.Status != domain.InvoiceStatusDraft {
			return domain.ErrNotDraft
		}

		item, err := s.repo.FindItemByID(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if item == nil || item.InvoiceID != invoiceID {
			return domain.ErrItemNotFound
		}
		if err := s.repo.DeleteItem(ctx, tx, itemID); err != nil {
			return err
		}

		inv.Amount = inv.Amount.Sub(item.Amount)
		inv.UpdatedAt = s.clock.Now()
		return s.repo.Update(ctx, tx, inv)
	})
}

// buildItem validates one caller-supplied line. The unit price falls
// back to amount/quantity for a positive quantity, else to the amount.
func (s *Service) buildItem(invoiceID snowflake.ID, req domain.AddItemRequest, now time.Time) (*domain.InvoiceItem, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, domain.ErrInvalidDescription
	}
	if req.Amount.Sign() <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	unitPrice := req.Amount
	if req.UnitPrice != nil {
		unitPrice = *req.UnitPrice
	} else if req.Quantity != nil && req.Quantity.Sign() > 0 {
		unitPrice = req.Amount.Div(*req.Quantity)
	}

	return &domain.InvoiceItem{
		ID:          s.genID.Generate(),
		InvoiceID:   invoiceID,
		Description: description,
		MetricName:  req.MetricName,
		Quantity:    req.Quantity,
		UnitPrice:   unitPrice,
		Amount:      req.Amount,
		CreatedAt:   now,
	}, nil
}

// withItems attaches line items to a listed invoice set in one query.
func (s *Service) withItems(ctx context.Context, invoices []domain.Invoice) ([]domain.Invoice, error) {
	if len(invoices) == 0 {
		return invoices, nil
	}

	ids := lo.Map(invoices, func(inv domain.Invoice, _ int) snowflake.ID { return inv.ID })
	items, err := s.repo.ListItemsForInvoices(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	byInvoice := lo.GroupBy(items, func(item domain.InvoiceItem) snowflake.ID { return item.InvoiceID })
	for i := range invoices {
		invoices[i].Items = byInvoice[invoices[i].ID]
	}
	return invoices, nil
}

func (s *Service) parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
