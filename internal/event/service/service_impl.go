package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	billingperioddomain "github.com/smallbiznis/tally/internal/billingperiod/domain"
	"github.com/smallbiznis/tally/internal/clock"
	customerdomain "github.com/smallbiznis/tally/internal/customer/domain"
	"github.com/smallbiznis/tally/internal/event/domain"
	metricdomain "github.com/smallbiznis/tally/internal/metric/domain"
	subscriptiondomain "github.com/smallbiznis/tally/internal/subscription/domain"
	"github.com/smallbiznis/tally/pkg/db/pagination"
	"github.com/smallbiznis/tally/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Repo          domain.Repository
	Customers     customerdomain.Service
	Metrics       metricdomain.Service
	Subscriptions subscriptiondomain.Service
	Periods       billingperioddomain.Service
	Telemetry     *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	repo          domain.Repository
	customers     customerdomain.Service
	metrics       metricdomain.Service
	subscriptions subscriptiondomain.Service
	periods       billingperioddomain.Service
	telemetry     *telemetry.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("event.service"),
		genID:         p.GenID,
		clock:         p.Clock,
		repo:          p.Repo,
		customers:     p.Customers,
		metrics:       p.Metrics,
		subscriptions: p.Subscriptions,
		periods:       p.Periods,
		telemetry:     p.Telemetry,
	}
}

// Track records a usage event. The event is attached to the billing
// period covering its event time when one exists; a missing period
// never rejects the event.
func (s *Service) Track(ctx context.Context, req domain.TrackEventRequest) (*domain.UsageEvent, error) {
	customerID, err := s.parseID(req.CustomerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.customers.GetByID(ctx, customerdomain.GetCustomerRequest{ID: req.CustomerID}); err != nil {
		return nil, domain.ErrCustomerNotFound
	}

	metricName := strings.TrimSpace(req.MetricName)
	if metricName == "" {
		return nil, domain.ErrInvalidMetric
	}
	if req.Quantity.Sign() <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	eventTime := s.clock.Now()
	if req.EventTime != nil {
		eventTime = req.EventTime.UTC()
	}

	metricID, err := s.resolveMetricID(ctx, metricName)
	if err != nil {
		return nil, err
	}

	subscriptionID, periodID, err := s.attachBillingPeriod(ctx, customerID, eventTime)
	if err != nil {
		return nil, err
	}

	properties := datatypes.JSONMap(req.Properties)
	if properties == nil {
		properties = datatypes.JSONMap{}
	}

	event := &domain.UsageEvent{
		ID:              s.genID.Generate(),
		CustomerID:      customerID,
		SubscriptionID:  subscriptionID,
		BillingPeriodID: periodID,
		MetricName:      metricName,
		MetricID:        metricID,
		Quantity:        req.Quantity,
		EventTime:       eventTime,
		Properties:      properties,
		CreatedAt:       s.clock.Now(),
	}

	if err := s.repo.Insert(ctx, s.db, event); err != nil {
		return nil, err
	}
	s.telemetry.ObserveUsageEvents(metricName, 1)

	s.log.Debug("usage event tracked",
		zap.String("customer_id", customerID.String()),
		zap.String("metric_name", metricName),
		zap.String("quantity", req.Quantity.String()),
		zap.Bool("period_attached", periodID != nil),
	)
	return event, nil
}

// BatchTrack records each event independently. A failed event reports
// its error by batch index without aborting the rest.
func (s *Service) BatchTrack(ctx context.Context, req domain.BatchTrackRequest) (domain.BatchTrackResponse, error) {
	resp := domain.BatchTrackResponse{
		Tracked: make([]domain.UsageEvent, 0, len(req.Events)),
	}
	for i, entry := range req.Events {
		event, err := s.Track(ctx, entry)
		if err != nil {
			resp.Failures = append(resp.Failures, domain.BatchFailure{
				Index: i,
				Error: err.Error(),
			})
			continue
		}
		resp.Tracked = append(resp.Tracked, *event)
	}
	if len(resp.Failures) > 0 {
		s.log.Warn("batch track partially failed",
			zap.Int("tracked", len(resp.Tracked)),
			zap.Int("failed", len(resp.Failures)),
		)
	}
	return resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListEventsRequest) (domain.ListEventsResponse, error) {
	customerID, err := s.parseID(req.CustomerID)
	if err != nil {
		return domain.ListEventsResponse{}, err
	}
	if req.EndDate.Before(req.StartDate) {
		return domain.ListEventsResponse{}, domain.ErrInvalidTimeRange
	}

	var cursor *domain.EventCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListEventsResponse{}, domain.ErrInvalidPageToken
		}
		eventTime, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return domain.ListEventsResponse{}, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return domain.ListEventsResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.EventCursor{ID: id, EventTime: eventTime}
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		CustomerID: customerID,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		MetricName: req.MetricName,
		Cursor:     cursor,
		Limit:      int(pageSize),
	})
	if err != nil {
		return domain.ListEventsResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.UsageEvent) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.EventTime.Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	events := make([]domain.UsageEvent, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		events = append(events, *item)
	}

	resp := domain.ListEventsResponse{Events: events}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) AggregateRange(ctx context.Context, customerID snowflake.ID, start, end time.Time) (map[string]decimal.Decimal, error) {
	rows, err := s.repo.SumByMetric(ctx, s.db, customerID, start, end)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.MetricName] = row.Total
	}
	return totals, nil
}

func (s *Service) CustomersWithUsage(ctx context.Context, start, end time.Time) ([]snowflake.ID, error) {
	return s.repo.DistinctCustomers(ctx, s.db, start, end)
}

func (s *Service) resolveMetricID(ctx context.Context, name string) (*snowflake.ID, error) {
	metric, err := s.metrics.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, metricdomain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &metric.ID, nil
}

// attachBillingPeriod walks the customer's subscriptions active at the
// event time and returns the first one with a period covering it.
func (s *Service) attachBillingPeriod(ctx context.Context, customerID snowflake.ID, eventTime time.Time) (*snowflake.ID, *snowflake.ID, error) {
	subscriptions, err := s.subscriptions.ListActiveAt(ctx, customerID, eventTime)
	if err != nil {
		return nil, nil, err
	}
	for _, subscription := range subscriptions {
		period, err := s.periods.FindForTime(ctx, subscription.ID, eventTime)
		if err != nil {
			return nil, nil, err
		}
		if period != nil {
			subscriptionID := subscription.ID
			periodID := period.ID
			return &subscriptionID, &periodID, nil
		}
	}
	return nil, nil, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
