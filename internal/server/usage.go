package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	eventdomain "github.com/smallbiznis/tally/internal/event/domain"
)

type trackUsageRequest struct {
	CustomerID     string          `json:"customer_id"`
	MetricName     string          `json:"metric_name"`
	Quantity       decimal.Decimal `json:"quantity"`
	SubscriptionID string          `json:"subscription_id"`
	EventTime      string          `json:"event_time"`
	Properties     map[string]any  `json:"properties"`
}

// TrackUsage records a usage event. A supplied subscription id is only
// checked for ownership; period attachment is always derived from the
// event time.
func (s *Server) TrackUsage(c *gin.Context) {
	var req trackUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if metricName := strings.TrimSpace(req.MetricName); metricName != "" {
		c.Set("metric_name", metricName)
	}

	eventTime, err := parseOptionalTime(req.EventTime, false)
	if err != nil {
		AbortWithError(c, newValidationError("event_time", "invalid_event_time", "invalid event_time"))
		return
	}

	if subscriptionID := strings.TrimSpace(req.SubscriptionID); subscriptionID != "" {
		subscription, err := s.subscriptionSvc.GetByID(c.Request.Context(), subscriptionID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if subscription.CustomerID.String() != strings.TrimSpace(req.CustomerID) {
			AbortWithError(c, ErrForbidden)
			return
		}
	}

	resp, err := s.eventSvc.Track(c.Request.Context(), eventdomain.TrackEventRequest{
		CustomerID: strings.TrimSpace(req.CustomerID),
		MetricName: strings.TrimSpace(req.MetricName),
		Quantity:   req.Quantity,
		EventTime:  eventTime,
		Properties: req.Properties,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordEventTracked(c.Request.Context(), resp.MetricName)

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetCustomerUsage(c *gin.Context) {
	customerID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, eventdomain.ErrInvalidID)
		return
	}

	startDate, err := parseRequiredTime(c.Query("start_date"), false)
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "invalid start_date"))
		return
	}

	endDate, err := parseRequiredTime(c.Query("end_date"), true)
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_end_date", "invalid end_date"))
		return
	}

	totals, err := s.eventSvc.AggregateRange(c.Request.Context(), customerID, startDate, endDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if metricName := strings.TrimSpace(c.Query("metric_name")); metricName != "" {
		filtered := make(map[string]decimal.Decimal, 1)
		if total, ok := totals[metricName]; ok {
			filtered[metricName] = total
		}
		totals = filtered
	}

	c.JSON(http.StatusOK, gin.H{"data": totals})
}
