package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	eventdomain "github.com/smallbiznis/tally/internal/event/domain"
	"github.com/smallbiznis/tally/pkg/db/pagination"
)

type trackEventRequest struct {
	CustomerID string          `json:"customer_id"`
	MetricName string          `json:"metric_name"`
	Quantity   decimal.Decimal `json:"quantity"`
	EventTime  string          `json:"event_time"`
	Properties map[string]any  `json:"properties"`
}

type batchTrackRequest struct {
	Events []trackEventRequest `json:"events"`
}

func (s *Server) TrackEvent(c *gin.Context) {
	var req trackEventRequest
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

// BatchTrackEvents rejects the whole batch on a malformed event_time;
// events that fail tracking individually are reported by index instead.
func (s *Server) BatchTrackEvents(c *gin.Context) {
	var req batchTrackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entries := make([]eventdomain.TrackEventRequest, 0, len(req.Events))
	for i, entry := range req.Events {
		eventTime, err := parseOptionalTime(entry.EventTime, false)
		if err != nil {
			field := fmt.Sprintf("events[%d].event_time", i)
			AbortWithError(c, newValidationError(field, "invalid_event_time", "invalid event_time"))
			return
		}
		entries = append(entries, eventdomain.TrackEventRequest{
			CustomerID: strings.TrimSpace(entry.CustomerID),
			MetricName: strings.TrimSpace(entry.MetricName),
			Quantity:   entry.Quantity,
			EventTime:  eventTime,
			Properties: entry.Properties,
		})
	}

	resp, err := s.eventSvc.BatchTrack(c.Request.Context(), eventdomain.BatchTrackRequest{Events: entries})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	for _, tracked := range resp.Tracked {
		s.obsMetrics.RecordEventTracked(c.Request.Context(), tracked.MetricName)
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListCustomerEvents(c *gin.Context) {
	var query struct {
		pagination.Pagination
		StartDate  string `form:"start_date"`
		EndDate    string `form:"end_date"`
		MetricName string `form:"metric_name"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startDate, err := parseRequiredTime(query.StartDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "invalid start_date"))
		return
	}

	endDate, err := parseRequiredTime(query.EndDate, true)
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_end_date", "invalid end_date"))
		return
	}

	resp, err := s.eventSvc.List(c.Request.Context(), eventdomain.ListEventsRequest{
		CustomerID: strings.TrimSpace(c.Param("id")),
		StartDate:  startDate,
		EndDate:    endDate,
		MetricName: strings.TrimSpace(query.MetricName),
		PageToken:  query.PageToken,
		PageSize:   int32(query.PageSize),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetCustomerEventUsage(c *gin.Context) {
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

	resp, err := s.eventSvc.AggregateRange(c.Request.Context(), customerID, startDate, endDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isEventValidationError(err error) bool {
	switch {
	case errors.Is(err, eventdomain.ErrInvalidID),
		errors.Is(err, eventdomain.ErrInvalidMetric),
		errors.Is(err, eventdomain.ErrInvalidQuantity),
		errors.Is(err, eventdomain.ErrInvalidPageToken),
		errors.Is(err, eventdomain.ErrInvalidTimeRange):
		return true
	default:
		return false
	}
}
