package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/tally/internal/subscription/domain"
)

type createSubscriptionRequest struct {
	PlanID    string `json:"plan_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (s *Server) CreateSubscription(c *gin.Context) {
	var req createSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	startDate, err := parseOptionalTime(req.StartDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "invalid start_date"))
		return
	}

	endDate, err := parseOptionalTime(req.EndDate, true)
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_end_date", "invalid end_date"))
		return
	}

	resp, err := s.subscriptionSvc.Create(c.Request.Context(), subscriptiondomain.CreateSubscriptionRequest{
		CustomerID: strings.TrimSpace(c.Param("id")),
		PlanID:     strings.TrimSpace(req.PlanID),
		StartDate:  startDate,
		EndDate:    endDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomerSubscriptions(c *gin.Context) {
	activeOnly := true
	if parsed, err := parseOptionalBool(c.Query("active_only")); err != nil {
		AbortWithError(c, newValidationError("active_only", "invalid_active_only", "invalid active_only"))
		return
	} else if parsed != nil {
		activeOnly = *parsed
	}

	resp, err := s.subscriptionSvc.List(c.Request.Context(), subscriptiondomain.ListSubscriptionsRequest{
		CustomerID: strings.TrimSpace(c.Param("id")),
		ActiveOnly: activeOnly,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// CancelSubscription verifies the subscription belongs to the customer
// in the path before touching it.
func (s *Server) CancelSubscription(c *gin.Context) {
	customerID := strings.TrimSpace(c.Param("id"))
	subscriptionID := strings.TrimSpace(c.Param("sid"))

	endDate, err := parseOptionalTime(c.Query("end_date"), true)
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_end_date", "invalid end_date"))
		return
	}

	existing, err := s.subscriptionSvc.GetByID(c.Request.Context(), subscriptionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if existing.CustomerID.String() != customerID {
		AbortWithError(c, ErrForbidden)
		return
	}

	resp, err := s.subscriptionSvc.Cancel(c.Request.Context(), subscriptiondomain.CancelSubscriptionRequest{
		ID:      subscriptionID,
		EndDate: endDate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func isSubscriptionValidationError(err error) bool {
	switch {
	case errors.Is(err, subscriptiondomain.ErrInvalidID),
		errors.Is(err, subscriptiondomain.ErrInvalidDateRange):
		return true
	default:
		return false
	}
}
