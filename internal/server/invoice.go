package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/tally/internal/invoice/domain"
)

type createInvoiceRequest struct {
	CustomerID string                         `json:"customer_id"`
	IssueDate  string                         `json:"issue_date"`
	DueDate    string                         `json:"due_date"`
	Notes      string                         `json:"notes"`
	Items      []invoicedomain.AddItemRequest `json:"items"`
}

type generateInvoicesRequest struct {
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	CustomerID string `json:"customer_id"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	issueDate, err := parseOptionalTime(req.IssueDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("issue_date", "invalid_issue_date", "invalid issue_date"))
		return
	}

	dueDate, err := parseOptionalTime(req.DueDate, false)
	if err != nil {
		AbortWithError(c, newValidationError("due_date", "invalid_due_date", "invalid due_date"))
		return
	}

	resp, err := s.invoiceSvc.Create(c.Request.Context(), invoicedomain.CreateInvoiceRequest{
		CustomerID: strings.TrimSpace(req.CustomerID),
		IssueDate:  issueDate,
		DueDate:    dueDate,
		Notes:      req.Notes,
		Items:      req.Items,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.obsMetrics.RecordInvoiceGenerated(c.Request.Context(), "manual")

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// GenerateInvoices reads the window from query parameters first and
// falls back to the request body for anything missing.
func (s *Server) GenerateInvoices(c *gin.Context) {
	var body generateInvoicesRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	startRaw := strings.TrimSpace(c.Query("start_date"))
	if startRaw == "" {
		startRaw = strings.TrimSpace(body.StartDate)
	}
	endRaw := strings.TrimSpace(c.Query("end_date"))
	if endRaw == "" {
		endRaw = strings.TrimSpace(body.EndDate)
	}
	customerRaw := strings.TrimSpace(c.Query("customer_id"))
	if customerRaw == "" {
		customerRaw = strings.TrimSpace(body.CustomerID)
	}

	if startRaw == "" {
		AbortWithError(c, newValidationError("start_date", "missing_start_date", "start_date is required"))
		return
	}
	if endRaw == "" {
		AbortWithError(c, newValidationError("end_date", "missing_end_date", "end_date is required"))
		return
	}

	startDate, err := parseRequiredTime(startRaw, false)
	if err != nil {
		AbortWithError(c, newValidationError("start_date", "invalid_start_date", "invalid start_date"))
		return
	}
	endDate, err := parseRequiredTime(endRaw, true)
	if err != nil {
		AbortWithError(c, newValidationError("end_date", "invalid_end_date", "invalid end_date"))
		return
	}

	req := invoicedomain.GenerateForRangeRequest{
		StartDate: startDate,
		EndDate:   endDate,
	}
	if customerRaw != "" {
		req.CustomerID = &customerRaw
	}

	resp, err := s.invoiceSvc.GenerateForRange(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	for range resp {
		s.obsMetrics.RecordInvoiceGenerated(c.Request.Context(), "range")
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.invoiceSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomerInvoices(c *gin.Context) {
	customerID := strings.TrimSpace(c.Param("id"))
	status := strings.TrimSpace(c.Query("status"))

	resp, err := s.invoiceSvc.ListByCustomer(c.Request.Context(), customerID, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateInvoiceStatus(c *gin.Context) {
	status := strings.TrimSpace(c.Query("status"))
	if status == "" {
		AbortWithError(c, newValidationError("status", "missing_status", "status is required"))
		return
	}

	resp, err := s.invoiceSvc.UpdateStatus(c.Request.Context(), strings.TrimSpace(c.Param("id")), status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) FinalizeInvoice(c *gin.Context) {
	resp, err := s.invoiceSvc.Finalize(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) VoidInvoice(c *gin.Context) {
	reason := strings.TrimSpace(c.Query("reason"))

	resp, err := s.invoiceSvc.Void(c.Request.Context(), strings.TrimSpace(c.Param("id")), reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) AddInvoiceItem(c *gin.Context) {
	var req invoicedomain.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.AddItem(c.Request.Context(), strings.TrimSpace(c.Param("id")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RemoveInvoiceItem(c *gin.Context) {
	invoiceID := strings.TrimSpace(c.Param("id"))
	itemID := strings.TrimSpace(c.Param("iid"))

	if err := s.invoiceSvc.RemoveItem(c.Request.Context(), invoiceID, itemID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func isInvoiceValidationError(err error) bool {
	switch {
	case errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidAmount),
		errors.Is(err, invoicedomain.ErrInvalidDescription),
		errors.Is(err, invoicedomain.ErrInvalidStatus),
		errors.Is(err, invoicedomain.ErrInvalidDateRange),
		errors.Is(err, invoicedomain.ErrNotDraft),
		errors.Is(err, invoicedomain.ErrTerminalStatus):
		return true
	default:
		return false
	}
}
