package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// GenerateInvoiceRequest asks the assembler for one usage invoice
// covering [StartDate, EndDate]. With SubscriptionID set, flat and
// subscription fees plus commitment minimums are billed as well;
// without it only usage charges across the customer's overlapping
// subscriptions are.
type GenerateInvoiceRequest struct {
	CustomerID     snowflake.ID
	StartDate      time.Time
	EndDate        time.Time
	SubscriptionID *snowflake.ID
}

// GenerateForRangeRequest drives the bulk generation surface. Without
// a customer, every customer with usage in the window gets an invoice.
type GenerateForRangeRequest struct {
	StartDate  time.Time
	EndDate    time.Time
	CustomerID *string
}

// AddItemRequest is one caller-supplied line. UnitPrice defaults to
// Amount/Quantity when a positive quantity is given, else to Amount.
type AddItemRequest struct {
	Description string           `json:"description" binding:"required"`
	Amount      decimal.Decimal  `json:"amount" binding:"required"`
	Quantity    *decimal.Decimal `json:"quantity"`
	MetricName  *string          `json:"metric_name"`
	UnitPrice   *decimal.Decimal `json:"unit_price"`
}

// CreateInvoiceRequest creates a draft invoice outside the assembler,
// empty or with caller-supplied items. Dates are parsed by the HTTP
// layer and default to now / now+payment-term.
type CreateInvoiceRequest struct {
	CustomerID string           `json:"customer_id" binding:"required"`
	IssueDate  *time.Time       `json:"-"`
	DueDate    *time.Time       `json:"-"`
	Notes      string           `json:"notes"`
	Items      []AddItemRequest `json:"items"`
}

type Service interface {
	// Generate assembles one usage invoice in a single transaction:
	// items, commitment minimums, credit draws, and totals either all
	// persist or none do.
	Generate(ctx context.Context, req GenerateInvoiceRequest) (*Invoice, error)

	// GenerateForBillingPeriod invoices one billing period through
	// Generate with the period's subscription, then links the period
	// to the invoice.
	GenerateForBillingPeriod(ctx context.Context, periodID snowflake.ID) (*Invoice, error)

	// GenerateForRange invoices a window for one customer, or for
	// every customer with usage in it when none is given.
	GenerateForRange(ctx context.Context, req GenerateForRangeRequest) ([]Invoice, error)

	Create(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error)
	Get(ctx context.Context, id string) (*Invoice, error)
	ListByCustomer(ctx context.Context, customerID, status string) ([]Invoice, error)
	ListItems(ctx context.Context, invoiceID string) ([]InvoiceItem, error)

	// Finalize moves a draft to pending, freezing its items.
	Finalize(ctx context.Context, id string) (*Invoice, error)

	// Void cancels any non-terminal invoice and appends the reason to
	// its notes.
	Void(ctx context.Context, id, reason string) (*Invoice, error)

	// UpdateStatus validates the transition and stamps paid_date when
	// an invoice first becomes paid.
	UpdateStatus(ctx context.Context, id, status string) (*Invoice, error)

	AddItem(ctx context.Context, invoiceID string, req AddItemRequest) (*InvoiceItem, error)
	RemoveItem(ctx context.Context, invoiceID, itemID string) error
}

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrInvalidDescription   = errors.New("invalid_description")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidDateRange     = errors.New("invalid_date_range")
	ErrNotFound             = errors.New("invoice_not_found")
	ErrItemNotFound         = errors.New("invoice_item_not_found")
	ErrCustomerNotFound     = errors.New("customer_not_found")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrNotDraft             = errors.New("invoice_not_draft")
	ErrTerminalStatus       = errors.New("invoice_status_terminal")
	ErrNumberConflict       = errors.New("invoice_number_conflict")
)
