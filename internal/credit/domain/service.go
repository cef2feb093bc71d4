package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AddCreditsRequest struct {
	CustomerID     string          `json:"-"`
	Amount         decimal.Decimal `json:"amount"`
	CreditType     string          `json:"credit_type"`
	Description    string          `json:"description"`
	ExpiresInDays  *int            `json:"expires_in_days"`
	SubscriptionID *string         `json:"subscription_id"`
	InvoiceID      *string         `json:"invoice_id"`
}

type ListBalancesRequest struct {
	CustomerID      string
	IncludeInactive bool
}

type ApplyCreditsRequest struct {
	CustomerID  string
	Amount      decimal.Decimal
	Description string
	InvoiceID   *snowflake.ID
}

// CreditApplication reports one draw taken from a balance so callers
// can mirror it on their own records.
type CreditApplication struct {
	BalanceID   snowflake.ID
	CreditType  CreditType
	Description string
	Amount      decimal.Decimal
}

type Service interface {
	// Add grants credit and writes the opening transaction. Unknown
	// credit types normalize to prepaid.
	Add(ctx context.Context, req AddCreditsRequest) (*CreditBalance, error)

	// Available sums remaining credit over usable balances.
	Available(ctx context.Context, customerID snowflake.ID) (decimal.Decimal, error)

	ListBalances(ctx context.Context, req ListBalancesRequest) ([]CreditBalance, error)
	ListTransactions(ctx context.Context, balanceID string) ([]CreditTransaction, error)

	// ApplyToInvoice draws up to amount from the customer's balances
	// inside the caller's transaction, soonest-expiring first. It
	// returns the unpaid remainder (never negative) and the draws
	// taken, so the caller can attach matching invoice items.
	ApplyToInvoice(ctx context.Context, tx *gorm.DB, customerID, invoiceID snowflake.ID, invoiceNumber string, amount decimal.Decimal) (decimal.Decimal, []CreditApplication, error)

	// ApplyManually draws credit outside invoice assembly. Fails when
	// the customer's available credit cannot cover the full amount.
	ApplyManually(ctx context.Context, req ApplyCreditsRequest) error

	// ExpireCredits transitions overdue active balances to expired,
	// zeroing what remained. Returns how many balances transitioned.
	ExpireCredits(ctx context.Context) (int, error)
}

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidAmount       = errors.New("invalid_credit_amount")
	ErrCustomerNotFound    = errors.New("customer_not_found")
	ErrBalanceNotFound     = errors.New("credit_balance_not_found")
	ErrInsufficientCredits = errors.New("insufficient_credits")
)
