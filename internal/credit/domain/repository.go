package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertBalance(ctx context.Context, db *gorm.DB, balance *CreditBalance) error
	InsertTransaction(ctx context.Context, db *gorm.DB, transaction *CreditTransaction) error
	UpdateBalance(ctx context.Context, db *gorm.DB, balance *CreditBalance) error
	FindBalanceByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CreditBalance, error)

	// ListUsable returns active balances with remaining > 0 that have
	// not expired at now, ordered soonest-expiring first (NULL expiry
	// last) with id as the tie-break. forUpdate row-locks the result
	// for the enclosing transaction.
	ListUsable(ctx context.Context, db *gorm.DB, customerID snowflake.ID, now time.Time, forUpdate bool) ([]CreditBalance, error)

	ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, includeInactive bool, now time.Time) ([]CreditBalance, error)

	// ListExpirable returns active balances whose expiry has passed.
	ListExpirable(ctx context.Context, db *gorm.DB, now time.Time) ([]CreditBalance, error)

	ListTransactions(ctx context.Context, db *gorm.DB, balanceID snowflake.ID) ([]CreditTransaction, error)
}
