package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/credit/domain"
	"github.com/smallbiznis/tally/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertBalance(ctx context.Context, db *gorm.DB, balance *domain.CreditBalance) error {
	return db.WithContext(ctx).Create(balance).Error
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, transaction *domain.CreditTransaction) error {
	return db.WithContext(ctx).Create(transaction).Error
}

func (r *repo) UpdateBalance(ctx context.Context, db *gorm.DB, balance *domain.CreditBalance) error {
	return db.WithContext(ctx).Save(balance).Error
}

func (r *repo) FindBalanceByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.CreditBalance, error) {
	var balance domain.CreditBalance
	err := db.WithContext(ctx).Where("id = ?", id).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

func (r *repo) ListUsable(ctx context.Context, db *gorm.DB, customerID snowflake.ID, now time.Time, forUpdate bool) ([]domain.CreditBalance, error) {
	var balances []domain.CreditBalance
	stmt := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Where("status = ?", domain.CreditStatusActive).
		Where("remaining_amount > 0").
		Where("expires_at IS NULL OR expires_at > ?", now.UTC()).
		// Portable NULLS LAST: balances without expiry sort after
		// every dated one.
		Order("CASE WHEN expires_at IS NULL THEN 1 ELSE 0 END, expires_at asc, id asc")
	if forUpdate {
		stmt = option.WithForUpdate().Apply(stmt)
	}
	if err := stmt.Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, includeInactive bool, now time.Time) ([]domain.CreditBalance, error) {
	var balances []domain.CreditBalance
	stmt := db.WithContext(ctx).Where("customer_id = ?", customerID)
	if !includeInactive {
		stmt = stmt.
			Where("status = ?", domain.CreditStatusActive).
			Where("expires_at IS NULL OR expires_at > ?", now.UTC())
	}
	if err := stmt.Order("created_at desc, id desc").Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}

func (r *repo) ListExpirable(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.CreditBalance, error) {
	var balances []domain.CreditBalance
	err := db.WithContext(ctx).
		Where("status = ?", domain.CreditStatusActive).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now.UTC()).
		Order("expires_at asc, id asc").
		Find(&balances).Error
	if err != nil {
		return nil, err
	}
	return balances, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, balanceID snowflake.ID) ([]domain.CreditTransaction, error) {
	var transactions []domain.CreditTransaction
	err := db.WithContext(ctx).
		Where("credit_balance_id = ?", balanceID).
		Order("created_at asc, id asc").
		Find(&transactions).Error
	if err != nil {
		return nil, err
	}
	return transactions, nil
}
