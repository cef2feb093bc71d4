package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/internal/invoice/domain"
	"github.com/smallbiznis/tally/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Create(invoice).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, invoice *domain.Invoice) error {
	return db.WithContext(ctx).Save(invoice).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, opts ...option.QueryOption) (*domain.Invoice, error) {
	stmt := db.WithContext(ctx).Where("id = ?", id)
	for _, opt := range opts {
		stmt = opt.Apply(stmt)
	}

	var invoice domain.Invoice
	err := stmt.First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) FindByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Invoice, error) {
	var invoice domain.Invoice
	err := db.WithContext(ctx).Where("invoice_number = ?", number).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repo) ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, status *domain.InvoiceStatus) ([]domain.Invoice, error) {
	stmt := db.WithContext(ctx).Where("customer_id = ?", customerID)
	if status != nil {
		stmt = stmt.Where("status = ?", *status)
	}

	var invoices []domain.Invoice
	if err := stmt.Order("issue_date desc, id desc").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) InsertItems(ctx context.Context, db *gorm.DB, items []*domain.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(items).Error
}

func (r *repo) DeleteItem(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.InvoiceItem{}).Error
}

func (r *repo) FindItemByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.InvoiceItem, error) {
	var item domain.InvoiceItem
	err := db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListItemsForInvoices(ctx context.Context, db *gorm.DB, invoiceIDs []snowflake.ID) ([]domain.InvoiceItem, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}

	var items []domain.InvoiceItem
	err := db.WithContext(ctx).
		Where("invoice_id IN ?", invoiceIDs).
		Order("created_at asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
