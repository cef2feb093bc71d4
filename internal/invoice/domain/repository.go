package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tally/pkg/db/option"
	"gorm.io/gorm"
)

// Repository persists invoices and their items. Every method takes the
// database handle so callers can run several of them in one
// transaction.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	Update(ctx context.Context, db *gorm.DB, invoice *Invoice) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID, opts ...option.QueryOption) (*Invoice, error)
	FindByNumber(ctx context.Context, db *gorm.DB, number string) (*Invoice, error)
	ListByCustomer(ctx context.Context, db *gorm.DB, customerID snowflake.ID, status *InvoiceStatus) ([]Invoice, error)

	InsertItems(ctx context.Context, db *gorm.DB, items []*InvoiceItem) error
	DeleteItem(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindItemByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*InvoiceItem, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
	ListItemsForInvoices(ctx context.Context, db *gorm.DB, invoiceIDs []snowflake.ID) ([]InvoiceItem, error)
}
