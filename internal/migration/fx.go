package migration

import (
	billingperioddomain "github.com/smallbiznis/tally/internal/billingperiod/domain"
	commitmentdomain "github.com/smallbiznis/tally/internal/commitment/domain"
	"github.com/smallbiznis/tally/internal/config"
	creditdomain "github.com/smallbiznis/tally/internal/credit/domain"
	customerdomain "github.com/smallbiznis/tally/internal/customer/domain"
	eventdomain "github.com/smallbiznis/tally/internal/event/domain"
	invoicedomain "github.com/smallbiznis/tally/internal/invoice/domain"
	metricdomain "github.com/smallbiznis/tally/internal/metric/domain"
	plandomain "github.com/smallbiznis/tally/internal/plan/domain"
	"github.com/smallbiznis/tally/internal/seed"
	subscriptiondomain "github.com/smallbiznis/tally/internal/subscription/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if conn.Dialector != nil && conn.Dialector.Name() == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		if cfg.SeedDemoData {
			return seed.EnsureDemoData(conn)
		}
		return nil
	}),
)

// AutoMigrate builds the schema from the domain models for dialects
// without SQL migrations (sqlite, mysql).
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&customerdomain.Customer{},
		&metricdomain.Metric{},
		&plandomain.Plan{},
		&plandomain.PriceComponent{},
		&subscriptiondomain.Subscription{},
		&billingperioddomain.BillingPeriod{},
		&eventdomain.UsageEvent{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&commitmentdomain.CommitmentTier{},
		&creditdomain.CreditBalance{},
		&creditdomain.CreditTransaction{},
	)
}
