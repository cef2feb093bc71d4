package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingSettings are the invoicing knobs that may change at runtime
// without a process restart.
type BillingSettings struct {
	PaymentTermDays     int           `mapstructure:"paymentTermDays"`
	TaxRate             float64       `mapstructure:"taxRate"`
	Currency            string        `mapstructure:"currency"`
	CreditSweepInterval time.Duration `mapstructure:"creditSweepInterval"`
}

func DefaultBillingSettings(cfg Config) BillingSettings {
	return BillingSettings{
		PaymentTermDays:     cfg.PaymentTermDays,
		TaxRate:             cfg.TaxRate,
		Currency:            cfg.Currency,
		CreditSweepInterval: time.Hour,
	}
}

// BillingSettingsHolder exposes the current settings snapshot. Reads are
// lock-free; a file change swaps the snapshot atomically.
type BillingSettingsHolder struct {
	current atomic.Value // holds BillingSettings
}

func NewBillingSettingsHolder(cfg Config) (*BillingSettingsHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tally/config")
	v.AddConfigPath("/etc/tally")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingSettings(cfg)
	v.SetDefault("billing.paymentTermDays", defaults.PaymentTermDays)
	v.SetDefault("billing.taxRate", defaults.TaxRate)
	v.SetDefault("billing.currency", defaults.Currency)
	v.SetDefault("billing.creditSweepInterval", defaults.CreditSweepInterval)

	watchable := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// no billing.yml on disk, environment and defaults apply
		watchable = false
	}

	var settings BillingSettings
	if err := v.UnmarshalKey("billing", &settings); err != nil {
		return nil, err
	}
	if err := validateBillingSettings(settings); err != nil {
		return nil, err
	}

	holder := &BillingSettingsHolder{}
	holder.current.Store(settings)

	if watchable {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated BillingSettings
			if err := v.UnmarshalKey("billing", &updated); err != nil {
				log.Printf("[billing-config] reload failed: %v", err)
				return
			}
			if err := validateBillingSettings(updated); err != nil {
				log.Printf("[billing-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[billing-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *BillingSettingsHolder) Get() BillingSettings {
	return h.current.Load().(BillingSettings)
}

// StaticBillingSettings pins a holder to one snapshot with no file
// watching behind it. Tests and one-shot tools use this.
func StaticBillingSettings(settings BillingSettings) *BillingSettingsHolder {
	holder := &BillingSettingsHolder{}
	holder.current.Store(settings)
	return holder
}

func validateBillingSettings(s BillingSettings) error {
	if s.PaymentTermDays <= 0 {
		return errors.New("billing.paymentTermDays must be positive")
	}
	if s.TaxRate < 0 {
		return errors.New("billing.taxRate cannot be negative")
	}
	if strings.TrimSpace(s.Currency) == "" {
		return errors.New("billing.currency cannot be empty")
	}
	if s.CreditSweepInterval <= 0 {
		return errors.New("billing.creditSweepInterval must be positive")
	}
	return nil
}
