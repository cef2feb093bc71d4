package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the process configuration.
var Module = fx.Options(
	fx.Provide(Load),
	fx.Provide(NewBillingSettingsHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	Debug       bool

	HTTPAddr       string
	AllowedOrigins []string

	OTLPEndpoint string
	// OTLPProtocol selects the span exporter transport: "grpc" or "http".
	OTLPProtocol string

	// DatabaseURL selects the backing store. Supported schemes:
	// postgres://, mysql://, and file: (sqlite, the default).
	DatabaseURL string

	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	PaymentTermDays int
	TaxRate         float64
	Currency        string

	SeedDemoData bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	environment := getenv("ENVIRONMENT", "development")
	debug := getenvBool("DEBUG", environment != "production")

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "tally"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       environment,
		Debug:             debug,
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		AllowedOrigins:    parseOrigins(getenv("ALLOWED_ORIGINS", "*")),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:      strings.ToLower(getenv("OTLP_PROTOCOL", "grpc")),
		DatabaseURL:       getenv("DATABASE_URL", "file:tally.db"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		PaymentTermDays:   int(getenvInt64("DEFAULT_PAYMENT_TERM_DAYS", 30)),
		TaxRate:           getenvFloat("TAX_RATE", 0.0),
		Currency:          strings.ToUpper(getenv("CURRENCY", "USD")),
		SeedDemoData:      getenvBool("SEED_DEMO_DATA", false),
	}

	return cfg
}

func parseOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
