package db

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/tally/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Dialect resolves the GORM dialector from DATABASE_URL. Postgres and
// MySQL URLs pass through; anything else is treated as a sqlite path.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	raw := strings.TrimSpace(cfg.DatabaseURL)
	if raw == "" {
		raw = "file:tally.db"
	}

	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return postgres.Open(raw), nil
	case strings.HasPrefix(raw, "mysql://"):
		dsn, err := mysqlDSN(raw)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	case strings.HasPrefix(raw, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(raw, "sqlite://")), nil
	case strings.HasPrefix(raw, "file:"):
		return sqlite.Open(raw), nil
	case strings.Contains(raw, "://"):
		return nil, fmt.Errorf("unsupported database url %q", raw)
	default:
		return sqlite.Open(raw), nil
	}
}

func mysqlDSN(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse mysql url: %w", err)
	}
	user := u.User.Username()
	pass, _ := u.User.Password()
	host := u.Host
	name := strings.TrimPrefix(u.Path, "/")
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		user, pass, host, name,
	), nil
}

// IsSQLite reports whether the configured DATABASE_URL points at sqlite.
// The sqlite path skips SQL migrations and relies on AutoMigrate.
func IsSQLite(cfg config.Config) bool {
	raw := strings.TrimSpace(cfg.DatabaseURL)
	if raw == "" {
		return true
	}
	if strings.HasPrefix(raw, "sqlite://") || strings.HasPrefix(raw, "file:") {
		return true
	}
	return !strings.Contains(raw, "://")
}
