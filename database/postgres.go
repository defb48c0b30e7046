package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	_ "github.com/jackc/pgx/v5/stdlib" // Explicitly register pgx driver
)

// Config holds standard database configuration.
type Config struct {
	DSN             string        `envconfig:"DB_DSN" validate:"required" yaml:"dsn"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25" yaml:"max_open_conns"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"15m" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `envconfig:"DB_CONN_MAX_IDLE_TIME" default:"5m" yaml:"conn_max_idle_time"`
	PingTimeout     time.Duration `envconfig:"DB_PING_TIMEOUT" default:"5s" yaml:"ping_timeout"`
}

// NewPostgres opens a pgx-backed *sql.DB with OpenTelemetry spans on every
// query and applies the pool limits. It fails fast if the database is
// unreachable. Pool stats are exported as go_sql_* metrics labelled with
// serviceName.
func NewPostgres(ctx context.Context, cfg Config, serviceName string) (*sql.DB, error) {
	db, err := otelsql.Open("pgx", cfg.DSN,
		otelsql.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
		otelsql.WithDBName("postgres"),
	)
	if err != nil {
		return nil, fmt.Errorf("helix-audit/database: failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("helix-audit/database: failed to ping database: %w", err)
	}

	registerPoolStats(db, serviceName)

	return db, nil
}

// registerPoolStats exports db's pool stats. A second pool for the same
// name keeps the first registration.
func registerPoolStats(db *sql.DB, name string) {
	err := prometheus.Register(collectors.NewDBStatsCollector(db, name))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		slog.Warn("database: pool stats not exported", "error", err)
	}
}
