package persistence

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver for database/sql
	"go.uber.org/zap"

	"github.com/spec-kit/issuelog/internal/config"
)

const driverName = "postgres"

// SQLX wraps a database/sql handle used as an alternative snapshot sink connection.
type SQLX struct {
	DB *sqlx.DB
}

// NewSQLX opens a lib/pq backed handle configured with the same pool limits as pgx.
func NewSQLX(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*SQLX, error) {
	if cfg.DSN == "" {
		logger.Warn("POSTGRES_DSN not provided; skipping sqlx connection")
		return &SQLX{}, nil
	}

	db, err := sqlx.ConnectContext(ctx, driverName, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(int(cfg.MinConns))
	}
	if cfg.ConnMaxIdleSec > 0 {
		db.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleSec) * time.Second)
	}
	if cfg.ConnMaxLifeSec > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeSec) * time.Second)
	}

	logger.Info("connected to postgres via sqlx")
	return &SQLX{DB: db}, nil
}

// Close releases the handle.
func (s *SQLX) Close() {
	if s != nil && s.DB != nil {
		_ = s.DB.Close()
	}
}

// Handle returns the sqlx handle, nil when not configured.
func (s *SQLX) Handle() *sqlx.DB {
	if s == nil {
		return nil
	}
	return s.DB
}

// Ping verifies connectivity.
func (s *SQLX) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return ErrNotConfigured
	}
	return s.DB.PingContext(ctx)
}
