package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds connection settings for either backend.
type Config struct {
	Driver           string
	DSN              string
	MaxConns         int
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB wraps database/sql so one repository implementation serves Postgres
// (production, via the pgx stdlib adapter) and SQLite (local mode, tests).
type DB struct {
	SQL    *sql.DB
	Driver string

	pool *pgxpool.Pool
}

// Open connects, applies pool settings, and runs pending migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connecting to database", "driver", cfg.Driver)

	var db *DB
	var err error
	switch cfg.Driver {
	case DriverSQLite:
		db, err = openSQLite(cfg)
	case DriverPostgres, "":
		db, err = openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	if err := Migrate(db, logger); err != nil {
		db.Close(logger)
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	logger.Info("successfully connected to database")
	return db, nil
}

func openPostgres(ctx context.Context, cfg Config) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = int32(cfg.MaxConns)
	}
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "extraction-service"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, err
	}

	return &DB{SQL: stdlib.OpenDBFromPool(pool), Driver: DriverPostgres, pool: pool}, nil
}

func openSQLite(cfg Config) (*DB, error) {
	dsn := cfg.DSN
	// Concurrent workers need a busy timeout rather than hard lock errors.
	if !strings.Contains(dsn, "_pragma") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	return &DB{SQL: db, Driver: DriverSQLite}, nil
}

// Close closes the database connections gracefully.
func (db *DB) Close(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if db.SQL != nil {
		if err := db.SQL.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	if db.pool != nil {
		db.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func (db *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return db.SQL.PingContext(ctx)
}

// IsUniqueViolation reports whether err is the storage layer refusing a
// duplicate key, on either backend.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// modernc.org/sqlite reports SQLITE_CONSTRAINT_UNIQUE (2067) or
	// SQLITE_CONSTRAINT_PRIMARYKEY (1555) in the error text.
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE") ||
		strings.Contains(msg, "(2067)") || strings.Contains(msg, "(1555)")
}
