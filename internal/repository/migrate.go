package repository

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies all pending migrations against db.
func Migrate(db *DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	var drv database.Driver
	switch db.Driver {
	case DriverSQLite:
		drv, err = migratesqlite.WithInstance(db.SQL, &migratesqlite.Config{})
	default:
		drv, err = migratepgx.WithInstance(db.SQL, &migratepgx.Config{})
	}
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, db.Driver, drv)
	if err != nil {
		return fmt.Errorf("migrate setup: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("database schema up to date")
			return nil
		}
		return err
	}
	logger.Info("database migrations applied")
	return nil
}
