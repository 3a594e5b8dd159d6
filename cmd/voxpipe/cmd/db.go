package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voxpipe/voxpipe/internal/config"
	"github.com/voxpipe/voxpipe/internal/database"
	"github.com/voxpipe/voxpipe/internal/database/migrations"
)

// openDatabase connects to the configured database. An unreachable store
// maps to exit code 3.
func openDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*database.DB, error) {
	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return nil, &ExitError{Code: ExitStoreUnavailable, Err: fmt.Errorf("opening database: %w", err)}
	}
	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, &ExitError{Code: ExitStoreUnavailable, Err: fmt.Errorf("pinging database: %w", err)}
	}
	return db, nil
}

// newMigrator builds a migrator with all known migrations registered.
func newMigrator(db *database.DB, logger *slog.Logger) *migrations.Migrator {
	m := migrations.NewMigrator(db.DB, logger)
	m.RegisterAll(migrations.AllMigrations())
	return m
}

// migrateUp brings the schema up to date. A migration failure means the
// store cannot be used, so it also maps to exit code 3.
func migrateUp(ctx context.Context, db *database.DB, logger *slog.Logger) error {
	if err := newMigrator(db, logger).Up(ctx); err != nil {
		return &ExitError{Code: ExitStoreUnavailable, Err: fmt.Errorf("running migrations: %w", err)}
	}
	return nil
}
