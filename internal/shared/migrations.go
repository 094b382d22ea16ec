package shared

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/pressly/goose/v3"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var migrationFiles embed.FS

func migrationDir(d Dialect) string {
	if d == DialectPostgres {
		return "sql/postgres"
	}
	return "sql/sqlite"
}

func prepareGoose(d Dialect, logger *log.Logger) error {
	goose.SetBaseFS(migrationFiles)
	if logger != nil {
		goose.SetLogger(logger)
	} else {
		goose.SetLogger(goose.NopLogger())
	}
	if err := goose.SetDialect(string(d)); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	return nil
}

// RunMigrations applies all pending embedded migrations for the dialect.
//
// Applied versions are tracked by goose in goose_db_version, so repeated calls are no-ops.
func RunMigrations(ctx context.Context, db *sql.DB, d Dialect, logger *log.Logger) error {
	if err := prepareGoose(d, logger); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, migrationDir(d)); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// RollbackMigration reverts the most recently applied migration.
func RollbackMigration(ctx context.Context, db *sql.DB, d Dialect, logger *log.Logger) error {
	if err := prepareGoose(d, logger); err != nil {
		return err
	}
	if err := goose.DownContext(ctx, db, migrationDir(d)); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	return nil
}

// MigrationVersion returns the current schema version.
func MigrationVersion(ctx context.Context, db *sql.DB, d Dialect) (int64, error) {
	if err := prepareGoose(d, nil); err != nil {
		return 0, err
	}
	v, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
