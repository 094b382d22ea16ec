package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sethvargo/go-password/password"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vibewatch/internal/shared"
)

const placeholderSecret = `jwt_secret = "change-me"`

// Setup creates the config file when missing and migrates the local database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = "config.toml"
	}

	exists, err := afero.Exists(r.fs, path)
	if err != nil {
		return fmt.Errorf("failed to check config file: %w", err)
	}
	if !exists {
		r.logger.Info("config file not found, creating from template", "path", path)
		if err := r.createConfig(path); err != nil {
			return err
		}
		if err := r.loadConfig(path); err != nil {
			return err
		}
		r.writePlain("✓ Config written to %s\n", path)
	}

	if r.config.Backend.Hosted() {
		r.writePlain("Hosted backend selected: lists and accounts live in %s, nothing to migrate locally.\n", r.config.Backend.URL)
		return nil
	}

	db, dialect, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if cmd.Bool("rollback") {
		r.logger.Info("rolling back last migration")
		if err := shared.RollbackMigration(ctx, db, dialect, r.logger); err != nil {
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
	} else {
		r.logger.Info("running database migrations", "driver", dialect)
		if err := shared.RunMigrations(ctx, db, dialect, r.logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	version, err := shared.MigrationVersion(ctx, db, dialect)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Database ready (%s, schema version %d)\n", dialect, version)
}

// createConfig writes the template with a freshly generated signing secret.
func (r *Runner) createConfig(path string) error {
	if err := shared.CreateConfigFileFS(r.fs, path); err != nil {
		return err
	}

	secret, err := password.Generate(48, 10, 0, false, true)
	if err != nil {
		return fmt.Errorf("failed to generate secret: %w", err)
	}
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	data = bytes.Replace(data, []byte(placeholderSecret), fmt.Appendf(nil, "jwt_secret = %q", secret), 1)
	return afero.WriteFile(r.fs, path, data, 0600)
}
