package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/llahellec/de-spotify/internal/shared"
)

// SetupConfig writes the example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if shared.FileExists(path) {
		r.logger.Warn("config file already exists, leaving it untouched", "path", path)
		return nil
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	return r.writePlain("Wrote %s\nNext steps:\n"+
		"1. Fill in credentials.discogs (or set DISCOGS_CONSUMER_KEY / DISCOGS_CONSUMER_SECRET)\n"+
		"2. Optionally fill in credentials.spotify to resolve missing ISRCs\n"+
		"3. Run 'de-spotify lookup songstats --input <export.csv>'\n", path)
}

// SetupDatabase initializes the run ledger and runs migrations, or rolls back the latest one.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", cfg.Database.Path)

	if cmd.Bool("rollback") {
		db, err := shared.NewDatabase(cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer db.Close()

		if err := shared.RollbackMigration(db); err != nil {
			return err
		}
		r.logger.Info("rolled back latest migration", "path", cfg.Database.Path)
		return nil
	}

	db, err := r.openLedger(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", cfg.Database.Path)
	return nil
}
