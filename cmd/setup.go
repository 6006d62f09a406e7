package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/mangax/internal/shared"
	"github.com/desertthunder/mangax/internal/ui"
	"github.com/urfave/cli/v3"
)

// SetupDatabase writes config.toml when missing, then initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	configPath := r.configPath
	if configPath == "" {
		configPath = "config.toml"
	}

	config := r.config
	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			r.logger.Warn("failed to create config file, using defaults", "error", err)
		} else {
			r.logger.Info("config file created", "path", configPath)
			if config, err = shared.LoadConfig(configPath); err != nil {
				r.logger.Warn("failed to load created config, using defaults", "error", err)
				config = shared.DefaultConfig()
			}
			if db := cmd.String("db"); db != "" {
				config.Database.Path = db
			}
		}
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)

	r.writePlain("%s Setup complete\n", ui.Success("✓"))
	r.writePlainln("Next steps:")
	r.writePlain("1. Optionally set catalog.access_token in %s\n", configPath)
	r.writePlain("2. Run 'mangax match run --input export.csv' to match your reading list\n")
	return nil
}
