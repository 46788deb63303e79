package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/archonhq/archon/config"
	"github.com/archonhq/archon/db"
	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/logger"
)

// loadConfig reads the configuration, honoring the --config flag
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// openDatabase opens and migrates the database at the configured path
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	database, err := db.Open(cfg.Database.Path, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", cfg.Database.Path)
	}
	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", cfg.Database.Path)
	}
	return database, nil
}
