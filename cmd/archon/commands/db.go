package commands

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/exec"
)

// DbCmd groups database operations
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database operations",
	Long: `Manage the Archon database.

Examples:
  archon db migrate              # Apply pending migrations
  archon db cleanup --days 30    # Delete terminal executions older than 30 days`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// DbMigrateCmd applies pending schema migrations
var DbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		pterm.Success.Printf("Database %s is up to date\n", cfg.Database.Path)
		return nil
	},
}

// DbCleanupCmd deletes old terminal executions and their events
var DbCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete terminal executions past the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			return errors.Newf("--days must be > 0, got %d", days)
		}

		cfg, err := loadConfig(cmd)
		if err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		store := exec.NewStore(database)
		deleted, err := store.CleanupOldExecutions(context.Background(),
			time.Duration(days)*24*time.Hour)
		if err != nil {
			return errors.Wrap(err, "cleanup failed")
		}
		pterm.Success.Printf("Deleted %d executions older than %d days\n", deleted, days)
		return nil
	},
}

func init() {
	DbCleanupCmd.Flags().Int("days", 30, "Retention window in days")
	DbCmd.AddCommand(DbMigrateCmd)
	DbCmd.AddCommand(DbCleanupCmd)
}
