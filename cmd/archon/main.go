package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/archonhq/archon/cmd/archon/commands"
	"github.com/archonhq/archon/logger"
)

var rootCmd = &cobra.Command{
	Use:   "archon",
	Short: "Archon - prompt-chain execution engine",
	Long: `Archon runs linear prompt chains against an external model-streaming
service: variable substitution between steps, knowledge retrieval, durable
execution state, and three execution drivers.

Available commands:
  serve   - Start the HTTP server (interactive SSE + internal endpoint)
  worker  - Start the queue worker pool
  db      - Database operations (migrate, cleanup)
  token   - Mint session and internal tokens
  version - Show build information

Examples:
  archon serve                 # Start the HTTP server
  archon worker --workers 3    # Start 3 queue workers
  archon db migrate            # Apply pending migrations
  archon token session --user u-123`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if err := logger.Initialize(jsonOutput, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json", false, "Log as JSON instead of console output")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (default: ./archon.toml)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.WorkerCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.TokenCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
