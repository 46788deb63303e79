package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/archonhq/archon/ai/remote"
	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/exec"
	"github.com/archonhq/archon/logger"
	"github.com/archonhq/archon/notify"
	"github.com/archonhq/archon/server"
)

// ServeCmd starts the Archon HTTP server
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Archon HTTP server",
	Long: `Start the HTTP server hosting the interactive SSE execution endpoint,
the internal endpoint for scheduled runs, and execution polling routes.

The server runs until interrupted (Ctrl+C) and drains in-flight requests
before exiting.`,
	RunE: runServe,
}

var serveRetentionDays int

func init() {
	ServeCmd.Flags().IntVar(&serveRetentionDays, "retention-days", 30,
		"Delete terminal executions older than this many days (0 = keep forever)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if cfg.AI.StreamingURL == "" {
		return errors.New("ai.streaming_url is not configured")
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	streaming, err := remote.NewClient(remote.Config{
		Endpoint: cfg.AI.StreamingURL,
		APIKey:   cfg.AI.APIKey,
		Timeout:  time.Duration(cfg.AI.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	var notifier exec.Notifier = notify.NewLogNotifier()
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL,
			time.Duration(cfg.Notify.TimeoutSeconds)*time.Second)
	}

	srv, err := server.New(cfg, database, server.Deps{
		Streaming: streaming,
		Notifier:  notifier,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if serveRetentionDays > 0 {
		go runCleanupLoop(ctx, exec.NewStore(database), serveRetentionDays)
	}

	pterm.Info.Printf("Archon listening on %s (db: %s)\n", cfg.Server.Addr, cfg.Database.Path)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server failed")
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Shutdown(shutdownCtx)
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return errors.Wrap(err, "shutdown failed")
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}

// runCleanupLoop deletes terminal executions past the retention window,
// once at startup and then every 12 hours.
func runCleanupLoop(ctx context.Context, store *exec.Store, retentionDays int) {
	log := logger.Named("cleanup")
	retention := time.Duration(retentionDays) * 24 * time.Hour

	ticker := time.NewTicker(12 * time.Hour)
	defer ticker.Stop()
	for {
		deleted, err := store.CleanupOldExecutions(ctx, retention)
		if err != nil {
			log.Warnw("execution cleanup failed", "error", err)
		} else if deleted > 0 {
			log.Infow("cleaned up old executions", "deleted", deleted, "retention_days", retentionDays)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
