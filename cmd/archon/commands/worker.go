package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/archonhq/archon/ai"
	"github.com/archonhq/archon/ai/remote"
	"github.com/archonhq/archon/chain"
	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/exec"
	"github.com/archonhq/archon/knowledge"
	"github.com/archonhq/archon/notify"
	"github.com/archonhq/archon/worker"
)

// WorkerCmd starts the queue worker pool
var WorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the queue worker pool",
	Long: `Start the worker pool that polls the job queue and runs chain
executions, one-off model calls, and image generation jobs.

On start, jobs orphaned in the running state by a previous crash are
re-queued (bounded by worker.max_recovered_jobs). The pool runs until
interrupted (Ctrl+C) and finishes in-flight jobs before exiting.`,
	RunE: runWorker,
}

var workerCount int

func init() {
	WorkerCmd.Flags().IntVar(&workerCount, "workers", 0,
		"Number of concurrent workers (0 = use worker.workers from config)")
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	var storage worker.ObjectStorage
	if cfg.Storage.Endpoint != "" {
		storage, err = worker.NewMinioStorage(cfg.Storage)
		if err != nil {
			return err
		}
	}

	var notifier exec.Notifier = notify.NewLogNotifier()
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL,
			time.Duration(cfg.Notify.TimeoutSeconds)*time.Second)
	}

	// the worker shares the server's execution engine wiring
	chainStore := chain.NewStore(database)
	execStore := exec.NewStore(database)
	models := ai.NewModelStore(database)
	loader := chain.NewLoader(chainStore, cfg.Chain.MaxSteps)

	retrieval := knowledge.DefaultConfig()
	if cfg.Chain.RetrievalMaxChunks > 0 {
		retrieval.MaxChunks = cfg.Chain.RetrievalMaxChunks
		retrieval.MaxTokens = cfg.Chain.RetrievalMaxTokens
		retrieval.SimilarityThreshold = cfg.Chain.SimilarityFloor
		retrieval.VectorWeight = cfg.Chain.VectorWeight
	}
	executor := exec.NewStepExecutor(execStore, models, streaming, nil, retrieval, nil)
	runner := exec.NewRunner(execStore, executor, notifier, cfg.Chain.MaxContextTurns)

	limiter := worker.NewRateGate(cfg.Worker.RequestsPerMinute)
	defaultTimeout := time.Duration(cfg.Chain.DefaultStepTimeout) * time.Second

	registry := worker.NewHandlerRegistry()
	registry.Register(worker.NewChainHandler(loader, runner, storage, limiter, defaultTimeout))
	registry.Register(worker.NewStreamingHandler(streaming, models, storage, limiter))
	if storage != nil {
		// image jobs park their output in object storage
		registry.Register(worker.NewImageHandler(streaming, storage, limiter))
	}

	workers := cfg.Worker.Workers
	if workerCount > 0 {
		workers = workerCount
	}
	poolCfg := worker.PoolConfig{
		Workers:          workers,
		PollInterval:     time.Duration(cfg.Worker.PollIntervalSeconds) * time.Second,
		MaxRecoveredJobs: cfg.Worker.MaxRecoveredJobs,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := worker.NewPool(ctx, worker.NewQueue(worker.NewStore(database)), registry, poolCfg)
	pool.Start()

	pterm.Info.Printf("Worker pool started\n")
	pterm.Info.Printf("  Workers: %d\n", workers)
	pterm.Info.Printf("  Poll interval: %v\n", poolCfg.PollInterval)
	pterm.Info.Printf("  Database: %s\n", cfg.Database.Path)
	pterm.Info.Println("Press Ctrl+C for graceful shutdown")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	pterm.Info.Println("\nStopping worker pool...")
	pool.Stop()
	pterm.Success.Println("Worker pool stopped")
	return nil
}
