package worker

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/logger"
)

// PoolConfig sizes the worker pool
type PoolConfig struct {
	Workers          int
	PollInterval     time.Duration
	MaxRecoveredJobs int
	StopTimeout      time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:          1,
		PollInterval:     5 * time.Second,
		MaxRecoveredJobs: 100,
		StopTimeout:      30 * time.Second,
	}
}

// Pool polls the queue and runs jobs through the handler registry. Start
// first requeues jobs orphaned by a crash, bounded so a backlog of stale
// running rows cannot stampede the providers.
type Pool struct {
	queue    *Queue
	registry *HandlerRegistry
	cfg      PoolConfig

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    *zap.SugaredLogger
}

func NewPool(ctx context.Context, queue *Queue, registry *HandlerRegistry, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	poolCtx, cancel := context.WithCancel(ctx)
	return &Pool{
		queue:    queue,
		registry: registry,
		cfg:      cfg,
		ctx:      poolCtx,
		cancel:   cancel,
		log:      logger.Named("worker"),
	}
}

// Start recovers orphaned jobs and launches the workers
func (p *Pool) Start() {
	if err := p.recoverOrphanedJobs(); err != nil {
		p.log.Warnw("orphan recovery failed, starting workers anyway", "error", err)
	}
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Infow("worker pool started", "workers", p.cfg.Workers, "poll_interval", p.cfg.PollInterval)
}

// Stop cancels the workers and waits for in-flight jobs, up to StopTimeout
func (p *Pool) Stop() {
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.Infow("worker pool stopped")
	case <-time.After(p.cfg.StopTimeout):
		p.log.Warnw("worker pool stop timed out, jobs may still be finishing", "timeout", p.cfg.StopTimeout)
	}
}

// recoverOrphanedJobs requeues rows stuck in running from a previous crash.
// Recovery is bounded; anything beyond the limit stays running until an
// operator intervenes.
func (p *Pool) recoverOrphanedJobs() error {
	if p.cfg.MaxRecoveredJobs <= 0 {
		return nil
	}
	running := JobStatusRunning
	orphans, err := p.queue.store.ListJobs(p.ctx, &running, p.cfg.MaxRecoveredJobs)
	if err != nil {
		return errors.Wrap(err, "failed to list running jobs")
	}
	if len(orphans) == 0 {
		return nil
	}
	p.log.Infow("requeueing jobs orphaned by previous shutdown", "count", len(orphans))
	for _, job := range orphans {
		job.Requeue()
		if err := p.queue.Update(p.ctx, job); err != nil {
			p.log.Warnw("failed to requeue orphaned job", "job_id", job.ID, "error", err)
		}
	}
	return nil
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	consecutiveErrors := 0
	backoff := time.Second
	const maxConsecutiveErrors = 5
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			if err := p.processNext(); err != nil {
				select {
				case <-p.ctx.Done():
					return
				default:
				}
				if errors.Is(err, sql.ErrConnDone) {
					return
				}
				consecutiveErrors++
				p.log.Errorw("worker failed to process job",
					"worker_id", id, "error", err, "consecutive_errors", consecutiveErrors)
				if consecutiveErrors >= maxConsecutiveErrors {
					p.log.Warnw("worker backing off", "worker_id", id, "backoff", backoff)
					time.Sleep(backoff)
					backoff = min(backoff*2, maxBackoff)
				}
			} else {
				consecutiveErrors = 0
				backoff = time.Second
			}
		}
	}
}

// processNext claims and runs one job. A handler error fails the job but is
// not a worker error; only queue infrastructure failures propagate.
func (p *Pool) processNext() error {
	job, err := p.queue.Dequeue(p.ctx)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	log := p.log.With("job_id", job.ID, "handler", job.HandlerName)
	handler := p.registry.Get(job.HandlerName)
	if handler == nil {
		job.Fail(errors.Newf("no handler registered for %s", job.HandlerName))
		if err := p.queue.Update(p.ctx, job); err != nil {
			return err
		}
		log.Errorw("job routed to unregistered handler")
		return nil
	}

	log.Infow("job started")
	if err := handler.Execute(p.ctx, job); err != nil {
		job.Fail(err)
		log.Warnw("job failed", "error", err)
	} else if job.Status == JobStatusRunning {
		// handler finished without setting a terminal state
		job.Complete(job.Result)
	}
	if job.Status == JobStatusCompleted {
		log.Infow("job completed")
	}
	return p.queue.Update(p.ctx, job)
}
