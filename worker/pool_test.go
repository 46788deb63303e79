package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archonhq/archon/errors"
	archontesting "github.com/archonhq/archon/internal/testing"
)

type recordingHandler struct {
	name string
	err  error

	mu       sync.Mutex
	executed []string
}

func (h *recordingHandler) Name() string { return h.name }

func (h *recordingHandler) Execute(_ context.Context, job *Job) error {
	h.mu.Lock()
	h.executed = append(h.executed, job.ID)
	h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	job.Complete("done")
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.executed)
}

func testPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:          1,
		PollInterval:     10 * time.Millisecond,
		MaxRecoveredJobs: 100,
		StopTimeout:      time.Second,
	}
}

func TestPool_ProcessesQueuedJob(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	queue := NewQueue(store)
	handler := &recordingHandler{name: "test.echo"}
	registry := NewHandlerRegistry()
	registry.Register(handler)

	job, err := NewJob("test.echo", map[string]string{"k": "v"}, "test")
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(context.Background(), job))

	pool := NewPool(context.Background(), queue, registry, testPoolConfig())
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := store.GetJob(context.Background(), job.ID)
		return err == nil && got.Status == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, handler.count())
}

func TestPool_HandlerErrorFailsJob(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	queue := NewQueue(store)
	registry := NewHandlerRegistry()
	registry.Register(&recordingHandler{name: "test.broken", err: errors.New("handler exploded")})

	job, err := NewJob("test.broken", nil, "test")
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(context.Background(), job))

	pool := NewPool(context.Background(), queue, registry, testPoolConfig())
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := store.GetJob(context.Background(), job.ID)
		return err == nil && got.Status == JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Contains(t, got.Error, "handler exploded")
}

func TestPool_UnregisteredHandlerFailsJob(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	queue := NewQueue(store)

	job, err := NewJob("nobody.home", nil, "test")
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(context.Background(), job))

	pool := NewPool(context.Background(), queue, NewHandlerRegistry(), testPoolConfig())
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := store.GetJob(context.Background(), job.ID)
		return err == nil && got.Status == JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPool_RecoversOrphanedJobs(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	queue := NewQueue(store)
	ctx := context.Background()

	// simulate a crash: job stuck in running with no worker
	orphan, err := NewJob("test.echo", nil, "test")
	require.NoError(t, err)
	orphan.Start()
	orphan.Error = "stale error"
	require.NoError(t, store.CreateJob(ctx, orphan))

	handler := &recordingHandler{name: "test.echo"}
	registry := NewHandlerRegistry()
	registry.Register(handler)

	pool := NewPool(ctx, queue, registry, testPoolConfig())
	pool.Start()
	defer pool.Stop()

	require.Eventually(t, func() bool {
		got, err := store.GetJob(ctx, orphan.ID)
		return err == nil && got.Status == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPool_RecoveryRespectsBound(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	queue := NewQueue(store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		orphan, err := NewJob("test.none", nil, "test")
		require.NoError(t, err)
		orphan.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		orphan.Start()
		require.NoError(t, store.CreateJob(ctx, orphan))
	}

	cfg := testPoolConfig()
	cfg.MaxRecoveredJobs = 2
	cfg.Workers = 0 // recovery only, no processing
	pool := NewPool(ctx, queue, NewHandlerRegistry(), cfg)
	require.NoError(t, pool.recoverOrphanedJobs())

	running := JobStatusRunning
	still, err := store.ListJobs(ctx, &running, 10)
	require.NoError(t, err)
	assert.Len(t, still, 1)

	queued := JobStatusQueued
	recovered, err := store.ListJobs(ctx, &queued, 10)
	require.NoError(t, err)
	assert.Len(t, recovered, 2)
}

func TestPool_StopIsGraceful(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	queue := NewQueue(store)
	registry := NewHandlerRegistry()
	registry.Register(&recordingHandler{name: "test.echo"})

	pool := NewPool(context.Background(), queue, registry, testPoolConfig())
	pool.Start()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool.Stop did not return")
	}
}
