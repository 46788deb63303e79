package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	archontesting "github.com/archonhq/archon/internal/testing"
)

func TestJob_Lifecycle(t *testing.T) {
	job, err := NewJob(HandlerStreaming, map[string]string{"model_id": "gpt-4o"}, "test")
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.NotEmpty(t, job.ID)

	job.Start()
	assert.Equal(t, JobStatusRunning, job.Status)
	require.NotNil(t, job.StartedAt)

	job.Complete("output")
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, "output", job.Result)
	require.NotNil(t, job.CompletedAt)
}

func TestJob_Requeue(t *testing.T) {
	job, err := NewJob(HandlerStreaming, nil, "test")
	require.NoError(t, err)
	job.Start()
	job.Error = "stale"

	job.Requeue()
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Empty(t, job.Error)
	assert.Nil(t, job.StartedAt)
}

func TestQueue_DequeueOldestFirst(t *testing.T) {
	queue := NewQueue(NewStore(archontesting.CreateTestDB(t)))
	ctx := context.Background()

	first, err := NewJob(HandlerStreaming, nil, "a")
	require.NoError(t, err)
	first.CreatedAt = time.Now().UTC().Add(-time.Minute)
	require.NoError(t, queue.Enqueue(ctx, first))

	second, err := NewJob(HandlerStreaming, nil, "b")
	require.NoError(t, err)
	require.NoError(t, queue.Enqueue(ctx, second))

	claimed, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, JobStatusRunning, claimed.Status)

	// the claimed job is no longer visible to the next dequeue
	next, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, second.ID, next.ID)

	empty, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestStore_RoundTrip(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	ctx := context.Background()

	job, err := NewJob(HandlerChainExecution, ChainExecutionPayload{ArchitectID: "a", UserID: "u"}, "scheduler")
	require.NoError(t, err)
	require.NoError(t, store.CreateJob(ctx, job))

	job.Start()
	job.Complete(`{"execution_id":"e1"}`)
	require.NoError(t, store.UpdateJob(ctx, job))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, got.Status)
	assert.Equal(t, `{"execution_id":"e1"}`, got.Result)

	var payload ChainExecutionPayload
	require.NoError(t, got.UnmarshalPayload(&payload))
	assert.Equal(t, "a", payload.ArchitectID)
}

func TestStore_UpdateMissingJob(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))

	job, err := NewJob(HandlerStreaming, nil, "test")
	require.NoError(t, err)
	err = store.UpdateJob(context.Background(), job)
	assert.Error(t, err)
}
