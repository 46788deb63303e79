package exec_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archonhq/archon/exec"
	archontesting "github.com/archonhq/archon/internal/testing"
)

func TestStore_TerminalTransitionHappensOnce(t *testing.T) {
	store := exec.NewStore(archontesting.CreateTestDB(t))
	ctx := context.Background()

	execution := &exec.Execution{ArchitectID: "arch-1", UserID: "user-1"}
	require.NoError(t, store.CreateExecution(ctx, execution))

	require.NoError(t, store.UpdateExecutionStatus(ctx, execution.ID, exec.StatusFailed, "boom"))
	require.NoError(t, store.UpdateExecutionStatus(ctx, execution.ID, exec.StatusCompleted, ""))

	got, err := store.GetExecution(ctx, execution.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
}

func TestStore_UpsertStepResultIdempotent(t *testing.T) {
	store := exec.NewStore(archontesting.CreateTestDB(t))
	ctx := context.Background()

	execution := &exec.Execution{ArchitectID: "arch-1", UserID: "user-1"}
	require.NoError(t, store.CreateExecution(ctx, execution))

	running := &exec.StepResult{
		ExecutionID: execution.ID,
		PromptID:    "step-1",
		InputData:   `{"template":"t"}`,
		Status:      exec.StepRunning,
	}
	require.NoError(t, store.UpsertStepResult(ctx, running))

	now := time.Now().UTC()
	terminal := &exec.StepResult{
		ExecutionID: execution.ID,
		PromptID:    "step-1",
		OutputData:  "done",
		Status:      exec.StepCompleted,
		CompletedAt: &now,
		DurationMs:  120,
	}
	require.NoError(t, store.UpsertStepResult(ctx, terminal))

	results, err := store.ListStepResults(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, exec.StepCompleted, results[0].Status)
	assert.Equal(t, "done", results[0].OutputData)
	// the running row's input snapshot survives the terminal upsert
	assert.Equal(t, `{"template":"t"}`, results[0].InputData)
	assert.Equal(t, int64(120), results[0].DurationMs)
}

func TestStore_EventsAppendInOrder(t *testing.T) {
	store := exec.NewStore(archontesting.CreateTestDB(t))
	ctx := context.Background()

	execution := &exec.Execution{ArchitectID: "arch-1", UserID: "user-1"}
	require.NoError(t, store.CreateExecution(ctx, execution))

	require.NoError(t, store.AppendEvent(ctx, execution.ID, exec.EventStepStarted, map[string]interface{}{"position": 1}))
	require.NoError(t, store.AppendEvent(ctx, execution.ID, exec.EventStepCompleted, nil))
	require.NoError(t, store.AppendEvent(ctx, execution.ID, exec.EventExecutionCompleted, nil))

	events, err := store.ListEvents(ctx, execution.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, exec.EventStepStarted, events[0].Type)
	assert.Contains(t, events[0].Payload, `"position":1`)
	assert.Equal(t, exec.EventExecutionCompleted, events[2].Type)
}

func TestStore_CleanupOldExecutions(t *testing.T) {
	store := exec.NewStore(archontesting.CreateTestDB(t))
	ctx := context.Background()

	old := &exec.Execution{
		ArchitectID: "arch-1",
		UserID:      "user-1",
		StartedAt:   time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, store.CreateExecution(ctx, old))
	require.NoError(t, store.UpdateExecutionStatus(ctx, old.ID, exec.StatusCompleted, ""))

	active := &exec.Execution{ArchitectID: "arch-1", UserID: "user-1"}
	require.NoError(t, store.CreateExecution(ctx, active))

	removed, err := store.CleanupOldExecutions(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.GetExecution(ctx, old.ID)
	assert.Error(t, err)
	_, err = store.GetExecution(ctx, active.ID)
	assert.NoError(t, err)
}
