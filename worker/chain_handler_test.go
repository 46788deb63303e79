package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archonhq/archon/ai"
	"github.com/archonhq/archon/chain"
	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/exec"
	archontesting "github.com/archonhq/archon/internal/testing"
	"github.com/archonhq/archon/knowledge"
)

type fakeStreaming struct {
	mu    sync.Mutex
	texts []string
	calls []ai.StreamRequest
}

func (f *fakeStreaming) Stream(_ context.Context, req ai.StreamRequest) (*ai.StreamHandle, error) {
	f.mu.Lock()
	text := f.texts[len(f.calls)]
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	// unbuffered and one rune per chunk, so a caller that fails to consume
	// or drain the stream deadlocks instead of passing
	chunks := make(chan ai.StreamChunk)
	handle := ai.NewStreamHandle(chunks)
	go func() {
		for _, r := range text {
			chunks <- ai.StreamChunk{Content: string(r)}
		}
		chunks <- ai.StreamChunk{Done: true}
		close(chunks)
		completion := ai.Completion{Text: text, FinishReason: "stop"}
		if req.OnComplete != nil {
			req.OnComplete(completion)
		}
		handle.Finish(completion)
	}()
	return handle, nil
}

type fakeStorage struct {
	objects map[string][]byte
	puts    map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}, puts: map[string][]byte{}}
}

func (f *fakeStorage) Fetch(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.NewNotFoundError("object not found: %s", key)
	}
	return data, nil
}

func (f *fakeStorage) Put(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.puts[key] = data
	return key, nil
}

type chainFixture struct {
	handler     *ChainHandler
	execStore   *exec.Store
	streaming   *fakeStreaming
	architectID string
}

// newChainFixture seeds a two-step chain whose second step chains the first
// step's output through the worker's dual-brace grammar.
func newChainFixture(t *testing.T, streaming *fakeStreaming, storage ObjectStorage) *chainFixture {
	t.Helper()
	conn := archontesting.CreateTestDB(t)
	ctx := context.Background()

	chainStore := chain.NewStore(conn)
	architect := &chain.Architect{UserID: "user-1", Name: "digest"}
	require.NoError(t, chainStore.CreateArchitect(ctx, architect))
	require.NoError(t, chainStore.CreatePrompt(ctx, &chain.Prompt{
		ArchitectID: architect.ID, Name: "summarize", Content: "Summarize: {{topic}}",
		ModelID: "gpt-4o", Position: 0,
	}))
	require.NoError(t, chainStore.CreatePrompt(ctx, &chain.Prompt{
		ArchitectID: architect.ID, Name: "expand", Content: "Expand: {prompt_1_output}",
		ModelID: "gpt-4o", Position: 1,
	}))
	require.NoError(t, ai.NewModelStore(conn).Create(&ai.Model{
		ID: "m1", Name: "GPT-4o", ModelID: "gpt-4o", Provider: "openai", Active: true,
	}))

	execStore := exec.NewStore(conn)
	executor := exec.NewStepExecutor(execStore, ai.NewModelStore(conn), streaming, nil, knowledge.DefaultConfig(), nil)
	runner := exec.NewRunner(execStore, executor, nil, 10)
	loader := chain.NewLoader(chainStore, 20)

	return &chainFixture{
		handler:     NewChainHandler(loader, runner, storage, NewRateGate(0), time.Minute),
		execStore:   execStore,
		streaming:   streaming,
		architectID: architect.ID,
	}
}

func TestChainHandler_RunsChainWithLenientSubstitution(t *testing.T) {
	streaming := &fakeStreaming{texts: []string{"a summary", "an essay"}}
	f := newChainFixture(t, streaming, nil)

	job, err := NewJob(HandlerChainExecution, ChainExecutionPayload{
		ArchitectID: f.architectID,
		UserID:      "user-1",
		Inputs:      map[string]interface{}{"topic": "cats"},
	}, "queue")
	require.NoError(t, err)

	require.NoError(t, f.handler.Execute(context.Background(), job))
	assert.Equal(t, JobStatusCompleted, job.Status)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(job.Result), &result))
	assert.Equal(t, "completed", result["status"])
	assert.Equal(t, float64(2), result["steps"])

	f.streaming.mu.Lock()
	defer f.streaming.mu.Unlock()
	require.Len(t, f.streaming.calls, 2)
	// single-brace variable resolved from the flat map
	assert.Equal(t, "Expand: a summary",
		f.streaming.calls[1].Messages[len(f.streaming.calls[1].Messages)-1].Content)
}

func TestChainHandler_RehydratesInputsFromStorage(t *testing.T) {
	streaming := &fakeStreaming{texts: []string{"a summary", "an essay"}}
	storage := newFakeStorage()
	storage.objects["jobs/big-inputs.json"] = []byte(`{"topic": "whales"}`)
	f := newChainFixture(t, streaming, storage)

	job, err := NewJob(HandlerChainExecution, ChainExecutionPayload{
		ArchitectID: f.architectID,
		UserID:      "user-1",
		InputsRef:   "jobs/big-inputs.json",
	}, "queue")
	require.NoError(t, err)

	require.NoError(t, f.handler.Execute(context.Background(), job))
	assert.Equal(t, JobStatusCompleted, job.Status)

	f.streaming.mu.Lock()
	defer f.streaming.mu.Unlock()
	assert.Equal(t, "Summarize: whales", f.streaming.calls[0].Messages[0].Content)
}

func TestChainHandler_MissingStorageForRefErrors(t *testing.T) {
	f := newChainFixture(t, &fakeStreaming{texts: []string{"x", "y"}}, nil)

	job, err := NewJob(HandlerChainExecution, ChainExecutionPayload{
		ArchitectID: f.architectID,
		UserID:      "user-1",
		InputsRef:   "jobs/somewhere.json",
	}, "queue")
	require.NoError(t, err)

	err = f.handler.Execute(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object storage")
}

func TestChainHandler_UnknownArchitectErrors(t *testing.T) {
	f := newChainFixture(t, &fakeStreaming{texts: []string{"x", "y"}}, nil)

	job, err := NewJob(HandlerChainExecution, ChainExecutionPayload{
		ArchitectID: "no-such-architect",
		UserID:      "user-1",
	}, "queue")
	require.NoError(t, err)

	err = f.handler.Execute(context.Background(), job)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStreamingHandler_RunsToCompletion(t *testing.T) {
	conn := archontesting.CreateTestDB(t)
	models := ai.NewModelStore(conn)
	require.NoError(t, models.Create(&ai.Model{
		ID: "m1", Name: "GPT-4o", ModelID: "gpt-4o", Provider: "openai", Active: true,
	}))

	streaming := &fakeStreaming{texts: []string{"plain answer"}}
	handler := NewStreamingHandler(streaming, models, nil, NewRateGate(0))

	job, err := NewJob(HandlerStreaming, StreamingPayload{
		ModelID: "gpt-4o",
		Prompt:  "say something",
	}, "queue")
	require.NoError(t, err)

	require.NoError(t, handler.Execute(context.Background(), job))
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, "plain answer", job.Result)
}

type fakeImageGenerator struct{}

func (fakeImageGenerator) Generate(_ context.Context, prompt, _, _ string) ([]byte, string, error) {
	return []byte("png-bytes-for-" + prompt), "image/png", nil
}

func TestImageHandler_StoresResultInObjectStorage(t *testing.T) {
	storage := newFakeStorage()
	handler := NewImageHandler(fakeImageGenerator{}, storage, NewRateGate(0))

	job, err := NewJob(HandlerImage, ImagePayload{Prompt: "a lighthouse", ModelID: "img-1"}, "queue")
	require.NoError(t, err)

	require.NoError(t, handler.Execute(context.Background(), job))
	assert.Equal(t, JobStatusCompleted, job.Status)

	var result map[string]string
	require.NoError(t, json.Unmarshal([]byte(job.Result), &result))
	key := result["object_key"]
	assert.Equal(t, fmt.Sprintf("images/%s.png", job.ID), key)
	assert.Equal(t, []byte("png-bytes-for-a lighthouse"), storage.puts[key])
}
