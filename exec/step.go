package exec

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/archonhq/archon/ai"
	"github.com/archonhq/archon/chain"
	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/knowledge"
	"github.com/archonhq/archon/logger"
)

// ResolveFunc is the substitution strategy a driver supplies for step
// templates. The checked variant errors on references to unexecuted steps;
// the interactive variant never does.
type ResolveFunc func(template string, inputs map[string]interface{}, previousOutputs map[string]string, mapping map[string]string) (string, error)

// ToolProvider builds tool handles for a step's repositories. Tool
// construction lives outside this engine; a nil provider means no tools.
type ToolProvider interface {
	BuildTools(ctx context.Context, repositoryIDs []int64, enabledTools []string) map[string]ai.Tool
}

// StepExecutor runs one step: retrieval, substitution, model dispatch, and
// the persistence that happens inside the completion callback.
type StepExecutor struct {
	store     *Store
	models    *ai.ModelStore
	streaming ai.StreamingService
	retriever knowledge.Retriever
	retrieval knowledge.Config
	tools     ToolProvider
	log       *zap.SugaredLogger
}

func NewStepExecutor(store *Store, models *ai.ModelStore, streaming ai.StreamingService, retriever knowledge.Retriever, retrieval knowledge.Config, tools ToolProvider) *StepExecutor {
	return &StepExecutor{
		store:     store,
		models:    models,
		streaming: streaming,
		retriever: retriever,
		retrieval: retrieval,
		tools:     tools,
		log:       logger.Named("exec.step"),
	}
}

// stepParams carries everything one step run needs from the runner
type stepParams struct {
	execution      *Execution
	step           *chain.Prompt
	ordinal        int // 1-based position within the run
	chainContext   *ChainContext
	systemPrompt   string // chain-level system prompt, may be empty
	callerID       string
	ownerID        string
	sessionID      string
	conversationID string
	resolve        ResolveFunc
}

type stepCompletion struct {
	result *StepResult
	err    error
}

// StepRun is a step in flight. Handle streams live tokens; Await blocks
// until the completion callback has persisted the result, racing an optional
// timeout.
type StepRun struct {
	Handle *ai.StreamHandle

	done    chan stepCompletion
	settled atomic.Bool
}

// Await blocks until the step's completion callback finishes, the timeout
// elapses (timeout > 0), or ctx is cancelled. On timeout or cancellation the
// step loses the settle race and its late callback is discarded.
func (sr *StepRun) Await(ctx context.Context, timeout time.Duration) (*StepResult, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	select {
	case c := <-sr.done:
		return c.result, c.err
	case <-timer:
		if sr.settled.CompareAndSwap(false, true) {
			return nil, errors.NewTimeoutError("step timed out after %s", timeout)
		}
		// callback won the race just now, take its outcome
		c := <-sr.done
		return c.result, c.err
	case <-ctx.Done():
		if sr.settled.CompareAndSwap(false, true) {
			return nil, errors.Wrap(ctx.Err(), "step cancelled")
		}
		c := <-sr.done
		return c.result, c.err
	}
}

// Run executes one step and returns with the model stream in flight. The
// completion callback writes the terminal StepResult, folds the output into
// the chain context, and appends the step_completed event.
func (e *StepExecutor) Run(ctx context.Context, p stepParams) (*StepRun, error) {
	step := p.step
	if step.ModelID == "" {
		return nil, errors.NewInvalidRequestError("step %q has no model configured", step.Name)
	}

	knowledgeBlock := e.retrieveContext(ctx, p)

	resolved, err := p.resolve(step.Content, p.chainContext.Inputs, p.chainContext.PreviousOutputs(), step.InputMapping)
	if err != nil {
		return nil, err
	}
	content := resolved + knowledgeBlock

	messages := append(p.chainContext.Messages(), ai.Message{Role: ai.RoleUser, Content: content})

	model, err := e.models.GetActiveByModelID(step.ModelID)
	if err != nil {
		return nil, err
	}

	systemPrompt := p.systemPrompt
	if step.SystemContext != "" {
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += step.SystemContext
	}

	var tools map[string]ai.Tool
	if e.tools != nil && len(step.RepositoryIDs) > 0 {
		tools = e.tools.BuildTools(ctx, step.RepositoryIDs, step.EnabledTools)
	}

	started := time.Now().UTC()
	inputSnapshot := e.snapshotInput(step.Content, resolved, knowledgeBlock != "")

	// running row first so redelivered or crashed runs leave a trace
	running := &StepResult{
		ExecutionID: p.execution.ID,
		PromptID:    step.ID,
		InputData:   inputSnapshot,
		Status:      StepRunning,
		StartedAt:   started,
	}
	if err := e.store.UpsertStepResult(ctx, running); err != nil {
		return nil, err
	}

	run := &StepRun{done: make(chan stepCompletion, 1)}

	// persistence in the callback must survive the request context
	callbackCtx := context.WithoutCancel(ctx)

	req := ai.StreamRequest{
		Messages:       messages,
		ModelID:        model.ModelID,
		Provider:       model.Provider,
		UserID:         p.callerID,
		SessionID:      p.sessionID,
		ConversationID: p.conversationID,
		SystemPrompt:   systemPrompt,
		EnabledTools:   step.EnabledTools,
		Tools:          tools,
		OnComplete: func(c ai.Completion) {
			if !run.settled.CompareAndSwap(false, true) {
				e.log.Debugw("discarding late step completion after timeout",
					"execution_id", p.execution.ID, "step", step.Name)
				return
			}
			run.done <- e.complete(callbackCtx, p, running, content, started, c)
		},
	}

	handle, err := e.streaming.Stream(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start stream for step %q", step.Name)
	}
	run.Handle = handle
	return run, nil
}

// complete runs inside the streaming callback: terminal StepResult write,
// context fold, turn append, step_completed event.
func (e *StepExecutor) complete(ctx context.Context, p stepParams, running *StepResult, userContent string, started time.Time, c ai.Completion) stepCompletion {
	now := time.Now().UTC()
	status := StepCompleted
	if c.Text == "" {
		status = StepCompletedWithWarning
		e.log.Warnw("step produced empty output",
			"execution_id", p.execution.ID, "step", p.step.Name)
	}

	result := &StepResult{
		ID:          running.ID,
		ExecutionID: p.execution.ID,
		PromptID:    p.step.ID,
		InputData:   running.InputData,
		OutputData:  c.Text,
		Status:      status,
		StartedAt:   started,
		CompletedAt: &now,
		DurationMs:  now.Sub(started).Milliseconds(),
	}
	if err := e.store.UpsertStepResult(ctx, result); err != nil {
		return stepCompletion{err: errors.Wrapf(err, "failed to record result for step %q", p.step.Name)}
	}

	p.chainContext.RecordOutput(p.step, p.ordinal, c.Text)
	p.chainContext.AppendTurn(userContent, c.Text)

	if err := e.store.AppendEvent(ctx, p.execution.ID, EventStepCompleted, map[string]interface{}{
		"step_id":       p.step.ID,
		"step_name":     p.step.Name,
		"position":      p.ordinal,
		"status":        status,
		"duration_ms":   result.DurationMs,
		"finish_reason": c.FinishReason,
		"total_tokens":  c.Usage.TotalTokens,
	}); err != nil {
		e.log.Warnw("failed to append step_completed event", "execution_id", p.execution.ID, "error", err)
	}

	return stepCompletion{result: result}
}

// retrieveContext fetches knowledge chunks for the step's repositories.
// Retrieval failure is degraded context, not a step failure.
func (e *StepExecutor) retrieveContext(ctx context.Context, p stepParams) string {
	if e.retriever == nil || len(p.step.RepositoryIDs) == 0 {
		return ""
	}
	query := knowledge.Query{
		Text:          p.step.Content,
		RepositoryIDs: p.step.RepositoryIDs,
		CallerID:      p.callerID,
		Config:        e.retrieval,
	}
	if p.ownerID != p.callerID {
		query.OwnerID = p.ownerID
	}
	chunks, err := e.retriever.Retrieve(ctx, query)
	if err != nil {
		e.log.Warnw("knowledge retrieval failed, continuing without context",
			"execution_id", p.execution.ID, "step", p.step.Name, "error", err)
		return ""
	}
	return knowledge.FormatContextBlock(chunks)
}

func (e *StepExecutor) snapshotInput(template, resolved string, hasKnowledge bool) string {
	snapshot, err := json.Marshal(map[string]interface{}{
		"template":          template,
		"resolved":          strings.TrimSpace(resolved),
		"knowledge_context": hasKnowledge,
	})
	if err != nil {
		return ""
	}
	return string(snapshot)
}
