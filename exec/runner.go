package exec

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/archonhq/archon/ai"
	"github.com/archonhq/archon/chain"
	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/logger"
)

// ProgressEvent is a live progress notification pushed to the driver, in
// addition to the durable execution_events row.
type ProgressEvent struct {
	ExecutionID string `json:"execution_id"`
	Type        string `json:"type"`
	StepID      string `json:"step_id,omitempty"`
	StepName    string `json:"step_name,omitempty"`
	Position    int    `json:"position,omitempty"`
	Message     string `json:"message,omitempty"`
}

// Driver is the capability surface that distinguishes the three execution
// modes. The runner itself is shared; drivers choose the substitution
// strategy, timeout policy, and whether to stream or await.
type Driver interface {
	// Resolve is the template substitution strategy for this mode
	Resolve(template string, inputs map[string]interface{}, previousOutputs map[string]string, mapping map[string]string) (string, error)
	// StepTimeout bounds one step, 0 means no per-step bound
	StepTimeout(step *chain.Prompt) time.Duration
	// Await reports whether the caller waits for full completion (scheduled,
	// worker) instead of consuming the last step's live stream (interactive)
	Await() bool
	// Notify reports whether a post-completion notification fires
	Notify() bool
	// EmitProgress pushes a live progress event; implementations must not block
	EmitProgress(ev ProgressEvent)
}

// FlatVarResolver is an optional driver capability: a substitution pre-pass
// over the flat variable map, applied before the mapping-based resolution.
// The worker driver uses it for its simpler dual-brace grammar.
type FlatVarResolver interface {
	ResolveFlat(template string, vars map[string]string) string
}

// Notifier receives terminal execution notifications from the scheduled and
// worker drivers.
type Notifier interface {
	ExecutionFinished(ctx context.Context, exec *Execution, results []*StepResult)
}

// Plan is one requested chain run
type Plan struct {
	Chain          *chain.Chain
	Inputs         map[string]interface{}
	CallerID       string
	SessionID      string
	ConversationID string
}

// Outcome is the result of Runner.Run: a live stream for the interactive
// driver, or a completed summary for the awaiting drivers.
type Outcome interface {
	outcome()
}

// OutcomeStreaming hands the last step's live stream to the caller. The
// runner finalizes the execution in the background when the stream ends.
type OutcomeStreaming struct {
	Execution *Execution
	Handle    *ai.StreamHandle
	StepCount int
}

// OutcomeCompleted is a fully finished run
type OutcomeCompleted struct {
	Execution *Execution
	Results   []*StepResult
}

func (OutcomeStreaming) outcome() {}
func (OutcomeCompleted) outcome() {}

// Runner executes a loaded chain step by step. Steps run strictly
// sequentially; the first failure stops the chain and the execution passes
// through exactly one terminal transition.
type Runner struct {
	store    *Store
	executor *StepExecutor
	notifier Notifier
	maxTurns int
	log      *zap.SugaredLogger
}

func NewRunner(store *Store, executor *StepExecutor, notifier Notifier, maxTurns int) *Runner {
	return &Runner{
		store:    store,
		executor: executor,
		notifier: notifier,
		maxTurns: maxTurns,
		log:      logger.Named("exec.runner"),
	}
}

// Run executes the plan under the driver's capabilities
func (r *Runner) Run(ctx context.Context, plan Plan, drv Driver) (Outcome, error) {
	inputData, err := json.Marshal(plan.Inputs)
	if err != nil {
		return nil, errors.NewInvalidRequestError("inputs are not serializable: %v", err)
	}

	execution := &Execution{
		ArchitectID: plan.Chain.Architect.ID,
		UserID:      plan.CallerID,
		InputData:   string(inputData),
	}
	if err := r.store.CreateExecution(ctx, execution); err != nil {
		return nil, err
	}

	chainContext := NewChainContext(plan.Inputs, r.maxTurns)
	steps := plan.Chain.Prompts

	resolve := drv.Resolve
	if flat, ok := drv.(FlatVarResolver); ok {
		resolve = func(template string, inputs map[string]interface{}, previousOutputs map[string]string, mapping map[string]string) (string, error) {
			return drv.Resolve(flat.ResolveFlat(template, chainContext.Vars()), inputs, previousOutputs, mapping)
		}
	}

	for i, step := range steps {
		ordinal := i + 1
		last := i == len(steps)-1

		r.event(ctx, execution.ID, EventStepStarted, map[string]interface{}{
			"step_id":   step.ID,
			"step_name": step.Name,
			"position":  ordinal,
		})
		drv.EmitProgress(ProgressEvent{
			ExecutionID: execution.ID,
			Type:        EventStepStarted,
			StepID:      step.ID,
			StepName:    step.Name,
			Position:    ordinal,
		})

		run, err := r.executor.Run(ctx, stepParams{
			execution:      execution,
			step:           step,
			ordinal:        ordinal,
			chainContext:   chainContext,
			systemPrompt:   plan.Chain.Architect.SystemPrompt,
			callerID:       plan.CallerID,
			ownerID:        plan.Chain.Architect.UserID,
			sessionID:      plan.SessionID,
			conversationID: plan.ConversationID,
			resolve:        resolve,
		})
		if err != nil {
			return nil, r.fail(ctx, execution, step, ordinal, drv, err)
		}

		if last && !drv.Await() {
			go r.finalizeStreaming(context.WithoutCancel(ctx), execution, step, ordinal, run, drv)
			return OutcomeStreaming{Execution: execution, Handle: run.Handle, StepCount: len(steps)}, nil
		}

		// nobody consumes this step's tokens, discard them so the stream
		// can reach its completion
		run.Handle.Drain()
		result, err := run.Await(ctx, drv.StepTimeout(step))
		if err != nil {
			return nil, r.fail(ctx, execution, step, ordinal, drv, err)
		}
		drv.EmitProgress(ProgressEvent{
			ExecutionID: execution.ID,
			Type:        EventStepCompleted,
			StepID:      step.ID,
			StepName:    step.Name,
			Position:    ordinal,
			Message:     result.Status,
		})
	}

	return r.finalize(ctx, execution, drv)
}

// finalize marks the execution completed and fires the notifier for
// awaiting drivers.
func (r *Runner) finalize(ctx context.Context, execution *Execution, drv Driver) (Outcome, error) {
	if err := r.store.UpdateExecutionStatus(ctx, execution.ID, StatusCompleted, ""); err != nil {
		return nil, err
	}
	execution.Status = StatusCompleted
	r.event(ctx, execution.ID, EventExecutionCompleted, nil)
	drv.EmitProgress(ProgressEvent{ExecutionID: execution.ID, Type: EventExecutionCompleted})

	results, err := r.store.ListStepResults(ctx, execution.ID)
	if err != nil {
		return nil, err
	}
	if r.notifier != nil && drv.Notify() {
		r.notifier.ExecutionFinished(ctx, execution, results)
	}
	return OutcomeCompleted{Execution: execution, Results: results}, nil
}

// finalizeStreaming finishes the execution once the last step's callback has
// run. Completion is only observable asynchronously, so for the streaming
// driver this happens behind the returned handle.
func (r *Runner) finalizeStreaming(ctx context.Context, execution *Execution, step *chain.Prompt, ordinal int, run *StepRun, drv Driver) {
	if _, err := run.Await(ctx, 0); err != nil {
		r.failAsync(ctx, execution, step, ordinal, drv, err)
		return
	}
	if err := r.store.UpdateExecutionStatus(ctx, execution.ID, StatusCompleted, ""); err != nil {
		r.log.Errorw("failed to finalize streamed execution", "execution_id", execution.ID, "error", err)
		return
	}
	execution.Status = StatusCompleted
	r.event(ctx, execution.ID, EventExecutionCompleted, nil)
	drv.EmitProgress(ProgressEvent{ExecutionID: execution.ID, Type: EventExecutionCompleted})
}

// fail records the failed step and the terminal execution status, then
// returns the chain-level error naming the step.
func (r *Runner) fail(ctx context.Context, execution *Execution, step *chain.Prompt, ordinal int, drv Driver, cause error) error {
	r.failAsync(ctx, execution, step, ordinal, drv, cause)
	return errors.Wrapf(cause, "chain failed at step %d (%s)", ordinal, step.Name)
}

func (r *Runner) failAsync(ctx context.Context, execution *Execution, step *chain.Prompt, ordinal int, drv Driver, cause error) {
	// the terminal state must be recorded even when the failure is the
	// request context dying
	ctx = context.WithoutCancel(ctx)
	now := time.Now().UTC()
	failed := &StepResult{
		ExecutionID:  execution.ID,
		PromptID:     step.ID,
		Status:       StepFailed,
		ErrorMessage: cause.Error(),
		CompletedAt:  &now,
	}
	if err := r.store.UpsertStepResult(ctx, failed); err != nil {
		r.log.Errorw("failed to record failed step result",
			"execution_id", execution.ID, "step", step.Name, "error", err)
	}

	r.event(ctx, execution.ID, EventStepFailed, map[string]interface{}{
		"step_id":   step.ID,
		"step_name": step.Name,
		"position":  ordinal,
		"error":     cause.Error(),
	})
	r.event(ctx, execution.ID, EventExecutionFailed, map[string]interface{}{
		"error": cause.Error(),
	})
	drv.EmitProgress(ProgressEvent{
		ExecutionID: execution.ID,
		Type:        EventExecutionFailed,
		StepID:      step.ID,
		StepName:    step.Name,
		Position:    ordinal,
		Message:     cause.Error(),
	})

	if err := r.store.UpdateExecutionStatus(ctx, execution.ID, StatusFailed, cause.Error()); err != nil {
		r.log.Errorw("failed to mark execution failed", "execution_id", execution.ID, "error", err)
	}
	execution.Status = StatusFailed

	if r.notifier != nil && drv.Notify() {
		results, err := r.store.ListStepResults(ctx, execution.ID)
		if err != nil {
			r.log.Warnw("failed to load step results for notification", "execution_id", execution.ID, "error", err)
		}
		r.notifier.ExecutionFinished(ctx, execution, results)
	}
}

// event appends a durable progress event, logging and swallowing failures
func (r *Runner) event(ctx context.Context, executionID, eventType string, payload interface{}) {
	if err := r.store.AppendEvent(ctx, executionID, eventType, payload); err != nil {
		r.log.Warnw("failed to append execution event",
			"execution_id", executionID, "event_type", eventType, "error", err)
	}
}
