package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/archonhq/archon/chain"
	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/exec"
	"github.com/archonhq/archon/logger"
)

// ChainExecutionPayload is the queue message for one chain run. Large input
// bags travel as an object-storage key in InputsRef instead of inline JSON.
type ChainExecutionPayload struct {
	ArchitectID string                 `json:"architect_id"`
	UserID      string                 `json:"user_id"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	InputsRef   string                 `json:"inputs_ref,omitempty"`
	SessionID   string                 `json:"session_id,omitempty"`
}

// ChainHandler runs queued chain executions through the shared runner
type ChainHandler struct {
	loader         *chain.Loader
	runner         *exec.Runner
	storage        ObjectStorage // nil when no object store is configured
	limiter        *rate.Limiter
	defaultTimeout time.Duration
	log            *zap.SugaredLogger
}

func NewChainHandler(loader *chain.Loader, runner *exec.Runner, storage ObjectStorage, limiter *rate.Limiter, defaultTimeout time.Duration) *ChainHandler {
	return &ChainHandler{
		loader:         loader,
		runner:         runner,
		storage:        storage,
		limiter:        limiter,
		defaultTimeout: defaultTimeout,
		log:            logger.Named("worker.chain"),
	}
}

func (h *ChainHandler) Name() string { return HandlerChainExecution }

func (h *ChainHandler) Execute(ctx context.Context, job *Job) error {
	var payload ChainExecutionPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if payload.ArchitectID == "" || payload.UserID == "" {
		return errors.NewInvalidRequestError("chain job %s missing architect_id or user_id", job.ID)
	}

	inputs, err := h.rehydrateInputs(ctx, &payload)
	if err != nil {
		return err
	}

	loaded, err := h.loader.Load(ctx, payload.ArchitectID, payload.UserID)
	if err != nil {
		return err
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate gate cancelled")
		}
	}

	drv := &chainJobDriver{
		lenient:        chain.NewLenientResolver(h.log),
		defaultTimeout: h.defaultTimeout,
	}
	outcome, err := h.runner.Run(ctx, exec.Plan{
		Chain:     loaded,
		Inputs:    inputs,
		CallerID:  payload.UserID,
		SessionID: payload.SessionID,
	}, drv)
	if err != nil {
		// the execution record already carries the step-level detail
		return err
	}

	completed := outcome.(exec.OutcomeCompleted)
	result, err := json.Marshal(map[string]interface{}{
		"execution_id": completed.Execution.ID,
		"status":       completed.Execution.Status,
		"steps":        len(completed.Results),
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal job result")
	}
	job.Complete(string(result))
	return nil
}

// rehydrateInputs fetches the input bag from object storage when the
// payload carries a reference instead of inline inputs.
func (h *ChainHandler) rehydrateInputs(ctx context.Context, payload *ChainExecutionPayload) (map[string]interface{}, error) {
	if payload.InputsRef == "" {
		return payload.Inputs, nil
	}
	if h.storage == nil {
		return nil, errors.Newf("job references stored inputs %s but no object storage is configured", payload.InputsRef)
	}
	data, err := h.storage.Fetch(ctx, payload.InputsRef)
	if err != nil {
		return nil, errors.Wrap(err, "failed to rehydrate inputs")
	}
	var inputs map[string]interface{}
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, errors.Wrapf(err, "stored inputs %s are not a JSON object", payload.InputsRef)
	}
	h.log.Debugw("rehydrated inputs from object storage", "key", payload.InputsRef, "bytes", len(data))
	return inputs, nil
}

// chainJobDriver is the worker's runner capability set: the dual-brace
// pre-pass, checked strict resolution, per-step timeouts, notifications.
type chainJobDriver struct {
	lenient        *chain.LenientResolver
	defaultTimeout time.Duration
}

func (d *chainJobDriver) ResolveFlat(template string, vars map[string]string) string {
	return d.lenient.Resolve(template, vars)
}

func (d *chainJobDriver) Resolve(template string, inputs map[string]interface{}, previousOutputs map[string]string, mapping map[string]string) (string, error) {
	return chain.ResolveStrictChecked(template, inputs, previousOutputs, mapping)
}

func (d *chainJobDriver) StepTimeout(step *chain.Prompt) time.Duration {
	if t := step.Timeout(); t > 0 {
		return t
	}
	return d.defaultTimeout
}

func (d *chainJobDriver) Await() bool                     { return true }
func (d *chainJobDriver) Notify() bool                    { return true }
func (d *chainJobDriver) EmitProgress(exec.ProgressEvent) {}
