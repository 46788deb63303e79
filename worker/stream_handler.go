package worker

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/archonhq/archon/ai"
	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/logger"
)

// StreamingPayload is the queue message for a single model call outside any
// chain. PromptRef points at object storage when the prompt is too large for
// the queue.
type StreamingPayload struct {
	ModelID      string       `json:"model_id"`
	Prompt       string       `json:"prompt,omitempty"`
	PromptRef    string       `json:"prompt_ref,omitempty"`
	SystemPrompt string       `json:"system_prompt,omitempty"`
	Messages     []ai.Message `json:"messages,omitempty"`
	UserID       string       `json:"user_id,omitempty"`
}

// StreamingHandler runs one-off model calls to completion
type StreamingHandler struct {
	streaming ai.StreamingService
	models    *ai.ModelStore
	storage   ObjectStorage
	limiter   *rate.Limiter
	log       *zap.SugaredLogger
}

func NewStreamingHandler(streaming ai.StreamingService, models *ai.ModelStore, storage ObjectStorage, limiter *rate.Limiter) *StreamingHandler {
	return &StreamingHandler{
		streaming: streaming,
		models:    models,
		storage:   storage,
		limiter:   limiter,
		log:       logger.Named("worker.stream"),
	}
}

func (h *StreamingHandler) Name() string { return HandlerStreaming }

func (h *StreamingHandler) Execute(ctx context.Context, job *Job) error {
	var payload StreamingPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if payload.ModelID == "" {
		return errors.NewInvalidRequestError("streaming job %s has no model_id", job.ID)
	}

	if payload.PromptRef != "" {
		if h.storage == nil {
			return errors.Newf("job references stored prompt %s but no object storage is configured", payload.PromptRef)
		}
		data, err := h.storage.Fetch(ctx, payload.PromptRef)
		if err != nil {
			return errors.Wrap(err, "failed to rehydrate prompt")
		}
		payload.Prompt = string(data)
	}

	messages := payload.Messages
	if payload.Prompt != "" {
		messages = append(messages, ai.Message{Role: ai.RoleUser, Content: payload.Prompt})
	}
	if len(messages) == 0 {
		return errors.NewInvalidRequestError("streaming job %s has no prompt or messages", job.ID)
	}

	model, err := h.models.GetActiveByModelID(payload.ModelID)
	if err != nil {
		return err
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate gate cancelled")
		}
	}

	handle, err := h.streaming.Stream(ctx, ai.StreamRequest{
		Messages:     messages,
		ModelID:      model.ModelID,
		Provider:     model.Provider,
		UserID:       payload.UserID,
		SystemPrompt: payload.SystemPrompt,
	})
	if err != nil {
		return errors.Wrap(err, "failed to start stream")
	}

	handle.Drain()
	completion, err := handle.Wait(ctx)
	if err != nil {
		return errors.Wrap(err, "stream did not finish")
	}
	h.log.Debugw("streaming job finished",
		"job_id", job.ID, "finish_reason", completion.FinishReason, "tokens", completion.Usage.TotalTokens)
	job.Complete(completion.Text)
	return nil
}
