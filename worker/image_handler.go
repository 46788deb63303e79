package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/logger"
)

// ImageGenerator is the external image-model collaborator
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, modelID, size string) (data []byte, contentType string, err error)
}

// ImagePayload is the queue message for one image generation
type ImagePayload struct {
	Prompt  string `json:"prompt"`
	ModelID string `json:"model_id"`
	Size    string `json:"size,omitempty"`
	UserID  string `json:"user_id,omitempty"`
}

// ImageHandler generates an image and parks it in object storage; the job
// result carries the object key, never the bytes.
type ImageHandler struct {
	generator ImageGenerator
	storage   ObjectStorage
	limiter   *rate.Limiter
	log       *zap.SugaredLogger
}

func NewImageHandler(generator ImageGenerator, storage ObjectStorage, limiter *rate.Limiter) *ImageHandler {
	return &ImageHandler{
		generator: generator,
		storage:   storage,
		limiter:   limiter,
		log:       logger.Named("worker.image"),
	}
}

func (h *ImageHandler) Name() string { return HandlerImage }

func (h *ImageHandler) Execute(ctx context.Context, job *Job) error {
	var payload ImagePayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return err
	}
	if payload.Prompt == "" {
		return errors.NewInvalidRequestError("image job %s has no prompt", job.ID)
	}
	if h.storage == nil {
		return errors.New("image generation requires object storage")
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "rate gate cancelled")
		}
	}

	data, contentType, err := h.generator.Generate(ctx, payload.Prompt, payload.ModelID, payload.Size)
	if err != nil {
		return errors.Wrap(err, "image generation failed")
	}

	key := fmt.Sprintf("images/%s%s", job.ID, extensionFor(contentType))
	if _, err := h.storage.Put(ctx, key, data, contentType); err != nil {
		return errors.Wrap(err, "failed to store generated image")
	}

	result, err := json.Marshal(map[string]string{
		"object_key":   key,
		"content_type": contentType,
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal job result")
	}
	h.log.Infow("image stored", "job_id", job.ID, "key", key, "bytes", len(data))
	job.Complete(string(result))
	return nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
