// Package notify delivers post-completion notifications for the scheduled
// and worker drivers. Delivery is best-effort; a lost notification never
// affects the recorded execution.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/archonhq/archon/exec"
	"github.com/archonhq/archon/internal/httpclient"
	"github.com/archonhq/archon/logger"
)

// LogNotifier records terminal executions in the log only. Used when no
// webhook is configured.
type LogNotifier struct {
	log *zap.SugaredLogger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.Named("notify")}
}

func (n *LogNotifier) ExecutionFinished(_ context.Context, e *exec.Execution, results []*exec.StepResult) {
	n.log.Infow("execution finished",
		"execution_id", e.ID,
		"architect_id", e.ArchitectID,
		"status", e.Status,
		"steps", len(results),
	)
}

// WebhookNotifier posts a JSON summary of each finished execution to a
// configured URL. The outbound client refuses private and localhost targets.
type WebhookNotifier struct {
	url    string
	client *httpclient.SaferClient
	log    *zap.SugaredLogger
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: httpclient.NewSaferClient(timeout),
		log:    logger.Named("notify"),
	}
}

type webhookPayload struct {
	ExecutionID  string        `json:"execution_id"`
	ArchitectID  string        `json:"architect_id"`
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	StepCount    int           `json:"step_count"`
	Steps        []webhookStep `json:"steps"`
}

type webhookStep struct {
	PromptID   string `json:"prompt_id"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

func (n *WebhookNotifier) ExecutionFinished(ctx context.Context, e *exec.Execution, results []*exec.StepResult) {
	payload := webhookPayload{
		ExecutionID:  e.ID,
		ArchitectID:  e.ArchitectID,
		Status:       e.Status,
		ErrorMessage: e.ErrorMessage,
		StepCount:    len(results),
	}
	for _, r := range results {
		payload.Steps = append(payload.Steps, webhookStep{
			PromptID:   r.PromptID,
			Status:     r.Status,
			DurationMs: r.DurationMs,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Errorw("failed to marshal webhook payload", "execution_id", e.ID, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.log.Errorw("failed to build webhook request", "execution_id", e.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warnw("webhook delivery failed", "execution_id", e.ID, "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		n.log.Warnw("webhook rejected", "execution_id", e.ID, "status", resp.StatusCode)
		return
	}
	n.log.Debugw("webhook delivered", "execution_id", e.ID, "status", resp.StatusCode)
}
