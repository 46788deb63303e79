// Package remote consumes the external model-streaming service over HTTP.
// The service accepts the normalized request and answers with a server-sent
// event stream: token events while the model produces output, then a final
// done event carrying usage and finish reason.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/archonhq/archon/ai"
	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/internal/httpclient"
	"github.com/archonhq/archon/logger"
)

// Config holds the streaming service connection settings
type Config struct {
	Endpoint string        // base URL of the streaming service
	APIKey   string        // bearer token, empty = unauthenticated
	Timeout  time.Duration // whole-stream wall clock, 0 = default
}

// Client is an ai.StreamingService backed by a remote streaming endpoint
type Client struct {
	endpoint string
	apiKey   string
	http     *httpclient.SaferClient
	log      *zap.SugaredLogger
}

const (
	defaultTimeout     = 10 * time.Minute
	connectionAttempts = 3
)

func NewClient(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("streaming service endpoint not configured")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		http:     httpclient.NewSaferClient(timeout),
		log:      logger.Named("ai.remote"),
	}, nil
}

// streamRequest is the wire form of an ai.StreamRequest. Tool handles do not
// cross the wire; the service sees only the enabled tool names.
type streamRequest struct {
	Messages       []ai.Message `json:"messages"`
	ModelID        string       `json:"model_id"`
	Provider       string       `json:"provider"`
	UserID         string       `json:"user_id,omitempty"`
	SessionID      string       `json:"session_id,omitempty"`
	ConversationID string       `json:"conversation_id,omitempty"`
	SystemPrompt   string       `json:"system_prompt,omitempty"`
	EnabledTools   []string     `json:"enabled_tools,omitempty"`
}

// streamEvent is one SSE data payload from the service
type streamEvent struct {
	Type         string    `json:"type"` // "token", "done" or "error"
	Content      string    `json:"content,omitempty"`
	Usage        *ai.Usage `json:"usage,omitempty"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Stream opens the SSE connection and returns with the stream in flight.
// The request's OnComplete callback fires exactly once when the stream ends,
// even when the transport fails mid-stream. The caller must consume or Drain
// the handle's chunk channel; the completion is delivered behind the tokens.
func (c *Client) Stream(ctx context.Context, req ai.StreamRequest) (*ai.StreamHandle, error) {
	body, err := json.Marshal(streamRequest{
		Messages:       req.Messages,
		ModelID:        req.ModelID,
		Provider:       req.Provider,
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		SystemPrompt:   req.SystemPrompt,
		EnabledTools:   req.EnabledTools,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal stream request")
	}

	resp, err := c.connect(ctx, body)
	if err != nil {
		return nil, err
	}

	chunks := make(chan ai.StreamChunk, 32)
	handle := ai.NewStreamHandle(chunks)
	go c.consume(resp.Body, req, chunks, handle)
	return handle, nil
}

// connect posts the request, retrying transient network failures
func (c *Client) connect(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < connectionAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * time.Second
			c.log.Debugw("retrying streaming service connection", "attempt", attempt, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, errors.Wrap(ctx.Err(), "stream connect cancelled")
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.endpoint+"/v1/stream", bytes.NewReader(body))
		if err != nil {
			return nil, errors.Wrap(err, "failed to create stream request")
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			lastErr = err
			if isRetryableError(err) {
				continue
			}
			return nil, errors.Wrap(err, "streaming service request failed")
		}
		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, errors.Newf("streaming service returned status %d: %s",
				resp.StatusCode, strings.TrimSpace(string(detail)))
		}
		return resp, nil
	}
	return nil, errors.Wrapf(lastErr, "streaming service unreachable after %d attempts", connectionAttempts)
}

// consume reads SSE data lines until the done event or a transport failure.
// Either way the handle and the completion callback are settled before return.
func (c *Client) consume(body io.ReadCloser, req ai.StreamRequest, chunks chan<- ai.StreamChunk, handle *ai.StreamHandle) {
	defer body.Close()

	var text strings.Builder
	completion := ai.Completion{}

	settle := func() {
		completion.Text = text.String()
		close(chunks)
		if req.OnComplete != nil {
			req.OnComplete(completion)
		}
		handle.Finish(completion)
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue // skip malformed events
		}

		switch event.Type {
		case "token":
			if event.Content != "" {
				text.WriteString(event.Content)
				chunks <- ai.StreamChunk{Content: event.Content}
			}
		case "done":
			if event.Usage != nil {
				completion.Usage = *event.Usage
			}
			completion.FinishReason = event.FinishReason
			chunks <- ai.StreamChunk{Done: true}
			settle()
			return
		case "error":
			err := errors.Newf("streaming service error: %s", event.Error)
			c.log.Warnw("stream failed", "model_id", req.ModelID, "error", event.Error)
			chunks <- ai.StreamChunk{Error: err}
			completion.FinishReason = "error"
			settle()
			return
		}
	}

	// stream ended without a done event: transport failure or truncation
	if err := scanner.Err(); err != nil {
		c.log.Warnw("stream read failed", "model_id", req.ModelID, "error", err)
		chunks <- ai.StreamChunk{Error: errors.Wrap(err, "error reading stream")}
	}
	completion.FinishReason = "truncated"
	settle()
}

// SetHTTPClient overrides the HTTP client. Only for tests.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.http = httpclient.WrapClient(client)
}

// isRetryableError checks if an error is worth retrying (network-related)
func isRetryableError(err error) bool {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}

	if opErr, ok := err.(*net.OpError); ok {
		if errno, ok := opErr.Err.(syscall.Errno); ok {
			switch errno {
			case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
				return true
			}
		}
	}

	errStr := strings.ToLower(err.Error())
	networkErrors := []string{
		"connection reset by peer",
		"connection refused",
		"timeout",
		"temporary failure",
		"network is unreachable",
		"i/o timeout",
	}
	for _, netErr := range networkErrors {
		if strings.Contains(errStr, netErr) {
			return true
		}
	}
	return false
}
