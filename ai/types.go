// Package ai defines the contract between the chain engine and the external
// model-streaming service, plus the model registry used to resolve a step's
// provider. The streaming service itself lives outside this repository; the
// engine depends only on the interfaces here, and the remote subpackage
// consumes the service over HTTP.
package ai

import (
	"context"
	"sync"
)

// Role constants for chat messages
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents one turn in a chat conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage holds token accounting reported by the provider
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Completion is the final result of one streamed model call, delivered
// asynchronously via the request's OnComplete callback.
type Completion struct {
	Text         string
	Usage        Usage
	FinishReason string
}

// Tool is an opaque named tool handle injected into a streaming request.
// Tool construction happens outside this core; the engine only carries the map.
type Tool interface {
	Name() string
}

// StreamRequest is the provider-agnostic request handed to the streaming service
type StreamRequest struct {
	Messages       []Message
	ModelID        string
	Provider       string
	UserID         string
	SessionID      string
	ConversationID string // ties follow-up runs to one conversation memory
	SystemPrompt   string
	EnabledTools   []string
	Tools          map[string]Tool

	// OnComplete fires exactly once when the stream finishes
	OnComplete func(Completion)
}

// StreamChunk represents a chunk of streamed model response
type StreamChunk struct {
	Content string // token/chunk of text
	Done    bool   // true when stream is complete
	Error   error  // error if streaming failed
}

// StreamHandle exposes a live token stream to callers that pipe output
// through to a client. The channel is closed when the stream completes.
type StreamHandle struct {
	Chunks <-chan StreamChunk

	mu         sync.Mutex
	completion *Completion
	done       chan struct{}
}

// NewStreamHandle creates a handle around a chunk channel. The streaming
// service resolves the handle by calling Finish() when the stream ends.
func NewStreamHandle(chunks <-chan StreamChunk) *StreamHandle {
	return &StreamHandle{
		Chunks: chunks,
		done:   make(chan struct{}),
	}
}

// Finish records the final completion and unblocks Wait. Safe to call once.
func (h *StreamHandle) Finish(c Completion) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.completion != nil {
		return
	}
	h.completion = &c
	close(h.done)
}

// Done returns a channel closed when the stream has finished
func (h *StreamHandle) Done() <-chan struct{} {
	return h.done
}

// Drain discards live tokens in the background. Callers that await the
// completion without consuming Chunks must drain first: the producer sends
// every token into the channel before it can deliver the completion, so an
// unconsumed stream longer than the channel buffer never finishes.
func (h *StreamHandle) Drain() {
	if h.Chunks == nil {
		return
	}
	go func() {
		for range h.Chunks {
		}
	}()
}

// Wait blocks until the stream finishes or ctx is cancelled
func (h *StreamHandle) Wait(ctx context.Context) (Completion, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return *h.completion, nil
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	}
}

// StreamingService is the external model-invocation collaborator.
// Implementations accept a normalized request and return a live stream
// handle; the request's OnComplete callback fires once when finished.
type StreamingService interface {
	Stream(ctx context.Context, req StreamRequest) (*StreamHandle, error)
}
