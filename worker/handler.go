package worker

import (
	"context"
	"fmt"
	"sync"
)

// JobHandler executes one job type. Handlers decode their own payloads; the
// pool routes by name and knows nothing about what a handler does.
type JobHandler interface {
	// Execute runs the job. Handlers must honor ctx cancellation so a
	// graceful shutdown does not strand half-finished work invisibly.
	Execute(ctx context.Context, job *Job) error

	// Name is the registry key jobs are routed by
	Name() string
}

// HandlerRegistry routes jobs to handlers by name
type HandlerRegistry struct {
	handlers map[string]JobHandler
	mu       sync.RWMutex
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]JobHandler)}
}

// Register adds a handler under its name. Duplicate registration is a
// programming error, so it panics.
func (r *HandlerRegistry) Register(handler JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler already registered: %s", name))
	}
	r.handlers[name] = handler
}

// Get returns the handler for a name, nil when unregistered
func (r *HandlerRegistry) Get(name string) JobHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}
