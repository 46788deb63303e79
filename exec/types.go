// Package exec is the chain execution engine: durable execution and step
// state, the per-run chain context, the step executor, and the shared runner
// that all three drivers (interactive, scheduled, worker) go through.
package exec

import (
	"time"
)

// Execution statuses. An execution passes through exactly one terminal
// transition: running -> completed or running -> failed.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Step result statuses. Empty model output is a degraded outcome, not a
// failure, so the chain continues past a completed_with_warning step.
const (
	StepRunning              = "running"
	StepCompleted            = "completed"
	StepCompletedWithWarning = "completed_with_warning"
	StepFailed               = "failed"
)

// Progress event types written to execution_events
const (
	EventStepStarted        = "step_started"
	EventStepCompleted      = "step_completed"
	EventStepFailed         = "step_failed"
	EventExecutionCompleted = "execution_completed"
	EventExecutionFailed    = "execution_failed"
)

// Execution is the parent row for one chain run
type Execution struct {
	ID           string     `json:"id"`
	ArchitectID  string     `json:"architect_id"`
	UserID       string     `json:"user_id"`
	InputData    string     `json:"input_data,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// StepResult is the durable record of one step within one execution.
// Rows are upserted keyed by (execution_id, prompt_id) so queue redelivery
// updates in place instead of duplicating history.
type StepResult struct {
	ID           string     `json:"id"`
	ExecutionID  string     `json:"execution_id"`
	PromptID     string     `json:"prompt_id"`
	InputData    string     `json:"input_data,omitempty"`
	OutputData   string     `json:"output_data,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DurationMs   int64      `json:"duration_ms,omitempty"`
}

// Event is one append-only progress record for an execution
type Event struct {
	ID          int64     `json:"id"`
	ExecutionID string    `json:"execution_id"`
	Type        string    `json:"type"`
	Payload     string    `json:"payload,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
