// Package worker is the queue-polling execution driver. Jobs land in the
// stream_jobs table, a small worker pool polls for the oldest queued row, and
// a handler registry routes each job by name to chain execution, plain
// streaming, or image generation.
package worker

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/archonhq/archon/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Handler names routed by the registry
const (
	HandlerChainExecution = "chain.execute"
	HandlerStreaming      = "ai.stream"
	HandlerImage          = "ai.image"
)

// Job is one queued unit of work. Payload is handler-specific; the queue
// infrastructure never inspects it.
type Job struct {
	ID          string          `json:"id"`
	HandlerName string          `json:"handler_name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Source      string          `json:"source,omitempty"`
	Status      JobStatus       `json:"status"`
	Result      string          `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	RetryCount  int             `json:"retry_count,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewJob creates a queued job with a marshalled payload
func NewJob(handlerName string, payload interface{}, source string) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal job payload")
	}
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New().String(),
		HandlerName: handlerName,
		Payload:     data,
		Source:      source,
		Status:      JobStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start marks the job running
func (j *Job) Start() {
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// Complete marks the job completed with its result
func (j *Job) Complete(result string) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.Result = result
	j.Error = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Fail marks the job failed
func (j *Job) Fail(err error) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.Error = err.Error()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Requeue resets an orphaned job so it can run again
func (j *Job) Requeue() {
	j.Status = JobStatusQueued
	j.Error = ""
	j.StartedAt = nil
	j.UpdatedAt = time.Now().UTC()
}

// UnmarshalPayload decodes the job payload into a handler-specific struct
func (j *Job) UnmarshalPayload(target interface{}) error {
	if err := json.Unmarshal(j.Payload, target); err != nil {
		return errors.Wrapf(err, "failed to unmarshal payload for job %s", j.ID)
	}
	return nil
}
