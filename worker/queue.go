package worker

import (
	"context"
	"sync"

	"github.com/archonhq/archon/errors"
)

// Queue serializes job state transitions over the store. Dequeue is guarded
// by the mutex so two workers in one process never claim the same row.
type Queue struct {
	store *Store
	mu    sync.Mutex
}

func NewQueue(store *Store) *Queue {
	return &Queue{store: store}
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.store.CreateJob(ctx, job); err != nil {
		return errors.Wrap(err, "failed to enqueue job")
	}
	return nil
}

// Dequeue claims the oldest queued job and marks it running. Returns nil
// when the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	queued := JobStatusQueued
	jobs, err := q.store.ListJobs(ctx, &queued, 1)
	if err != nil {
		return nil, errors.Wrap(err, "failed to poll queued jobs")
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	job := jobs[0]
	job.Start()
	if err := q.store.UpdateJob(ctx, job); err != nil {
		return nil, errors.Wrap(err, "failed to mark job running")
	}
	return job, nil
}

// Update writes a job's current state
func (q *Queue) Update(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.UpdateJob(ctx, job)
}
