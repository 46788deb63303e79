package worker

import (
	"context"
	"database/sql"

	"github.com/archonhq/archon/errors"
)

// Store persists jobs in the stream_jobs table
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateJob(ctx context.Context, j *Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stream_jobs
			(id, handler_name, payload, source, status, result, error,
			 retry_count, created_at, started_at, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.HandlerName, string(j.Payload), j.Source, j.Status, j.Result,
		j.Error, j.RetryCount, j.CreatedAt, j.StartedAt, j.CompletedAt, j.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create job %s", j.ID)
	}
	return nil
}

func (s *Store) UpdateJob(ctx context.Context, j *Job) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE stream_jobs
		SET status = ?, result = ?, error = ?, retry_count = ?,
		    started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		j.Status, j.Result, j.Error, j.RetryCount,
		j.StartedAt, j.CompletedAt, j.UpdatedAt, j.ID,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to update job %s", j.ID)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("job not found: %s", j.ID)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, handler_name, COALESCE(payload, ''), source, status, result,
		       error, retry_count, created_at, started_at, completed_at, updated_at
		FROM stream_jobs WHERE id = ?`, id,
	)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("job not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get job %s", id)
	}
	return job, nil
}

// ListJobs returns jobs filtered by status, oldest first
func (s *Store) ListJobs(ctx context.Context, status *JobStatus, limit int) ([]*Job, error) {
	query := `
		SELECT id, handler_name, COALESCE(payload, ''), source, status, result,
		       error, retry_count, created_at, started_at, completed_at, updated_at
		FROM stream_jobs`
	args := []interface{}{}
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate jobs")
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*Job, error) {
	var j Job
	var payload string
	var startedAt, completedAt sql.NullTime
	err := row.Scan(&j.ID, &j.HandlerName, &payload, &j.Source, &j.Status,
		&j.Result, &j.Error, &j.RetryCount, &j.CreatedAt,
		&startedAt, &completedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if payload != "" {
		j.Payload = []byte(payload)
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return &j, nil
}
