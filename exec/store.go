package exec

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archonhq/archon/errors"
	"github.com/archonhq/archon/logger"
)

// Store persists executions, step results, and progress events
type Store struct {
	db  *sql.DB
	log *zap.SugaredLogger
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, log: logger.Named("exec.store")}
}

// CreateExecution inserts the parent row for a run in status running
func (s *Store) CreateExecution(ctx context.Context, e *Execution) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	e.Status = StatusRunning
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_executions (id, architect_id, user_id, input_data, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ArchitectID, e.UserID, e.InputData, e.Status, e.StartedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create execution")
	}
	return nil
}

// UpdateExecutionStatus writes an execution's terminal status. The guard on
// status = 'running' makes the terminal transition happen at most once; a
// second caller finds zero rows and the first write stands.
func (s *Store) UpdateExecutionStatus(ctx context.Context, id, status, errMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tool_executions
		SET status = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status = 'running'`,
		status, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update execution status")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		s.log.Debugw("execution already finalized, keeping first terminal status",
			"execution_id", id, "attempted_status", status)
	}
	return nil
}

// UpsertStepResult inserts or updates the result row for (execution_id,
// prompt_id). Queue redelivery runs a step twice; the second run updates the
// same row instead of duplicating it.
func (s *Store) UpsertStepResult(ctx context.Context, r *StepResult) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prompt_results
			(id, execution_id, prompt_id, input_data, output_data, status,
			 error_message, started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (execution_id, prompt_id) DO UPDATE SET
			input_data = CASE WHEN excluded.input_data = ''
				THEN prompt_results.input_data ELSE excluded.input_data END,
			output_data = excluded.output_data,
			status = excluded.status,
			error_message = excluded.error_message,
			completed_at = excluded.completed_at,
			duration_ms = excluded.duration_ms`,
		r.ID, r.ExecutionID, r.PromptID, r.InputData, r.OutputData, r.Status,
		r.ErrorMessage, r.StartedAt, r.CompletedAt, r.DurationMs,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert step result")
	}
	return nil
}

// AppendEvent writes one progress event. Callers treat failures as
// best-effort: log and continue, never fail the step over a missing event.
func (s *Store) AppendEvent(ctx context.Context, executionID, eventType string, payload interface{}) error {
	var data string
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "failed to marshal event payload")
		}
		data = string(encoded)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_events (execution_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		executionID, eventType, data, time.Now().UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to append execution event")
	}
	return nil
}

// GetExecution fetches one execution by ID
func (s *Store) GetExecution(ctx context.Context, id string) (*Execution, error) {
	var e Execution
	var completedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, architect_id, user_id, COALESCE(input_data, ''), status,
		       COALESCE(error_message, ''), started_at, completed_at
		FROM tool_executions WHERE id = ?`, id,
	).Scan(&e.ID, &e.ArchitectID, &e.UserID, &e.InputData, &e.Status,
		&e.ErrorMessage, &e.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("execution not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get execution")
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	return &e, nil
}

// ListStepResults returns an execution's step results in write order
func (s *Store) ListStepResults(ctx context.Context, executionID string) ([]*StepResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, execution_id, prompt_id, COALESCE(input_data, ''),
		       COALESCE(output_data, ''), status, COALESCE(error_message, ''),
		       started_at, completed_at, COALESCE(duration_ms, 0)
		FROM prompt_results
		WHERE execution_id = ?
		ORDER BY started_at ASC, id ASC`, executionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list step results")
	}
	defer rows.Close()

	var results []*StepResult
	for rows.Next() {
		var r StepResult
		var completedAt sql.NullTime
		err := rows.Scan(&r.ID, &r.ExecutionID, &r.PromptID, &r.InputData,
			&r.OutputData, &r.Status, &r.ErrorMessage, &r.StartedAt,
			&completedAt, &r.DurationMs)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan step result")
		}
		if completedAt.Valid {
			r.CompletedAt = &completedAt.Time
		}
		results = append(results, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate step results")
	}
	return results, nil
}

// ListEvents returns an execution's progress events in append order
func (s *Store) ListEvents(ctx context.Context, executionID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, execution_id, event_type, COALESCE(payload, ''), created_at
		FROM execution_events
		WHERE execution_id = ?
		ORDER BY id ASC`, executionID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list execution events")
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.ExecutionID, &ev.Type, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan execution event")
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate execution events")
	}
	return events, nil
}

// CleanupOldExecutions deletes terminal executions older than the retention
// window, along with their step results (cascade) and events. Returns the
// number of executions removed.
func (s *Store) CleanupOldExecutions(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tool_executions
		WHERE status IN ('completed', 'failed') AND started_at < ?`, cutoff,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to clean up old executions")
	}
	n, _ := result.RowsAffected()

	_, err = s.db.ExecContext(ctx, `
		DELETE FROM execution_events
		WHERE execution_id NOT IN (SELECT id FROM tool_executions)`,
	)
	if err != nil {
		return n, errors.Wrap(err, "failed to clean up orphaned events")
	}
	return n, nil
}
