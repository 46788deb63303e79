package chain

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/archonhq/archon/errors"
)

// Store persists architects and their prompt steps
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateArchitect inserts an architect, assigning an ID when none is set
func (s *Store) CreateArchitect(ctx context.Context, a *Architect) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO architects (id, user_id, name, system_prompt)
		VALUES (?, ?, ?, ?)`,
		a.ID, a.UserID, a.Name, a.SystemPrompt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create architect")
	}
	return nil
}

// GetArchitect fetches an architect by ID
func (s *Store) GetArchitect(ctx context.Context, id string) (*Architect, error) {
	var a Architect
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, COALESCE(system_prompt, ''), created_at, updated_at
		FROM architects WHERE id = ?`, id,
	).Scan(&a.ID, &a.UserID, &a.Name, &a.SystemPrompt, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("architect not found: %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get architect")
	}
	return &a, nil
}

// CreatePrompt inserts a prompt step, assigning an ID when none is set
func (s *Store) CreatePrompt(ctx context.Context, p *Prompt) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	repoIDs, err := marshalJSONColumn(p.RepositoryIDs)
	if err != nil {
		return err
	}
	tools, err := marshalJSONColumn(p.EnabledTools)
	if err != nil {
		return err
	}
	mapping, err := marshalJSONColumn(p.InputMapping)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO architect_prompts
			(id, architect_id, name, content, system_context, model_id, position,
			 repository_ids, enabled_tools, input_mapping, timeout_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ArchitectID, p.Name, p.Content, p.SystemContext, p.ModelID,
		p.Position, repoIDs, tools, mapping, p.TimeoutSeconds,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create prompt")
	}
	return nil
}

// ListPrompts returns an architect's prompt steps ordered by position.
// Ties on position keep insertion order via the rowid tiebreak; ids are
// random UUIDs and carry no ordering.
func (s *Store) ListPrompts(ctx context.Context, architectID string) ([]*Prompt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, architect_id, name, content, COALESCE(system_context, ''),
		       COALESCE(model_id, ''), position, COALESCE(repository_ids, ''),
		       COALESCE(enabled_tools, ''), COALESCE(input_mapping, ''),
		       COALESCE(timeout_seconds, 0), created_at
		FROM architect_prompts
		WHERE architect_id = ?
		ORDER BY position ASC, rowid ASC`, architectID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list prompts")
	}
	defer rows.Close()

	var prompts []*Prompt
	for rows.Next() {
		var p Prompt
		var repoIDs, tools, mapping string
		err := rows.Scan(&p.ID, &p.ArchitectID, &p.Name, &p.Content, &p.SystemContext,
			&p.ModelID, &p.Position, &repoIDs, &tools, &mapping,
			&p.TimeoutSeconds, &p.CreatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan prompt")
		}
		if err := unmarshalJSONColumn(repoIDs, &p.RepositoryIDs); err != nil {
			return nil, err
		}
		if err := unmarshalJSONColumn(tools, &p.EnabledTools); err != nil {
			return nil, err
		}
		if err := unmarshalJSONColumn(mapping, &p.InputMapping); err != nil {
			return nil, err
		}
		prompts = append(prompts, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate prompts")
	}
	return prompts, nil
}
