package ai

import (
	"database/sql"

	"github.com/archonhq/archon/errors"
)

// Model is a row in the model registry mapping a model reference to its
// upstream provider.
type Model struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ModelID  string `json:"model_id"` // provider-facing identifier, e.g. "gpt-4o"
	Provider string `json:"provider"` // e.g. "openai", "anthropic", "amazon-bedrock"
	Active   bool   `json:"active"`
}

// ModelStore handles lookups against the ai_models table
type ModelStore struct {
	db *sql.DB
}

// NewModelStore creates a new model store
func NewModelStore(db *sql.DB) *ModelStore {
	return &ModelStore{db: db}
}

// GetActiveByModelID resolves an active model row by its provider-facing id.
// Returns ErrNotFound if no active row matches.
func (s *ModelStore) GetActiveByModelID(modelID string) (*Model, error) {
	query := `SELECT id, name, model_id, provider, active
		FROM ai_models
		WHERE model_id = ? AND active = 1`

	var m Model
	var active int
	err := s.db.QueryRow(query, modelID).Scan(&m.ID, &m.Name, &m.ModelID, &m.Provider, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("no active model for id %s", modelID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up model")
	}
	m.Active = active != 0

	return &m, nil
}

// Create inserts a model row. Used by setup and tests.
func (s *ModelStore) Create(m *Model) error {
	active := 0
	if m.Active {
		active = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO ai_models (id, name, model_id, provider, active) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.ModelID, m.Provider, active,
	)
	if err != nil {
		return errors.Wrap(err, "failed to create model")
	}
	return nil
}
