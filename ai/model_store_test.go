package ai

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archonhq/archon/errors"
	archontest "github.com/archonhq/archon/internal/testing"
)

func TestGetActiveByModelID(t *testing.T) {
	db := archontest.CreateTestDB(t)
	store := NewModelStore(db)

	require.NoError(t, store.Create(&Model{
		ID: "m1", Name: "GPT-4o", ModelID: "gpt-4o", Provider: "openai", Active: true,
	}))
	require.NoError(t, store.Create(&Model{
		ID: "m2", Name: "Old Claude", ModelID: "claude-2", Provider: "anthropic", Active: false,
	}))

	m, err := store.GetActiveByModelID("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Provider)
	assert.True(t, m.Active)
}

func TestGetActiveByModelIDNotFound(t *testing.T) {
	db := archontest.CreateTestDB(t)
	store := NewModelStore(db)

	_, err := store.GetActiveByModelID("nope")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))

	// Inactive models are treated the same as missing ones
	require.NoError(t, store.Create(&Model{
		ID: "m2", Name: "Old", ModelID: "claude-2", Provider: "anthropic", Active: false,
	}))
	_, err = store.GetActiveByModelID("claude-2")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestGetActiveByModelIDQueryError(t *testing.T) {
	// infrastructure failures must not masquerade as not-found
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, name, model_id").
		WithArgs("gpt-4o").
		WillReturnError(errors.New("disk I/O error"))

	store := NewModelStore(db)
	_, err = store.GetActiveByModelID("gpt-4o")
	require.Error(t, err)
	assert.False(t, errors.IsNotFoundError(err))
	assert.Contains(t, err.Error(), "failed to look up model")
	assert.NoError(t, mock.ExpectationsWereMet())
}
