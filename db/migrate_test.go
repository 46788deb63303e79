package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateCreatesSchema(t *testing.T) {
	db := openMemDB(t)

	require.NoError(t, Migrate(db, nil))

	for _, table := range []string{
		"schema_migrations", "architects", "architect_prompts", "ai_models",
		"tool_executions", "prompt_results", "execution_events", "stream_jobs",
	} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openMemDB(t)

	require.NoError(t, Migrate(db, nil))
	require.NoError(t, Migrate(db, nil))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 4, count)
}

func TestPromptResultsUniquePair(t *testing.T) {
	db := openMemDB(t)
	require.NoError(t, Migrate(db, nil))

	_, err := db.Exec(`INSERT INTO tool_executions (id, architect_id, user_id, started_at)
		VALUES ('e1', 'a1', 'u1', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO prompt_results (id, execution_id, prompt_id, started_at)
		VALUES ('r1', 'e1', 'p1', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO prompt_results (id, execution_id, prompt_id, started_at)
		VALUES ('r2', 'e1', 'p1', CURRENT_TIMESTAMP)`)
	assert.Error(t, err, "duplicate (execution_id, prompt_id) must be rejected")
}
