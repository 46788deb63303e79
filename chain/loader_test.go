package chain

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archonhq/archon/errors"
	archontesting "github.com/archonhq/archon/internal/testing"
)

func seedArchitect(t *testing.T, store *Store, userID string, steps int) *Architect {
	t.Helper()
	ctx := context.Background()

	architect := &Architect{UserID: userID, Name: "test chain"}
	require.NoError(t, store.CreateArchitect(ctx, architect))

	for i := 0; i < steps; i++ {
		require.NoError(t, store.CreatePrompt(ctx, &Prompt{
			ArchitectID: architect.ID,
			Name:        fmt.Sprintf("step %d", i+1),
			Content:     fmt.Sprintf("prompt %d: {{topic}}", i+1),
			ModelID:     "gpt-4o",
			Position:    i,
		}))
	}
	return architect
}

func TestLoader_Load(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	loader := NewLoader(store, 20)
	architect := seedArchitect(t, store, "user-1", 3)

	chain, err := loader.Load(context.Background(), architect.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, architect.ID, chain.Architect.ID)
	require.Len(t, chain.Prompts, 3)
	for i, p := range chain.Prompts {
		assert.Equal(t, i, p.Position)
	}
}

func TestLoader_NotFound(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	loader := NewLoader(store, 20)

	_, err := loader.Load(context.Background(), "no-such-id", "user-1")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLoader_ForbiddenForNonOwner(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	loader := NewLoader(store, 20)
	architect := seedArchitect(t, store, "user-1", 1)

	_, err := loader.Load(context.Background(), architect.ID, "user-2")
	assert.True(t, errors.IsForbiddenError(err))
}

func TestLoader_EmptyChainInvalid(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	loader := NewLoader(store, 20)
	architect := seedArchitect(t, store, "user-1", 0)

	_, err := loader.Load(context.Background(), architect.ID, "user-1")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestLoader_TooManyStepsInvalid(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	loader := NewLoader(store, 2)
	architect := seedArchitect(t, store, "user-1", 3)

	_, err := loader.Load(context.Background(), architect.ID, "user-1")
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestStore_ListPromptsPositionTieKeepsInsertionOrder(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	ctx := context.Background()
	architect := seedArchitect(t, store, "user-1", 0)

	// ids sort against insertion order here, only the rowid tiebreak keeps
	// the chain deterministic
	require.NoError(t, store.CreatePrompt(ctx, &Prompt{
		ID: "zz-inserted-first", ArchitectID: architect.ID,
		Name: "first", Content: "a", Position: 1,
	}))
	require.NoError(t, store.CreatePrompt(ctx, &Prompt{
		ID: "aa-inserted-second", ArchitectID: architect.ID,
		Name: "second", Content: "b", Position: 1,
	}))

	prompts, err := store.ListPrompts(ctx, architect.ID)
	require.NoError(t, err)
	require.Len(t, prompts, 2)
	assert.Equal(t, "first", prompts[0].Name)
	assert.Equal(t, "second", prompts[1].Name)
}

func TestStore_PromptJSONColumnsRoundTrip(t *testing.T) {
	store := NewStore(archontesting.CreateTestDB(t))
	ctx := context.Background()
	architect := seedArchitect(t, store, "user-1", 0)

	prompt := &Prompt{
		ArchitectID:    architect.ID,
		Name:           "configured step",
		Content:        "do the thing",
		ModelID:        "claude-sonnet",
		Position:       0,
		RepositoryIDs:  []int64{4, 7},
		EnabledTools:   []string{"web_search"},
		InputMapping:   map[string]string{"prior": "prompt_abc.output"},
		TimeoutSeconds: 90,
	}
	require.NoError(t, store.CreatePrompt(ctx, prompt))

	prompts, err := store.ListPrompts(ctx, architect.ID)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	got := prompts[0]
	assert.Equal(t, []int64{4, 7}, got.RepositoryIDs)
	assert.Equal(t, []string{"web_search"}, got.EnabledTools)
	assert.Equal(t, map[string]string{"prior": "prompt_abc.output"}, got.InputMapping)
	assert.Equal(t, 90, got.TimeoutSeconds)
}
