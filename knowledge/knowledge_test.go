package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatContextBlockEmpty(t *testing.T) {
	assert.Equal(t, "", FormatContextBlock(nil))
	assert.Equal(t, "", FormatContextBlock([]Chunk{}))
}

func TestFormatContextBlock(t *testing.T) {
	block := FormatContextBlock([]Chunk{
		{Content: "Cats are mammals.", Similarity: 0.91},
		{Content: "Cats sleep a lot.", Similarity: 0.72},
	})

	assert.Contains(t, block, "Relevant context from knowledge base")
	assert.Contains(t, block, "[1] (relevance: 0.91)")
	assert.Contains(t, block, "Cats are mammals.")
	assert.Contains(t, block, "[2] (relevance: 0.72)")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.MaxChunks)
	assert.Equal(t, 4000, cfg.MaxTokens)
	assert.InDelta(t, 0.4, cfg.SimilarityThreshold, 1e-9)
	assert.Equal(t, SearchTypeHybrid, cfg.SearchType)
	assert.InDelta(t, 0.7, cfg.VectorWeight, 1e-9)
}
