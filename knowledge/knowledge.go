// Package knowledge defines the retrieval collaborator contract and the
// formatting of retrieved chunks into a prompt context block. Retrieval
// itself (vector search, ranking) lives outside this repository.
package knowledge

import (
	"context"
	"fmt"
	"strings"
)

// Search type constants
const (
	SearchTypeHybrid = "hybrid"
	SearchTypeVector = "vector"
)

// Chunk is one retrieved text fragment with its similarity score
type Chunk struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Config bounds a retrieval call
type Config struct {
	MaxChunks           int
	MaxTokens           int
	SimilarityThreshold float64
	SearchType          string
	VectorWeight        float64
}

// DefaultConfig returns the retrieval configuration used for chain steps:
// hybrid search with a vector-weight bias.
func DefaultConfig() Config {
	return Config{
		MaxChunks:           10,
		MaxTokens:           4000,
		SimilarityThreshold: 0.4,
		SearchType:          SearchTypeHybrid,
		VectorWeight:        0.7,
	}
}

// Query describes one retrieval request
type Query struct {
	Text          string
	RepositoryIDs []int64
	CallerID      string
	OwnerID       string // set when the chain owner differs from the caller
	Config        Config
}

// Retriever is the external knowledge-retrieval collaborator
type Retriever interface {
	Retrieve(ctx context.Context, q Query) ([]Chunk, error)
}

// FormatContextBlock renders retrieved chunks as a text block appended to a
// step's resolved prompt. Returns "" when there are no chunks.
func FormatContextBlock(chunks []Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\nRelevant context from knowledge base:\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "\n[%d] (relevance: %.2f)\n%s\n", i+1, chunk.Similarity, chunk.Content)
	}
	return b.String()
}
