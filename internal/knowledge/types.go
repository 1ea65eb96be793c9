// Package knowledge stores documentation chunks in PostgreSQL with pgvector
// and answers semantic search queries over them. The ingest pipeline writes
// chunks; the retrieval graph and the MCP tools read them.
package knowledge

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// VectorDimension is the embedding width stored in the documents table.
// gemini-embedding-001 output is truncated to this dimensionality; the
// vector column and its HNSW index are sized for it, so changing it needs
// a migration and a full re-ingest.
const VectorDimension int32 = 768

const (
	// EmbedTimeout bounds a single embedding call, including batches.
	EmbedTimeout = 60 * time.Second

	// embedBatchSize is how many chunks share one embedding request.
	embedBatchSize = 16

	// DefaultTopK is the result count when the caller does not set one.
	DefaultTopK = 6

	// MaxTopK caps the requested result count.
	MaxTopK = 20

	// MaxQueryLength truncates oversized search queries before embedding.
	MaxQueryLength = 8192

	// MaxChunkLength rejects chunks larger than the splitter should produce.
	MaxChunkLength = 32768
)

// ErrEmptyBatch indicates Add was called with no chunks.
var ErrEmptyBatch = errors.New("knowledge: no chunks to add")

// ErrEmbeddingFailed wraps embedder failures so callers can tell them from
// database errors without matching message text.
var ErrEmbeddingFailed = errors.New("knowledge: embedding failed")

// Chunk is one piece of a documentation page ready for indexing.
// ChunkIndex preserves the order of chunks within their page.
type Chunk struct {
	Source     string
	URL        string
	Title      string
	Content    string
	ChunkIndex int
}

// Document is one stored documentation chunk. Score is populated only by
// Search and holds cosine similarity in [0, 1].
type Document struct {
	ID         uuid.UUID
	Source     string
	URL        string
	Title      string
	Content    string
	ChunkIndex int
	Score      float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SourceCount summarizes one documentation source in the index.
type SourceCount struct {
	Source      string
	Chunks      int64
	LastUpdated time.Time
}

// SearchOption configures a Search call.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK   int
	source string
}

// WithTopK sets how many results to return. Non-positive values fall back
// to DefaultTopK; values over MaxTopK are capped.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		c.topK = k
	}
}

// WithSource restricts results to a single documentation source.
func WithSource(source string) SearchOption {
	return func(c *searchConfig) {
		c.source = source
	}
}

func resolveSearchOptions(opts []SearchOption) searchConfig {
	cfg := searchConfig{topK: DefaultTopK}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.topK < 1 {
		cfg.topK = DefaultTopK
	}
	cfg.topK = min(cfg.topK, MaxTopK)
	return cfg
}
