package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

// querier is the subset of pgx behavior the store needs. Both *pgxpool.Pool
// and pgx.Tx satisfy it, so statement helpers run inside or outside a
// transaction unchanged.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const documentCols = `id, source, url, title, content, chunk_index, created_at, updated_at`

const upsertDocumentSQL = `
INSERT INTO documents (source, url, title, content, content_hash, chunk_index, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (content_hash) DO UPDATE SET
    source      = EXCLUDED.source,
    url         = EXCLUDED.url,
    title       = EXCLUDED.title,
    chunk_index = EXCLUDED.chunk_index,
    embedding   = EXCLUDED.embedding,
    updated_at  = now()`

const searchSQL = `
SELECT ` + documentCols + `, 1 - (embedding <=> $1) AS score
FROM documents
ORDER BY embedding <=> $1
LIMIT $2`

const searchBySourceSQL = `
SELECT ` + documentCols + `, 1 - (embedding <=> $1) AS score
FROM documents
WHERE source = $2
ORDER BY embedding <=> $1
LIMIT $3`

const sourcesSQL = `
SELECT source, COUNT(*), MAX(updated_at)
FROM documents
GROUP BY source
ORDER BY source`

// Store persists documentation chunks and serves similarity search over
// them. It is safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore wires a store to its database pool and embedder.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("knowledge: pool is required")
	}
	if embedder == nil {
		return nil, errors.New("knowledge: embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}, nil
}

// Add embeds and upserts chunks, batching embedding calls. Chunks whose
// content is already indexed are refreshed in place, keyed by content hash,
// so re-ingesting a source is idempotent. Returns how many rows were
// written before any error.
func (s *Store) Add(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, ErrEmptyBatch
	}
	for i, c := range chunks {
		if err := validateChunk(c); err != nil {
			return 0, fmt.Errorf("chunk %d (%s): %w", i, c.URL, err)
		}
	}

	written := 0
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vecs, err := s.embedBatch(ctx, texts)
		if err != nil {
			return written, err
		}

		n, err := s.upsertBatch(ctx, batch, vecs)
		written += n
		if err != nil {
			return written, err
		}
	}

	s.logger.Debug("indexed chunks", "count", written, "source", chunks[0].Source)
	return written, nil
}

func (s *Store) upsertBatch(ctx context.Context, batch []Chunk, vecs []pgvector.Vector) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", "error", err)
		}
	}()

	for i, c := range batch {
		if err := upsertDocument(ctx, tx, c, vecs[i]); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(batch), nil
}

func upsertDocument(ctx context.Context, q querier, c Chunk, vec pgvector.Vector) error {
	_, err := q.Exec(ctx, upsertDocumentSQL,
		c.Source, c.URL, c.Title, c.Content, contentHash(c.Content), c.ChunkIndex, vec)
	if err != nil {
		return fmt.Errorf("upsert chunk %s#%d: %w", c.URL, c.ChunkIndex, err)
	}
	return nil
}

// Search returns the chunks most similar to query, best first. An empty or
// whitespace query returns an empty slice without touching the embedder.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Document{}, nil
	}
	if strings.ContainsRune(query, 0) {
		return nil, errors.New("knowledge: query contains NUL byte")
	}
	if len(query) > MaxQueryLength {
		query = query[:MaxQueryLength]
	}
	cfg := resolveSearchOptions(opts)

	vec, err := s.embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return findNearest(ctx, s.pool, vec, cfg)
}

func findNearest(ctx context.Context, q querier, vec pgvector.Vector, cfg searchConfig) ([]Document, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if cfg.source != "" {
		rows, err = q.Query(ctx, searchBySourceSQL, vec, cfg.source, cfg.topK)
	} else {
		rows, err = q.Query(ctx, searchSQL, vec, cfg.topK)
	}
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows, true)
}

// Sources reports every documentation source in the index with its chunk
// count and freshest update time.
func (s *Store) Sources(ctx context.Context) ([]SourceCount, error) {
	rows, err := s.pool.Query(ctx, sourcesSQL)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	counts := make([]SourceCount, 0)
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Chunks, &sc.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		counts = append(counts, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return counts, nil
}

// Count returns the total number of indexed chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// DeleteSource removes every chunk of one source, returning how many rows
// went away. The ingest pipeline calls it before a clean re-crawl.
func (s *Store) DeleteSource(ctx context.Context, source string) (int64, error) {
	if strings.TrimSpace(source) == "" {
		return 0, errors.New("knowledge: source is required")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE source = $1`, source)
	if err != nil {
		return 0, fmt.Errorf("delete source %q: %w", source, err)
	}
	s.logger.Debug("deleted source", "source", source, "rows", tag.RowsAffected())
	return tag.RowsAffected(), nil
}

func (s *Store) embed(ctx context.Context, text string) (pgvector.Vector, error) {
	vecs, err := s.embedBatch(ctx, []string{text})
	if err != nil {
		return pgvector.Vector{}, err
	}
	return vecs[0], nil
}

func (s *Store) embedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	ctx, cancel := context.WithTimeout(ctx, EmbedTimeout)
	defer cancel()

	docs := make([]*ai.Document, len(texts))
	for i, t := range texts {
		docs[i] = ai.DocumentFromText(t, nil)
	}

	dim := VectorDimension
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   docs,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrEmbeddingFailed, len(resp.Embeddings), len(texts))
	}

	vecs := make([]pgvector.Vector, len(texts))
	for i, e := range resp.Embeddings {
		if len(e.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrEmbeddingFailed, i)
		}
		vecs[i] = pgvector.NewVector(e.Embedding)
	}
	return vecs, nil
}

func scanDocuments(rows pgx.Rows, withScore bool) ([]Document, error) {
	docs := make([]Document, 0)
	for rows.Next() {
		var d Document
		dest := []any{&d.ID, &d.Source, &d.URL, &d.Title, &d.Content, &d.ChunkIndex, &d.CreatedAt, &d.UpdatedAt}
		if withScore {
			dest = append(dest, &d.Score)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func validateChunk(c Chunk) error {
	if strings.TrimSpace(c.Source) == "" {
		return errors.New("source is required")
	}
	if strings.TrimSpace(c.URL) == "" {
		return errors.New("url is required")
	}
	if strings.TrimSpace(c.Content) == "" {
		return errors.New("content is empty")
	}
	if len(c.Content) > MaxChunkLength {
		return fmt.Errorf("content is %d bytes, max %d", len(c.Content), MaxChunkLength)
	}
	if strings.ContainsRune(c.Content, 0) {
		return errors.New("content contains NUL byte")
	}
	if c.ChunkIndex < 0 {
		return errors.New("chunk index is negative")
	}
	return nil
}
