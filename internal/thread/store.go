// Package thread persists conversation threads server side. Each thread
// owns one JSONB snapshot (message log plus the latest run's router and
// documents) that clients decode and reconstruct into a timeline.
package thread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docent-ai/docent/internal/timeline"
)

// Sentinel errors, checked with errors.Is.
var (
	// ErrNotFound indicates the requested thread does not exist.
	ErrNotFound = errors.New("thread not found")

	// ErrUserRequired indicates an operation that needs a user id got none.
	ErrUserRequired = errors.New("thread: user id is required")

	// ErrNameTooLong indicates a thread name over MaxNameLength bytes.
	ErrNameTooLong = errors.New("thread: name too long")
)

const (
	// MaxNameLength bounds thread names.
	MaxNameLength = 256

	// DefaultSearchLimit applies when a search passes no usable limit.
	DefaultSearchLimit int32 = 20

	// MaxSearchLimit caps search results.
	MaxSearchLimit int32 = 100
)

// Thread is one stored conversation. Snapshot holds the raw JSONB value
// bag; it is nil until the first exchange is persisted.
type Thread struct {
	ID        uuid.UUID
	UserID    string
	Name      string
	Snapshot  []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

const threadCols = `id, user_id, name, snapshot, created_at, updated_at`

const createThreadSQL = `
INSERT INTO threads (user_id, name)
VALUES ($1, $2)
RETURNING ` + threadCols

const getThreadSQL = `
SELECT ` + threadCols + `
FROM threads
WHERE id = $1`

const searchThreadsSQL = `
SELECT ` + threadCols + `
FROM threads
WHERE user_id = $1
ORDER BY updated_at DESC
LIMIT $2`

const lockSnapshotSQL = `
SELECT snapshot
FROM threads
WHERE id = $1
FOR UPDATE`

const updateSnapshotSQL = `
UPDATE threads
SET snapshot = $2, updated_at = now()
WHERE id = $1
RETURNING ` + threadCols

// Store manages thread rows. It is safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore wires a store to its database pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("thread: pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Create inserts a thread for userID. The name may be empty.
func (s *Store) Create(ctx context.Context, userID, name string) (Thread, error) {
	if strings.TrimSpace(userID) == "" {
		return Thread{}, ErrUserRequired
	}
	name = strings.TrimSpace(name)
	if len(name) > MaxNameLength {
		return Thread{}, ErrNameTooLong
	}

	th, err := scanThread(s.pool.QueryRow(ctx, createThreadSQL, userID, name))
	if err != nil {
		return Thread{}, fmt.Errorf("create thread: %w", err)
	}

	s.logger.Debug("created thread", "id", th.ID, "user_id", userID)
	return th, nil
}

// Get returns one thread by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Thread, error) {
	th, err := scanThread(s.pool.QueryRow(ctx, getThreadSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Thread{}, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Thread{}, fmt.Errorf("get thread %s: %w", id, err)
	}
	return th, nil
}

// Search returns a user's threads, most recently updated first. A limit
// outside (0, MaxSearchLimit] is normalized.
func (s *Store) Search(ctx context.Context, userID string, limit int32) ([]Thread, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserRequired
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	rows, err := s.pool.Query(ctx, searchThreadsSQL, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("search threads: %w", err)
	}
	defer rows.Close()
	return scanThreads(rows)
}

// Delete removes a thread, or reports ErrNotFound.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM threads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete thread %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}

	s.logger.Debug("deleted thread", "id", id)
	return nil
}

// AppendExchange adds one human/assistant pair to a thread's snapshot and
// records the run's router decision and retrieved documents, replacing the
// previous run's. The row is locked for the duration so concurrent runs
// against the same thread serialize instead of losing messages.
//
// A non-empty stored snapshot that fails to decode aborts the append; the
// stored data is never overwritten blind.
func (s *Store) AppendExchange(ctx context.Context, id uuid.UUID, human, assistant timeline.RawMessage, router *timeline.Router, documents []timeline.Document) (Thread, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Thread{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", "error", err)
		}
	}()

	var stored []byte
	err = tx.QueryRow(ctx, lockSnapshotSQL, id).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return Thread{}, fmt.Errorf("thread %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Thread{}, fmt.Errorf("lock thread %s: %w", id, err)
	}

	snap := timeline.Snapshot{Messages: []timeline.RawMessage{}}
	if len(stored) > 0 {
		snap, err = timeline.DecodeSnapshot(stored)
		if err != nil {
			return Thread{}, fmt.Errorf("thread %s: %w", id, err)
		}
	}

	snap.Messages = append(snap.Messages, human, assistant)
	snap.Router = router
	snap.Documents = documents

	data, err := json.Marshal(snap)
	if err != nil {
		return Thread{}, fmt.Errorf("encode snapshot: %w", err)
	}

	th, err := scanThread(tx.QueryRow(ctx, updateSnapshotSQL, id, data))
	if err != nil {
		return Thread{}, fmt.Errorf("update thread %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Thread{}, fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("appended exchange", "id", id, "messages", len(snap.Messages))
	return th, nil
}

func scanThread(row pgx.Row) (Thread, error) {
	var t Thread
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Snapshot, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Thread{}, err
	}
	return t, nil
}

func scanThreads(rows pgx.Rows) ([]Thread, error) {
	threads := make([]Thread, 0)
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Snapshot, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		threads = append(threads, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return threads, nil
}
