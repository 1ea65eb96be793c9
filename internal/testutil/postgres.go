// Package testutil provides shared test infrastructure: a pgvector-enabled
// PostgreSQL container, deterministic model and embedder fakes, an SSE
// parser, and quiet loggers.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDBContainer wraps a PostgreSQL test container with a ready pool.
// The schema is migrated before it is handed to the test.
type TestDBContainer struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB starts a pgvector-enabled PostgreSQL container, applies the
// migrations under db/migrations, and returns a connected pool. The cleanup
// function closes the pool and terminates the container.
func SetupTestDB(t *testing.T) (*TestDBContainer, func()) {
	t.Helper()
	ctx := context.Background()

	opts := []testcontainers.ContainerCustomizer{
		postgres.WithDatabase("docent_test"),
		postgres.WithUsername("docent_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second)),
	}
	ctr, err := postgres.Run(ctx, "pgvector/pgvector:pg16", opts...)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	terminate := func() { _ = ctr.Terminate(context.Background()) }

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		t.Fatalf("reading container connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		terminate()
		t.Fatalf("creating connection pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		terminate()
		t.Fatalf("pinging test database: %v", err)
	}

	if err := applySchema(ctx, pool); err != nil {
		pool.Close()
		terminate()
		t.Fatalf("applying schema: %v", err)
	}

	db := &TestDBContainer{Container: ctr, Pool: pool, ConnStr: connStr}
	return db, func() {
		pool.Close()
		terminate()
	}
}

// moduleRoot walks up from this source file to the directory holding go.mod,
// so integration tests find the migrations no matter which package runs them.
func moduleRoot() (string, error) {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("runtime caller information unavailable")
	}
	for dir := filepath.Dir(file); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		if filepath.Dir(dir) == dir {
			return "", errors.New("no go.mod above " + file)
		}
	}
}

// applySchema executes every db/migrations/*.up.sql in name order, each in
// its own transaction. The app proper migrates through golang-migrate;
// tests just need the schema, not version bookkeeping.
func applySchema(ctx context.Context, pool *pgxpool.Pool) error {
	root, err := moduleRoot()
	if err != nil {
		return fmt.Errorf("locating module root: %w", err)
	}

	pattern := filepath.Join(root, "db", "migrations", "*.up.sql")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations match %s", pattern)
	}
	sort.Strings(files)

	for _, path := range files {
		ddl, err := os.ReadFile(path) // #nosec G304 -- paths come from the repo tree, not user input
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		if len(ddl) == 0 {
			continue
		}
		if err := execInTx(ctx, pool, string(ddl)); err != nil {
			return fmt.Errorf("applying %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

func execInTx(ctx context.Context, pool *pgxpool.Pool, sql string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("executing DDL: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}
