// Package db embeds the schema migrations and applies them with
// golang-migrate. Every entry point that opens the database migrates first,
// so a fresh install needs no manual schema step.
package db

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx v5 driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies all pending migrations in order. golang-migrate tracks
// applied versions in the schema_migrations table, so reruns are no-ops.
// connURL must be a postgres:// or postgresql:// URL.
func Migrate(connURL string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("reading embedded migrations: %w", err)
	}

	target, err := migrateURL(connURL)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, target)
	if err != nil {
		return fmt.Errorf("opening database for migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			slog.Warn("closing migration source", "error", srcErr)
		}
		if dbErr != nil {
			slog.Warn("closing migration connection", "error", dbErr)
		}
	}()

	// A dirty version means an earlier run died mid-migration. Refuse to
	// touch the schema until an operator inspects it and forces the version.
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty, inspect the database and run: migrate force %d", version, version)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Debug("schema already up to date", "version", version)
			return nil
		}
		if v, nowDirty, verr := m.Version(); verr == nil && nowDirty {
			slog.Error("migration left the schema dirty",
				"version", v,
				"hint", fmt.Sprintf("fix the migration and run: migrate force %d", v))
		}
		return fmt.Errorf("applying migrations: %w", err)
	}

	if v, _, verr := m.Version(); verr == nil {
		slog.Info("migrations applied", "version", v)
	}
	return nil
}

// migrateURL rewrites the URL scheme to pgx5 so golang-migrate selects its
// pgx v5 driver.
func migrateURL(connURL string) (string, error) {
	u, err := url.Parse(connURL)
	if err != nil {
		return "", fmt.Errorf("parsing database URL: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		u.Scheme = "pgx5"
		return u.String(), nil
	default:
		return "", fmt.Errorf("database URL scheme %q is not postgres", u.Scheme)
	}
}
