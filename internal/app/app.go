// Package app assembles docent's long-lived components: configuration,
// database pool, Genkit runtime, knowledge and thread stores, and the
// answering graph. Setup wires them in dependency order; Close releases
// them. Entry points own the App for their whole lifetime.
package app

import (
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/graph"
	"github.com/docent-ai/docent/internal/knowledge"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/thread"
)

// App is the application container.
type App struct {
	Config    *config.Config
	Logger    log.Logger
	Pool      *pgxpool.Pool
	Genkit    *genkit.Genkit
	Knowledge *knowledge.Store
	Threads   *thread.Store
	Graph     *graph.Graph
	Flow      *graph.Flow

	tracerShutdown func()
}

// Close releases the database pool, then flushes pending trace spans.
// Safe on a partially initialized App.
func (a *App) Close() error {
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.tracerShutdown != nil {
		a.tracerShutdown()
	}
	return nil
}
