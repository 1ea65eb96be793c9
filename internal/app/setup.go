package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/docent-ai/docent/db"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/graph"
	"github.com/docent-ai/docent/internal/knowledge"
	"github.com/docent-ai/docent/internal/thread"
)

// Setup creates and initializes the application. Migrations run before the
// pool opens. On error, everything already initialized is released.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	if cfg == nil {
		return nil, config.ErrConfigNil
	}

	logger := slog.Default()
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	// Tracing must be registered before Genkit initializes so flows pick up
	// the span processor.
	a.tracerShutdown = provideTracerShutdown(ctx, cfg.Telemetry, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := provideEmbedder(g, cfg)
	if embedder == nil {
		return nil, fmt.Errorf("provider %q registered no embedder named %q", cfg.Provider, cfg.EmbedderModel)
	}

	store, err := knowledge.NewStore(pool, embedder, logger.With("component", "knowledge"))
	if err != nil {
		return nil, fmt.Errorf("creating knowledge store: %w", err)
	}
	a.Knowledge = store

	threads, err := thread.NewStore(pool, logger.With("component", "threads"))
	if err != nil {
		return nil, fmt.Errorf("creating thread store: %w", err)
	}
	a.Threads = threads

	gr, err := graph.New(graph.Config{
		Genkit:    g,
		Search:    store,
		Logger:    logger.With("component", "graph"),
		ModelName: cfg.DefaultModel(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating answering graph: %w", err)
	}
	a.Graph = gr
	a.Flow = graph.NewFlow(g, gr)

	return a, nil
}

// provideTracerShutdown registers an OTLP/HTTP span exporter with Genkit's
// tracer provider when telemetry is enabled. The returned function flushes
// pending spans; when telemetry is off it is a no-op.
func provideTracerShutdown(ctx context.Context, cfg config.TelemetryConfig, logger *slog.Logger) func() {
	if !cfg.Enabled {
		return func() {}
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4318"
	}

	// Genkit's TracerProvider reads service identity from OTEL env vars.
	// os.Setenv is not concurrent-safe, but Setup runs exactly once during
	// startup before any goroutines exist.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(), // local collector, no TLS
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	tp := tracing.TracerProvider()
	tp.RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
	logger.Debug("tracing enabled",
		"endpoint", endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(flushCtx); err != nil {
			logger.Warn("flushing tracer provider", "error", err)
		}
	}
}

// provideDBPool runs migrations, then opens and pings the connection pool.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns, poolCfg.MinConns = 10, 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured AI provider plugin.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	var g *genkit.Genkit

	switch cfg.Provider {
	case config.ProviderVertexAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.VertexAI{}))
	default: // googleai
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	}
	if g == nil {
		return nil, fmt.Errorf("initializing genkit with provider %q", cfg.Provider)
	}

	return g, nil
}

// provideEmbedder looks up the embedder registered by the provider plugin.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config) ai.Embedder {
	switch cfg.Provider {
	case config.ProviderVertexAI:
		return googlegenai.VertexAIEmbedder(g, cfg.EmbedderModel)
	default: // googleai
		return googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	}
}
