package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/docent-ai/docent/internal/app"
	"github.com/docent-ai/docent/internal/config"
	"github.com/docent-ai/docent/internal/ingest"
)

// ingestArgs holds the parsed ingest command line.
type ingestArgs struct {
	sources []string
	wipe    bool
}

// parseIngestArgs parses the ingest flags and positional source names.
// Supports:
//   - docent ingest                     (all configured sources)
//   - docent ingest godot terrain3d     (named sources only)
//   - docent ingest --wipe godot        (replace existing chunks first)
func parseIngestArgs(args []string) (ingestArgs, error) {
	ingestFlags := flag.NewFlagSet("ingest", flag.ContinueOnError)
	ingestFlags.SetOutput(os.Stderr)

	wipe := ingestFlags.Bool("wipe", false, "Delete existing chunks for each source before writing")

	if err := ingestFlags.Parse(args); err != nil {
		return ingestArgs{}, fmt.Errorf("parsing ingest flags: %w", err)
	}

	return ingestArgs{sources: ingestFlags.Args(), wipe: *wipe}, nil
}

// runIngest crawls the configured documentation sites and writes their
// chunks into the knowledge store.
func runIngest() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	args := []string{}
	if len(os.Args) > 2 {
		args = os.Args[2:]
	}
	parsed, err := parseIngestArgs(args)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting ingestion", "version", Version)

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("closing application", "error", closeErr)
		}
	}()

	sources := make([]ingest.Source, 0, len(cfg.Ingest.Sources))
	for _, s := range cfg.Ingest.Sources {
		sources = append(sources, ingest.Source{Name: s.Name, SitemapURL: s.SitemapURL})
	}

	pipeline, err := ingest.New(ingest.Config{
		Store:        a.Knowledge,
		Sources:      sources,
		Parallelism:  cfg.Ingest.Parallelism,
		Delay:        cfg.Ingest.Delay(),
		Timeout:      cfg.Ingest.Timeout(),
		ChunkSize:    cfg.Ingest.ChunkSize,
		ChunkOverlap: cfg.Ingest.ChunkOverlap,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("creating ingest pipeline: %w", err)
	}

	results, err := pipeline.Run(ctx, ingest.Options{Sources: parsed.sources, Wipe: parsed.wipe})
	for _, r := range results {
		logger.Info("source ingested",
			"source", r.Source,
			"pages", r.Pages,
			"failed", r.Failed,
			"chunks", r.Chunks,
			"written", r.Written,
		)
	}
	if err != nil {
		return fmt.Errorf("ingesting documentation: %w", err)
	}

	return nil
}
