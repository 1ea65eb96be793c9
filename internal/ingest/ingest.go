package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gocolly/colly/v2"

	"github.com/docent-ai/docent/internal/knowledge"
)

const (
	defaultParallelism  = 2
	defaultDelay        = time.Second
	defaultTimeout      = 30 * time.Second
	defaultChunkSize    = 4000
	defaultChunkOverlap = 200

	defaultUserAgent = "docentbot/1.0 (+https://github.com/docent-ai/docent)"

	// shortChunkLimit drops splitter output too short to carry meaning.
	// Fragments at or under this length are separator debris.
	shortChunkLimit = 10
)

// Indexer is the slice of the knowledge store the pipeline writes to.
type Indexer interface {
	Add(ctx context.Context, chunks []knowledge.Chunk) (int, error)
	DeleteSource(ctx context.Context, source string) (int64, error)
}

// Source names one documentation site to crawl. Pages are discovered
// through the site's sitemap.
type Source struct {
	Name       string
	SitemapURL string
}

// Config assembles a Pipeline. Store and at least one source are
// required; zero values elsewhere pick up crawl-friendly defaults.
type Config struct {
	Store   Indexer
	Sources []Source

	// Parallelism is the number of concurrent fetches per host.
	Parallelism int
	// Delay is the politeness delay between requests to one host.
	Delay time.Duration
	// Timeout bounds a single page fetch.
	Timeout time.Duration

	// ChunkSize is the maximum chunk length in runes.
	ChunkSize int
	// ChunkOverlap is the number of runes adjacent chunks share.
	ChunkOverlap int

	Logger *slog.Logger
}

// Pipeline crawls documentation sources and indexes their content. It is
// safe for concurrent use, though runs are typically sequential.
type Pipeline struct {
	store       Indexer
	sources     []Source
	splitter    *Splitter
	parallelism int
	delay       time.Duration
	timeout     time.Duration
	userAgent   string
	logger      *slog.Logger
}

// New validates the configuration and builds a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Store == nil {
		return nil, errors.New("ingest: store is required")
	}
	if len(cfg.Sources) == 0 {
		return nil, errors.New("ingest: at least one source is required")
	}
	for _, src := range cfg.Sources {
		if strings.TrimSpace(src.Name) == "" {
			return nil, errors.New("ingest: source name cannot be empty")
		}
		u, err := url.Parse(src.SitemapURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("ingest: source %s has invalid sitemap url %q", src.Name, src.SitemapURL)
		}
	}

	if cfg.Parallelism <= 0 {
		cfg.Parallelism = defaultParallelism
	}
	if cfg.Delay <= 0 {
		cfg.Delay = defaultDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = defaultChunkOverlap
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	splitter, err := NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		store:       cfg.Store,
		sources:     cfg.Sources,
		splitter:    splitter,
		parallelism: cfg.Parallelism,
		delay:       cfg.Delay,
		timeout:     cfg.Timeout,
		userAgent:   defaultUserAgent,
		logger:      cfg.Logger,
	}, nil
}

// Options selects what one Run does.
type Options struct {
	// Sources restricts the run to the named sources. Empty runs all.
	Sources []string

	// Wipe deletes each source's existing chunks before re-indexing,
	// after that source's crawl has succeeded.
	Wipe bool
}

// SourceResult summarizes one source's crawl.
type SourceResult struct {
	Source  string
	Pages   int // pages fetched and parsed
	Failed  int // pages skipped: fetch errors, empty extractions
	Chunks  int // chunks the splitter produced
	Written int // chunks written to the store
}

// Run crawls and indexes the selected sources in order. On error it
// returns the results accumulated so far along with the failure; earlier
// sources stay indexed.
func (p *Pipeline) Run(ctx context.Context, opts Options) ([]SourceResult, error) {
	selected, err := p.selectSources(opts.Sources)
	if err != nil {
		return nil, err
	}

	results := make([]SourceResult, 0, len(selected))
	for _, src := range selected {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := p.ingestSource(ctx, src, opts.Wipe)
		results = append(results, res)
		if err != nil {
			return results, fmt.Errorf("source %s: %w", src.Name, err)
		}
	}
	return results, nil
}

func (p *Pipeline) selectSources(names []string) ([]Source, error) {
	if len(names) == 0 {
		return p.sources, nil
	}

	byName := make(map[string]Source, len(p.sources))
	for _, src := range p.sources {
		byName[src.Name] = src
	}

	selected := make([]Source, 0, len(names))
	for _, name := range names {
		src, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("ingest: unknown source %q", name)
		}
		selected = append(selected, src)
	}
	return selected, nil
}

func (p *Pipeline) ingestSource(ctx context.Context, src Source, wipe bool) (SourceResult, error) {
	res := SourceResult{Source: src.Name}

	p.logger.Info("crawling source", "source", src.Name, "sitemap", src.SitemapURL)

	locs, err := p.discoverPages(ctx, src.SitemapURL)
	if err != nil {
		return res, err
	}

	pages, failed, err := p.crawlPages(ctx, src, locs)
	if err != nil {
		return res, err
	}
	res.Pages = len(pages)
	res.Failed = failed

	chunks := p.chunkPages(src.Name, pages)
	res.Chunks = len(chunks)
	if len(chunks) == 0 {
		p.logger.Warn("source produced no chunks", "source", src.Name, "pages", res.Pages, "failed", res.Failed)
		return res, nil
	}

	if wipe {
		deleted, err := p.store.DeleteSource(ctx, src.Name)
		if err != nil {
			return res, fmt.Errorf("wipe: %w", err)
		}
		p.logger.Info("wiped source", "source", src.Name, "deleted", deleted)
	}

	written, err := p.store.Add(ctx, chunks)
	res.Written = written
	if err != nil {
		return res, fmt.Errorf("index: %w", err)
	}

	p.logger.Info("source indexed",
		"source", src.Name,
		"pages", res.Pages,
		"failed", res.Failed,
		"chunks", res.Chunks,
		"written", res.Written)
	return res, nil
}

// crawlPages fetches every listed page concurrently and extracts its
// text. Pages that fail to fetch or yield nothing are counted, not fatal.
func (p *Pipeline) crawlPages(ctx context.Context, src Source, locs []string) ([]page, int, error) {
	host, err := hostOf(src.SitemapURL)
	if err != nil {
		return nil, 0, err
	}

	c := colly.NewCollector(
		colly.UserAgent(p.userAgent),
		colly.Async(true),
		colly.AllowedDomains(host),
	)
	c.SetRequestTimeout(p.timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: p.parallelism,
		Delay:       p.delay,
	}); err != nil {
		return nil, 0, fmt.Errorf("crawl limits: %w", err)
	}

	var mu sync.Mutex
	var pages []page
	failed := 0

	c.OnRequest(func(r *colly.Request) {
		// Drop queued requests once the run is cancelled.
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		pg, err := extractPage(r.Body, r.Request.URL)

		mu.Lock()
		defer mu.Unlock()
		if err != nil || strings.TrimSpace(pg.Content) == "" {
			failed++
			p.logger.Debug("page yielded no content", "url", r.Request.URL, "error", err)
			return
		}
		pages = append(pages, pg)
	})
	c.OnError(func(r *colly.Response, err error) {
		mu.Lock()
		failed++
		mu.Unlock()
		p.logger.Warn("page fetch failed", "url", r.Request.URL, "status", r.StatusCode, "error", err)
	})

	for _, loc := range locs {
		if ctx.Err() != nil {
			break
		}
		if err := c.Visit(loc); err != nil {
			// Duplicate sitemap entries are expected; anything else
			// listed but unreachable counts as a failed page.
			var alreadyVisited *colly.AlreadyVisitedError
			if !errors.As(err, &alreadyVisited) {
				mu.Lock()
				failed++
				mu.Unlock()
				p.logger.Debug("skipping page", "url", loc, "error", err)
			}
		}
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	return pages, failed, nil
}

// chunkPages splits page text and shapes it for the store. ChunkIndex
// numbers surviving chunks per page, so stored order follows page order.
func (p *Pipeline) chunkPages(source string, pages []page) []knowledge.Chunk {
	var chunks []knowledge.Chunk
	for _, pg := range pages {
		idx := 0
		for _, piece := range p.splitter.Split(pg.Content) {
			if utf8.RuneCountInString(piece) <= shortChunkLimit {
				continue
			}
			chunks = append(chunks, knowledge.Chunk{
				Source:     source,
				URL:        pg.URL,
				Title:      pg.Title,
				Content:    piece,
				ChunkIndex: idx,
			})
			idx++
		}
	}
	return chunks
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	return u.Hostname(), nil
}
