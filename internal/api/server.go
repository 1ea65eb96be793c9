package api

import (
	"cmp"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docent-ai/docent/internal/graph"
	"github.com/docent-ai/docent/internal/thread"
)

// ServerConfig carries the dependencies NewServer wires into the routes.
type ServerConfig struct {
	Logger  *slog.Logger
	Flow    *graph.Flow   // Required: the answering pipeline entry point
	Threads *thread.Store // Optional: nil disables thread persistence
	Pool    *pgxpool.Pool // Optional: nil degrades /ready to 503

	Version     string   // Reported by /api/health; "dev" when empty
	CORSOrigins []string // Allowed origins for CORS
	TrustProxy  bool     // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst   int      // Rate limiter burst size per IP (0 = default 60)
}

// Server routes docent's HTTP API.
type Server struct {
	mux *http.ServeMux
}

// NewServer assembles the route table and middleware chain.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Flow == nil {
		return nil, errors.New("chat flow is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	version := cmp.Or(cfg.Version, "dev")

	mux := http.NewServeMux()

	ch := &chatHandler{flow: cfg.Flow, threads: cfg.Threads, logger: logger}
	mux.HandleFunc("POST /api/chat", ch.send)
	mux.HandleFunc("POST /api/chat/stream", ch.stream)

	// Thread routes exist only when a store is wired.
	if cfg.Threads != nil {
		th := &threadHandler{store: cfg.Threads, logger: logger}
		mux.HandleFunc("POST /api/threads", th.createThread)
		mux.HandleFunc("POST /api/threads/search", th.searchThreads)
		mux.HandleFunc("GET /api/threads/{id}", th.getThread)
		mux.HandleFunc("DELETE /api/threads/{id}", th.deleteThread)
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newIPLimiter(1.0, burst)

	// Listed outermost first. RequestID precedes Logging so request_id is
	// in the log attributes; CORS precedes RateLimit so preflight OPTIONS
	// carries CORS headers even when throttled.
	chain := []middleware{
		recoveryMiddleware(logger),
		requestIDMiddleware(),
		loggingMiddleware(logger),
		corsMiddleware(cfg.CORSOrigins),
		rateLimitMiddleware(rl, cfg.TrustProxy, logger),
	}
	var handler http.Handler = mux
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w)
		handler.ServeHTTP(w, r)
	})

	// Health probes sit outside the chain so they are never rate limited.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /api/health", health(version, logger))
	topMux.HandleFunc("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler exposes the assembled route table.
func (s *Server) Handler() http.Handler {
	return s.mux
}
