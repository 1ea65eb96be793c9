package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/docent-ai/docent/internal/api"
	"github.com/docent-ai/docent/internal/app"
	"github.com/docent-ai/docent/internal/config"
)

// drainTimeout bounds how long shutdown waits for in-flight requests.
const drainTimeout = 30 * time.Second

// runServe wires the application and serves the HTTP API until
// SIGINT/SIGTERM.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr, err := parseServeAddr(net.JoinHostPort(cfg.ServerHost, strconv.Itoa(cfg.ServerPort)))
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("docent serve starting", "version", Version)

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing application", "error", err)
		}
	}()

	apiServer, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Flow:        a.Flow,
		Threads:     a.Threads,
		Pool:        a.Pool,
		Version:     Version,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.TrustProxy,
		RateBurst:   cfg.RateLimitBurst,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	logger.Info("HTTP API listening",
		"addr", addr,
		"api", "/api/*",
		"health", "/api/health, /ready",
	)
	return serveUntilSignal(ctx, logger, newHTTPServer(addr, apiServer.Handler()))
}

// newHTTPServer applies docent's timeout policy. The write timeout must
// cover a full SSE answer stream; chat clients wait up to five minutes
// for one.
func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}

// serveUntilSignal runs srv until it fails or ctx is cancelled, then
// drains in-flight requests within drainTimeout.
func serveUntilSignal(ctx context.Context, logger *slog.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving HTTP: %w", err)
	case <-ctx.Done():
	}

	logger.Info("signal received, draining requests")
	drainCtx, done := context.WithTimeout(context.Background(), drainTimeout)
	defer done()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	<-errCh
	return nil
}
