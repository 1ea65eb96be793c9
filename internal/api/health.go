package api

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
)

// health serves the liveness probe for Docker/Kubernetes. It reports the
// running version and never touches dependencies.
func health(version string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		}, logger)
	}
}

// readiness serves the readiness probe. It pings the database so load
// balancers stop routing before the pool is usable. A nil pool always
// reports 503.
func readiness(pool *pgxpool.Pool, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pool == nil {
			http.Error(w, "database pool not configured", http.StatusServiceUnavailable)
			return
		}
		if err := pool.Ping(r.Context()); err != nil {
			logger.Error("readiness check failed", "error", err)
			http.Error(w, "database not ready", http.StatusServiceUnavailable)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"}, logger)
	}
}
