package testutil

import "log/slog"

// DiscardLogger returns a logger that drops everything. Use it to keep
// test output quiet; components needing a *slog.Logger accept it directly.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
