package graph

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// RetryConfig configures retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int           // maximum retry attempts after the first call
	InitialInterval time.Duration // first backoff interval
	MaxInterval     time.Duration // backoff ceiling
}

// DefaultRetryConfig returns defaults suited to LLM provider APIs.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Transient failure markers, matched case-insensitively against
// err.Error(). String matching is the only option here: neither Genkit
// nor the provider SDKs expose typed errors for these failures.
var transientMarkers = []string{
	"rate limit", "quota exceeded", "429",
	"500", "502", "503", "504", "unavailable",
	"connection reset", "timeout", "temporary",
}

// retryableError reports whether err is transient and worth retrying.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return slices.ContainsFunc(transientMarkers, func(marker string) bool {
		return strings.Contains(msg, marker)
	})
}

// generate runs one model call with the configured model, rate limiting
// every attempt and retrying transient failures with exponential backoff.
//
// Streaming callers note: a retry after a mid-stream failure replays the
// stream from the start.
func (gr *Graph) generate(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	opts = append([]ai.GenerateOption{ai.WithModelName(gr.modelName)}, opts...)

	cfg := gr.retryConfig
	start := time.Now()
	delay := cfg.InitialInterval

	var lastErr error
	for attempt := range cfg.MaxRetries + 1 {
		if gr.rateLimiter != nil {
			if err := gr.rateLimiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, gr.g, opts...)
		switch {
		case err == nil:
			gr.logger.Debug("model call succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		case !retryableError(err):
			return nil, fmt.Errorf("generate: %w", err)
		}

		lastErr = err
		if attempt == cfg.MaxRetries {
			break
		}

		gr.logger.Debug("retrying model call",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, fmt.Errorf("context canceled during retry: %w", err)
		}
		delay = min(delay*2, cfg.MaxInterval)
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		cfg.MaxRetries, time.Since(start), lastErr)
}

// sleepCtx waits for d or until ctx is canceled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
