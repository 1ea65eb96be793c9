package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/timeline"
)

// DefaultTimeout bounds non-streaming gateway calls. Research runs can take
// a while, so it is generous.
const DefaultTimeout = 120 * time.Second

// maxErrorBody caps how much of a failure response is read for logging.
// Error bodies are never interpreted beyond that.
const maxErrorBody = 4 << 10

// SSE event names, matching the server's chat stream.
const (
	eventChunk = "chunk"
	eventDone  = "done"
	eventError = "error"
)

type chunkPayload struct {
	Text string `json:"text"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// chatRequest is the body of both chat endpoints. ThreadID is optional; when
// set the server persists the exchange into that thread's stored values.
type chatRequest struct {
	Messages []timeline.RawMessage `json:"messages"`
	Model    string                `json:"model,omitempty"`
	ThreadID string                `json:"thread_id,omitempty"`
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// BaseURL is the backend root, e.g. "http://localhost:8080".
	BaseURL string

	// Timeout bounds non-streaming calls. Zero means DefaultTimeout.
	// Streaming calls are bounded only by their context.
	Timeout time.Duration

	// HTTPClient overrides the transport, mainly for tests. It must not
	// carry its own Timeout or streaming responses get cut off.
	HTTPClient *http.Client

	Logger log.Logger
}

// Gateway talks to the docent backend over HTTP. Every transport failure
// and non-2xx status surfaces as ErrBackendUnavailable; response bodies of
// failures are logged, never interpreted.
type Gateway struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
	logger  log.Logger
}

// NewGateway validates cfg and builds a Gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("gateway: base URL is required")
	}
	u, err := url.Parse(base)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("gateway: base URL %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	return &Gateway{
		baseURL: base,
		timeout: timeout,
		http:    httpClient,
		logger:  logger,
	}, nil
}

// SubmitChat runs one synchronous exchange and returns the answer text.
// The response is either {"answer": "..."} or a bare string; any other
// well-formed body is taken verbatim as the answer.
func (g *Gateway) SubmitChat(ctx context.Context, threadID string, messages []timeline.RawMessage, modelID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := g.post(ctx, "/api/chat", chatRequest{
		Messages: messages,
		Model:    modelID,
		ThreadID: threadID,
	})
	if err != nil {
		return "", fmt.Errorf("submit chat: %w", err)
	}

	var payload struct {
		Answer *string `json:"answer"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Answer != nil {
		return *payload.Answer, nil
	}
	var plain string
	if err := json.Unmarshal(body, &plain); err == nil {
		return plain, nil
	}
	return string(body), nil
}

// StreamChat starts a streaming exchange. Frames arrive on the returned
// stream's Events channel; exactly one terminal frame (done or failed) is
// delivered before the channel closes. Cancel aborts the request.
func (g *Gateway) StreamChat(ctx context.Context, threadID string, messages []timeline.RawMessage, modelID string) (*ChatStream, error) {
	payload, err := json.Marshal(chatRequest{
		Messages: messages,
		Model:    modelID,
		ThreadID: threadID,
	})
	if err != nil {
		return nil, fmt.Errorf("stream chat: encode request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat/stream", bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream chat: %w: %v", ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := g.http.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("stream chat: %w: %v", ErrBackendUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		g.logger.Debug("chat stream rejected",
			"status", resp.StatusCode,
			"body", string(snippet))
		return nil, fmt.Errorf("stream chat: %w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	events := make(chan StreamEvent, 16)
	go g.readStream(resp.Body, events)

	return &ChatStream{Events: events, Cancel: cancel}, nil
}

// readStream parses SSE frames off body until a terminal frame or transport
// failure, then closes the events channel. A missing terminal frame is
// reported as a backend failure so consumers always see exactly one.
func (g *Gateway) readStream(body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	var (
		event    string
		data     strings.Builder
		terminal bool
	)
	dispatch := func() bool {
		if event == "" && data.Len() == 0 {
			return false
		}
		done := g.dispatchFrame(event, data.String(), events)
		event = ""
		data.Reset()
		return done
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if dispatch() {
				terminal = true
			}
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		if terminal {
			return
		}
	}
	if dispatch() {
		return
	}

	err := scanner.Err()
	if err == nil {
		err = fmt.Errorf("stream ended without a final event")
	}
	events <- StreamEvent{
		Kind: StreamFailed,
		Err:  fmt.Errorf("chat stream: %w: %v", ErrBackendUnavailable, err),
	}
}

// dispatchFrame converts one SSE frame into a StreamEvent. It reports
// whether the frame was terminal.
func (g *Gateway) dispatchFrame(event, data string, events chan<- StreamEvent) bool {
	switch event {
	case eventChunk:
		var chunk chunkPayload
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			g.logger.Debug("skipping malformed chunk frame", "error", err)
			return false
		}
		events <- StreamEvent{Kind: StreamChunk, Text: chunk.Text}
		return false

	case eventDone:
		var result ChatResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			events <- StreamEvent{
				Kind: StreamFailed,
				Err:  fmt.Errorf("chat stream: %w: malformed final frame: %v", ErrBackendUnavailable, err),
			}
			return true
		}
		events <- StreamEvent{Kind: StreamDone, Result: result}
		return true

	case eventError:
		var fail errorPayload
		if err := json.Unmarshal([]byte(data), &fail); err != nil {
			fail.Message = data
		}
		events <- StreamEvent{
			Kind: StreamFailed,
			Err:  fmt.Errorf("chat stream: %w: %s", ErrBackendUnavailable, fail.Message),
		}
		return true

	default:
		g.logger.Debug("ignoring unknown stream event", "event", event)
		return false
	}
}

// FetchThread loads one stored thread by id.
func (g *Gateway) FetchThread(ctx context.Context, threadID string) (Thread, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var th Thread
	body, err := g.request(ctx, http.MethodGet, "/api/threads/"+url.PathEscape(threadID), nil)
	if err != nil {
		return Thread{}, fmt.Errorf("fetch thread: %w", err)
	}
	if err := json.Unmarshal(body, &th); err != nil {
		return Thread{}, fmt.Errorf("fetch thread: %w: %v", ErrBackendUnavailable, err)
	}
	return th, nil
}

// ListThreads returns the stored threads owned by userID, newest first.
func (g *Gateway) ListThreads(ctx context.Context, userID string) ([]Thread, error) {
	if userID == "" {
		return nil, fmt.Errorf("list threads: %w", ErrIdentityMissing)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := g.post(ctx, "/api/threads/search", map[string]string{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	var threads []Thread
	if err := json.Unmarshal(body, &threads); err != nil {
		return nil, fmt.Errorf("list threads: %w: %v", ErrBackendUnavailable, err)
	}
	return threads, nil
}

// CreateThread registers a new empty thread for userID.
func (g *Gateway) CreateThread(ctx context.Context, userID, name string) (Thread, error) {
	if userID == "" {
		return Thread{}, fmt.Errorf("create thread: %w", ErrIdentityMissing)
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := g.post(ctx, "/api/threads", map[string]string{
		"user_id": userID,
		"name":    name,
	})
	if err != nil {
		return Thread{}, fmt.Errorf("create thread: %w", err)
	}
	var th Thread
	if err := json.Unmarshal(body, &th); err != nil {
		return Thread{}, fmt.Errorf("create thread: %w: %v", ErrBackendUnavailable, err)
	}
	return th, nil
}

// DeleteThread removes a stored thread.
func (g *Gateway) DeleteThread(ctx context.Context, threadID string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if _, err := g.request(ctx, http.MethodDelete, "/api/threads/"+url.PathEscape(threadID), nil); err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	return nil
}

// post sends a JSON body and returns the raw success body.
func (g *Gateway) post(ctx context.Context, path string, in any) ([]byte, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return g.request(ctx, http.MethodPost, path, payload)
}

// request performs one HTTP call. Any transport error or non-2xx status is
// collapsed into ErrBackendUnavailable; failure bodies are logged only.
func (g *Gateway) request(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		g.logger.Debug("backend call failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", string(snippet))
		return nil, fmt.Errorf("%w: status %d", ErrBackendUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return body, nil
}
