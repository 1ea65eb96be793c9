package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/docent-ai/docent/internal/testutil"
)

func TestNewServer_MissingFlow(t *testing.T) {
	_, err := NewServer(ServerConfig{Logger: testutil.DiscardLogger()})
	if err == nil {
		t.Fatal("NewServer(nil flow) expected error, got nil")
	}
}

func TestHealthEndpoint(t *testing.T) {
	mock := testutil.NewMockLLM("fallback")
	ts := newChatServer(t, mock, fixedSearcher{}, func(cfg *ServerConfig) {
		cfg.Version = "1.2.3"
	})

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
	if body["version"] != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", body["version"])
	}
}

func TestReadyEndpoint_NoPool(t *testing.T) {
	mock := testutil.NewMockLLM("fallback")
	ts := newChatServer(t, mock, fixedSearcher{}, nil)

	resp, err := http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("GET /ready: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d without a pool", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestRouteRegistration(t *testing.T) {
	mock := testutil.NewMockLLM("fallback")
	ts := newChatServer(t, mock, fixedSearcher{}, nil)

	tests := []struct {
		method string
		path   string
		want   int // 0 means any non-404 status (route must exist)
	}{
		{http.MethodGet, "/api/health", http.StatusOK},
		{http.MethodGet, "/nonexistent", http.StatusNotFound},
		{http.MethodPost, "/api/chat", 0},
		{http.MethodPost, "/api/chat/stream", 0},
		// No thread store configured, so thread routes must not exist.
		{http.MethodPost, "/api/threads", http.StatusNotFound},
		{http.MethodPost, "/api/threads/search", http.StatusNotFound},
		{http.MethodGet, "/api/threads/" + uuid.NewString(), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, ts.URL+tt.path, strings.NewReader("{}"))
			if err != nil {
				t.Fatalf("building request: %v", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("%s %s: %v", tt.method, tt.path, err)
			}
			defer resp.Body.Close()
			_, _ = io.Copy(io.Discard, resp.Body)

			switch tt.want {
			case 0:
				if resp.StatusCode == http.StatusNotFound {
					t.Errorf("route %s %s should exist (got 404)", tt.method, tt.path)
				}
			default:
				if resp.StatusCode != tt.want {
					t.Errorf("route %s %s status = %d, want %d", tt.method, tt.path, resp.StatusCode, tt.want)
				}
			}
		})
	}
}

func TestHealthBypassesRateLimit(t *testing.T) {
	mock := testutil.NewMockLLM("fallback")
	ts := newChatServer(t, mock, fixedSearcher{}, func(cfg *ServerConfig) {
		cfg.RateBurst = 1
	})

	// Exhaust the single token with an API request.
	resp, _ := postJSON(t, ts.URL+"/api/chat", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("first request status = %d, want 400", resp.StatusCode)
	}

	resp, _ = postJSON(t, ts.URL+"/api/chat", `{not json`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", resp.StatusCode)
	}

	// Probes live outside the middleware stack and stay reachable.
	probe, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer probe.Body.Close()
	if probe.StatusCode != http.StatusOK {
		t.Errorf("probe status = %d, want 200 while API is throttled", probe.StatusCode)
	}
}

func TestServerSecurityHeaders(t *testing.T) {
	mock := testutil.NewMockLLM("fallback")
	ts := newChatServer(t, mock, fixedSearcher{}, nil)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := resp.Header.Get("X-Request-ID"); got == "" {
		t.Error("X-Request-ID not set by the middleware stack")
	}
}

func TestServerCORSPreflight(t *testing.T) {
	mock := testutil.NewMockLLM("fallback")
	ts := newChatServer(t, mock, fixedSearcher{}, func(cfg *ServerConfig) {
		cfg.CORSOrigins = []string{"http://localhost:4200"}
	})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/chat", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Origin", "http://localhost:4200")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /api/chat: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:4200" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
