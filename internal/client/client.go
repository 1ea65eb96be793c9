// Package client implements the chat-side conversation state layer: a
// backend gateway, the streaming session controller that owns the visible
// timeline while a run is active, and the thread switch coordinator that
// replaces the timeline when navigating between stored conversations.
//
// The package is rendering-agnostic. State is exposed through snapshot
// accessors plus a coalescing event channel; the TUI (or any other consumer)
// re-reads snapshots whenever an event arrives. All externally triggered
// failures (network, identity) are caught here and surfaced as user-visible
// notifications; the timeline is only ever mutated after an operation fully
// succeeds.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/docent-ai/docent/internal/timeline"
)

var (
	// ErrIdentityMissing indicates no user identity was available at
	// submission time. No network call is made.
	ErrIdentityMissing = errors.New("no user identity available")

	// ErrBackendUnavailable covers every transport failure and non-2xx
	// response from the backend. Error bodies are not interpreted.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrRunActive indicates a submission while a run is already in flight.
	// Callers are expected to disable re-submission; this error is the
	// backstop.
	ErrRunActive = errors.New("a run is already active")
)

// Thread is a stored conversation as the backend returns it. Values holds
// the raw snapshot bag; it stays opaque until Snapshot() decodes it.
type Thread struct {
	ID        string          `json:"thread_id"`
	UserID    string          `json:"user_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Values    json.RawMessage `json:"values,omitempty"`
	CreatedAt time.Time       `json:"created_at,omitzero"`
	UpdatedAt time.Time       `json:"updated_at,omitzero"`
}

// HasValues reports whether the thread carries a stored snapshot.
func (t Thread) HasValues() bool {
	return len(t.Values) > 0 && string(t.Values) != "null"
}

// Snapshot decodes the stored value bag. Calling it on a thread without
// values yields ErrMalformedSnapshot; check HasValues first.
func (t Thread) Snapshot() (timeline.Snapshot, error) {
	return timeline.DecodeSnapshot(t.Values)
}

// ChatResult is the final run state the backend reports for one exchange.
type ChatResult struct {
	Answer    string              `json:"answer"`
	Router    *timeline.Router    `json:"router,omitempty"`
	Documents []timeline.Document `json:"documents,omitempty"`
}

// StreamEventKind tags a parsed frame of the chat stream.
type StreamEventKind int

const (
	// StreamChunk carries a partial answer text delta.
	StreamChunk StreamEventKind = iota
	// StreamDone carries the final ChatResult; the stream ends after it.
	StreamDone
	// StreamFailed carries the terminal error; the stream ends after it.
	StreamFailed
)

// StreamEvent is one parsed frame from a streaming chat call. Exactly one
// terminal event (StreamDone or StreamFailed) arrives before the channel
// closes.
type StreamEvent struct {
	Kind   StreamEventKind
	Text   string     // StreamChunk
	Result ChatResult // StreamDone
	Err    error      // StreamFailed
}

// ChatStream is a live streaming chat call. Cancel aborts the underlying
// request; reading Events to completion is always safe afterwards.
type ChatStream struct {
	Events <-chan StreamEvent
	Cancel context.CancelFunc
}

// ChatBackend is the slice of the gateway the controller uses.
type ChatBackend interface {
	SubmitChat(ctx context.Context, threadID string, messages []timeline.RawMessage, modelID string) (string, error)
	StreamChat(ctx context.Context, threadID string, messages []timeline.RawMessage, modelID string) (*ChatStream, error)
}

// ThreadBackend is the slice of the gateway the coordinator and thread
// listings use.
type ThreadBackend interface {
	FetchThread(ctx context.Context, threadID string) (Thread, error)
	ListThreads(ctx context.Context, userID string) ([]Thread, error)
	CreateThread(ctx context.Context, userID, name string) (Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// Notification is a user-visible event emitted outside the timeline, the
// side channel the error propagation policy converts failures into.
type Notification struct {
	Message string
	Err     error
}

// EventKind tags an observer event.
type EventKind int

const (
	// EventTimeline signals the visible timeline changed; re-read Messages().
	EventTimeline EventKind = iota
	// EventRunState signals the run lifecycle moved; re-read State().
	EventRunState
	// EventNotice carries a user-visible notification.
	EventNotice
)

// Event is one observer event. Timeline and run-state events carry no
// payload; observers re-read controller snapshots, so dropped duplicates
// coalesce harmlessly.
type Event struct {
	Kind   EventKind
	Notice Notification
}
