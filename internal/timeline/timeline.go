// Package timeline models a conversation as an ordered sequence of typed
// entries and reconstructs that sequence from a stored thread snapshot.
//
// A timeline holds three kinds of entries: human turns, assistant turns, and
// synthetic markers. Markers carry no text; they exist so a rendering layer
// can show non-text affordances (progress, routing decision, retrieved
// documents, answer section header) at stable positions. Real turns keep the
// backend-assigned id; synthetic entries get a fresh client-side id.
//
// [Reconstruct] is a pure function: same snapshot in, same timeline out, no
// I/O. Everything stateful (streaming runs, thread switching) lives in
// internal/client on top of this package.
package timeline

import (
	"fmt"

	"github.com/google/uuid"
)

// Role classifies a timeline entry.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleMarker    Role = "marker"
)

// MarkerKind tags a synthetic marker entry.
type MarkerKind string

const (
	// MarkerProgress renders the run progress affordance. Payload:
	// ProgressPayload.
	MarkerProgress MarkerKind = "progress"

	// MarkerRouter renders the routing decision. Payload: Router.
	MarkerRouter MarkerKind = "router"

	// MarkerSelectedDocuments renders the retrieved document list.
	// Payload: DocumentsPayload.
	MarkerSelectedDocuments MarkerKind = "selected-documents"

	// MarkerAnswerHeader opens the answer section. No payload.
	MarkerAnswerHeader MarkerKind = "answer-header"
)

// ProgressPayload is the payload of a MarkerProgress entry.
type ProgressPayload struct {
	// Step indexes into ProgressSteps.
	Step int `json:"step"`
}

// DocumentsPayload is the payload of a MarkerSelectedDocuments entry.
type DocumentsPayload struct {
	Documents []Document `json:"documents"`
}

// Message is a single timeline entry. Identity is by ID: two messages with
// the same ID are the same conversation turn, which is how a streaming
// assistant turn gets progressively filled in place.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// MarkerKind and MarkerPayload are set on marker entries only.
	MarkerKind    MarkerKind `json:"marker_kind,omitempty"`
	MarkerPayload any        `json:"marker_payload,omitempty"`
}

// IsMarker reports whether the entry is a synthetic marker.
func (m Message) IsMarker() bool { return m.Role == RoleMarker }

// Same reports whether two entries are the same conversation turn.
func (m Message) Same(other Message) bool { return m.ID == other.ID }

// NewHuman creates a human turn with a fresh id.
func NewHuman(content string) Message {
	return mustValid(Message{ID: uuid.NewString(), Role: RoleHuman, Content: content})
}

// NewAssistant creates an assistant turn with a fresh id.
func NewAssistant(content string) Message {
	return mustValid(Message{ID: uuid.NewString(), Role: RoleAssistant, Content: content})
}

// NewMarker creates a marker entry with a fresh id. The payload shape is
// determined by kind; rendering layers treat it as opaque.
func NewMarker(kind MarkerKind, payload any) Message {
	return mustValid(Message{ID: uuid.NewString(), Role: RoleMarker, MarkerKind: kind, MarkerPayload: payload})
}

// HumanWithID creates a human turn keeping a server-assigned id. An empty id
// falls back to a fresh one.
func HumanWithID(id, content string) Message {
	if id == "" {
		id = uuid.NewString()
	}
	return mustValid(Message{ID: id, Role: RoleHuman, Content: content})
}

// AssistantWithID creates an assistant turn keeping a server-assigned id.
// An empty id falls back to a fresh one.
func AssistantWithID(id, content string) Message {
	if id == "" {
		id = uuid.NewString()
	}
	return mustValid(Message{ID: id, Role: RoleAssistant, Content: content})
}

// mustValid enforces the entry invariants: a marker never carries content,
// a non-marker never carries marker fields. Violations are programming
// defects, not runtime conditions.
func mustValid(m Message) Message {
	switch m.Role {
	case RoleMarker:
		if m.Content != "" {
			panic("BUG: marker entry with non-empty content")
		}
		if m.MarkerKind == "" {
			panic("BUG: marker entry without a kind")
		}
	case RoleHuman, RoleAssistant:
		if m.MarkerKind != "" || m.MarkerPayload != nil {
			panic(fmt.Sprintf("BUG: %s entry carrying marker fields", m.Role))
		}
	default:
		panic(fmt.Sprintf("BUG: unknown role %q", m.Role))
	}
	return m
}
