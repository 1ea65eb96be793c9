package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedSnapshot indicates a stored thread snapshot whose messages
// field is missing or not a sequence. This is a defect in the upstream data;
// callers fail fast instead of rendering a partial timeline.
var ErrMalformedSnapshot = errors.New("malformed thread snapshot")

// Raw message types carried in stored message logs. The reconstructor
// recognizes only these two; anything else (tool calls, system notes) is
// filtered out.
const (
	TypeHuman = "human"
	TypeAI    = "ai"
)

// RawMessage is one entry of a stored thread's message log, as the backend
// persists it. Unknown fields are ignored.
type RawMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Router is the routing decision recorded for a run. The client renders it
// verbatim and never interprets it; route semantics live in the backend.
type Router struct {
	Type  string `json:"type"`
	Logic string `json:"logic"`
}

// Document is one retrieved document reference recorded for a run.
type Document struct {
	PageContent string         `json:"page_content,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Snapshot is the decoded stored thread value bag. It is read-only input to
// Reconstruct; nothing in this package mutates it.
//
// A nil Messages slice means the messages field was absent from the stored
// values, which Reconstruct rejects; an empty non-nil slice is a valid,
// empty conversation.
type Snapshot struct {
	Messages  []RawMessage `json:"messages"`
	Router    *Router      `json:"router,omitempty"`
	Documents []Document   `json:"documents,omitempty"`
}

// History converts timeline entries back into raw wire messages, dropping
// markers. This is the inverse of Reconstruct's filtering step and is what
// chat submission sends as accumulated history.
func History(messages []Message) []RawMessage {
	raw := make([]RawMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleHuman:
			raw = append(raw, RawMessage{ID: m.ID, Type: TypeHuman, Content: m.Content})
		case RoleAssistant:
			raw = append(raw, RawMessage{ID: m.ID, Type: TypeAI, Content: m.Content})
		}
	}
	return raw
}

// DecodeSnapshot parses a stored thread value bag. The messages field must
// be present and a sequence; its absence or any other shape fails with
// ErrMalformedSnapshot. Router and documents are optional.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var raw struct {
		Messages  json.RawMessage `json:"messages"`
		Router    *Router         `json:"router"`
		Documents []Document      `json:"documents"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if len(raw.Messages) == 0 || string(raw.Messages) == "null" {
		return Snapshot{}, fmt.Errorf("%w: messages field is missing", ErrMalformedSnapshot)
	}

	var messages []RawMessage
	if err := json.Unmarshal(raw.Messages, &messages); err != nil {
		return Snapshot{}, fmt.Errorf("%w: messages is not a sequence: %v", ErrMalformedSnapshot, err)
	}
	if messages == nil {
		messages = []RawMessage{}
	}

	return Snapshot{
		Messages:  messages,
		Router:    raw.Router,
		Documents: raw.Documents,
	}, nil
}
