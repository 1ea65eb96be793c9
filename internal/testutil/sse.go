package testutil

import (
	"slices"
	"strings"
	"testing"
)

// SSEEvent is one parsed Server-Sent Event.
type SSEEvent struct {
	Type string
	Data string
}

// ParseSSEEvents parses an SSE response body into events. Multiple data
// lines are joined with newlines, a blank line terminates an event, data
// before any event line gets the "message" type, and ":" comments are
// skipped. Malformed input fails the test.
func ParseSSEEvents(t *testing.T, body string) []SSEEvent {
	t.Helper()

	var (
		events []SSEEvent
		typ    string
		data   []string
		n      int
	)
	flush := func() {
		if typ == "" {
			return
		}
		events = append(events, SSEEvent{Type: typ, Data: strings.Join(data, "\n")})
		typ, data = "", nil
	}

	for raw := range strings.Lines(body) {
		n++
		line := strings.TrimRight(raw, "\r\n")
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event: "):
			if typ != "" && len(data) > 0 {
				t.Fatalf("SSE parse error at line %d: new event before previous terminated (got %q)", n, line)
			}
			typ = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if typ == "" {
				typ = "message"
			}
			data = append(data, strings.TrimPrefix(line, "data: "))
		case strings.HasPrefix(line, ":"):
			// heartbeat or comment
		default:
			t.Fatalf("SSE parse error at line %d: unexpected line %q", n, line)
		}
	}
	if typ != "" {
		t.Fatalf("SSE stream ended without terminating event %q (missing blank line)", typ)
	}
	return events
}

// FindEvent returns the first event of the given type, or nil.
func FindEvent(events []SSEEvent, eventType string) *SSEEvent {
	i := slices.IndexFunc(events, func(e SSEEvent) bool { return e.Type == eventType })
	if i < 0 {
		return nil
	}
	return &events[i]
}

// FindAllEvents returns every event of the given type in order.
func FindAllEvents(events []SSEEvent, eventType string) []SSEEvent {
	var out []SSEEvent
	for _, e := range events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
