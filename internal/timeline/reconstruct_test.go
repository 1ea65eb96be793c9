package timeline

import (
	"errors"
	"reflect"
	"testing"
)

// shape is a compact expectation for one reconstructed entry.
type shape struct {
	role    Role
	kind    MarkerKind
	content string
}

// checkShapes compares a timeline against expected entry shapes, ignoring ids.
func checkShapes(t *testing.T, got []Message, want []shape) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("timeline has %d entries, want %d: %+v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].Role != w.role {
			t.Errorf("entry %d: role = %q, want %q", i, got[i].Role, w.role)
		}
		if got[i].MarkerKind != w.kind {
			t.Errorf("entry %d: marker kind = %q, want %q", i, got[i].MarkerKind, w.kind)
		}
		if got[i].Content != w.content {
			t.Errorf("entry %d: content = %q, want %q", i, got[i].Content, w.content)
		}
	}
}

func TestReconstructFullExchange(t *testing.T) {
	snap := Snapshot{
		Messages: []RawMessage{
			{Type: "human", Content: "Q"},
			{Type: "ai", Content: "A"},
		},
		Router:    &Router{Type: "docs", Logic: "asks about the engine"},
		Documents: []Document{{Metadata: map[string]any{"source": "x"}}},
	}

	got, err := Reconstruct(snap)
	if err != nil {
		t.Fatalf("Reconstruct() failed: %v", err)
	}

	checkShapes(t, got, []shape{
		{role: RoleHuman, content: "Q"},
		{role: RoleMarker, kind: MarkerProgress},
		{role: RoleMarker, kind: MarkerRouter},
		{role: RoleMarker, kind: MarkerSelectedDocuments},
		{role: RoleMarker, kind: MarkerAnswerHeader},
		{role: RoleAssistant, content: "A"},
	})

	// Marker payloads carry the snapshot data through unchanged.
	if p := got[1].MarkerPayload.(ProgressPayload); p.Step != FinalProgressStep {
		t.Errorf("progress step = %d, want %d", p.Step, FinalProgressStep)
	}
	if r := got[2].MarkerPayload.(Router); r != *snap.Router {
		t.Errorf("router payload = %+v, want %+v", r, *snap.Router)
	}
	docs := got[3].MarkerPayload.(DocumentsPayload)
	if len(docs.Documents) != 1 || docs.Documents[0].Metadata["source"] != "x" {
		t.Errorf("documents payload = %+v", docs)
	}
	if got[4].MarkerPayload != nil {
		t.Errorf("answer header payload = %v, want nil", got[4].MarkerPayload)
	}
}

func TestReconstructIdempotent(t *testing.T) {
	snap := Snapshot{
		Messages: []RawMessage{
			{ID: "h1", Type: "human", Content: "first question"},
			{ID: "a1", Type: "ai", Content: "first answer"},
			{ID: "h2", Type: "human", Content: "second question"},
			{ID: "a2", Type: "ai", Content: "second answer"},
		},
		Router: &Router{Type: "general", Logic: "small talk"},
	}

	first, err := Reconstruct(snap)
	if err != nil {
		t.Fatalf("first Reconstruct() failed: %v", err)
	}
	second, err := Reconstruct(snap)
	if err != nil {
		t.Fatalf("second Reconstruct() failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		// Synthetic entries get fresh ids per call; everything else must be
		// element-wise equal.
		a.ID, b.ID = "", ""
		if !reflect.DeepEqual(a, b) {
			t.Errorf("entry %d differs between runs: %+v vs %+v", i, a, b)
		}
	}

	// Real turns keep their stored ids across calls.
	if first[0].ID != "h1" || second[0].ID != "h1" {
		t.Error("stored human id was not preserved")
	}
}

func TestReconstructEveryHumanFollowedByProgress(t *testing.T) {
	snap := Snapshot{
		Messages: []RawMessage{
			{Type: "human", Content: "one"},
			{Type: "ai", Content: "r1"},
			{Type: "human", Content: "two"},
			{Type: "human", Content: "three"},
			{Type: "ai", Content: "r2"},
		},
	}

	got, err := Reconstruct(snap)
	if err != nil {
		t.Fatalf("Reconstruct() failed: %v", err)
	}

	for i, m := range got {
		if m.Role != RoleHuman {
			continue
		}
		if i+1 >= len(got) {
			t.Fatalf("human at %d has no successor", i)
		}
		next := got[i+1]
		if next.MarkerKind != MarkerProgress {
			t.Errorf("human at %d followed by %q/%q, want progress marker", i, next.Role, next.MarkerKind)
		}
		// Exactly one progress marker: the entry after it is never another.
		if i+2 < len(got) && got[i+2].MarkerKind == MarkerProgress {
			t.Errorf("human at %d followed by two progress markers", i)
		}
	}
}

func TestReconstructOneAnswerHeaderPerAssistantRun(t *testing.T) {
	tests := []struct {
		name     string
		types    []string
		wantRuns int
	}{
		{"single exchange", []string{"human", "ai"}, 1},
		{"two exchanges", []string{"human", "ai", "human", "ai"}, 2},
		{"multi ai run counts once", []string{"human", "ai", "ai", "ai"}, 1},
		{"interleaved runs", []string{"ai", "human", "ai", "ai", "human", "ai"}, 3},
		{"no assistants", []string{"human", "human"}, 0},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := make([]RawMessage, len(tt.types))
			for i, typ := range tt.types {
				raw[i] = RawMessage{Type: typ, Content: "x"}
			}
			if raw == nil {
				raw = []RawMessage{}
			}

			got, err := Reconstruct(Snapshot{Messages: raw})
			if err != nil {
				t.Fatalf("Reconstruct() failed: %v", err)
			}

			headers := 0
			for _, m := range got {
				if m.MarkerKind == MarkerAnswerHeader {
					headers++
				}
			}
			if headers != tt.wantRuns {
				t.Errorf("answer headers = %d, want %d", headers, tt.wantRuns)
			}
		})
	}
}

func TestReconstructNonTerminalAssistantsPassThroughBare(t *testing.T) {
	snap := Snapshot{
		Messages: []RawMessage{
			{Type: "human", Content: "Q"},
			{Type: "ai", Content: "thinking aloud"},
			{Type: "ai", Content: "final answer"},
		},
		Router: &Router{Type: "docs", Logic: "l"},
	}

	got, err := Reconstruct(snap)
	if err != nil {
		t.Fatalf("Reconstruct() failed: %v", err)
	}

	checkShapes(t, got, []shape{
		{role: RoleHuman, content: "Q"},
		{role: RoleMarker, kind: MarkerProgress},
		{role: RoleAssistant, content: "thinking aloud"},
		{role: RoleMarker, kind: MarkerRouter},
		{role: RoleMarker, kind: MarkerAnswerHeader},
		{role: RoleAssistant, content: "final answer"},
	})
}

func TestReconstructFiltersUnknownTypes(t *testing.T) {
	snap := Snapshot{
		Messages: []RawMessage{
			{Type: "system", Content: "prompt"},
			{Type: "human", Content: "Q"},
			{Type: "tool", Content: "call"},
			{Type: "ai", Content: "A"},
			{Type: "function", Content: "result"},
		},
	}

	got, err := Reconstruct(snap)
	if err != nil {
		t.Fatalf("Reconstruct() failed: %v", err)
	}

	for i, m := range got {
		for _, dropped := range []string{"prompt", "call", "result"} {
			if m.Content == dropped {
				t.Errorf("entry %d leaked filtered content %q", i, dropped)
			}
		}
	}

	// The tool entry between human and ai must not break the exchange: the
	// ai entry is still terminal and gets its answer header.
	checkShapes(t, got, []shape{
		{role: RoleHuman, content: "Q"},
		{role: RoleMarker, kind: MarkerProgress},
		{role: RoleMarker, kind: MarkerAnswerHeader},
		{role: RoleAssistant, content: "A"},
	})
}

func TestReconstructConditionalMarkers(t *testing.T) {
	tests := []struct {
		name      string
		router    *Router
		documents []Document
		want      []MarkerKind
	}{
		{"neither", nil, nil, []MarkerKind{MarkerAnswerHeader}},
		{"empty documents", nil, []Document{}, []MarkerKind{MarkerAnswerHeader}},
		{"router only", &Router{Type: "general"}, nil, []MarkerKind{MarkerRouter, MarkerAnswerHeader}},
		{"documents only", nil, []Document{{PageContent: "d"}}, []MarkerKind{MarkerSelectedDocuments, MarkerAnswerHeader}},
		{
			"both in fixed order",
			&Router{Type: "docs"},
			[]Document{{PageContent: "d"}},
			[]MarkerKind{MarkerRouter, MarkerSelectedDocuments, MarkerAnswerHeader},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Snapshot{
				Messages: []RawMessage{
					{Type: "human", Content: "Q"},
					{Type: "ai", Content: "A"},
				},
				Router:    tt.router,
				Documents: tt.documents,
			}

			got, err := Reconstruct(snap)
			if err != nil {
				t.Fatalf("Reconstruct() failed: %v", err)
			}

			// Markers between the progress marker and the assistant entry.
			var kinds []MarkerKind
			for _, m := range got[2 : len(got)-1] {
				kinds = append(kinds, m.MarkerKind)
			}
			if !reflect.DeepEqual(kinds, tt.want) {
				t.Errorf("terminal markers = %v, want %v", kinds, tt.want)
			}
		})
	}
}

func TestReconstructEmptyAndMalformed(t *testing.T) {
	t.Run("empty message log", func(t *testing.T) {
		got, err := Reconstruct(Snapshot{Messages: []RawMessage{}})
		if err != nil {
			t.Fatalf("Reconstruct() failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("timeline = %+v, want empty", got)
		}
	})

	t.Run("only unrecognized types", func(t *testing.T) {
		got, err := Reconstruct(Snapshot{Messages: []RawMessage{{Type: "tool"}, {Type: "system"}}})
		if err != nil {
			t.Fatalf("Reconstruct() failed: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("timeline = %+v, want empty", got)
		}
	})

	t.Run("nil message log fails fast", func(t *testing.T) {
		_, err := Reconstruct(Snapshot{})
		if !errors.Is(err, ErrMalformedSnapshot) {
			t.Fatalf("Reconstruct() error = %v, want ErrMalformedSnapshot", err)
		}
	})
}

func TestReconstructLeadingAssistantRun(t *testing.T) {
	// A thread can open with assistant entries (e.g. a greeting); the run
	// still closes with an answer header before the first human turn.
	snap := Snapshot{
		Messages: []RawMessage{
			{Type: "ai", Content: "welcome"},
			{Type: "human", Content: "Q"},
			{Type: "ai", Content: "A"},
		},
	}

	got, err := Reconstruct(snap)
	if err != nil {
		t.Fatalf("Reconstruct() failed: %v", err)
	}

	checkShapes(t, got, []shape{
		{role: RoleMarker, kind: MarkerAnswerHeader},
		{role: RoleAssistant, content: "welcome"},
		{role: RoleHuman, content: "Q"},
		{role: RoleMarker, kind: MarkerProgress},
		{role: RoleMarker, kind: MarkerAnswerHeader},
		{role: RoleAssistant, content: "A"},
	})
}
