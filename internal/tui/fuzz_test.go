package tui

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	tea "charm.land/bubbletea/v2"

	"github.com/docent-ai/docent/internal/client"
	"github.com/docent-ai/docent/internal/timeline"
)

// newFuzzModel builds a model without per-test environment setup; fuzz
// targets run under the TestMain HOME redirect.
func newFuzzModel(t *testing.T) *Model {
	t.Helper()

	ctrl, err := client.NewController(client.ControllerConfig{
		Backend: &stubChatBackend{},
		UserID:  "user-1",
		Models:  []string{"googleai/gemini-2.5-pro", "googleai/gemini-2.5-flash"},
	})
	if err != nil {
		t.Fatalf("NewController() error: %v", err)
	}
	coord, err := client.NewCoordinator(&stubThreadBackend{}, ctrl, nil)
	if err != nil {
		t.Fatalf("NewCoordinator() error: %v", err)
	}
	m, err := New(context.Background(), ctrl, coord, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return m
}

// FuzzHandleSlashCommand feeds arbitrary slash input through the command
// dispatcher.
func FuzzHandleSlashCommand(f *testing.F) {
	for _, seed := range []string{
		"/help",
		"/clear",
		"/threads",
		"/thread terrain notes",
		"/switch 1",
		"/switch 99999999999999999999",
		"/delete some-thread-id",
		"/model",
		"/model googleai/gemini-2.5-flash",
		"/exit",
		"/quit",
		"/unknown",
		"/",
		"//",
		"/command with spaces",
		"/command\twith\ttabs",
		"/command\nwith\nnewlines",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, cmd string) {
		if !strings.HasPrefix(cmd, "/") {
			return
		}

		m := newFuzzModel(t)
		model, teaCmd := m.handleSlashCommand(cmd)
		res, ok := model.(*Model)
		if !ok || res == nil {
			t.Fatalf("handleSlashCommand(%q) returned %T", cmd, model)
		}

		switch cmd {
		case "/exit", "/quit":
			if teaCmd == nil {
				t.Errorf("%s should produce a quit command", cmd)
			}
		case "/clear":
			if got := res.ctrl.CurrentThread(); got != "" {
				t.Errorf("thread after /clear = %q, want detached", got)
			}
			if n := len(res.ctrl.Messages()); n != 0 {
				t.Errorf("%d messages after /clear, want 0", n)
			}
		}
	})
}

// FuzzNavigateHistory checks the index stays in bounds for any delta.
func FuzzNavigateHistory(f *testing.F) {
	for _, seed := range []int{0, 1, -1, 100, -100, 1000000, -1000000} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, delta int) {
		m := newFuzzModel(t)
		m.history = []string{"first", "second", "third"}
		m.historyIdx = 1

		model, _ := m.navigateHistory(delta)
		res := model.(*Model)
		if res.historyIdx < 0 || res.historyIdx > len(res.history) {
			t.Errorf("navigateHistory(%d) left index %d outside 0..%d",
				delta, res.historyIdx, len(res.history))
		}
	})
}

// FuzzPushHistory records arbitrary submitted lines and checks the cap.
func FuzzPushHistory(f *testing.F) {
	for _, seed := range []string{
		"how do I paint textures?",
		"",
		strings.Repeat("a", 10000),
		"line1\nline2\nline3",
		"emoji 🎉🚀",
		"\x00\x01\x02",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, line string) {
		m := newFuzzModel(t)
		for range 3 {
			m.pushHistory(line)
		}

		if len(m.history) > maxHistory {
			t.Errorf("history grew to %d, cap is %d", len(m.history), maxHistory)
		}
		if m.historyIdx != len(m.history) {
			t.Errorf("historyIdx = %d, want %d (end of history)", m.historyIdx, len(m.history))
		}
	})
}

// FuzzKeyPress drives handleKey with arbitrary key codes and modifiers.
func FuzzKeyPress(f *testing.F) {
	seeds := []struct {
		code rune
		mod  tea.KeyMod
	}{
		{'a', 0},
		{'c', tea.ModCtrl},
		{'d', tea.ModCtrl},
		{tea.KeyEnter, 0},
		{tea.KeyEnter, tea.ModShift},
		{tea.KeyUp, 0},
		{tea.KeyDown, 0},
		{tea.KeyEscape, 0},
		{tea.KeyTab, 0},
		{tea.KeySpace, 0},
	}
	for _, s := range seeds {
		f.Add(int32(s.code), int(s.mod))
	}

	f.Fuzz(func(t *testing.T, code int32, mod int) {
		m := newFuzzModel(t)
		msg := tea.KeyPressMsg(tea.Key{Code: rune(code), Mod: tea.KeyMod(mod)})

		model, _ := m.handleKey(msg)
		if model == nil {
			t.Error("handleKey returned a nil model")
		}
	})
}

// FuzzView renders arbitrary state and dimension combinations.
func FuzzView(f *testing.F) {
	seeds := []struct{ state, width, height int }{
		{0, 80, 24},
		{1, 80, 24},
		{2, 80, 24},
		{0, 40, 10},
		{0, 200, 50},
		{0, 0, 0},
		{0, -1, -1},
		{0, 10000, 1},
	}
	for _, s := range seeds {
		f.Add(s.state, s.width, s.height)
	}

	f.Fuzz(func(t *testing.T, state, width, height int) {
		m := newFuzzModel(t)
		if state >= 0 && state <= 2 {
			m.state = State(state)
		}
		m.width, m.height = width, height

		// Give the scrollback something to render, including a live tail.
		m.messages = []timeline.Message{
			timeline.NewHuman("how do I blend textures?"),
			timeline.NewAssistant("Blend on overlapping regions."),
		}
		if m.state == StateStreaming {
			m.messages = append(m.messages, timeline.NewAssistant("Partial answer"))
		}
		m.rebuildViewportContent()

		_ = m.View()

		if got := m.viewBuf.String(); !utf8.ValidString(got) {
			t.Error("view buffer contains invalid UTF-8")
		}
	})
}

// FuzzMarkdownRenderer_Render renders arbitrary markdown.
func FuzzMarkdownRenderer_Render(f *testing.F) {
	for _, seed := range []string{
		"Hello World",
		"**bold**",
		"*italic*",
		"`code`",
		"```gdscript\nfunc _ready():\n    pass\n```",
		"# Heading",
		"- list item",
		"[link](http://example.com)",
		"",
		strings.Repeat("a", 10000),
		"emoji 🎉🚀✨",
		"\x00\x01\x02",
		"line1\nline2\nline3",
		"special chars: <>&\"'",
	} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, markdown string) {
		mr := newMarkdownRenderer(80)
		if mr == nil {
			t.Skip("glamour renderer unavailable")
		}

		out := mr.Render(markdown)

		// Valid input stays valid; invalid input passes through the
		// plain-text fallback verbatim.
		if utf8.ValidString(markdown) && !utf8.ValidString(out) {
			t.Errorf("Render produced invalid UTF-8 from valid input %q", markdown)
		}
	})
}

// FuzzMarkdownRenderer_UpdateWidth checks rebuild decisions for arbitrary
// widths.
func FuzzMarkdownRenderer_UpdateWidth(f *testing.F) {
	for _, seed := range []int{80, 40, 120, 0, -1, 1, 10000, -10000} {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, width int) {
		mr := newMarkdownRenderer(80)
		if mr == nil {
			t.Skip("glamour renderer unavailable")
		}

		updated := mr.UpdateWidth(width)
		switch {
		case width <= 0 && updated:
			t.Errorf("UpdateWidth(%d) rebuilt on an invalid width", width)
		case width == 80 && updated:
			t.Error("UpdateWidth(80) rebuilt on an unchanged width")
		}
	})
}
