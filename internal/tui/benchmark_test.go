package tui

import (
	"context"
	"strings"
	"testing"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"

	"github.com/docent-ai/docent/internal/timeline"
)

// newBenchmarkModel builds a Model sized for render benchmarks. Render
// paths never touch the controller, so none is wired.
func newBenchmarkModel() *Model {
	ta := textarea.New()
	ta.SetHeight(1)
	ta.ShowLineNumbers = false
	m := &Model{
		state:    StateInput,
		ctx:      context.Background(),
		input:    ta,
		viewport: viewport.New(viewport.WithWidth(defaultWrapWidth), viewport.WithHeight(20)),
		help:     help.New(),
		keys:     newKeyMap(),
		styles:   DefaultStyles(),
		history:  make([]string, 0, maxHistory),
		markdown: newMarkdownRenderer(defaultWrapWidth),
	}
	m.width, m.height = defaultWrapWidth, 24
	return m
}

func exchanges(n int) []timeline.Message {
	msgs := make([]timeline.Message, 0, n*2)
	for range n {
		msgs = append(msgs,
			timeline.NewHuman("How do I paint terrain textures?"),
			timeline.NewAssistant("Select a texture in the Terrain3D panel and paint with the brush tool."),
		)
	}
	return msgs
}

// BenchmarkView measures full frame assembly.
func BenchmarkView(b *testing.B) {
	b.Run("empty", func(b *testing.B) {
		m := newBenchmarkModel()
		m.rebuildViewportContent()
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			_ = m.View()
		}
	})

	b.Run("50_exchanges", func(b *testing.B) {
		m := newBenchmarkModel()
		m.messages = exchanges(50)
		m.rebuildViewportContent()
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			_ = m.View()
		}
	})
}

// BenchmarkRenderConversation measures scrollback assembly, which runs on
// every timeline event while an answer streams.
func BenchmarkRenderConversation(b *testing.B) {
	b.Run("empty", func(b *testing.B) {
		m := newBenchmarkModel()
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			_ = m.renderConversation()
		}
	})

	b.Run("10_exchanges", func(b *testing.B) {
		m := newBenchmarkModel()
		m.messages = exchanges(10)
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			_ = m.renderConversation()
		}
	})

	b.Run("50_exchanges", func(b *testing.B) {
		m := newBenchmarkModel()
		m.messages = exchanges(50)
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			_ = m.renderConversation()
		}
	})

	b.Run("streaming_tail", func(b *testing.B) {
		m := newBenchmarkModel()
		m.state = StateStreaming
		m.messages = append(exchanges(10),
			timeline.NewHuman("What about holes?"),
			timeline.NewAssistant("Use the hole brush to cut openings for caves and"),
		)
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			_ = m.renderConversation()
		}
	})

	b.Run("reconstructed_markers", func(b *testing.B) {
		snap := timeline.Snapshot{
			Messages: []timeline.RawMessage{
				{Type: timeline.TypeHuman, Content: "how do I blend textures?"},
				{Type: timeline.TypeAI, Content: "Blend on overlapping regions with the **albedo** brush."},
			},
			Router: &timeline.Router{Type: "retrieve", Logic: "needs documentation"},
			Documents: []timeline.Document{
				{Metadata: map[string]any{"title": "Texture Painting", "url": "https://example.org/tp"}},
				{Metadata: map[string]any{"title": "Brush Settings", "url": "https://example.org/brush"}},
			},
		}
		msgs, err := timeline.Reconstruct(snap)
		if err != nil {
			b.Fatal(err)
		}
		m := newBenchmarkModel()
		m.messages = msgs
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			_ = m.renderConversation()
		}
	})

	b.Run("large_answers", func(b *testing.B) {
		m := newBenchmarkModel()
		largeText := strings.Repeat("This is a long documentation answer with plenty of content. ", 100)
		for range 20 {
			m.messages = append(m.messages, timeline.NewAssistant(largeText))
		}
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			_ = m.renderConversation()
		}
	})
}

// BenchmarkPushHistory measures history recording with the bounds trim.
func BenchmarkPushHistory(b *testing.B) {
	b.Run("single", func(b *testing.B) {
		m := newBenchmarkModel()
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			m.history = m.history[:0]
			m.pushHistory("how do I paint textures?")
		}
	})

	b.Run("with_bounds_trim", func(b *testing.B) {
		m := newBenchmarkModel()
		for range maxHistory {
			m.pushHistory("warm-up entry")
		}
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			m.pushHistory("how do I paint textures?")
		}
	})
}

// BenchmarkMarkdownRender measures answer rendering through glamour.
func BenchmarkMarkdownRender(b *testing.B) {
	const answer = "Use the **paint tool**:\n\n1. Select a texture\n2. Adjust the brush\n\n```gdscript\nvar terrain = Terrain3D.new()\n```\n"

	b.Run("cached_width", func(b *testing.B) {
		mr := newMarkdownRenderer(80)
		if mr == nil {
			b.Skip("failed to create markdown renderer")
		}
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			_ = mr.Render(answer)
		}
	})

	b.Run("width_change", func(b *testing.B) {
		mr := newMarkdownRenderer(80)
		if mr == nil {
			b.Skip("failed to create markdown renderer")
		}
		width := 80
		b.ResetTimer()
		b.ReportAllocs()
		for b.Loop() {
			// Alternate widths so every iteration pays the rebuild
			if width == 80 {
				width = 120
			} else {
				width = 80
			}
			_ = mr.UpdateWidth(width)
			_ = mr.Render(answer)
		}
	})
}
