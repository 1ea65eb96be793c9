package tui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"

	"github.com/docent-ai/docent/internal/timeline"
)

// View implements tea.Model. The frame stacks the scrollable viewport, a
// separator, the prompt line, a second separator, and the help bar. The
// prompt renders in every state so the next question can be typed while
// an answer streams.
func (m *Model) View() tea.View {
	m.viewBuf.Reset()
	sep := m.renderSeparator()
	for _, row := range []string{
		m.viewport.View(),
		sep,
		m.styles.Prompt.Render("> ") + m.input.View(),
		sep,
	} {
		_, _ = m.viewBuf.WriteString(row)
		_ = m.viewBuf.WriteByte('\n')
	}
	_, _ = m.viewBuf.WriteString(m.renderStatusBar())

	v := tea.NewView(m.viewBuf.String())
	v.AltScreen = true
	return v
}

// rebuildViewportContent reconstructs the viewport content from the current
// controller snapshot and interface state.
func (m *Model) rebuildViewportContent() {
	m.viewport.SetContent(m.renderConversation())
}

// renderConversation builds the full scrollback: banner, timeline entries
// with their marker affordances, the thinking indicator, and the transient
// panel block.
func (m *Model) renderConversation() string {
	var b strings.Builder

	_, _ = b.WriteString(m.styles.RenderBanner())
	_ = b.WriteByte('\n')
	_, _ = b.WriteString(m.styles.RenderWelcomeTips())
	_ = b.WriteByte('\n')

	for i, msg := range m.messages {
		m.renderEntry(&b, msg, i == len(m.messages)-1)
	}

	// Thinking indicator: request in flight, no answer text yet
	if m.state == StateThinking || (m.state == StateStreaming && m.awaitingFirstChunk()) {
		_, _ = b.WriteString(m.spinner.View())
		_, _ = b.WriteString(" Thinking...\n\n")
	}

	if m.panel != "" {
		style := m.styles.System
		if m.panelErr {
			style = m.styles.Error
		}
		_, _ = b.WriteString(style.Render(m.panel))
		_, _ = b.WriteString("\n")
	}

	return b.String()
}

// renderEntry writes one timeline entry. The trailing assistant entry of a
// live run is the streaming accumulator: it renders as plain text because
// partial markdown flickers, and it is skipped entirely while still empty.
func (m *Model) renderEntry(b *strings.Builder, msg timeline.Message, last bool) {
	streamingTail := last && m.state == StateStreaming

	switch msg.Role {
	case timeline.RoleHuman:
		_, _ = b.WriteString(m.styles.User.Render("You> "))
		_, _ = b.WriteString(msg.Content)
		_, _ = b.WriteString("\n")

	case timeline.RoleAssistant:
		if streamingTail {
			if msg.Content == "" {
				return
			}
			_, _ = b.WriteString(m.styles.Assistant.Render("Docent> "))
			_, _ = b.WriteString(msg.Content)
			_, _ = b.WriteString("\n\n")
			return
		}
		_, _ = b.WriteString(m.styles.Assistant.Render("Docent> "))
		_, _ = b.WriteString(m.markdown.Render(msg.Content))
		_, _ = b.WriteString("\n\n")

	case timeline.RoleMarker:
		m.renderMarker(b, msg)
	}
}

// renderMarker writes one marker affordance. Payload shapes are fixed per
// kind; an unexpected payload renders nothing rather than failing.
func (m *Model) renderMarker(b *strings.Builder, msg timeline.Message) {
	switch msg.MarkerKind {
	case timeline.MarkerProgress:
		p, ok := msg.MarkerPayload.(timeline.ProgressPayload)
		if !ok || p.Step < 0 || p.Step >= len(timeline.ProgressSteps) {
			return
		}
		label := fmt.Sprintf("[%d/%d] %s", p.Step+1, len(timeline.ProgressSteps), timeline.ProgressSteps[p.Step])
		_, _ = b.WriteString(m.styles.Marker.Render(label))
		_, _ = b.WriteString("\n\n")

	case timeline.MarkerRouter:
		r, ok := msg.MarkerPayload.(timeline.Router)
		if !ok || r.Type == "" {
			return
		}
		line := "Route: " + r.Type
		if r.Logic != "" {
			line += " (" + r.Logic + ")"
		}
		_, _ = b.WriteString(m.styles.Marker.Render(line))
		_, _ = b.WriteString("\n")

	case timeline.MarkerSelectedDocuments:
		p, ok := msg.MarkerPayload.(timeline.DocumentsPayload)
		if !ok || len(p.Documents) == 0 {
			return
		}
		_, _ = b.WriteString(m.styles.Marker.Render("Sources:"))
		_, _ = b.WriteString("\n")
		for _, doc := range p.Documents {
			_, _ = b.WriteString(m.styles.Marker.Render("  - " + documentLabel(doc)))
			_, _ = b.WriteString("\n")
		}

	case timeline.MarkerAnswerHeader:
		_, _ = b.WriteString(m.styles.AnswerHeader.Render("Answer"))
		_, _ = b.WriteString("\n")
	}
}

// documentLabel picks a display line for one retrieved document: title,
// then url, then source, then a content snippet.
func documentLabel(doc timeline.Document) string {
	title := metaString(doc.Metadata, "title")
	url := metaString(doc.Metadata, "url")
	switch {
	case title != "" && url != "":
		return title + " (" + url + ")"
	case title != "":
		return title
	case url != "":
		return url
	}
	if source := metaString(doc.Metadata, "source"); source != "" {
		return source
	}
	snippet := []rune(doc.PageContent)
	if len(snippet) > 60 {
		return string(snippet[:60]) + "..."
	}
	return string(snippet)
}

func metaString(md map[string]any, k string) string {
	if md == nil {
		return ""
	}
	s, _ := md[k].(string)
	return s
}

// renderSeparator draws a full-width horizontal rule.
func (m *Model) renderSeparator() string {
	w := m.width
	if w <= 0 {
		w = defaultWrapWidth
	}
	return m.styles.Separator.Render(strings.Repeat("─", w))
}

// renderStatusBar renders the help bar for the current state.
func (m *Model) renderStatusBar() string {
	return m.help.ShortHelpView(m.activeBindings())
}

// activeBindings is the shortcut set the help bar advertises per state.
// While a run is in flight the submit and history keys are hidden and
// the cancel keys take their place.
func (m *Model) activeBindings() []key.Binding {
	switch m.state {
	case StateInput:
		return []key.Binding{
			m.keys.Submit, m.keys.NewLine, m.keys.History,
			m.keys.Cancel, m.keys.Quit, m.keys.ScrollUp,
		}
	case StateThinking, StateStreaming:
		return []key.Binding{
			m.keys.EscCancel, m.keys.Cancel,
			m.keys.ScrollUp, m.keys.ScrollDown,
		}
	default:
		return nil
	}
}
