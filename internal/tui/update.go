package tui

import (
	"errors"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"

	"github.com/docent-ai/docent/internal/client"
	"github.com/docent-ai/docent/internal/timeline"
)

// Update implements tea.Model.
//
//nolint:gocognit,gocyclo // one case per message type
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.MouseWheelMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		// Repaint only while the spinner is actually visible
		if m.state == StateThinking || (m.state == StateStreaming && m.awaitingFirstChunk()) {
			m.rebuildViewportContent()
		}
		return m, cmd

	case clientEventMsg:
		return m.handleClientEvent(msg.event)

	case streamStartedMsg:
		m.streamCancel = msg.cancel
		m.streamEventCh = msg.eventCh
		if m.canceling {
			// The user aborted before the run handle arrived.
			m.cancelStream()
		}
		return m, listenForStream(msg.eventCh)

	case streamDoneMsg:
		// Release timer resources; the idle transition arrives separately
		// as a run-state event.
		m.cancelStream()
		m.streamEventCh = nil
		m.showLatest()
		return m, m.input.Focus()

	case streamErrorMsg:
		m.cancelStream()
		m.streamEventCh = nil
		// Run failures surface through the controller notification; only
		// errors that never reached the controller need showing here.
		if !m.canceling && m.panel == "" {
			m.setPanel(msg.err.Error(), true)
		}
		m.showLatest()
		return m, m.input.Focus()

	case threadsListedMsg:
		if msg.err == nil {
			m.threads = msg.threads
			m.setPanel(renderThreadList(msg.threads), false)
			m.showLatest()
		}
		// Failures surface through the controller notification.
		return m, nil

	case threadStartedMsg:
		if msg.err == nil {
			name := msg.thread.Name
			if name == "" {
				name = msg.thread.ID
			}
			m.threads = nil
			m.setPanel("Started thread "+name+". Exchanges are now saved.", false)
			m.rebuildViewportContent()
		}
		return m, nil

	case threadSwitchedMsg:
		switch {
		case msg.err == nil:
			m.setPanel("", false)
		case errors.Is(msg.err, timeline.ErrMalformedSnapshot):
			m.setPanel("Stored thread data is malformed and cannot be displayed.", true)
		}
		m.showLatest()
		return m, nil

	case threadDeletedMsg:
		if msg.err == nil {
			m.threads = nil
			m.setPanel("Thread deleted.", false)
			m.rebuildViewportContent()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// resize relays new terminal dimensions to every sized component. The
// viewport absorbs whatever height the fixed rows leave over.
func (m *Model) resize(w, h int) {
	m.width, m.height = w, h

	fixed := separatorLines + m.input.Height() + promptLines + helpLines
	m.viewport.SetWidth(w)
	m.viewport.SetHeight(max(h-fixed, minViewport))
	m.input.SetWidth(w - 4) // leaves room for the "> " prompt
	m.help.SetWidth(w)
	m.markdown.UpdateWidth(w)
	m.rebuildViewportContent()
}

// showLatest rebuilds the scrollback and follows it to the newest entry.
func (m *Model) showLatest() {
	m.rebuildViewportContent()
	m.viewport.GotoBottom()
}

// handleClientEvent applies one controller observer event and re-arms the
// listener. Timeline and run-state events carry no payload, so the handler
// re-reads the controller snapshots.
func (m *Model) handleClientEvent(ev client.Event) (tea.Model, tea.Cmd) {
	relisten := listenForEvents(m.ctx, m.events)

	switch ev.Kind {
	case client.EventTimeline:
		m.messages = m.ctrl.Messages()
		m.showLatest()

	case client.EventRunState:
		prev := m.state
		m.syncState()
		m.rebuildViewportContent()
		if prev != StateInput && m.state == StateInput {
			// Re-focus the textarea when the run ends
			return m, tea.Batch(relisten, m.input.Focus())
		}

	case client.EventNotice:
		if !m.canceling {
			m.setPanel(ev.Notice.Message, true)
			m.showLatest()
		}
	}

	return m, relisten
}
