package tui

import (
	"strings"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
)

// Slash commands the input line accepts.
const (
	cmdHelp    = "/help"
	cmdClear   = "/clear"
	cmdThreads = "/threads"
	cmdThread  = "/thread"
	cmdSwitch  = "/switch"
	cmdDelete  = "/delete"
	cmdModel   = "/model"
	cmdExit    = "/exit"
	cmdQuit    = "/quit"
)

const helpText = `Commands:
  /help             show this help
  /clear            start a fresh conversation (detaches from any thread)
  /threads          list your saved threads
  /thread <name>    start a new saved thread
  /switch <n|id>    open a thread by listing number or id
  /delete <n|id>    delete a thread by listing number or id
  /model [name]     show or select the answer model
  /exit             leave docent
Shortcuts:
  Enter: send    Shift+Enter: newline    Ctrl+C: cancel/clear
  Ctrl+D: exit   Up/Down: history        PgUp/PgDn: scroll`

// keyMap feeds the help bar. Dispatch itself happens in handleKey; these
// bindings only describe the shortcuts.
type keyMap struct {
	Submit     key.Binding
	NewLine    key.Binding
	History    key.Binding
	Cancel     key.Binding
	Quit       key.Binding
	ScrollUp   key.Binding
	ScrollDown key.Binding
	EscCancel  key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Submit:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		NewLine:    key.NewBinding(key.WithKeys("shift+enter"), key.WithHelp("s+enter", "newline")),
		History:    key.NewBinding(key.WithKeys("up", "down"), key.WithHelp("↑/↓", "history")),
		Cancel:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "cancel")),
		Quit:       key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "exit")),
		ScrollUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		EscCancel:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

//nolint:gocyclo // one branch per shortcut
func (m *Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	if k.Mod&tea.ModCtrl != 0 {
		switch k.Code {
		case 'c':
			return m.handleCtrlC()
		case 'd':
			return m, m.cleanup()
		}
	}

	switch k.Code {
	case tea.KeyEnter:
		// Shift+Enter falls through to the textarea as a newline.
		if m.state == StateInput && k.Mod&tea.ModShift == 0 {
			return m.handleSubmit()
		}

	case tea.KeyUp:
		// History only from the edge rows; inner rows move the cursor.
		if m.state == StateInput && m.input.Line() == 0 {
			return m.navigateHistory(-1)
		}

	case tea.KeyDown:
		if m.state == StateInput && m.input.Line() == m.input.LineCount()-1 {
			return m.navigateHistory(1)
		}

	case tea.KeyEscape:
		if m.state == StateThinking || m.state == StateStreaming {
			m.cancelRun()
			m.rebuildViewportContent()
			return m, nil
		}

	case tea.KeyPgUp:
		m.viewport.PageUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.PageDown()
		return m, nil
	}

	// Pass keys to textarea for typing - ALWAYS allow typing even during
	// streaming so the next question can be prepared while docent answers
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleCtrlC() (tea.Model, tea.Cmd) {
	// A second Ctrl+C inside a second quits outright.
	now := time.Now()
	if now.Sub(m.lastCtrlC) < time.Second {
		return m, m.cleanup()
	}
	m.lastCtrlC = now

	switch m.state {
	case StateInput:
		m.input.Reset()

	case StateThinking, StateStreaming:
		m.cancelRun()
		m.rebuildViewportContent()
	}

	return m, nil
}

func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		return m, nil
	}
	if strings.HasPrefix(query, "/") {
		return m.handleSlashCommand(query)
	}

	m.pushHistory(query)
	m.input.Reset()
	m.canceling = false
	m.setPanel("", false)

	// Thinking until the controller reports progress; the human message
	// itself arrives as a timeline event.
	m.state = StateThinking
	m.rebuildViewportContent()
	m.viewport.GotoBottom()

	return m, tea.Batch(
		m.spinner.Tick,
		m.startStream(query),
	)
}

func (m *Model) handleSlashCommand(raw string) (tea.Model, tea.Cmd) {
	m.canceling = false
	fields := strings.Fields(raw)
	cmd := fields[0]
	arg := strings.Join(fields[1:], " ")
	m.input.Reset()

	switch cmd {
	case cmdHelp:
		m.setPanel(helpText, false)

	case cmdClear:
		m.coord.NewConversation()
		m.setPanel("", false)

	case cmdThreads:
		m.setPanel("Loading threads...", false)
		m.rebuildViewportContent()
		return m, m.listThreads()

	case cmdThread:
		if arg == "" {
			m.setPanel("Usage: /thread <name>", true)
			break
		}
		m.rebuildViewportContent()
		return m, m.startThread(arg)

	case cmdSwitch:
		id, ok := m.resolveThreadArg(arg, "Usage: /switch <number|thread-id>")
		if !ok {
			break
		}
		m.rebuildViewportContent()
		return m, m.switchThread(id)

	case cmdDelete:
		id, ok := m.resolveThreadArg(arg, "Usage: /delete <number|thread-id>")
		if !ok {
			break
		}
		m.rebuildViewportContent()
		return m, m.deleteThread(id)

	case cmdModel:
		if arg == "" {
			m.setPanel(renderModelList(m.ctrl.Models(), m.ctrl.Model()), false)
			break
		}
		m.ctrl.SetModel(arg)
		m.setPanel("Model set to "+arg+".", false)

	case cmdExit, cmdQuit:
		return m, m.cleanup()

	default:
		m.setPanel("Unknown command: "+cmd+". Try /help.", true)
	}

	m.rebuildViewportContent()
	m.viewport.GotoBottom()
	return m, nil
}

// navigateHistory moves through submitted lines; the position one past the
// newest entry restores an empty input.
func (m *Model) navigateHistory(delta int) (tea.Model, tea.Cmd) {
	if len(m.history) == 0 {
		return m, nil
	}

	m.historyIdx = min(max(m.historyIdx+delta, 0), len(m.history))
	if m.historyIdx == len(m.history) {
		m.input.SetValue("")
	} else {
		m.input.SetValue(m.history[m.historyIdx])
		m.input.CursorEnd()
	}
	return m, nil
}

// cancelRun aborts the in-flight run. The controller rolls the timeline back
// and returns to idle on its own; the canceling flag replaces its failure
// notification with a plain cancel note.
func (m *Model) cancelRun() {
	m.canceling = true
	m.cancelStream()
	m.setPanel("(Canceled)", false)
}

func (m *Model) cancelStream() {
	if m.streamCancel != nil {
		m.streamCancel()
		m.streamCancel = nil
	}
}

// cleanup cancels any active run and returns the quit command. Canceling the
// main context also releases the controller event listener.
func (m *Model) cleanup() tea.Cmd {
	if m.ctxCancel != nil {
		m.ctxCancel()
		m.ctxCancel = nil
	}

	m.cancelStream()
	m.streamEventCh = nil

	return tea.Quit
}
