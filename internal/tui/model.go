// Package tui is the terminal chat interface. It is a pure consumer of
// internal/client: the timeline it renders is always a controller snapshot,
// submissions go through Controller.SubmitStream, and thread switching goes
// through the Coordinator. The TUI never mutates conversation state itself.
package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/docent-ai/docent/internal/client"
	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/timeline"
)

// State is the interface state machine. It mirrors the controller's run
// state with one extra distinction: StateThinking covers both request setup
// and the wait for the first chunk.
type State int

const (
	StateInput     State = iota // composing a question
	StateThinking               // submitted, no chunk yet
	StateStreaming              // answer chunks arriving
)

// maxHistory bounds the input history ring.
const maxHistory = 100

// streamTimeout is the outer guard on a single chat run. The gateway applies
// its own per-request timeout underneath; this one exists so a wedged run can
// never hold the interface forever.
const streamTimeout = 5 * time.Minute

// Fixed rows around the viewport; the window size handler subtracts
// these from the terminal height.
const (
	separatorLines = 2 // above and below the input
	helpLines      = 1
	promptLines    = 1
	minViewport    = 3
)

// Model is the Bubble Tea model for the docent chat interface.
type Model struct {
	ctrl   *client.Controller
	coord  *client.Coordinator
	events <-chan client.Event
	logger log.Logger

	// Input line; the textarea gives Shift+Enter newlines. history is the
	// submitted-line ring, historyIdx the cursor into it.
	input      textarea.Model
	history    []string
	historyIdx int

	state     State
	lastCtrlC time.Time
	canceling bool // user aborted the run; suppress the failure notification

	// Rendering inputs. messages is the last controller snapshot; panel is a
	// transient block under the conversation (notifications, /help output,
	// thread listings), cleared on the next submission.
	messages []timeline.Message
	panel    string
	panelErr bool

	// threads caches the last /threads listing so /switch and /delete can
	// take a 1-based index.
	threads []client.Thread

	spinner  spinner.Model
	viewBuf  strings.Builder // reused across View calls
	viewport viewport.Model

	// Footer help bar
	help help.Model
	keys keyMap

	// Run management. The run goroutine owns the streamEvent channel and
	// always delivers a completion signal; Bubble Tea's event loop provides
	// the synchronization.
	streamCancel  context.CancelFunc
	streamEventCh <-chan streamEvent

	ctx       context.Context
	ctxCancel context.CancelFunc // cancels everything on exit

	// Terminal size, from the last WindowSizeMsg
	width  int
	height int

	styles Styles

	// markdown is nil when glamour construction fails; rendering then
	// falls back to plain text.
	markdown *markdownRenderer
}

// New creates a Model over the given controller and coordinator. ctx must
// be the context later handed to tea.WithContext, so cancellation reaches
// the program and the model's goroutines together.
func New(ctx context.Context, ctrl *client.Controller, coord *client.Coordinator, logger log.Logger) (*Model, error) {
	switch {
	case ctx == nil:
		return nil, errors.New("tui.New: nil context")
	case ctrl == nil:
		return nil, errors.New("tui.New: nil controller")
	case coord == nil:
		return nil, errors.New("tui.New: nil coordinator")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	ctx, cancel := context.WithCancel(ctx)

	ta := textarea.New()
	ta.Placeholder = "Ask about Godot, Terrain3D, or VoxelTools..."
	ta.SetHeight(1)  // grows with wrapped input
	ta.SetWidth(120) // updated on WindowSizeMsg
	ta.MaxWidth = 0
	ta.ShowLineNumbers = false

	// No backgrounds, just text; the surrounding chrome does the styling.
	bare := lipgloss.NewStyle()
	plain := textarea.StyleState{
		Base:        bare,
		Text:        bare,
		Placeholder: bare.Foreground(lipgloss.Color("240")),
		Prompt:      bare,
	}
	ta.SetStyles(textarea.Styles{Focused: plain, Blurred: plain})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	// The viewport's own key handling is disabled; handleKey routes scroll
	// keys explicitly so they cannot conflict with the textarea or history
	// navigation.
	vp := viewport.New(viewport.WithWidth(defaultWrapWidth), viewport.WithHeight(20))
	vp.MouseWheelEnabled = true
	vp.SoftWrap = true
	vp.KeyMap = viewport.KeyMap{}

	return &Model{
		ctrl:      ctrl,
		coord:     coord,
		events:    ctrl.Events(),
		logger:    logger,
		ctx:       ctx,
		ctxCancel: cancel,
		input:     ta,
		spinner:   sp,
		viewport:  vp,
		help:      help.New(),
		keys:      newKeyMap(),
		styles:    DefaultStyles(),
		history:   make([]string, 0, maxHistory),
		messages:  ctrl.Messages(),
		markdown:  newMarkdownRenderer(defaultWrapWidth),
		width:     defaultWrapWidth,
	}, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.input.Focus(),
		listenForEvents(m.ctx, m.events),
	)
}

// syncState maps the controller's run state onto the interface state.
func (m *Model) syncState() {
	switch m.ctrl.State() {
	case client.StateSubmitting:
		m.state = StateThinking
	case client.StateStreaming:
		m.state = StateStreaming
	default:
		m.state = StateInput
	}
}

// awaitingFirstChunk reports whether a streaming run has produced no answer
// text yet, which is when the thinking affordance still shows. The streaming
// accumulator is always the trailing timeline entry while a run is live.
func (m *Model) awaitingFirstChunk() bool {
	if len(m.messages) == 0 {
		return true
	}
	last := m.messages[len(m.messages)-1]
	return last.Role == timeline.RoleAssistant && last.Content == ""
}

// pushHistory appends an input line and enforces the maxHistory bound.
func (m *Model) pushHistory(line string) {
	m.history = append(m.history, line)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.historyIdx = len(m.history)
}

// setPanel replaces the transient block under the conversation.
func (m *Model) setPanel(text string, isErr bool) {
	m.panel = text
	m.panelErr = isErr
}
