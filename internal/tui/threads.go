package tui

import (
	"strconv"
	"strings"

	tea "charm.land/bubbletea/v2"

	"github.com/docent-ai/docent/internal/client"
)

// Thread operation results. Each coordinator call runs inside a command so
// the event loop never blocks on the backend.
type threadsListedMsg struct {
	threads []client.Thread
	err     error
}

type threadStartedMsg struct {
	thread client.Thread
	err    error
}

type threadSwitchedMsg struct {
	id  string
	err error
}

type threadDeletedMsg struct {
	id  string
	err error
}

func (m *Model) listThreads() tea.Cmd {
	return func() tea.Msg {
		threads, err := m.coord.List(m.ctx)
		return threadsListedMsg{threads: threads, err: err}
	}
}

func (m *Model) startThread(name string) tea.Cmd {
	return func() tea.Msg {
		th, err := m.coord.StartThread(m.ctx, name)
		return threadStartedMsg{thread: th, err: err}
	}
}

func (m *Model) switchThread(id string) tea.Cmd {
	return func() tea.Msg {
		err := m.coord.SwitchByID(m.ctx, id)
		return threadSwitchedMsg{id: id, err: err}
	}
}

func (m *Model) deleteThread(id string) tea.Cmd {
	return func() tea.Msg {
		err := m.coord.DeleteThread(m.ctx, id)
		return threadDeletedMsg{id: id, err: err}
	}
}

// resolveThreadArg turns a /switch or /delete argument into a thread id. A
// small number indexes the last /threads listing (1-based); anything else is
// taken as a thread id verbatim. A failed resolution sets the panel and
// reports false.
func (m *Model) resolveThreadArg(arg, usage string) (string, bool) {
	if arg == "" {
		m.setPanel(usage, true)
		return "", false
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return arg, true
	}
	if n < 1 || n > len(m.threads) {
		m.setPanel("No thread numbered "+arg+" in the last listing. Run /threads first.", true)
		return "", false
	}
	return m.threads[n-1].ID, true
}

// renderThreadList formats a /threads listing. The numbers feed /switch and
// /delete; the short id is just a visual anchor.
func renderThreadList(threads []client.Thread) string {
	if len(threads) == 0 {
		return "No saved threads yet. Start one with /thread <name>."
	}

	var b strings.Builder
	b.WriteString("Threads:\n")
	for i, th := range threads {
		name := th.Name
		if name == "" {
			name = "(unnamed)"
		}
		b.WriteString("  ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(name)
		if !th.UpdatedAt.IsZero() {
			b.WriteString("  ")
			b.WriteString(th.UpdatedAt.Format("2006-01-02 15:04"))
		}
		b.WriteString("  [")
		b.WriteString(shortID(th.ID))
		b.WriteString("]\n")
	}
	b.WriteString("Open one with /switch <number>.")
	return b.String()
}

func renderModelList(models []string, current string) string {
	if len(models) == 0 {
		return "Current model: " + current
	}
	var b strings.Builder
	b.WriteString("Models:\n")
	for _, id := range models {
		marker := "  "
		if id == current {
			marker = "* "
		}
		b.WriteString("  ")
		b.WriteString(marker)
		b.WriteString(id)
		b.WriteString("\n")
	}
	b.WriteString("Select one with /model <name>.")
	return b.String()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
