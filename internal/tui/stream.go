package tui

import (
	"context"
	"fmt"

	tea "charm.land/bubbletea/v2"

	"github.com/docent-ai/docent/internal/client"
)

// streamEvent is the discriminated completion signal of one chat run.
// Answer chunks never travel through this channel: the controller fills the
// streaming accumulator in place and announces it on its own event channel,
// so the run goroutine only has the outcome to report.
type streamEvent struct {
	done bool  // SubmitStream returned successfully
	err  error // Terminal failure, including recovered panics
}

// Messages the run goroutine and the listeners feed back into Update.
type streamStartedMsg struct {
	eventCh <-chan streamEvent
	cancel  context.CancelFunc
}

type streamDoneMsg struct{}

type streamErrorMsg struct {
	err error
}

// clientEventMsg wraps one controller observer event. Timeline and run-state
// events carry no payload; Update re-reads the controller snapshots.
type clientEventMsg struct {
	event client.Event
}

// startStream creates a command that runs one streaming exchange through the
// controller.
//
// Goroutine lifecycle: SubmitStream blocks for the whole run, appending the
// human message and filling the assistant accumulator as chunks arrive; each
// mutation surfaces as a controller event that listenForEvents picks up. The
// goroutine exits when SubmitStream returns, which it does on completion,
// failure, or context cancellation.
//
// eventCh is buffered so the final send never blocks, and closed so the
// listener wakes even if that send was somehow lost.
func (m *Model) startStream(input string) tea.Cmd {
	return func() tea.Msg {
		eventCh := make(chan streamEvent, 1)

		// Outer timeout so a wedged backend can never hold the run forever
		ctx, cancel := context.WithTimeout(m.ctx, streamTimeout)

		go func() {
			// cancel releases the timeout timer
			defer cancel()
			defer close(eventCh)

			// A controller panic becomes a stream error, not a dead terminal
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("chat run panic recovered", "panic", r)
					select {
					case eventCh <- streamEvent{err: fmt.Errorf("chat run panic: %v", r)}:
					default:
					}
				}
			}()

			if err := m.ctrl.SubmitStream(ctx, input); err != nil {
				eventCh <- streamEvent{err: err}
				return
			}
			eventCh <- streamEvent{done: true}
		}()

		return streamStartedMsg{
			eventCh: eventCh,
			cancel:  cancel,
		}
	}
}

// listenForStream creates a command that waits for the run's completion
// signal. The channel carries exactly one event before closing; a bare close
// is mapped to an error so the interface always leaves the running state.
func listenForStream(eventCh <-chan streamEvent) tea.Cmd {
	return func() tea.Msg {
		if eventCh == nil {
			return nil
		}

		event, ok := <-eventCh
		if !ok {
			return streamErrorMsg{err: fmt.Errorf("chat run ended without completion signal")}
		}
		if event.err != nil {
			return streamErrorMsg{err: event.err}
		}
		return streamDoneMsg{}
	}
}

// listenForEvents creates a command that waits for the next controller
// event. Update re-schedules it on every receipt, so the interface follows
// timeline changes for the life of the program; the channel itself never
// closes, so ctx is the only way out.
func listenForEvents(ctx context.Context, events <-chan client.Event) tea.Cmd {
	return func() tea.Msg {
		if events == nil {
			return nil
		}
		select {
		case ev := <-events:
			return clientEventMsg{event: ev}
		case <-ctx.Done():
			return nil
		}
	}
}
