package client

import (
	"context"
	"fmt"

	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/timeline"
)

// Coordinator moves the visible conversation between stored threads. Every
// switch persists the current thread id first, unconditionally, so a
// restart reopens the same conversation even when the switch itself then
// fails.
type Coordinator struct {
	threads ThreadBackend
	ctrl    *Controller
	logger  log.Logger
}

// NewCoordinator builds a Coordinator over the given thread backend and
// controller.
func NewCoordinator(threads ThreadBackend, ctrl *Controller, logger log.Logger) (*Coordinator, error) {
	if threads == nil {
		return nil, fmt.Errorf("coordinator: thread backend is required")
	}
	if ctrl == nil {
		return nil, fmt.Errorf("coordinator: controller is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Coordinator{threads: threads, ctrl: ctrl, logger: logger}, nil
}

// SwitchTo makes th the current conversation. The thread id is persisted
// before anything else. A thread without stored values yields an empty
// timeline; otherwise the stored snapshot is reconstructed and replaces
// the timeline wholesale. A run in flight is not cancelled; its result is
// simply never shown. A malformed snapshot is a data defect and is
// returned rather than rendered partially.
func (c *Coordinator) SwitchTo(th Thread) error {
	if err := SaveCurrentThreadID(th.ID); err != nil {
		c.logger.Warn("could not persist current thread", "thread_id", th.ID, "error", err)
	}

	if !th.HasValues() {
		c.ctrl.ReplaceTimeline(th.ID, nil)
		return nil
	}

	snap, err := th.Snapshot()
	if err != nil {
		return fmt.Errorf("switch thread %s: %w", th.ID, err)
	}
	messages, err := timeline.Reconstruct(snap)
	if err != nil {
		return fmt.Errorf("switch thread %s: %w", th.ID, err)
	}
	c.ctrl.ReplaceTimeline(th.ID, messages)
	return nil
}

// SwitchByID fetches a stored thread and switches to it. The thread id is
// persisted before the fetch, the way a deep link lands before the page
// loads. A fetch failure surfaces as a notification and leaves the
// current timeline in place.
func (c *Coordinator) SwitchByID(ctx context.Context, threadID string) error {
	if err := SaveCurrentThreadID(threadID); err != nil {
		c.logger.Warn("could not persist current thread", "thread_id", threadID, "error", err)
	}

	th, err := c.threads.FetchThread(ctx, threadID)
	if err != nil {
		c.ctrl.notifyError(err)
		return err
	}
	return c.SwitchTo(th)
}

// Restore reopens the persisted current thread. It returns the restored
// thread id, or "" when none was persisted.
func (c *Coordinator) Restore(ctx context.Context) (string, error) {
	id, err := LoadCurrentThreadID()
	if err != nil || id == "" {
		return "", err
	}
	if err := c.SwitchByID(ctx, id); err != nil {
		return "", err
	}
	return id, nil
}

// NewConversation detaches from any stored thread and clears the timeline.
func (c *Coordinator) NewConversation() {
	if err := ClearCurrentThreadID(); err != nil {
		c.logger.Warn("could not clear current thread", "error", err)
	}
	c.ctrl.ReplaceTimeline("", nil)
}

// StartThread creates a stored thread for the controller's identity and
// switches to it, so the following exchanges persist server-side.
func (c *Coordinator) StartThread(ctx context.Context, name string) (Thread, error) {
	th, err := c.threads.CreateThread(ctx, c.ctrl.UserID(), name)
	if err != nil {
		c.ctrl.notifyError(err)
		return Thread{}, err
	}
	if err := c.SwitchTo(th); err != nil {
		return Thread{}, err
	}
	return th, nil
}

// List returns the stored threads for the controller's identity, newest
// first.
func (c *Coordinator) List(ctx context.Context) ([]Thread, error) {
	threads, err := c.threads.ListThreads(ctx, c.ctrl.UserID())
	if err != nil {
		c.ctrl.notifyError(err)
		return nil, err
	}
	return threads, nil
}

// DeleteThread removes a stored thread. Deleting the current one detaches
// the conversation.
func (c *Coordinator) DeleteThread(ctx context.Context, threadID string) error {
	if err := c.threads.DeleteThread(ctx, threadID); err != nil {
		c.ctrl.notifyError(err)
		return err
	}
	if c.ctrl.CurrentThread() == threadID {
		c.NewConversation()
	}
	return nil
}
