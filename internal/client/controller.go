package client

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/docent-ai/docent/internal/log"
	"github.com/docent-ai/docent/internal/timeline"
)

// RunState is the lifecycle of the active run.
type RunState int

const (
	// StateIdle accepts new submissions.
	StateIdle RunState = iota
	// StateSubmitting covers validation and request setup.
	StateSubmitting
	// StateStreaming covers the in-flight backend call.
	StateStreaming
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	// Backend handles chat submission. Required.
	Backend ChatBackend

	// UserID is the submission identity. It may be set later with
	// SetUserID; submitting without one fails with ErrIdentityMissing.
	UserID string

	// Model is the selected model identifier, passed through to the
	// backend verbatim. Defaults to the first entry of Models.
	Model string

	// Models is the advisory set of model identifiers the UI offers.
	// Selection is not validated against it.
	Models []string

	Logger log.Logger
}

// Controller owns the visible conversation timeline and the lifecycle of
// the active run. Exactly one run is active at a time; only StateIdle
// accepts a submission. Failures never leave partial content behind: the
// timeline is restored to its pre-submit state and a single notification
// is emitted.
//
// State is guarded by a mutex so the render loop and the stream reader can
// observe it concurrently, but the Idle gate keeps mutation down to one
// logical operation at a time.
type Controller struct {
	backend ChatBackend
	logger  log.Logger

	mu       sync.RWMutex
	userID   string
	threadID string
	model    string
	models   []string
	state    RunState
	runID    string
	messages []timeline.Message

	events chan Event
}

// NewController validates cfg and builds a Controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("controller: backend is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	model := cfg.Model
	if model == "" && len(cfg.Models) > 0 {
		model = cfg.Models[0]
	}
	return &Controller{
		backend: cfg.Backend,
		logger:  logger,
		userID:  cfg.UserID,
		model:   model,
		models:  slices.Clone(cfg.Models),
		state:   StateIdle,
		events:  make(chan Event, 64),
	}, nil
}

// Events returns the observer channel. Sends never block; when an observer
// falls behind, duplicate timeline/run-state signals are dropped and
// coalesce on the next read.
func (c *Controller) Events() <-chan Event { return c.events }

// Messages returns a snapshot copy of the visible timeline.
func (c *Controller) Messages() []timeline.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.messages)
}

// State returns the current run state.
func (c *Controller) State() RunState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsStreaming reports whether a run is in flight in any phase.
func (c *Controller) IsStreaming() bool { return c.State() != StateIdle }

// RunID returns the active run handle, empty when idle.
func (c *Controller) RunID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runID
}

// UserID returns the submission identity.
func (c *Controller) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// SetUserID sets the submission identity.
func (c *Controller) SetUserID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userID = id
}

// Model returns the selected model identifier.
func (c *Controller) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// SetModel selects a model identifier. It is passed through to the backend
// verbatim; an in-flight run keeps the model it was started with.
func (c *Controller) SetModel(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = id
}

// Models returns the advisory model identifiers offered to the UI.
func (c *Controller) Models() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.models)
}

// CurrentThread returns the active thread id, empty when the conversation
// is not attached to a stored thread.
func (c *Controller) CurrentThread() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.threadID
}

// ReplaceTimeline swaps the visible timeline wholesale and binds the
// controller to threadID. Any active run handle is invalidated: an
// in-flight call keeps running, but its eventual result is discarded when
// it completes against a stale handle.
func (c *Controller) ReplaceTimeline(threadID string, messages []timeline.Message) {
	c.mu.Lock()
	c.threadID = threadID
	c.messages = slices.Clone(messages)
	c.runID = ""
	c.state = StateIdle
	c.mu.Unlock()
	c.emit(Event{Kind: EventTimeline})
	c.emit(Event{Kind: EventRunState})
}

// Submit runs one synchronous exchange: the human message goes up with the
// accumulated history, and on success exactly one fresh assistant message
// carrying the answer is appended. On failure the timeline is restored to
// its pre-submit state and one notification fires. The returned error
// mirrors the notification for callers that want control flow.
func (c *Controller) Submit(ctx context.Context, input string) error {
	run, err := c.begin(input, false)
	if err != nil {
		return err
	}
	c.advance(run, StateStreaming)

	answer, err := c.backend.SubmitChat(ctx, run.threadID, run.payload, run.model)
	if err != nil {
		c.fail(run, err)
		return err
	}
	c.finish(run, answer)
	return nil
}

// SubmitStream runs one streaming exchange. The assistant accumulator is
// appended next to the human message at entry and filled in place as
// chunks arrive, so observers see the answer grow. Failure semantics match
// Submit: full rollback, one notification.
func (c *Controller) SubmitStream(ctx context.Context, input string) error {
	run, err := c.begin(input, true)
	if err != nil {
		return err
	}

	stream, err := c.backend.StreamChat(ctx, run.threadID, run.payload, run.model)
	if err != nil {
		c.fail(run, err)
		return err
	}
	defer stream.Cancel()
	c.advance(run, StateStreaming)

	var acc strings.Builder
	for ev := range stream.Events {
		switch ev.Kind {
		case StreamChunk:
			acc.WriteString(ev.Text)
			c.fillAccumulator(run, acc.String())

		case StreamDone:
			answer := ev.Result.Answer
			if answer == "" {
				answer = acc.String()
			}
			c.finish(run, answer)
			return nil

		case StreamFailed:
			c.fail(run, ev.Err)
			return ev.Err
		}
	}

	err = fmt.Errorf("%w: stream closed before completing", ErrBackendUnavailable)
	c.fail(run, err)
	return err
}

// activeRun carries one submission's immutable inputs plus the rollback
// snapshot. The run id doubles as the staleness check: if the controller's
// handle moved on (thread switch), completion is discarded.
type activeRun struct {
	id       string
	threadID string
	model    string
	payload  []timeline.RawMessage
	accID    string
	prior    []timeline.Message
}

// begin gates a submission and applies the entry mutations: identity
// check before anything else, Idle gate, fresh run handle, then the human
// message (and streaming accumulator) appended to the timeline.
func (c *Controller) begin(input string, withAccumulator bool) (*activeRun, error) {
	c.mu.Lock()
	if c.userID == "" {
		c.mu.Unlock()
		c.notifyError(ErrIdentityMissing)
		return nil, ErrIdentityMissing
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil, ErrRunActive
	}

	c.runID = ""
	human := timeline.NewHuman(input)
	run := &activeRun{
		id:       uuid.NewString(),
		threadID: c.threadID,
		model:    c.model,
		prior:    slices.Clone(c.messages),
	}
	c.messages = append(c.messages, human)
	run.payload = timeline.History(c.messages)
	if withAccumulator {
		accumulator := timeline.NewAssistant("")
		run.accID = accumulator.ID
		c.messages = append(c.messages, accumulator)
	}
	c.runID = run.id
	c.state = StateSubmitting
	c.mu.Unlock()

	c.emit(Event{Kind: EventTimeline})
	c.emit(Event{Kind: EventRunState})
	return run, nil
}

// advance moves the run to the next state unless the handle went stale.
func (c *Controller) advance(run *activeRun, next RunState) {
	c.mu.Lock()
	if c.runID != run.id {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()
	c.emit(Event{Kind: EventRunState})
}

// fillAccumulator replaces the streaming accumulator's content in place,
// matching by id.
func (c *Controller) fillAccumulator(run *activeRun, content string) {
	c.mu.Lock()
	if c.runID != run.id {
		c.mu.Unlock()
		return
	}
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == run.accID {
			c.messages[i].Content = content
			break
		}
	}
	c.mu.Unlock()
	c.emit(Event{Kind: EventTimeline})
}

// finish applies the success mutations and returns the controller to idle.
func (c *Controller) finish(run *activeRun, answer string) {
	c.mu.Lock()
	if c.runID != run.id {
		c.mu.Unlock()
		c.logger.Debug("discarding result of abandoned run", "run_id", run.id)
		return
	}
	if run.accID != "" {
		for i := len(c.messages) - 1; i >= 0; i-- {
			if c.messages[i].ID == run.accID {
				c.messages[i].Content = answer
				break
			}
		}
	} else {
		c.messages = append(c.messages, timeline.NewAssistant(answer))
	}
	c.runID = ""
	c.state = StateIdle
	c.mu.Unlock()

	c.emit(Event{Kind: EventTimeline})
	c.emit(Event{Kind: EventRunState})
}

// fail restores the pre-submit timeline, returns to idle, and emits the
// single failure notification.
func (c *Controller) fail(run *activeRun, cause error) {
	c.mu.Lock()
	if c.runID != run.id {
		c.mu.Unlock()
		c.logger.Debug("discarding failure of abandoned run", "run_id", run.id, "error", cause)
		return
	}
	c.messages = run.prior
	c.runID = ""
	c.state = StateIdle
	c.mu.Unlock()

	c.emit(Event{Kind: EventTimeline})
	c.emit(Event{Kind: EventRunState})
	c.notifyError(cause)
}

// notifyError logs the cause and emits one user-visible notification.
func (c *Controller) notifyError(cause error) {
	msg := "Something went wrong. Please try again."
	switch {
	case errors.Is(cause, ErrIdentityMissing):
		msg = "No user identity is set. Configure user_id or let docent generate one."
	case errors.Is(cause, ErrBackendUnavailable):
		msg = "The docent backend is unreachable. Is the server running?"
	}
	c.logger.Warn("chat run failed", "error", cause)
	c.emit(Event{Kind: EventNotice, Notice: Notification{Message: msg, Err: cause}})
}

// emit delivers an event without blocking. Observers re-read snapshots per
// event, so a dropped duplicate signal is harmless.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Debug("dropping observer event", "kind", int(ev.Kind))
	}
}
