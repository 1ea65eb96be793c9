package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/docent-ai/docent/internal/graph"
	"github.com/docent-ai/docent/internal/thread"
	"github.com/docent-ai/docent/internal/timeline"
)

// maxChatBodyBytes caps chat request bodies. Conversations are text; 1MB
// covers long histories with room to spare.
const maxChatBodyBytes = 1 << 20

// chatHandler holds dependencies for the chat endpoints. Both endpoints
// run the same flow; starting a run with a thread id persists the finished
// exchange into that thread.
type chatHandler struct {
	flow    *graph.Flow
	threads *thread.Store // nil disables exchange persistence
	logger  *slog.Logger
}

// chatRequest is the body of both chat endpoints. ThreadID is optional;
// when set the exchange is appended to that thread's stored values after
// the run completes.
type chatRequest struct {
	Messages []timeline.RawMessage `json:"messages"`
	Model    string                `json:"model,omitempty"`
	ThreadID string                `json:"thread_id,omitempty"`
}

// ChatResponse is the final result of one exchange. It is the JSON body of
// POST /api/chat and the data payload of the stream's done event.
type ChatResponse struct {
	Answer    string              `json:"answer"`
	Router    timeline.Router     `json:"router"`
	Documents []timeline.Document `json:"documents,omitempty"`
}

// Event types on the chat stream. A stream is zero or more chunk events
// followed by exactly one terminal event.
const (
	EventChunk = "chunk" // carries ChunkPayload
	EventDone  = "done"  // terminal, carries ChatResponse
	EventError = "error" // terminal, carries ErrorPayload
)

// ChunkPayload is one piece of streamed answer text.
type ChunkPayload struct {
	Text string `json:"text"`
}

// ErrorPayload closes a failed stream. Code is machine-readable; Message
// is for display.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errThreadsDisabled reports a thread id on a server without a thread store.
var errThreadsDisabled = errors.New("thread persistence is not configured")

// send handles POST /api/chat: one synchronous exchange.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	target, err := h.resolveThread(r, req.ThreadID)
	if err != nil {
		if errors.Is(err, thread.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "thread not found", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_thread", err.Error(), h.logger)
		return
	}

	out, err := h.flow.Run(r.Context(), graph.Input{Messages: req.Messages, Model: req.Model})
	if err != nil {
		if errors.Is(err, graph.ErrEmptyConversation) {
			WriteError(w, http.StatusBadRequest, "empty_conversation", "the conversation has no user message", h.logger)
			return
		}
		h.logger.Error("running chat", "error", err, "thread_id", req.ThreadID)
		WriteError(w, http.StatusInternalServerError, "chat_failed", "failed to answer the question", h.logger)
		return
	}

	if target != uuid.Nil {
		if err := h.persistExchange(r, target, req.Messages, out); err != nil {
			h.logger.Error("persisting exchange", "error", err, "thread_id", req.ThreadID)
			WriteError(w, http.StatusInternalServerError, "persist_failed", "failed to persist the exchange", h.logger)
			return
		}
	}

	WriteJSON(w, http.StatusOK, ChatResponse{
		Answer:    out.Answer,
		Router:    out.Router,
		Documents: out.Documents,
	}, h.logger)
}

// stream handles POST /api/chat/stream: SSE streaming chat. Answer text
// streams as chunk events; exactly one terminal event (done or error)
// closes the stream.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "response writer does not support streaming", http.StatusInternalServerError)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodyBytes)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = writeEvent(w, flusher, EventError, ErrorPayload{
			Code:    "INVALID_REQUEST",
			Message: "invalid request body",
		})
		return
	}

	target, err := h.resolveThread(r, req.ThreadID)
	if err != nil {
		code := "INVALID_THREAD"
		if errors.Is(err, thread.ErrNotFound) {
			code = "THREAD_NOT_FOUND"
		}
		_ = writeEvent(w, flusher, EventError, ErrorPayload{Code: code, Message: err.Error()})
		return
	}

	ctx := r.Context()
	h.logger.Debug("chat stream started", "thread_id", req.ThreadID)

	var (
		finalOutput graph.Output
		streamErr   error
		chunks      int
	)

	for value, err := range h.flow.Stream(ctx, graph.Input{Messages: req.Messages, Model: req.Model}) {
		select {
		case <-ctx.Done():
			h.logger.Info("client disconnected mid-stream", "thread_id", req.ThreadID)
			return
		default:
		}

		if err != nil {
			streamErr = err
			break
		}

		if value.Done {
			finalOutput = value.Output
			break
		}

		if value.Stream.Text != "" {
			chunks++
			if err := writeEvent(w, flusher, EventChunk, ChunkPayload{Text: value.Stream.Text}); err != nil {
				// Write failure usually means the connection closed.
				h.logger.Debug("writing chunk", "error", err)
				return
			}
		}
	}

	if streamErr != nil {
		h.handleStreamError(w, flusher, streamErr)
		return
	}

	if target != uuid.Nil {
		if err := h.persistExchange(r, target, req.Messages, finalOutput); err != nil {
			h.logger.Error("persisting exchange", "error", err, "thread_id", req.ThreadID)
			_ = writeEvent(w, flusher, EventError, ErrorPayload{
				Code:    "PERSIST_FAILED",
				Message: "failed to persist the exchange",
			})
			return
		}
	}

	_ = writeEvent(w, flusher, EventDone, ChatResponse{
		Answer:    finalOutput.Answer,
		Router:    finalOutput.Router,
		Documents: finalOutput.Documents,
	})

	h.logger.Debug("chat stream completed", "thread_id", req.ThreadID, "chunks", chunks)
}

// handleStreamError maps pipeline failures to SSE error events.
func (h *chatHandler) handleStreamError(w io.Writer, f http.Flusher, err error) {
	code := "STREAM_ERROR"
	switch {
	case errors.Is(err, graph.ErrEmptyConversation):
		code = "EMPTY_CONVERSATION"
	case errors.Is(err, graph.ErrExecutionFailed):
		code = "EXECUTION_FAILED"
	}

	h.logger.Error("chat stream failed", "error", err, "code", code)
	_ = writeEvent(w, f, EventError, ErrorPayload{
		Code:    code,
		Message: err.Error(),
	})
}

// resolveThread validates the persistence target before the run starts, so
// a bad thread id fails fast instead of after a full model run. An empty
// id means no persistence and resolves to uuid.Nil.
func (h *chatHandler) resolveThread(r *http.Request, threadID string) (uuid.UUID, error) {
	if threadID == "" {
		return uuid.Nil, nil
	}
	if h.threads == nil {
		return uuid.Nil, errThreadsDisabled
	}

	id, err := uuid.Parse(threadID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid thread id %q", threadID)
	}
	if _, err := h.threads.Get(r.Context(), id); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// persistExchange appends the run's final question/answer pair to the
// thread, together with the run's router decision and documents. The human
// message keeps the id it was submitted with so replays stay stable.
func (h *chatHandler) persistExchange(r *http.Request, id uuid.UUID, messages []timeline.RawMessage, out graph.Output) error {
	human := lastHumanMessage(messages)
	if human.ID == "" {
		human.ID = uuid.NewString()
	}
	assistant := timeline.RawMessage{
		ID:      uuid.NewString(),
		Type:    timeline.TypeAI,
		Content: out.Answer,
	}

	router := out.Router
	_, err := h.threads.AppendExchange(r.Context(), id, human, assistant, &router, out.Documents)
	return err
}

// lastHumanMessage returns the most recent user message of the log. The
// flow has already rejected logs without one.
func lastHumanMessage(raw []timeline.RawMessage) timeline.RawMessage {
	for i := len(raw) - 1; i >= 0; i-- {
		if raw[i].Type == timeline.TypeHuman {
			return raw[i]
		}
	}
	return timeline.RawMessage{Type: timeline.TypeHuman}
}

// writeEvent emits one SSE event and flushes it, so the client sees it
// without waiting for the next one.
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	flusher.Flush()
	return nil
}
