package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/docent-ai/docent/internal/thread"
)

// maxThreadBodyBytes caps thread request bodies; the largest valid payload
// is a user id plus a name.
const maxThreadBodyBytes = 4 << 10

// threadHandler holds dependencies for the thread persistence endpoints.
type threadHandler struct {
	store  *thread.Store
	logger *slog.Logger
}

// threadItem is the JSON representation of a stored thread. Values carries
// the stored snapshot verbatim; clients decode it themselves.
type threadItem struct {
	ID        string          `json:"thread_id"`
	UserID    string          `json:"user_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Values    json.RawMessage `json:"values,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// toThreadItem converts a thread.Thread to its JSON representation.
func toThreadItem(t thread.Thread) threadItem {
	return threadItem{
		ID:        t.ID.String(),
		UserID:    t.UserID,
		Name:      t.Name,
		Values:    json.RawMessage(t.Snapshot),
		CreatedAt: t.CreatedAt.Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.Format(time.RFC3339),
	}
}

// createThreadRequest is the request body for POST /api/threads.
type createThreadRequest struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// createThread handles POST /api/threads — registers a new empty thread.
func (h *threadHandler) createThread(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxThreadBodyBytes)

	var req createThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	th, err := h.store.Create(r.Context(), req.UserID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, thread.ErrUserRequired):
			WriteError(w, http.StatusBadRequest, "missing_user_id", "user_id is required", h.logger)
		case errors.Is(err, thread.ErrNameTooLong):
			WriteError(w, http.StatusBadRequest, "invalid_name", "thread name too long", h.logger)
		default:
			h.logger.Error("creating thread", "error", err, "user_id", req.UserID)
			WriteError(w, http.StatusInternalServerError, "create_failed", "failed to create thread", h.logger)
		}
		return
	}

	WriteJSON(w, http.StatusCreated, toThreadItem(th), h.logger)
}

// searchThreadsRequest is the request body for POST /api/threads/search.
type searchThreadsRequest struct {
	UserID string `json:"user_id"`
	Limit  int32  `json:"limit,omitempty"`
}

// searchThreads handles POST /api/threads/search — returns the user's
// threads, most recently updated first, as a bare JSON array.
func (h *threadHandler) searchThreads(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxThreadBodyBytes)

	var req searchThreadsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	threads, err := h.store.Search(r.Context(), req.UserID, req.Limit)
	if err != nil {
		if errors.Is(err, thread.ErrUserRequired) {
			WriteError(w, http.StatusBadRequest, "missing_user_id", "user_id is required", h.logger)
			return
		}
		h.logger.Error("searching threads", "error", err, "user_id", req.UserID)
		WriteError(w, http.StatusInternalServerError, "search_failed", "failed to search threads", h.logger)
		return
	}

	items := make([]threadItem, len(threads))
	for i, t := range threads {
		items[i] = toThreadItem(t)
	}
	WriteJSON(w, http.StatusOK, items, h.logger)
}

// getThread handles GET /api/threads/{id} — returns one thread with its
// stored values.
func (h *threadHandler) getThread(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "invalid thread ID", h.logger)
		return
	}

	th, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, thread.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "thread not found", h.logger)
			return
		}
		h.logger.Error("getting thread", "error", err, "id", id)
		WriteError(w, http.StatusInternalServerError, "get_failed", "failed to get thread", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, toThreadItem(th), h.logger)
}

// deleteThread handles DELETE /api/threads/{id}.
func (h *threadHandler) deleteThread(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_id", "invalid thread ID", h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, thread.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "not_found", "thread not found", h.logger)
			return
		}
		h.logger.Error("deleting thread", "error", err, "id", id)
		WriteError(w, http.StatusInternalServerError, "delete_failed", "failed to delete thread", h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"}, h.logger)
}
