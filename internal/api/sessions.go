package api

import (
	"net/http"

	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
	"github.com/besides-508-potenday/na-T-na-AI/internal/store"
	"github.com/go-chi/chi/v5"
)

// SessionHandler serves stored sessions for audit and recovery.
type SessionHandler struct {
	*Handler
	store store.SessionStore
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *Handler, s store.SessionStore) *SessionHandler {
	return &SessionHandler{Handler: base, store: s}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/user/{nickname}", h.ListByUser)
		r.Get("/{sessionID}", h.Get)
	})
}

// Get returns one full session document.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if s == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, s)
}

// List returns summaries of every session.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, store.Filter{})
}

// ListByUser returns summaries of one user's sessions.
func (h *SessionHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	nickname := domain.NewSessionKey(chi.URLParam(r, "nickname"), "", "").Nickname
	h.list(w, r, store.Filter{Nickname: nickname})
}

func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request, f store.Filter) {
	summaries, err := h.store.List(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"sessions": summaries,
		"count":    len(summaries),
	})
}
