// Package api provides HTTP handlers for the coaching API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/besides-508-potenday/na-T-na-AI/internal/coach"
	"github.com/besides-508-potenday/na-T-na-AI/internal/domain"
	"github.com/besides-508-potenday/na-T-na-AI/internal/store"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler provides common handler utilities.
type Handler struct {
	validate *validator.Validate
}

// NewHandler creates a new Handler with a validator that reports JSON field names.
func NewHandler() *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{validate: v}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads and validates a JSON request body into v. It writes the 400
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		Error(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request"
	}
	fe := ve[0]
	if fe.Param() != "" {
		return fmt.Sprintf("invalid request: %s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("invalid request: %s is %s", fe.Field(), fe.Tag())
}

// fail maps a coaching error to a status code. Unknown errors are logged and
// answered with a generic 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, coach.ErrInvalidTranscript):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, coach.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "session not found")
	case errors.Is(err, coach.ErrBusy):
		Error(w, http.StatusConflict, "session is busy")
	case errors.Is(err, domain.ErrTurnOutOfOrder):
		Error(w, http.StatusConflict, "turn out of order")
	case errors.Is(err, domain.ErrSessionComplete):
		Error(w, http.StatusConflict, "conversation already finished")
	case errors.Is(err, domain.ErrNotFinished):
		Error(w, http.StatusConflict, "conversation not finished")
	case errors.Is(err, domain.ErrAlreadyFinalized), errors.Is(err, domain.ErrNotSeeded), errors.Is(err, domain.ErrAlreadyStarted):
		Error(w, http.StatusConflict, err.Error())
	default:
		slog.Error("Request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		Error(w, http.StatusInternalServerError, "internal server error")
	}
}
