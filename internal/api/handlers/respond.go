package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	middleware "github.com/markdave123-py/Excerpta/internal/api/middlewares"
	"github.com/markdave123-py/Excerpta/internal/core"
	"github.com/markdave123-py/Excerpta/internal/core/selection"
	"github.com/markdave123-py/Excerpta/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// requireUser reads the authenticated user id, answering 401 when absent.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
	}
	return id, ok
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrDocumentNotFound),
		errors.Is(err, services.ErrViewerNotFound),
		errors.Is(err, services.ErrSnippetNotFound),
		errors.Is(err, core.ErrPageOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, services.ErrEmptySnippet),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrUnknownAgent):
		return http.StatusBadRequest
	case errors.Is(err, selection.ErrNothingToCommit),
		errors.Is(err, selection.ErrExtractionPending):
		return http.StatusConflict
	case errors.Is(err, selection.ErrNoText):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "internal error", code)
		return
	}
	http.Error(w, err.Error(), code)
}
