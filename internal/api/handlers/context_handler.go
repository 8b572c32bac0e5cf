package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/Excerpta/internal/services"
)

type ContextHandler struct {
	contexts *services.ContextService
}

func NewContextHandler(contexts *services.ContextService) *ContextHandler {
	return &ContextHandler{contexts: contexts}
}

type addContextRequest struct {
	Text       string `json:"text"`
	DocumentID string `json:"document_id"`
}

func (h *ContextHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.contexts.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Add appends text typed or dropped by the user.
func (h *ContextHandler) Add(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req addContextRequest
	if !decodeBody(w, r, &req) {
		return
	}
	snip, err := h.contexts.Append(r.Context(), userID, req.DocumentID, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snip)
}

func (h *ContextHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		http.Error(w, "invalid index", http.StatusBadRequest)
		return
	}
	if err := h.contexts.RemoveAt(r.Context(), userID, index); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContextHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.contexts.Clear(r.Context(), userID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
