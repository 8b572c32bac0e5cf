package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/Excerpta/internal/core/selection"
	"github.com/markdave123-py/Excerpta/internal/services"
)

type ViewerHandler struct {
	viewers *services.ViewerService
	origins []string
}

// NewViewerHandler serves viewer routes. origins restricts websocket
// handshakes; "*" allows any origin.
func NewViewerHandler(viewers *services.ViewerService, origins []string) *ViewerHandler {
	return &ViewerHandler{viewers: viewers, origins: origins}
}

type openViewerRequest struct {
	DocumentID string `json:"document_id"`
}

type modeRequest struct {
	Mode selection.Mode `json:"mode"`
}

// pageRequest sets an absolute page, or steps with "next" / "prev".
type pageRequest struct {
	Page int    `json:"page"`
	Step string `json:"step"`
}

// zoomRequest sets an absolute scale when Scale is non-zero, otherwise
// changes it by Delta.
type zoomRequest struct {
	Scale float64 `json:"scale"`
	Delta float64 `json:"delta"`
}

type commitResponse struct {
	Text  string               `json:"text"`
	State services.ViewerState `json:"state"`
}

// viewerCall runs fn for the authenticated user and the {id} route param.
func (h *ViewerHandler) viewerCall(w http.ResponseWriter, r *http.Request, fn func(userID, id string) (services.ViewerState, error)) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	st, err := fn(userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *ViewerHandler) Open(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req openViewerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := h.viewers.Open(r.Context(), userID, req.DocumentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (h *ViewerHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.viewerCall(w, r, h.viewers.Get)
}

func (h *ViewerHandler) Close(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.viewers.Close(userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ViewerHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.viewerCall(w, r, func(userID, id string) (services.ViewerState, error) {
		return h.viewers.SetMode(userID, id, req.Mode)
	})
}

func (h *ViewerHandler) SetPage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.viewerCall(w, r, func(userID, id string) (services.ViewerState, error) {
		switch req.Step {
		case "next":
			return h.viewers.NextPage(userID, id)
		case "prev":
			return h.viewers.PrevPage(userID, id)
		default:
			return h.viewers.GoToPage(userID, id, req.Page)
		}
	})
}

func (h *ViewerHandler) Zoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.viewerCall(w, r, func(userID, id string) (services.ViewerState, error) {
		if req.Scale != 0 {
			return h.viewers.SetScale(userID, id, req.Scale)
		}
		return h.viewers.Zoom(userID, id, req.Delta)
	})
}

func (h *ViewerHandler) PointerDown(w http.ResponseWriter, r *http.Request) {
	var p selection.Pointer
	if !decodeBody(w, r, &p) {
		return
	}
	h.viewerCall(w, r, func(userID, id string) (services.ViewerState, error) {
		return h.viewers.PointerDown(userID, id, p)
	})
}

func (h *ViewerHandler) PointerMove(w http.ResponseWriter, r *http.Request) {
	var pt selection.Point
	if !decodeBody(w, r, &pt) {
		return
	}
	h.viewerCall(w, r, func(userID, id string) (services.ViewerState, error) {
		return h.viewers.PointerMove(userID, id, pt)
	})
}

// PointerUp ends the gesture. The response may still show the selection as
// extracting; poll Get or use the websocket for the result.
func (h *ViewerHandler) PointerUp(w http.ResponseWriter, r *http.Request) {
	h.viewerCall(w, r, func(userID, id string) (services.ViewerState, error) {
		return h.viewers.PointerUp(r.Context(), userID, id)
	})
}

func (h *ViewerHandler) CancelSelection(w http.ResponseWriter, r *http.Request) {
	h.viewerCall(w, r, h.viewers.CancelSelection)
}

func (h *ViewerHandler) CommitSelection(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	st, text, err := h.viewers.CommitSelection(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commitResponse{Text: text, State: st})
}
