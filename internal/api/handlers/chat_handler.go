package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/markdave123-py/Excerpta/internal/services"
)

type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Agents lists the selectable assistants.
func (h *ChatHandler) Agents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.chat.Agents())
}

// Send relays one message. When the assistant cannot be reached the reply is
// a System message with status 502 and the context list is left untouched.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req services.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msg, err := h.chat.Send(r.Context(), userID, req)
	if errors.Is(err, services.ErrAssistantUnavailable) {
		log.Printf("chat for %s: %v", userID, err)
		writeJSON(w, http.StatusBadGateway, services.SystemMessage(services.FallbackReply))
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}
