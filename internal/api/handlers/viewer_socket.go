package handlers

import (
	"context"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/markdave123-py/Excerpta/internal/core/selection"
	"github.com/markdave123-py/Excerpta/internal/services"
)

const (
	socketReadTimeout  = 60 * time.Second
	socketWriteTimeout = 10 * time.Second
	socketPingInterval = 30 * time.Second
)

// socketEvent is one client message. Fields apply depending on Type:
// down uses X, Y, Modifier and OnTextLayer; move uses X and Y; mode uses
// Mode; page uses Page or Step.
type socketEvent struct {
	Type        string  `json:"type"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Modifier    bool    `json:"modifier"`
	OnTextLayer bool    `json:"on_text_layer"`
	Mode        string  `json:"mode"`
	Page        int     `json:"page"`
	Step        string  `json:"step"`
	Scale       float64 `json:"scale"`
	Delta       float64 `json:"delta"`
}

// socketReply answers an event ("state", "committed", "error") or reports a
// finished extraction ("extracted").
type socketReply struct {
	Type  string                `json:"type"`
	State *services.ViewerState `json:"state,omitempty"`
	Text  string                `json:"text,omitempty"`
	Error string                `json:"error,omitempty"`
}

func (h *ViewerHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(h.origins, "*") || slices.Contains(h.origins, origin)
		},
	}
}

// Socket streams pointer events in and viewer states out over a websocket.
func (h *ViewerHandler) Socket(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	updates, unsubscribe, err := h.viewers.Subscribe(userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer unsubscribe()

	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("viewer %s: websocket upgrade: %v", id, err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(msg any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
		return conn.WriteJSON(msg)
	}

	_ = conn.SetReadDeadline(time.Now().Add(socketReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(socketReadTimeout))
	})

	// The request context is not tied to the hijacked connection.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	go func() {
		ping := time.NewTicker(socketPingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case st, ok := <-updates:
				if !ok {
					// Viewer closed or evicted.
					writeMu.Lock()
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "viewer closed"),
						time.Now().Add(socketWriteTimeout))
					writeMu.Unlock()
					_ = conn.Close()
					return
				}
				if err := write(socketReply{Type: "extracted", State: &st}); err != nil {
					return
				}
			case <-ping.C:
				writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteTimeout))
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		var ev socketEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("viewer %s: websocket read: %v", id, err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(socketReadTimeout))

		if err := write(h.handleEvent(ctx, userID, id, ev)); err != nil {
			return
		}
	}
}

func (h *ViewerHandler) handleEvent(ctx context.Context, userID, id string, ev socketEvent) socketReply {
	var (
		st   services.ViewerState
		text string
		err  error
	)
	switch ev.Type {
	case "down":
		st, err = h.viewers.PointerDown(userID, id, selection.Pointer{
			Point:       selection.Point{X: ev.X, Y: ev.Y},
			Modifier:    ev.Modifier,
			OnTextLayer: ev.OnTextLayer,
		})
	case "move":
		st, err = h.viewers.PointerMove(userID, id, selection.Point{X: ev.X, Y: ev.Y})
	case "up":
		st, err = h.viewers.PointerUp(ctx, userID, id)
	case "cancel":
		st, err = h.viewers.CancelSelection(userID, id)
	case "commit":
		st, text, err = h.viewers.CommitSelection(ctx, userID, id)
	case "mode":
		var m selection.Mode
		if m, err = selection.ParseMode(ev.Mode); err == nil {
			st, err = h.viewers.SetMode(userID, id, m)
		}
	case "page":
		switch ev.Step {
		case "next":
			st, err = h.viewers.NextPage(userID, id)
		case "prev":
			st, err = h.viewers.PrevPage(userID, id)
		default:
			st, err = h.viewers.GoToPage(userID, id, ev.Page)
		}
	case "zoom":
		if ev.Scale != 0 {
			st, err = h.viewers.SetScale(userID, id, ev.Scale)
		} else {
			st, err = h.viewers.Zoom(userID, id, ev.Delta)
		}
	default:
		return socketReply{Type: "error", Error: "unknown event type " + ev.Type}
	}

	if err != nil {
		reply := socketReply{Type: "error", Error: err.Error()}
		if cur, gerr := h.viewers.Get(userID, id); gerr == nil {
			reply.State = &cur
		}
		return reply
	}
	if ev.Type == "commit" {
		return socketReply{Type: "committed", State: &st, Text: text}
	}
	return socketReply{Type: "state", State: &st}
}
