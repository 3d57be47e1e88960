// Package notify fans out trial completion/broken events to connected
// dashboard clients over WebSocket, grounded on the teacher's
// cmd/server/handlers/silence_ws.go WebSocketHub (register/unregister/
// broadcast channels over a client-set guarded by a mutex), adapted from
// silence lifecycle events to trial-status events.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// TrialEvent is a single trial-status transition pushed to dashboard
// clients.
type TrialEvent struct {
	ExperimentID string    `json:"experiment_id"`
	TrialID      string    `json:"trial_id"`
	Status       string    `json:"status"` // "completed" or "broken"
	Timestamp    time.Time `json:"timestamp"`
}

const (
	EventCompleted = "completed"
	EventBroken    = "broken"
)

// Hub manages WebSocket connections and broadcasts trial events to all of
// them. One Hub is shared by a worker loop's observers.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan TrialEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub returns a Hub; call Run in a goroutine to start it.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan TrialEvent, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
	}
}

// Run drives the hub's event loop until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.Close()
			}
			h.mu.Unlock()
		case event := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				go h.send(c, event)
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) send(c *websocket.Conn, event TrialEvent) {
	c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := c.WriteJSON(event); err != nil {
		h.logger.Warn("notify: failed to send trial event", "error", err)
		h.unregister <- c
	}
}

// Publish queues a trial event for broadcast. Non-blocking: a full channel
// drops the event rather than stalling the worker loop.
func (h *Hub) Publish(event TrialEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("notify: broadcast channel full, dropping event",
			"trial", event.TrialID, "status", event.Status)
	}
}

// ActiveConnections returns the current client count.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
}
