package utility

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 5 * time.Second

// Event types pushed to browser sessions.
const (
	EventTurn  = "turn"
	EventState = "state"
	EventReset = "reset"
)

// Event is one push message.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub holds active connections: Map[SessionID] -> Connection. A session that
// reconnects (a reloaded tab) replaces its previous connection.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]*websocket.Conn
	logger   zerolog.Logger
	Upgrader websocket.Upgrader
}

// NewHub creates an empty hub. checkOrigin may be nil to allow any origin.
func NewHub(logger zerolog.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Hub{
		clients: make(map[string]*websocket.Conn),
		logger:  logger,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Register a new client connection
func (h *Hub) Register(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[sessionID]; ok && old != conn {
		old.Close()
	}
	h.clients[sessionID] = conn
	h.logger.Info().Str("session_id", sessionID).Msg("WebSocket Client Connected")
}

// Unregister a client (when they close the tab). Only conn is removed, so a
// stale reader cannot drop its replacement.
func (h *Hub) Unregister(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[sessionID]; ok && cur == conn {
		delete(h.clients, sessionID)
		h.logger.Info().Str("session_id", sessionID).Msg("WebSocket Client Disconnected")
	}
}

// Publish sends an event to a session, if it is connected.
func (h *Hub) Publish(sessionID string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.clients[sessionID]
	if !ok {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to send WS message, removing client")
		conn.Close()
		delete(h.clients, sessionID)
	}
}

// Len reports the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.clients {
		conn.Close()
		delete(h.clients, id)
	}
}
