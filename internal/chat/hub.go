package chat

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/net/websocket"
)

// Hub tracks connected chat clients and fans messages out to all of them.
// All registry access and all writes happen under the mutex, so every
// member observes broadcasts in the same order.
type Hub struct {
	mu      sync.Mutex
	members map[int64]*websocket.Conn
	logger  *slog.Logger
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		members: make(map[int64]*websocket.Conn),
		logger:  logger,
	}
}

func (h *Hub) add(clientID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.members[clientID]; ok {
		old.Close()
	}
	h.members[clientID] = conn
}

func (h *Hub) remove(clientID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[clientID] == conn {
		delete(h.members, clientID)
	}
}

// Broadcast sends the message to every connected client. Write failures
// are logged and skipped; the reader loop of the broken connection is
// responsible for removing it.
func (h *Hub) Broadcast(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, conn := range h.members {
		if err := websocket.Message.Send(conn, message); err != nil {
			h.logger.Warn("chat broadcast failed", "client_id", id, "error", err)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.members)
}

// Serve runs the session for one connected client until the peer hangs
// up. Each inbound text frame is acknowledged to the sender and then
// broadcast, attributed to the client, to every member.
func (h *Hub) Serve(clientID int64, conn *websocket.Conn) {
	h.add(clientID, conn)
	defer func() {
		h.remove(clientID, conn)
		h.Broadcast(fmt.Sprintf("Client #%d left the chat", clientID))
	}()

	for {
		var message string
		if err := websocket.Message.Receive(conn, &message); err != nil {
			if err != io.EOF {
				h.logger.Debug("chat receive ended", "client_id", clientID, "error", err)
			}
			return
		}
		if err := websocket.Message.Send(conn, fmt.Sprintf("You wrote: %s", message)); err != nil {
			return
		}
		h.Broadcast(fmt.Sprintf("Client #%d says: %s", clientID, message))
	}
}

// Handler returns the websocket handler for one client id.
func (h *Hub) Handler(clientID int64) websocket.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		h.Serve(clientID, conn)
	})
}
