// Package hub tracks which users currently hold live connections. A user may
// hold any number of simultaneous connections (multiple tabs, devices); each
// is registered under exactly one identity for its whole lifetime.
package hub

import (
	"sync"

	"github.com/google/uuid"
)

type Writer interface {
	Write(message []byte) error
	Close() error
}

type Connection struct {
	ID     string
	UserID uint
	Writer Writer
}

func NewConnection(userID uint, w Writer) *Connection {
	return &Connection{ID: uuid.NewString(), UserID: userID, Writer: w}
}

type Hub struct {
	mu          sync.RWMutex
	connections map[uint]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[uint]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conn.UserID] == nil {
		h.connections[conn.UserID] = make(map[*Connection]struct{})
	}
	h.connections[conn.UserID][conn] = struct{}{}
}

// Unregister is a no-op if the connection is already gone, so duplicate close
// events are safe.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.UserID]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, conn.UserID)
	}
}

func (h *Hub) Online(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID]) > 0
}

// Connections returns a snapshot of the user's live set. Emptiness means
// offline, not an error.
func (h *Hub) Connections(userID uint) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.connections[userID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast writes message to every live connection of userID and returns the
// number of successful writes. Connections whose writer fails are closed and
// unregistered without aborting delivery to the rest.
func (h *Hub) Broadcast(userID uint, message []byte) int {
	conns := h.Connections(userID)

	delivered := 0
	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
			continue
		}
		delivered++
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
	return delivered
}
