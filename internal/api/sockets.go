package api

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SocketRegistry tracks live chat sockets by chat key. A second socket for
// the same key replaces the first.
type SocketRegistry struct {
	mu     sync.Mutex
	active map[string]*websocket.Conn
}

// NewSocketRegistry creates an empty registry.
func NewSocketRegistry() *SocketRegistry {
	return &SocketRegistry{active: make(map[string]*websocket.Conn)}
}

// Register records conn for key, closing any connection it replaces.
func (m *SocketRegistry) Register(key string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.active[key]; ok && existing != conn {
		_ = existing.Close(websocket.StatusPolicyViolation, "session replaced")
	}
	m.active[key] = conn
	slog.Info("Chat socket registered", "chat_key", key)
}

// Unregister forgets conn if it is still the one registered for key.
func (m *SocketRegistry) Unregister(key string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.active[key]; ok && current == conn {
		delete(m.active, key)
		slog.Info("Chat socket unregistered", "chat_key", key)
	}
}

// Len returns the number of live sockets.
func (m *SocketRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// CloseAll closes every socket, used on shutdown.
func (m *SocketRegistry) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, conn := range m.active {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(m.active, key)
	}
}
