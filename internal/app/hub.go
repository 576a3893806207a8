package app

import (
	"sync"

	"retroboard/internal/retro"
)

// Hub is the registry of live client sessions on this instance, keyed by
// session id. Its one job beyond bookkeeping is ApplyLocal: when a user
// mutates the document over REST, their own sockets are refreshed
// immediately instead of waiting for the broadcast to come back around.
type Hub struct {
	mu      sync.Mutex
	clients map[string][]*ClientSession
}

func NewHub() *Hub {
	return &Hub{clients: map[string][]*ClientSession{}}
}

func (h *Hub) Add(c *ClientSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.sessionID] = append(h.clients[c.sessionID], c)
}

func (h *Hub) Remove(c *ClientSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.clients[c.sessionID]
	for i, existing := range list {
		if existing == c {
			h.clients[c.sessionID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.clients[c.sessionID]) == 0 {
		delete(h.clients, c.sessionID)
	}
}

// ApplyLocal pushes a freshly persisted document to the acting user's own
// client sessions. Everyone else receives it through the sync transport
// and reconciles on receipt.
func (h *Hub) ApplyLocal(sessionID, userID string, doc retro.Document) {
	h.mu.Lock()
	sessions := append([]*ClientSession(nil), h.clients[sessionID]...)
	h.mu.Unlock()
	for _, c := range sessions {
		if c.user.ID == userID {
			c.applyLocal(doc)
		}
	}
}
