package websocket

import (
	"encoding/json"
	"sync"
)

// SyncUpdate is pushed to an account owner's open sockets when a sync
// finishes, so the dashboard refreshes without polling.
type SyncUpdate struct {
	AccountID string `json:"account_id"`
	Status    string `json:"status"`
	Balance   string `json:"balance,omitempty"`
	Currency  string `json:"currency,omitempty"`
	SyncedAt  string `json:"synced_at,omitempty"`
	SyncError string `json:"sync_error,omitempty"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(ownerRef string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[ownerRef] == nil {
		h.clients[ownerRef] = make(map[*Client]struct{})
	}
	h.clients[ownerRef][client] = struct{}{}
}

func (h *Hub) Unregister(ownerRef string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[ownerRef] == nil {
		return
	}
	delete(h.clients[ownerRef], client)
	if len(h.clients[ownerRef]) == 0 {
		delete(h.clients, ownerRef)
	}
}

func (h *Hub) BroadcastSync(ownerRef string, update SyncUpdate) {
	payload, _ := json.Marshal(update)
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[ownerRef] {
		select {
		case client.send <- payload:
		default:
		}
	}
}
