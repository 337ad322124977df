package realtime

import (
	"sync"

	"go.uber.org/zap"
)

type Hub struct {
	mu sync.RWMutex

	// room mapping: machine id -> clients
	rooms map[string]map[*Client]bool

	// reverse mapping: client -> subscribed machine ids
	clientSubs map[*Client]map[string]bool
	logger     *zap.SugaredLogger
}

func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clientSubs: make(map[*Client]map[string]bool),
		logger:     logger,
	}
}

// Register adds a client that receives plant-wide broadcasts.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientSubs[c] == nil {
		h.clientSubs[c] = make(map[string]bool)
	}
}

func (h *Hub) Subscribe(machineID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[machineID] == nil {
		h.rooms[machineID] = make(map[*Client]bool)
	}
	h.rooms[machineID][c] = true

	if h.clientSubs[c] == nil {
		h.clientSubs[c] = make(map[string]bool)
	}
	h.clientSubs[c][machineID] = true
}

// Leave drops one subscription but keeps the client registered.
func (h *Hub) Leave(machineID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.rooms[machineID], c)
	if len(h.rooms[machineID]) == 0 {
		delete(h.rooms, machineID)
	}
	delete(h.clientSubs[c], machineID)
}

// Unsubscribe removes the client entirely.
func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.clientSubs[c]
	if !ok {
		return
	}
	for id := range subs {
		delete(h.rooms[id], c)
		if len(h.rooms[id]) == 0 {
			delete(h.rooms, id)
		}
	}
	delete(h.clientSubs, c)
	c.closeSend()
}

// BroadcastTo sends msg to the subscribers of one machine.
func (h *Hub) BroadcastTo(machineID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[machineID] {
		h.deliver(client, msg)
	}
}

// BroadcastAll sends msg to every connected client.
func (h *Hub) BroadcastAll(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clientSubs {
		h.deliver(client, msg)
	}
}

func (h *Hub) deliver(c *Client, msg []byte) {
	select {
	case c.send <- msg:
		// delivered
	default:
		// slow client -> skip
		h.logger.Debugw("dropping message for slow client", "client_id", c.id)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientSubs)
}

// Subscribers returns the number of clients watching a machine.
func (h *Hub) Subscribers(machineID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[machineID])
}
