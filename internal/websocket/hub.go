package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Message is a change notification pushed to a household's connected clients.
type Message struct {
	Type        string         `json:"type"`
	Entity      string         `json:"entity"`
	Action      string         `json:"action"`
	ID          int64          `json:"id,omitempty"`
	HouseholdID int64          `json:"household_id"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub tracks connected clients per household. Messages never cross
// household boundaries.
type Hub struct {
	mu         sync.RWMutex
	households map[int64]map[*Client]struct{}
	count      int
	onCount    func(int)
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		households: make(map[int64]map[*Client]struct{}),
		onCount:    func(int) {},
		logger:     logger,
	}
}

// OnCountChange registers fn to receive the total client count whenever it
// changes.
func (h *Hub) OnCountChange(fn func(int)) {
	h.mu.Lock()
	h.onCount = fn
	h.mu.Unlock()
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	clients, ok := h.households[c.householdID]
	if !ok {
		clients = make(map[*Client]struct{})
		h.households[c.householdID] = clients
	}
	clients[c] = struct{}{}
	h.count++
	n, hook := h.count, h.onCount
	h.mu.Unlock()
	hook(n)
}

// Unregister removes a client and closes its send channel. It is safe to
// call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	removed := h.remove(c)
	n, hook := h.count, h.onCount
	h.mu.Unlock()
	if removed {
		hook(n)
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(c *Client) bool {
	clients := h.households[c.householdID]
	if _, ok := clients[c]; !ok {
		return false
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.households, c.householdID)
	}
	close(c.send)
	h.count--
	return true
}

// Broadcast sends msg to every client connected to householdID. Slow
// clients miss messages rather than block the sender.
func (h *Hub) Broadcast(householdID int64, msg Message) {
	msg.HouseholdID = householdID
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.households[householdID] {
		select {
		case c.send <- data:
		default:
			h.logger.Debug("client buffer full, dropping message", "household_id", householdID, "user_id", c.userID)
		}
	}
}

// Evict disconnects userID's clients from householdID, or every client of
// the household when userID is 0. It returns the number of clients dropped.
func (h *Hub) Evict(householdID, userID int64) int {
	h.mu.Lock()
	var evicted []*Client
	for c := range h.households[householdID] {
		if userID == 0 || c.userID == userID {
			evicted = append(evicted, c)
		}
	}
	for _, c := range evicted {
		h.remove(c)
	}
	n, hook := h.count, h.onCount
	h.mu.Unlock()

	for _, c := range evicted {
		c.stop()
	}
	if len(evicted) > 0 {
		hook(n)
		h.logger.Info("evicted websocket clients", "household_id", householdID, "user_id", userID, "count", len(evicted))
	}
	return len(evicted)
}

// ClientCount returns the number of connected clients across all households.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// HouseholdClientCount returns the number of clients connected to one household.
func (h *Hub) HouseholdClientCount(householdID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.households[householdID])
}
