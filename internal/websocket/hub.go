package websocket

import (
	"encoding/json"
	"sync"

	"anonchat/internal/models"
	"anonchat/pkg/logger"
)

// Hub is the broadcast gateway: it tracks connected clients and which
// room each one is in, and delivers serialized events to them. Slow
// consumers are dropped rather than allowed to stall a broadcast.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client            // connID -> client
	rooms   map[string]map[string]*Client // roomID -> connID -> client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
	}
}

// Register makes the connection addressable by the coordinator.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

// Unregister removes the connection from the hub and any room it was in.
func (h *Hub) Unregister(connID string) {
	h.mu.Lock()
	c, ok := h.clients[connID]
	delete(h.clients, connID)
	for _, members := range h.rooms {
		delete(members, connID)
	}
	h.mu.Unlock()

	if ok {
		c.closeSend()
	}
}

func (h *Hub) AddToRoom(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return
	}
	members := h.rooms[roomID]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[connID] = c
}

func (h *Hub) RemoveFromRoom(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms[roomID], connID)
}

func (h *Hub) Broadcast(roomID string, event *models.ServerEvent) {
	h.broadcast(roomID, "", event)
}

func (h *Hub) BroadcastExcept(roomID, exceptConnID string, event *models.ServerEvent) {
	h.broadcast(roomID, exceptConnID, event)
}

func (h *Hub) Send(connID string, event *models.ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Error marshaling event: %v", err)
		return
	}

	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()

	if c != nil {
		h.deliver(c, payload)
	}
}

// Kick closes the connection's websocket with the given reason. The
// close frame is written by the client's writer goroutine.
func (h *Hub) Kick(connID, reason string) {
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()

	if c == nil {
		return
	}
	select {
	case c.kick <- reason:
	default:
	}
}

// CloseRoom drops the room's broadcast group. The connections themselves
// stay open; the room is simply no longer addressable.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	delete(h.rooms, roomID)
	h.mu.Unlock()
}

func (h *Hub) broadcast(roomID, exceptConnID string, event *models.ServerEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Error marshaling event: %v", err)
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[roomID]))
	for connID, c := range h.rooms[roomID] {
		if connID == exceptConnID {
			continue
		}
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		h.deliver(c, payload)
	}
}

// deliver enqueues the payload without blocking. A client whose send
// buffer is full is disconnected.
func (h *Hub) deliver(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		logger.Debug("Dropping slow connection %s", c.id)
		h.Unregister(c.id)
	}
}
