package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// envelope is the wire frame for every server-to-client event.
type envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// roomMember is one entry of a room's active_users roster.
type roomMember struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// Hub tracks connected clients and their room membership, and fans events
// out to them. It implements service.Broadcaster so the service layer can
// emit without knowing about websockets.
//
// All maps are guarded by mu; sends go through each client's buffered
// channel so a slow client never blocks the hub.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	log.Printf("[Hub] Register: conn=%s user=%d total=%d", c.connID, c.user.ID, h.ClientCount())
}

// unregister drops the client from the hub and every room it joined,
// broadcasting the updated roster of each affected room.
func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	var affected []string
	for room, members := range h.rooms {
		if _, ok := members[c]; ok {
			delete(members, c)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
			affected = append(affected, room)
		}
	}
	h.mu.Unlock()

	for _, room := range affected {
		h.broadcastRoster(room)
	}
	log.Printf("[Hub] Unregister: conn=%s user=%d total=%d", c.connID, c.user.ID, h.ClientCount())
}

// Join adds the client to a room and broadcasts the new roster.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	h.mu.Unlock()

	log.Printf("[Hub] Join: conn=%s user=%d room=%s", c.connID, c.user.ID, room)
	h.broadcastRoster(room)
}

// Leave removes the client from a room and broadcasts the new roster.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	members, ok := h.rooms[room]
	if ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.mu.Unlock()

	log.Printf("[Hub] Leave: conn=%s user=%d room=%s", c.connID, c.user.ID, room)
	h.broadcastRoster(room)
}

// broadcastRoster emits the room's deduplicated member list. A user with
// several connections in the room appears once.
func (h *Hub) broadcastRoster(room string) {
	h.mu.RLock()
	seen := make(map[int64]struct{})
	var roster []roomMember
	for c := range h.rooms[room] {
		if _, ok := seen[c.user.ID]; ok {
			continue
		}
		seen[c.user.ID] = struct{}{}
		roster = append(roster, roomMember{
			UserID: c.user.ID,
			Name:   c.user.Name,
			Role:   string(c.user.Role),
		})
	}
	h.mu.RUnlock()

	if roster == nil {
		roster = []roomMember{}
	}
	h.EmitRoom(room, "active_users", map[string]interface{}{
		"room":  room,
		"users": roster,
	})
}

// EmitRoom sends an event to every client in the room.
func (h *Hub) EmitRoom(room, event string, payload interface{}) {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		log.Printf("[Hub] EmitRoom marshal FAILED: room=%s event=%s err=%v", room, event, err)
		return
	}

	h.mu.RLock()
	for c := range h.rooms[room] {
		c.enqueue(data)
	}
	h.mu.RUnlock()
}

// EmitRoomExcept sends an event to every client in the room except the
// originator. Used for typing relays.
func (h *Hub) EmitRoomExcept(sender *Client, room, event string, payload interface{}) {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		log.Printf("[Hub] EmitRoomExcept marshal FAILED: room=%s event=%s err=%v", room, event, err)
		return
	}

	h.mu.RLock()
	for c := range h.rooms[room] {
		if c == sender {
			continue
		}
		c.enqueue(data)
	}
	h.mu.RUnlock()
}

// EmitAll sends an event to every connected client.
func (h *Hub) EmitAll(event string, payload interface{}) {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		log.Printf("[Hub] EmitAll marshal FAILED: event=%s err=%v", event, err)
		return
	}

	h.mu.RLock()
	for c := range h.clients {
		c.enqueue(data)
	}
	h.mu.RUnlock()
}

// EmitUser sends an event to every connection of one user.
func (h *Hub) EmitUser(userID int64, event string, payload interface{}) {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		log.Printf("[Hub] EmitUser marshal FAILED: user=%d event=%s err=%v", userID, event, err)
		return
	}

	h.mu.RLock()
	for c := range h.clients {
		if c.user.ID == userID {
			c.enqueue(data)
		}
	}
	h.mu.RUnlock()
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
