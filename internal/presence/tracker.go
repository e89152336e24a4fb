package presence

import (
	"log"
	"sync"
	"time"

	"expanddesk/internal/model"
	"expanddesk/internal/service"
)

// Status channel names. Staff and customers broadcast on separate channels
// so each client type only subscribes to the roster it renders.
const (
	AgentStatusEvent    = "agent_status_update"
	CustomerStatusEvent = "customer_status_update"
)

// Update is the payload broadcast when a user's presence changes.
type Update struct {
	UserID   int64      `json:"user_id"`
	Role     model.Role `json:"role"`
	Online   bool       `json:"online"`
	LastSeen time.Time  `json:"last_seen"`
}

// Tracker maintains who is online from websocket connection lifecycles.
//
// Going online is immediate. Going offline is debounced: the offline
// broadcast only fires after the user has had zero connections for the
// configured delay, so page reloads and brief network flaps are invisible
// to other users. A reconnect inside the window cancels the pending timer
// and emits nothing.
type Tracker struct {
	mu        sync.Mutex
	delay     time.Duration
	broadcast service.Broadcaster

	conns  map[int64]int // userID -> live connection count
	roles  map[int64]model.Role
	online map[int64]bool
	timers map[int64]*time.Timer
}

func NewTracker(broadcast service.Broadcaster, offlineDelay time.Duration) *Tracker {
	return &Tracker{
		delay:     offlineDelay,
		broadcast: broadcast,
		conns:     make(map[int64]int),
		roles:     make(map[int64]model.Role),
		online:    make(map[int64]bool),
		timers:    make(map[int64]*time.Timer),
	}
}

// Connect records one new connection for the user. The first connection
// (or a reconnect within the offline window) marks the user online.
func (t *Tracker) Connect(userID int64, role model.Role) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.conns[userID]++
	t.roles[userID] = role

	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
		delete(t.timers, userID)
	}

	if !t.online[userID] {
		t.online[userID] = true
		log.Printf("[Presence] Online: user=%d role=%s", userID, role)
		t.emit(userID, role, true)
	}
}

// Disconnect records one closed connection. When it was the user's last,
// a timer starts; the offline broadcast fires only if no connection comes
// back before it expires.
func (t *Tracker) Disconnect(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conns[userID] == 0 {
		return
	}
	t.conns[userID]--
	if t.conns[userID] > 0 {
		return
	}
	delete(t.conns, userID)

	if timer, ok := t.timers[userID]; ok {
		timer.Stop()
	}
	t.timers[userID] = time.AfterFunc(t.delay, func() {
		t.goOffline(userID)
	})
}

func (t *Tracker) goOffline(userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// A connection may have come back while the timer was queued
	if t.conns[userID] > 0 || !t.online[userID] {
		return
	}

	delete(t.timers, userID)
	t.online[userID] = false
	role := t.roles[userID]
	log.Printf("[Presence] Offline: user=%d role=%s", userID, role)
	t.emit(userID, role, false)
}

// IsOnline reports the user's debounced presence state.
func (t *Tracker) IsOnline(userID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online[userID]
}

// OnlineUsers returns the ids of everyone currently online.
func (t *Tracker) OnlineUsers() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	users := make([]int64, 0, len(t.online))
	for id, on := range t.online {
		if on {
			users = append(users, id)
		}
	}
	return users
}

// emit broadcasts the change on the channel matching the user's role.
// Called with the lock held; the broadcaster must not call back in.
func (t *Tracker) emit(userID int64, role model.Role, online bool) {
	event := CustomerStatusEvent
	if role.IsStaff() {
		event = AgentStatusEvent
	}
	t.broadcast.EmitAll(event, Update{
		UserID:   userID,
		Role:     role,
		Online:   online,
		LastSeen: time.Now(),
	})
}
