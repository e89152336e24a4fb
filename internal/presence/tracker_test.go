package presence

import (
	"sync"
	"testing"
	"time"

	"expanddesk/internal/model"
)

// recordingBroadcaster captures presence broadcasts for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Event  string
	Update Update
}

func (b *recordingBroadcaster) EmitRoom(room, event string, payload interface{}) {}

func (b *recordingBroadcaster) EmitAll(event string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	update, _ := payload.(Update)
	b.events = append(b.events, recordedEvent{Event: event, Update: update})
}

func (b *recordingBroadcaster) recorded() []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]recordedEvent(nil), b.events...)
}

const testDelay = 20 * time.Millisecond

func TestConnectEmitsOnlineImmediately(t *testing.T) {
	broadcast := &recordingBroadcaster{}
	tracker := NewTracker(broadcast, testDelay)

	tracker.Connect(7, model.RoleCustomer)

	events := broadcast.recorded()
	if len(events) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(events))
	}
	if events[0].Event != CustomerStatusEvent {
		t.Errorf("customer must broadcast on %s, got %s", CustomerStatusEvent, events[0].Event)
	}
	if !events[0].Update.Online || events[0].Update.UserID != 7 {
		t.Errorf("unexpected update: %+v", events[0].Update)
	}
	if !tracker.IsOnline(7) {
		t.Error("user must be online after connect")
	}
}

func TestStaffBroadcastsOnAgentChannel(t *testing.T) {
	broadcast := &recordingBroadcaster{}
	tracker := NewTracker(broadcast, testDelay)

	tracker.Connect(2, model.RoleAgent)
	tracker.Connect(1, model.RoleManager)

	events := broadcast.recorded()
	if len(events) != 2 {
		t.Fatalf("expected two broadcasts, got %d", len(events))
	}
	for _, e := range events {
		if e.Event != AgentStatusEvent {
			t.Errorf("staff must broadcast on %s, got %s", AgentStatusEvent, e.Event)
		}
	}
}

func TestSecondConnectionDoesNotRebroadcast(t *testing.T) {
	broadcast := &recordingBroadcaster{}
	tracker := NewTracker(broadcast, testDelay)

	tracker.Connect(7, model.RoleCustomer)
	tracker.Connect(7, model.RoleCustomer)

	if got := len(broadcast.recorded()); got != 1 {
		t.Errorf("expected one broadcast for two connections, got %d", got)
	}
}

func TestDisconnectDebouncesOffline(t *testing.T) {
	broadcast := &recordingBroadcaster{}
	tracker := NewTracker(broadcast, testDelay)

	tracker.Connect(7, model.RoleCustomer)
	tracker.Disconnect(7)

	// Still online while the timer is pending
	if !tracker.IsOnline(7) {
		t.Error("user must stay online inside the debounce window")
	}

	deadline := time.Now().Add(time.Second)
	for tracker.IsOnline(7) {
		if time.Now().After(deadline) {
			t.Fatal("offline broadcast never fired")
		}
		time.Sleep(5 * time.Millisecond)
	}

	events := broadcast.recorded()
	last := events[len(events)-1]
	if last.Update.Online {
		t.Errorf("expected offline update, got %+v", last.Update)
	}
}

func TestReconnectCancelsPendingOffline(t *testing.T) {
	broadcast := &recordingBroadcaster{}
	tracker := NewTracker(broadcast, testDelay)

	tracker.Connect(7, model.RoleCustomer)
	tracker.Disconnect(7)
	tracker.Connect(7, model.RoleCustomer) // Back inside the window

	time.Sleep(3 * testDelay)

	if !tracker.IsOnline(7) {
		t.Error("reconnect inside the window must keep the user online")
	}
	if got := len(broadcast.recorded()); got != 1 {
		t.Errorf("a flap must be invisible, got %d broadcasts", got)
	}
}

func TestDisconnectKeepsOnlineWhileOtherConnectionsLive(t *testing.T) {
	broadcast := &recordingBroadcaster{}
	tracker := NewTracker(broadcast, testDelay)

	tracker.Connect(7, model.RoleCustomer)
	tracker.Connect(7, model.RoleCustomer)
	tracker.Disconnect(7)

	time.Sleep(3 * testDelay)

	if !tracker.IsOnline(7) {
		t.Error("user with a live connection must stay online")
	}
	if got := len(broadcast.recorded()); got != 1 {
		t.Errorf("expected no offline broadcast, got %d events", got)
	}
}

func TestDisconnectUnknownUserIsNoOp(t *testing.T) {
	broadcast := &recordingBroadcaster{}
	tracker := NewTracker(broadcast, testDelay)

	tracker.Disconnect(42)

	time.Sleep(2 * testDelay)
	if got := len(broadcast.recorded()); got != 0 {
		t.Errorf("expected no broadcasts, got %d", got)
	}
}

func TestOnlineUsers(t *testing.T) {
	broadcast := &recordingBroadcaster{}
	tracker := NewTracker(broadcast, testDelay)

	tracker.Connect(1, model.RoleAgent)
	tracker.Connect(2, model.RoleCustomer)

	users := tracker.OnlineUsers()
	if len(users) != 2 {
		t.Fatalf("expected 2 online users, got %v", users)
	}
}
