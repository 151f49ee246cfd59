package events

import (
	"sync"
	"testing"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

type mockSubscriber struct {
	mu       sync.Mutex
	events   []Event
	isClosed bool
}

func (m *mockSubscriber) Receive(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *mockSubscriber) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isClosed
}

func (m *mockSubscriber) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Event, len(m.events))
	copy(cp, m.events)
	return cp
}

func TestEmitToPlayer(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	bus.Subscribe(1, sub)

	bus.Emit(Event{Type: EvSay, Player: 1, Source: 1, Text: "Hello world"})

	events := sub.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Text != "Hello world" || events[0].Type != EvSay {
		t.Errorf("got %+v", events[0])
	}
}

func TestClosedSubscriberSkipped(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{isClosed: true}
	bus.Subscribe(1, sub)
	bus.Emit(Event{Player: 1, Text: "lost"})
	if len(sub.Events()) != 0 {
		t.Error("closed subscriber received an event")
	}
}

func TestEmitToRoomExcept(t *testing.T) {
	db := gamedb.NewDatabase()
	room, _ := db.Create(gamedb.TypeRoom, "Plaza", 1, gamedb.Nothing, 0)
	db.Create(gamedb.TypePlayer, "Alice", 1, room, 0)
	db.Create(gamedb.TypePlayer, "Bob", 2, room, 0)

	bus := NewBus()
	alice := &mockSubscriber{}
	bob := &mockSubscriber{}
	bus.Subscribe(1, alice)
	bus.Subscribe(2, bob)

	bus.EmitToRoomExcept(db, room, 1, Event{Type: EvSay, Source: 1, Text: `Alice says, "hi"`})

	if len(alice.Events()) != 0 {
		t.Error("excepted occupant received the room event")
	}
	evs := bob.Events()
	if len(evs) != 1 {
		t.Fatalf("bob got %d events", len(evs))
	}
	if evs[0].Player != 2 || evs[0].Room != room {
		t.Errorf("event addressing wrong: %+v", evs[0])
	}
}

func TestUnsubscribeAndCleanup(t *testing.T) {
	bus := NewBus()
	sub := &mockSubscriber{}
	bus.Subscribe(1, sub)
	bus.Unsubscribe(1, sub)
	bus.Emit(Event{Player: 1, Text: "gone"})
	if len(sub.Events()) != 0 {
		t.Error("unsubscribed subscriber received an event")
	}

	closed := &mockSubscriber{}
	bus.Subscribe(2, closed)
	closed.isClosed = true
	bus.Cleanup()
	if got := bus.SubscriberCount(2); got != 0 {
		t.Errorf("SubscriberCount after cleanup = %d", got)
	}
}

func TestGlobalSubscriber(t *testing.T) {
	bus := NewBus()
	global := &mockSubscriber{}
	bus.SubscribeGlobal(global)
	bus.Emit(Event{Player: 7, Text: "anything"})
	if len(global.Events()) != 1 {
		t.Error("global subscriber missed an event")
	}
}
