package events

import (
	"sync"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a per-player pub/sub event bus with support for global
// subscribers. Game code emits structured events; each subscriber (session
// descriptor, metrics tap, logger) encodes them per-transport.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[gamedb.DBRef][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[gamedb.DBRef][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific player's events.
func (b *Bus) Subscribe(player gamedb.DBRef, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[player] = append(b.subscribers[player], sub)
}

// Unsubscribe removes a subscriber for a specific player.
func (b *Bus) Unsubscribe(player gamedb.DBRef, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[player]
	for i, s := range subs {
		if s == sub {
			b.subscribers[player] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[player]) == 0 {
		delete(b.subscribers, player)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the player in ev.Player and all global subscribers.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.Player]
	globals := b.global
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// EmitToPlayer sends an event to a specific player (overriding ev.Player).
func (b *Bus) EmitToPlayer(player gamedb.DBRef, ev Event) {
	ev.Player = player
	b.Emit(ev)
}

// EmitToRoom sends an event to every subscriber present in a room.
func (b *Bus) EmitToRoom(db *gamedb.Database, room gamedb.DBRef, ev Event) {
	b.EmitToRoomExcept(db, room, gamedb.Nothing, ev)
}

// EmitToRoomExcept sends an event to every subscriber in a room except one
// occupant (typically the actor, who already saw a first-person form).
func (b *Bus) EmitToRoomExcept(db *gamedb.Database, room, except gamedb.DBRef, ev Event) {
	ev.Room = room

	for _, ref := range db.ContentsOf(room) {
		if ref == except {
			continue
		}
		b.mu.RLock()
		subs := b.subscribers[ref]
		b.mu.RUnlock()

		playerEv := ev
		playerEv.Player = ref
		for _, s := range subs {
			if !s.Closed() {
				s.Receive(playerEv)
			}
		}
	}

	b.mu.RLock()
	globals := b.global
	b.mu.RUnlock()
	for _, s := range globals {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// Cleanup drops closed subscribers. Called periodically by the server.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for player, subs := range b.subscribers {
		alive := subs[:0]
		for _, s := range subs {
			if !s.Closed() {
				alive = append(alive, s)
			}
		}
		if len(alive) == 0 {
			delete(b.subscribers, player)
		} else {
			b.subscribers[player] = alive
		}
	}
	aliveGlobal := b.global[:0]
	for _, s := range b.global {
		if !s.Closed() {
			aliveGlobal = append(aliveGlobal, s)
		}
	}
	b.global = aliveGlobal
}

// SubscriberCount returns how many live subscribers a player has.
func (b *Bus) SubscriberCount(player gamedb.DBRef) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, s := range b.subscribers[player] {
		if !s.Closed() {
			n++
		}
	}
	return n
}
