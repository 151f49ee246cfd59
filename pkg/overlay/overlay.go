// Package overlay implements the subjective reality layer: per-(player,
// room) divergent scene state kept sparse over the canonical world graph.
// The canonical room is never touched; everything here is what one player
// perceives instead of it.
package overlay

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

// Persona names as recorded in exchange history and handoffs.
const (
	PersonaArchitect     = "architect"
	PersonaDungeonMaster = "dungeon_master"
)

// HistoryLimit bounds the persona exchange history kept per state.
const HistoryLimit = 12

// Exchange is one turn of conversation with a narrative persona.
type Exchange struct {
	Persona string // which persona answered (or "player" for the prompt)
	Text    string
	Time    time.Time
}

// VRState is the divergent view one player holds of one room.
type VRState struct {
	Player    gamedb.DBRef
	Room      gamedb.DBRef
	Diverged  bool   // false = canonical view with VR bookkeeping only
	Title     string // subjective room title, if rewritten
	Desc      string // subjective room description
	Memo      string // accumulated scene memo fed to the Architect
	Intent    string // player-authored intent fed to the personas
	Persona   string // persona that answers the next interception
	History   []Exchange
	LookCache map[string]string // look target -> synthesized description
	Updated   time.Time
}

type key struct {
	player gamedb.DBRef
	room   gamedb.DBRef
}

// Manager owns all VRStates. Every mutation goes through the manager so
// concurrent command streams never see a half-updated state.
type Manager struct {
	mu     sync.RWMutex
	states map[key]*VRState
}

// NewManager creates an empty overlay manager.
func NewManager() *Manager {
	return &Manager{states: make(map[key]*VRState)}
}

// Get returns the state for (player, room), or nil.
func (m *Manager) Get(player, room gamedb.DBRef) *VRState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[key{player, room}]
}

// GetOrCreate returns the existing state or installs a fresh canonical-view
// state with the Dungeon Master active.
func (m *Manager) GetOrCreate(player, room gamedb.DBRef) *VRState {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{player, room}
	if vr := m.states[k]; vr != nil {
		return vr
	}
	vr := &VRState{
		Player:    player,
		Room:      room,
		Persona:   PersonaDungeonMaster,
		LookCache: make(map[string]string),
		Updated:   time.Now(),
	}
	m.states[k] = vr
	return vr
}

// ApplyScene installs an Architect scene rewrite into the player's state,
// marking it diverged. The canonical room is untouched.
func (m *Manager) ApplyScene(player, room gamedb.DBRef, title, desc string) *VRState {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{player, room}
	vr := m.states[k]
	if vr == nil {
		vr = &VRState{Player: player, Room: room, LookCache: make(map[string]string)}
		m.states[k] = vr
	}
	vr.Diverged = true
	if title != "" {
		vr.Title = title
	}
	vr.Desc = desc
	vr.Persona = PersonaDungeonMaster
	vr.LookCache = make(map[string]string) // a new scene invalidates cached looks
	vr.Updated = time.Now()
	return vr
}

// AddExchange appends to the bounded persona history.
func (m *Manager) AddExchange(player, room gamedb.DBRef, persona, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vr := m.states[key{player, room}]
	if vr == nil {
		return
	}
	vr.History = append(vr.History, Exchange{Persona: persona, Text: text, Time: time.Now()})
	if len(vr.History) > HistoryLimit {
		vr.History = vr.History[len(vr.History)-HistoryLimit:]
	}
	vr.Updated = time.Now()
}

// SetMemo replaces the accumulated scene memo, creating the state if
// needed.
func (m *Manager) SetMemo(player, room gamedb.DBRef, memo string) {
	vr := m.GetOrCreate(player, room)
	m.mu.Lock()
	defer m.mu.Unlock()
	vr.Memo = memo
	vr.Updated = time.Now()
}

// SetIntent replaces the player-authored intent, creating the state if
// needed.
func (m *Manager) SetIntent(player, room gamedb.DBRef, intent string) {
	vr := m.GetOrCreate(player, room)
	m.mu.Lock()
	defer m.mu.Unlock()
	vr.Intent = intent
	vr.Updated = time.Now()
}

// SetPersona records which persona answers the next interception.
func (m *Manager) SetPersona(player, room gamedb.DBRef, persona string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if vr := m.states[key{player, room}]; vr != nil {
		vr.Persona = persona
	}
}

// CacheLook remembers a synthesized description so repeated looks at the
// same imaginary target stay consistent within the session.
func (m *Manager) CacheLook(player, room gamedb.DBRef, target, desc string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vr := m.states[key{player, room}]
	if vr == nil {
		return
	}
	if vr.LookCache == nil {
		vr.LookCache = make(map[string]string)
	}
	vr.LookCache[normalizeTarget(target)] = desc
}

// CachedLook returns a previously synthesized description, if any.
func (m *Manager) CachedLook(player, room gamedb.DBRef, target string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	vr := m.states[key{player, room}]
	if vr == nil || vr.LookCache == nil {
		return "", false
	}
	desc, ok := vr.LookCache[normalizeTarget(target)]
	return desc, ok
}

// Reset clears one player's state for a room (@reset), returning to the
// canonical view. Reports whether anything was cleared.
func (m *Manager) Reset(player, room gamedb.DBRef) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{player, room}
	if _, ok := m.states[k]; !ok {
		return false
	}
	delete(m.states, k)
	return true
}

// ClearRoom drops every player's state for a room (@vr_clear, room
// destruction). Returns how many states were dropped.
func (m *Manager) ClearRoom(room gamedb.DBRef) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.states {
		if k.room == room {
			delete(m.states, k)
			n++
		}
	}
	if n > 0 {
		log.Printf("VR: cleared %d states for room #%d", n, room)
	}
	return n
}

// ClearPlayer drops every state owned by a player (player destruction).
func (m *Manager) ClearPlayer(player gamedb.DBRef) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.states {
		if k.player == player {
			delete(m.states, k)
			n++
		}
	}
	return n
}

// Snapshot returns copies of all states for persistence.
func (m *Manager) Snapshot() []VRState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]VRState, 0, len(m.states))
	for _, vr := range m.states {
		cp := *vr
		cp.History = append([]Exchange(nil), vr.History...)
		cp.LookCache = make(map[string]string, len(vr.LookCache))
		for t, d := range vr.LookCache {
			cp.LookCache[t] = d
		}
		out = append(out, cp)
	}
	return out
}

// Restore reinstalls a persisted state.
func (m *Manager) Restore(vr VRState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := vr
	if cp.LookCache == nil {
		cp.LookCache = make(map[string]string)
	}
	m.states[key{vr.Player, vr.Room}] = &cp
}

// Count returns the number of live states.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

func normalizeTarget(target string) string {
	return strings.ToLower(strings.TrimSpace(target))
}
