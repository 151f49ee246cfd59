package server

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/veilmush/goveilmush/pkg/boltstore"
	"github.com/veilmush/goveilmush/pkg/eval"
	"github.com/veilmush/goveilmush/pkg/eval/functions"
	"github.com/veilmush/goveilmush/pkg/events"
	"github.com/veilmush/goveilmush/pkg/gamedb"
	"github.com/veilmush/goveilmush/pkg/ledger"
	"github.com/veilmush/goveilmush/pkg/narrative"
	"github.com/veilmush/goveilmush/pkg/overlay"
)

// Game holds the full live state of one running world.
type Game struct {
	DB        *gamedb.Database
	Conns     *ConnManager
	Commands  map[string]*Command
	Queue     *CommandQueue
	Ledger    *ledger.Ledger
	Overlay   *overlay.Manager
	Narrative *narrative.Service // nil = narrative layer disabled
	Store     *boltstore.Store   // nil = no bbolt persistence
	EventBus  *events.Bus
	Metrics   *Metrics // nil until the web server registers them

	confMu sync.RWMutex
	conf   *GameConf
}

// NewGame creates a Game around an already-loaded database.
func NewGame(db *gamedb.Database, led *ledger.Ledger, ov *overlay.Manager) *Game {
	if ov == nil {
		ov = overlay.NewManager()
	}
	bus := events.NewBus()
	cm := NewConnManager()
	cm.EventBus = bus
	return &Game{
		DB:       db,
		Conns:    cm,
		Commands: InitCommands(),
		Queue:    NewCommandQueue(),
		Ledger:   led,
		Overlay:  ov,
		EventBus: bus,
		conf:     DefaultGameConf(),
	}
}

// Conf returns the current configuration. Live reload swaps the pointer,
// so callers must not hold the result across commands.
func (g *Game) Conf() *GameConf {
	g.confMu.RLock()
	defer g.confMu.RUnlock()
	return g.conf
}

// SetConf installs a new configuration (used by the fsnotify reload path).
func (g *Game) SetConf(gc *GameConf) {
	g.confMu.Lock()
	defer g.confMu.Unlock()
	g.conf = gc
}

// Wizard reports whether ref (or its owner) carries the wizard flag.
func (g *Game) Wizard(ref gamedb.DBRef) bool {
	obj := g.DB.Get(ref)
	if obj == nil {
		return false
	}
	if obj.IsWizard() {
		return true
	}
	owner := g.DB.Get(obj.Owner)
	return owner != nil && owner != obj && owner.IsWizard()
}

// PlayerName returns the object's bare name, or "Someone".
func (g *Game) PlayerName(ref gamedb.DBRef) string {
	if obj := g.DB.Get(ref); obj != nil {
		return obj.Name
	}
	return "Someone"
}

// PlayerLocation returns where an object is, or Nothing.
func (g *Game) PlayerLocation(ref gamedb.DBRef) gamedb.DBRef {
	if obj := g.DB.Get(ref); obj != nil {
		return obj.Location
	}
	return gamedb.Nothing
}

// ObjName renders "Name(#n)" the way examine output does.
func (g *Game) ObjName(ref gamedb.DBRef) string {
	if obj := g.DB.Get(ref); obj != nil {
		return fmt.Sprintf("%s(#%d)", obj.Name, ref)
	}
	return fmt.Sprintf("#%d", ref)
}

// Emit sends an event to the player named in ev.Player.
func (g *Game) Emit(ev events.Event) {
	g.EventBus.Emit(ev)
}

// EmitRoom sends an event to everyone in a room.
func (g *Game) EmitRoom(room gamedb.DBRef, ev events.Event) {
	g.EventBus.EmitToRoom(g.DB, room, ev)
}

// EmitRoomExcept sends an event to everyone in a room except one object.
func (g *Game) EmitRoomExcept(room, except gamedb.DBRef, ev events.Event) {
	g.EventBus.EmitToRoomExcept(g.DB, room, except, ev)
}

// PersistObjects writes objects through to the bolt store (no-op without one).
func (g *Game) PersistObjects(refs ...gamedb.DBRef) {
	if g.Store == nil {
		return
	}
	var objs []*gamedb.Object
	for _, ref := range refs {
		if obj := g.DB.Get(ref); obj != nil {
			objs = append(objs, obj)
		}
	}
	if len(objs) == 0 {
		return
	}
	if err := g.Store.PutObjects(objs); err != nil {
		log.Printf("ERROR: persist objects: %v", err)
	}
}

// EvalContext builds a softcode evaluation context with the builtin
// registry loaded. executor is %! / v(); enactor is %n.
func (g *Game) EvalContext(executor, enactor gamedb.DBRef, args []string) *eval.EvalContext {
	ctx := eval.NewEvalContext(g.DB)
	ctx.Executor = executor
	ctx.Enactor = enactor
	ctx.Args = args
	functions.RegisterAll(ctx)
	return ctx
}

// evalFor evaluates softcode text with executor/enactor identity.
func (g *Game) evalFor(executor, enactor gamedb.DBRef, text string, args []string) string {
	return g.EvalContext(executor, enactor, args).Eval(text)
}

// Charge debits tokens through the ledger. Wizards are exempt; the
// exemption is logged but never written to the ledger.
func (g *Game) Charge(actor gamedb.DBRef, amount int, reason string) error {
	if amount <= 0 || g.Ledger == nil {
		return nil
	}
	if g.Wizard(actor) {
		log.Printf("LEDGER: wizard #%d exempt from %d tokens (%s)", actor, amount, reason)
		return nil
	}
	return g.Ledger.Charge(actor, amount, reason)
}

// Reserve holds tokens for a background job. A nil reservation with nil
// error means the actor was exempt; Commit/Release on it are no-ops via
// ReleaseReservation/CommitReservation.
func (g *Game) Reserve(actor gamedb.DBRef, amount int, reason string) (*ledger.Reservation, error) {
	if amount <= 0 || g.Ledger == nil {
		return nil, nil
	}
	if g.Wizard(actor) {
		log.Printf("LEDGER: wizard #%d exempt from %d token reserve (%s)", actor, amount, reason)
		return nil, nil
	}
	return g.Ledger.Reserve(actor, amount, reason)
}

// CommitReservation finalizes a reservation, tolerating the exempt case.
func CommitReservation(r *ledger.Reservation) {
	if r != nil {
		r.Commit()
	}
}

// ReleaseReservation refunds a reservation, tolerating the exempt case.
func ReleaseReservation(r *ledger.Reservation) {
	if r != nil {
		r.Release()
	}
}

// Balance reads an actor's token balance (0 without a ledger).
func (g *Game) Balance(actor gamedb.DBRef) int {
	if g.Ledger == nil {
		return 0
	}
	return g.Ledger.Balance(actor)
}

// MoveObject relocates an object and notifies both rooms. The gamedb layer
// rejects cycles and room moves; callers surface that error to the actor.
func (g *Game) MoveObject(ref, dest gamedb.DBRef) error {
	obj := g.DB.Get(ref)
	if obj == nil {
		return gamedb.ErrNotFound
	}
	oldLoc := obj.Location
	if err := g.DB.Move(ref, dest); err != nil {
		return err
	}
	g.PersistObjects(ref, oldLoc, dest)
	return nil
}

// ShowRoom renders a room to one player. Players with a diverged overlay
// for the room see their subjective title/description; the canonical room
// object is never touched.
func (g *Game) ShowRoom(d *Descriptor, room gamedb.DBRef) {
	roomObj := g.DB.Get(room)
	if roomObj == nil {
		d.Send("You are nowhere.")
		return
	}

	name := roomObj.Name
	desc := roomObj.AttrValue(gamedb.AttrDesc)
	if vr := g.Overlay.Get(d.Player, room); vr != nil && vr.Diverged {
		if vr.Title != "" {
			name = vr.Title
		}
		if vr.Desc != "" {
			desc = vr.Desc
		}
	}

	d.Send(name)
	if desc != "" {
		d.Send(g.evalFor(room, d.Player, desc, nil))
	}

	var here []string
	for _, ref := range g.DB.ContentsOf(room) {
		if ref == d.Player {
			continue
		}
		obj := g.DB.Get(ref)
		if obj == nil || obj.HasFlag(gamedb.FlagDark) {
			continue
		}
		here = append(here, obj.Name)
	}
	if len(here) > 0 {
		d.Send("Contents:")
		for _, n := range here {
			d.Send("  " + n)
		}
	}

	var exits []string
	for _, ref := range g.DB.ExitsOf(room) {
		obj := g.DB.Get(ref)
		if obj == nil || obj.HasFlag(gamedb.FlagDark) {
			continue
		}
		// Show only the primary alias
		exits = append(exits, strings.SplitN(obj.Name, ";", 2)[0])
	}
	if len(exits) > 0 {
		d.Send("Obvious exits: " + strings.Join(exits, "  "))
	}
}

// DisconnectPlayer handles a descriptor going away: announce, cancel any
// pending narrative jobs for the player if this was their last connection.
func (g *Game) DisconnectPlayer(d *Descriptor) {
	if d.State != ConnConnected || d.Player == gamedb.Nothing {
		return
	}
	player := d.Player
	remaining := 0
	for _, dd := range g.Conns.GetByPlayer(player) {
		if dd.ID != d.ID && !dd.IsClosed() {
			remaining++
		}
	}
	if remaining > 0 {
		return
	}

	if g.Narrative != nil {
		g.Narrative.CancelPlayer(player)
	}
	loc := g.PlayerLocation(player)
	if loc != gamedb.Nothing {
		g.EmitRoomExcept(loc, player, events.Event{
			Type:   events.EvDisconnect,
			Source: player,
			Room:   loc,
			Text:   fmt.Sprintf("%s has disconnected.", g.PlayerName(player)),
		})
	}
	log.Printf("Player %s(#%d) disconnected", g.PlayerName(player), player)
}
