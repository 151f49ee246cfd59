package server

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/veilmush/goveilmush/pkg/events"
	"github.com/veilmush/goveilmush/pkg/gamedb"
	"github.com/veilmush/goveilmush/pkg/narrative"
	"github.com/veilmush/goveilmush/pkg/overlay"
)

// vrRoom reports whether the player currently stands in a VR-enabled room.
func (g *Game) vrRoom(player gamedb.DBRef) (gamedb.DBRef, bool) {
	loc := g.PlayerLocation(player)
	roomObj := g.DB.Get(loc)
	if roomObj == nil || !roomObj.HasFlag(gamedb.FlagVrOK) {
		return loc, false
	}
	return loc, true
}

// sceneContextFor assembles the persona context from the player's current
// view of the room, subjective when diverged.
func (g *Game) sceneContextFor(player, room gamedb.DBRef, event string) narrative.SceneContext {
	sc := narrative.SceneContext{
		Event:      event,
		PlayerName: g.PlayerName(player),
	}
	if roomObj := g.DB.Get(room); roomObj != nil {
		sc.RoomName = roomObj.Name
		sc.RoomDesc = roomObj.AttrValue(gamedb.AttrDesc)
	}
	if vr := g.Overlay.Get(player, room); vr != nil {
		if vr.Diverged {
			if vr.Title != "" {
				sc.RoomName = vr.Title
			}
			if vr.Desc != "" {
				sc.RoomDesc = vr.Desc
			}
		}
		sc.Memo = vr.Memo
		sc.Intent = vr.Intent
		sc.History = historyMessages(vr)
	}
	return sc
}

// historyMessages converts the bounded exchange history into chat turns.
func historyMessages(vr *overlay.VRState) []narrative.ChatMessage {
	msgs := make([]narrative.ChatMessage, 0, len(vr.History))
	for _, ex := range vr.History {
		role := "assistant"
		if ex.Persona == "player" {
			role = "user"
		}
		msgs = append(msgs, narrative.ChatMessage{Role: role, Content: ex.Text})
	}
	return msgs
}

// InterceptVR routes unknown input from a VR room to the active persona.
// Returns false when the room is not VR-enabled or no service is wired, so
// the dispatcher can fall through to "Huh?".
func (g *Game) InterceptVR(d *Descriptor, input string) bool {
	if g.Narrative == nil {
		return false
	}
	room, ok := g.vrRoom(d.Player)
	if !ok {
		return false
	}

	player := d.Player
	vr := g.Overlay.GetOrCreate(player, room)
	persona := vr.Persona
	if persona == "" {
		persona = overlay.PersonaDungeonMaster
	}
	sc := g.sceneContextFor(player, room, input)
	g.Overlay.AddExchange(player, room, "player", input)

	fallback := narrative.FallbackNarrat
	if persona == overlay.PersonaArchitect {
		fallback = narrative.FallbackScene
	}
	return g.submitPersona(player, room, persona, sc, fallback)
}

// InterceptVRMove turns a failed movement attempt inside a VR room into a
// scene transition. A player with no subjective state yet gets a fresh one;
// the Architect answers with the scene beyond the missing exit.
func (g *Game) InterceptVRMove(d *Descriptor, direction string) bool {
	if g.Narrative == nil {
		return false
	}
	room, ok := g.vrRoom(d.Player)
	if !ok {
		return false
	}
	g.Overlay.GetOrCreate(d.Player, room)
	event := fmt.Sprintf("%s tries to go %s.", g.PlayerName(d.Player), direction)
	sc := g.sceneContextFor(d.Player, room, event)
	g.Overlay.AddExchange(d.Player, room, "player", event)
	return g.submitPersona(d.Player, room, overlay.PersonaArchitect, sc, narrative.FallbackScene)
}

// InterceptVRLook synthesizes a description for a target that exists only
// in the player's diverged scene. Repeated looks reuse the cached answer.
func (g *Game) InterceptVRLook(d *Descriptor, target string) bool {
	if g.Narrative == nil {
		return false
	}
	room, ok := g.vrRoom(d.Player)
	if !ok {
		return false
	}
	vr := g.Overlay.Get(d.Player, room)
	if vr == nil || !vr.Diverged {
		return false
	}
	if desc, cached := g.Overlay.CachedLook(d.Player, room, target); cached {
		d.Send(desc)
		return true
	}

	player := d.Player
	persona := vr.Persona
	if persona == "" {
		persona = overlay.PersonaDungeonMaster
	}
	event := fmt.Sprintf("%s looks closely at %s.", g.PlayerName(player), target)
	sc := g.sceneContextFor(player, room, event)
	req := narrative.Request{
		Persona:  persona,
		Player:   player,
		Room:     room,
		Scene:    sc,
		Fallback: narrative.FallbackFlavor,
	}
	_, err := g.Narrative.Submit(req, func(res narrative.Result) {
		if res.Err == nil {
			g.Overlay.CacheLook(player, room, target, res.Response.Text)
		}
		g.Emit(events.Event{Type: events.EvNarrative, Player: player, Room: room, Text: res.Response.Text})
	})
	if err != nil {
		d.Send("The scene does not answer.")
		return true
	}
	if g.Metrics != nil {
		g.Metrics.NarrativeSubmitted()
	}
	return true
}

// RequestSenseFlavor asks the Dungeon Master for a one-line sense
// impression of an AI_OK object that has no authored sense attribute.
func (g *Game) RequestSenseFlavor(d *Descriptor, target gamedb.DBRef, verb string) bool {
	if g.Narrative == nil {
		return false
	}
	obj := g.DB.Get(target)
	if obj == nil {
		return false
	}
	player := d.Player
	room := g.PlayerLocation(player)
	event := fmt.Sprintf("%s tries to %s %s. Answer with one short sensory line.",
		g.PlayerName(player), verb, obj.Name)
	sc := g.sceneContextFor(player, room, event)
	req := narrative.Request{
		Persona:  narrative.PersonaDungeonMaster,
		Player:   player,
		Room:     room,
		Scene:    sc,
		Fallback: narrative.FallbackFlavor,
	}
	_, err := g.Narrative.Submit(req, func(res narrative.Result) {
		g.Emit(events.Event{Type: events.EvNarrative, Player: player, Room: room, Text: res.Response.Text})
	})
	if err != nil {
		return false
	}
	if g.Metrics != nil {
		g.Metrics.NarrativeSubmitted()
	}
	return true
}

// submitPersona runs one persona call and delivers the narration.
// A Dungeon Master scene-change directive chains an Architect call.
func (g *Game) submitPersona(player, room gamedb.DBRef, persona string, sc narrative.SceneContext, fallback string) bool {
	req := narrative.Request{
		Persona:  persona,
		Player:   player,
		Room:     room,
		Scene:    sc,
		Fallback: fallback,
	}
	_, err := g.Narrative.Submit(req, func(res narrative.Result) {
		g.deliverPersona(player, room, persona, res)
	})
	if err != nil {
		if errors.Is(err, narrative.ErrQueueFull) {
			g.notifyActor(player, "The scene is overwhelmed; try again in a moment.")
		} else {
			g.notifyActor(player, "The scene does not answer.")
		}
		return true
	}
	if g.Metrics != nil {
		g.Metrics.NarrativeSubmitted()
	}
	return true
}

// deliverPersona handles a completed persona call on a worker goroutine.
func (g *Game) deliverPersona(player, room gamedb.DBRef, persona string, res narrative.Result) {
	if res.Err != nil {
		log.Printf("NARRATIVE: %s call for #%d failed: %v", persona, player, res.Err)
		if g.Metrics != nil {
			g.Metrics.NarrativeFallback()
		}
	}

	if persona == overlay.PersonaArchitect {
		// Architect output is the new subjective scene.
		text := res.Response.Text
		vr := g.Overlay.ApplyScene(player, room, res.Response.VRTitle, text)
		g.Overlay.AddExchange(player, room, persona, text)
		g.Emit(events.Event{Type: events.EvVista, Player: player, Room: room, Text: vr.Title})
		g.Emit(events.Event{Type: events.EvNarrative, Player: player, Room: room, Text: text})
		return
	}

	g.Overlay.AddExchange(player, room, persona, res.Response.Text)
	g.Emit(events.Event{Type: events.EvNarrative, Player: player, Room: room, Text: res.Response.Text})

	if res.Response.SceneChange && res.Err == nil {
		g.requestSceneChange(player, room)
	}
}

// requestSceneChange hands the scene to the Architect after a Dungeon
// Master [scene_change] directive.
func (g *Game) requestSceneChange(player, room gamedb.DBRef) {
	g.Overlay.SetPersona(player, room, overlay.PersonaArchitect)
	sc := g.sceneContextFor(player, room, "Rebuild the scene for the traveler now.")
	g.submitPersona(player, room, overlay.PersonaArchitect, sc, narrative.FallbackScene)
}

// ---- VR commands ----

func cmdVrOk(g *Game, d *Descriptor, _ string) {
	loc := g.PlayerLocation(d.Player)
	_, roomObj := g.matchControlled(d, fmt.Sprintf("#%d", loc))
	if roomObj == nil {
		return
	}
	set := !roomObj.HasFlag(gamedb.FlagVrOK)
	g.DB.SetFlag(loc, gamedb.FlagVrOK, set)
	g.PersistObjects(loc)
	if set {
		d.Send("This room now admits subjective realities.")
	} else {
		d.Send("This room is canonical again.")
	}
}

func cmdVrMemo(g *Game, d *Descriptor, args string) {
	loc := g.PlayerLocation(d.Player)
	g.Overlay.SetMemo(d.Player, loc, args)
	if err := g.DB.SetAttr(d.Player, gamedb.AttrVrMemo, args, d.Player); err == nil {
		g.PersistObjects(d.Player)
	}
	if args == "" {
		d.Send("Memo cleared.")
	} else {
		d.Send("Memo set.")
	}
}

func cmdVrIntent(g *Game, d *Descriptor, args string) {
	loc := g.PlayerLocation(d.Player)
	g.Overlay.SetIntent(d.Player, loc, args)
	if err := g.DB.SetAttr(d.Player, gamedb.AttrVrIntent, args, d.Player); err == nil {
		g.PersistObjects(d.Player)
	}
	if args == "" {
		d.Send("Intent cleared.")
	} else {
		d.Send("Intent set.")
	}
}

func cmdVrReset(g *Game, d *Descriptor, _ string) {
	loc := g.PlayerLocation(d.Player)
	if g.Narrative != nil {
		g.Narrative.CancelPlayer(d.Player)
	}
	if !g.Overlay.Reset(d.Player, loc) {
		d.Send("Your view of this place is already canonical.")
		return
	}
	if g.Store != nil {
		if err := g.Store.DeleteVRStates(d.Player, loc); err != nil {
			log.Printf("boltstore: reset vr state: %v", err)
		}
	}
	d.Send("The world snaps back into focus.")
	g.ShowRoom(d, loc)
}

func cmdVrClear(g *Game, d *Descriptor, args string) {
	loc := g.PlayerLocation(d.Player)
	if args != "" {
		if ref, obj := g.matchControlled(d, args); obj != nil {
			loc = ref
		} else {
			return
		}
	}
	n := g.Overlay.ClearRoom(loc)
	if g.Store != nil {
		if err := g.Store.DeleteVRStates(gamedb.Nothing, loc); err != nil {
			log.Printf("boltstore: clear vr states: %v", err)
		}
	}
	d.Send(fmt.Sprintf("Cleared %d subjective states for %s.", n, g.ObjName(loc)))
}

// cmdSummon pulls a consenting player into the summoner's diverged scene.
func cmdSummon(g *Game, d *Descriptor, args string) {
	name := strings.TrimSpace(args)
	if name == "" {
		d.Send("Summon whom?")
		return
	}
	loc := g.PlayerLocation(d.Player)
	vr := g.Overlay.Get(d.Player, loc)
	if vr == nil || !vr.Diverged {
		d.Send("You have no scene to summon anyone into.")
		return
	}
	target := g.DB.LookupPlayer(name)
	if target == gamedb.Nothing {
		d.Send("No such player.")
		return
	}
	targetObj := g.DB.Get(target)
	if targetObj == nil || !targetObj.HasFlag(gamedb.FlagSummonOK) {
		d.Send("They are not open to being summoned.")
		return
	}
	if g.PlayerLocation(target) != loc {
		d.Send("They aren't here with you.")
		return
	}
	shared := g.Overlay.ApplyScene(target, loc, vr.Title, vr.Desc)
	g.Overlay.SetMemo(target, loc, vr.Memo)
	g.Emit(events.Event{Type: events.EvVista, Player: target, Room: loc, Text: shared.Title})
	g.notifyActor(target, fmt.Sprintf("%s draws you into their scene: %s",
		g.PlayerName(d.Player), shared.Desc))
	d.Send(fmt.Sprintf("You draw %s into your scene.", targetObj.Name))
}
