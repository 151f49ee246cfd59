package server

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/veilmush/goveilmush/pkg/events"
	"github.com/veilmush/goveilmush/pkg/gamedb"
)

// CommandHandler runs one built-in command for a connected descriptor.
type CommandHandler func(g *Game, d *Descriptor, args string)

// Command is a registered built-in verb.
type Command struct {
	Name    string
	Handler CommandHandler
	WizOnly bool
}

// InitCommands registers the built-in verbs and their aliases.
func InitCommands() map[string]*Command {
	cmds := make(map[string]*Command)

	register := func(handler CommandHandler, names ...string) {
		c := &Command{Name: names[0], Handler: handler}
		for _, n := range names {
			cmds[strings.ToLower(n)] = c
		}
	}
	registerWiz := func(handler CommandHandler, names ...string) {
		c := &Command{Name: names[0], Handler: handler, WizOnly: true}
		for _, n := range names {
			cmds[strings.ToLower(n)] = c
		}
	}

	// Communication
	register(cmdSay, "say")
	register(cmdPose, "pose")
	register(cmdEmit, "@emit")

	// Movement
	register(cmdGo, "go", "move")
	register(cmdEnter, "enter")
	register(cmdLeave, "leave", "exit")
	register(cmdGet, "get", "take")
	register(cmdDrop, "drop")
	register(cmdHome, "home")

	// Senses
	register(cmdLook, "look", "l")
	register(cmdListen, "listen")
	register(cmdSmell, "smell")
	register(cmdTaste, "taste")
	register(cmdTouch, "touch")

	// Information
	register(cmdExamine, "examine", "ex")
	register(cmdInventory, "inventory", "i", "inv")
	register(cmdWho, "who")
	register(cmdScore, "score")
	register(cmdQuit, "quit")

	// Building
	register(cmdCreate, "@create")
	register(cmdDig, "@dig")
	register(cmdOpen, "@open")
	register(cmdLink, "@link")
	register(cmdAgent, "@agent")
	register(cmdDestroy, "@destroy")
	register(cmdSet, "@set")
	register(cmdDescribe, "@describe", "@desc")
	register(cmdName, "@name")
	register(cmdLock, "@lock")
	register(cmdUnlock, "@unlock")

	// Economy
	register(cmdGive, "give")
	registerWiz(cmdPay, "@pay")

	// VR
	register(cmdVrOk, "@vr_ok")
	register(cmdVrMemo, "@vr_memo")
	register(cmdVrIntent, "@vr_intent")
	register(cmdVrReset, "@reset")
	registerWiz(cmdVrClear, "@vr_clear")
	register(cmdSummon, "@summon")

	// System
	register(cmdDeepResearch, "@deep_research")
	register(cmdSnapshot, "@snapshot")
	registerWiz(cmdPurgeBuffers, "@purge_buffers")
	registerWiz(cmdBackup, "@backup")
	register(cmdHalt, "@halt")

	return cmds
}

// DispatchCommand routes one line of player input.
func DispatchCommand(g *Game, d *Descriptor, input string) {
	dispatchCommand(g, d, input, 0, d.Player)
}

// dispatchCommand is the depth-aware dispatcher used by the trigger
// engine. Resolution order: builtin verb → exit name → $-commands →
// VR interception → "Huh?".
func dispatchCommand(g *Game, d *Descriptor, input string, depth int, origActor gamedb.DBRef) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}
	if depth > TriggerDepthLimit {
		g.notifyActor(origActor, RecursionMarker)
		return
	}

	if g.Metrics != nil {
		g.Metrics.CommandProcessed()
	}

	switch input[0] {
	case '"':
		sayCommon(g, d, input[1:], depth, origActor)
		return
	case ':':
		poseCommon(g, d, input[1:], depth, origActor)
		return
	case '&':
		cmdSetVAttr(g, d, input[1:])
		return
	}

	var cmdName, args string
	if spaceIdx := strings.IndexByte(input, ' '); spaceIdx >= 0 {
		cmdName = input[:spaceIdx]
		args = strings.TrimSpace(input[spaceIdx+1:])
	} else {
		cmdName = input
	}

	if cmd, ok := g.Commands[strings.ToLower(cmdName)]; ok {
		if cmd.WizOnly && !g.Wizard(d.Player) {
			d.Send("Permission denied.")
			return
		}
		// say and pose carry the fan-out depth
		switch cmd.Name {
		case "say":
			sayCommon(g, d, args, depth, origActor)
		case "pose":
			poseCommon(g, d, args, depth, origActor)
		default:
			cmd.Handler(g, d, args)
		}
		return
	}

	// Bare exit names move the player.
	if tryMoveByExit(g, d, input) {
		return
	}

	if g.MatchDollarCommands(d.Player, input, depth, origActor) {
		return
	}

	// Diverged players hand unknown input to the narrative layer.
	if g.InterceptVR(d, input) {
		return
	}

	d.Send("Huh?  (Type \"look\" to get your bearings.)")
}

// roomText builds a plain room-broadcast event.
func roomText(room, source gamedb.DBRef, text string) events.Event {
	return events.Event{Type: events.EvRoom, Source: source, Room: room, Text: text}
}

// speechRoom is where an object's speech lands: its location, or the
// object itself when it is a room.
func (g *Game) speechRoom(ref gamedb.DBRef) gamedb.DBRef {
	if obj := g.DB.Get(ref); obj != nil {
		if obj.ObjType() == gamedb.TypeRoom {
			return ref
		}
		return obj.Location
	}
	return gamedb.Nothing
}

// ---- Communication ----

func cmdSay(g *Game, d *Descriptor, args string) {
	sayCommon(g, d, args, 0, d.Player)
}

func sayCommon(g *Game, d *Descriptor, args string, depth int, origActor gamedb.DBRef) {
	msg := g.evalFor(d.Player, d.Player, args, nil)
	loc := g.speechRoom(d.Player)
	toSpeaker, toRoom := formatSpeech(g.PlayerName(d.Player), msg)
	d.Send(toSpeaker)
	g.EmitRoomExcept(loc, d.Player, events.Event{
		Type: events.EvSay, Source: d.Player, Room: loc, Text: toRoom,
	})
	g.SpeechFanout(loc, d.Player, toRoom, depth, origActor)
}

func cmdPose(g *Game, d *Descriptor, args string) {
	poseCommon(g, d, args, 0, d.Player)
}

func poseCommon(g *Game, d *Descriptor, args string, depth int, origActor gamedb.DBRef) {
	msg := g.evalFor(d.Player, d.Player, args, nil)
	loc := g.speechRoom(d.Player)
	line := fmt.Sprintf("%s %s", g.PlayerName(d.Player), msg)
	g.EmitRoom(loc, events.Event{
		Type: events.EvPose, Source: d.Player, Room: loc, Text: line,
	})
	g.SpeechFanout(loc, d.Player, line, depth, origActor)
}

func cmdEmit(g *Game, d *Descriptor, args string) {
	msg := g.evalFor(d.Player, d.Player, args, nil)
	loc := g.speechRoom(d.Player)
	g.EmitRoom(loc, events.Event{
		Type: events.EvEmit, Source: d.Player, Room: loc, Text: msg,
	})
	g.SpeechFanout(loc, d.Player, msg, 0, d.Player)
}

// ---- Movement ----

func cmdGo(g *Game, d *Descriptor, args string) {
	if args == "" {
		d.Send("Go where?")
		return
	}
	if !tryMoveByExit(g, d, args) {
		if g.InterceptVRMove(d, args) {
			return
		}
		d.Send("You can't go that way.")
	}
}

// tryMoveByExit attempts to move the player through an exit matching name.
func tryMoveByExit(g *Game, d *Descriptor, name string) bool {
	exitRef := g.DB.MatchExit(d.Player, name)
	if exitRef == gamedb.Nothing {
		return false
	}
	exitObj := g.DB.Get(exitRef)
	if exitObj == nil {
		return false
	}

	if !g.PassesLock(d.Player, exitRef, gamedb.LockDefault) {
		g.LockFailure(d, exitRef, "You can't go that way.")
		return true
	}
	dest := exitObj.Link
	if dest == gamedb.Nothing {
		d.Send("That exit leads nowhere.")
		return true
	}

	if succ := exitObj.AttrValue(gamedb.AttrSucc); succ != "" {
		d.Send(g.evalFor(exitRef, d.Player, succ, nil))
	}
	g.moveWithAnnounce(d, dest)
	return true
}

// moveWithAnnounce relocates a player, announcing departure and arrival.
func (g *Game) moveWithAnnounce(d *Descriptor, dest gamedb.DBRef) {
	name := g.PlayerName(d.Player)
	oldLoc := g.PlayerLocation(d.Player)
	if err := g.MoveObject(d.Player, dest); err != nil {
		d.Send("You can't go there.")
		return
	}
	if oldLoc != gamedb.Nothing {
		g.EmitRoomExcept(oldLoc, d.Player, roomText(oldLoc, d.Player, name+" has left."))
	}
	g.EmitRoomExcept(dest, d.Player, roomText(dest, d.Player, name+" has arrived."))
	g.ShowRoom(d, dest)
}

func cmdEnter(g *Game, d *Descriptor, args string) {
	if args == "" {
		d.Send("Enter what?")
		return
	}
	target := g.DB.MatchObject(d.Player, args)
	if target == gamedb.Nothing {
		d.Send("You don't see that here.")
		return
	}
	if target == gamedb.Ambiguous {
		d.Send("Which one do you mean?")
		return
	}
	obj := g.DB.Get(target)
	if obj == nil || (!obj.HasFlag(gamedb.FlagEnterOK) && obj.Owner != d.Player) {
		d.Send("You can't enter that.")
		return
	}
	if !g.PassesLock(d.Player, target, gamedb.LockEnter) {
		g.LockFailure(d, target, "You can't enter that.")
		return
	}
	g.moveWithAnnounce(d, target)
}

func cmdLeave(g *Game, d *Descriptor, _ string) {
	loc := g.PlayerLocation(d.Player)
	locObj := g.DB.Get(loc)
	if locObj == nil || locObj.ObjType() == gamedb.TypeRoom {
		d.Send("You can't leave here.")
		return
	}
	g.moveWithAnnounce(d, locObj.Location)
}

func cmdGet(g *Game, d *Descriptor, args string) {
	if args == "" {
		d.Send("Get what?")
		return
	}
	loc := g.PlayerLocation(d.Player)
	target := g.DB.MatchObject(d.Player, args)
	if target == gamedb.Nothing || g.PlayerLocation(target) != loc {
		d.Send("You don't see that here.")
		return
	}
	if target == gamedb.Ambiguous {
		d.Send("Which one do you mean?")
		return
	}
	obj := g.DB.Get(target)
	if obj == nil || obj.ObjType() == gamedb.TypePlayer || obj.ObjType() == gamedb.TypeExit {
		d.Send("You can't pick that up.")
		return
	}
	if !g.PassesLock(d.Player, target, gamedb.LockDefault) {
		g.LockFailure(d, target, "You can't pick that up.")
		return
	}
	if err := g.MoveObject(target, d.Player); err != nil {
		d.Send("You can't pick that up.")
		return
	}
	d.Send("Taken.")
	g.EmitRoomExcept(loc, d.Player, roomText(loc, d.Player,
		fmt.Sprintf("%s takes %s.", g.PlayerName(d.Player), obj.Name)))
}

func cmdDrop(g *Game, d *Descriptor, args string) {
	if args == "" {
		d.Send("Drop what?")
		return
	}
	target := g.DB.MatchObject(d.Player, args)
	if target == gamedb.Nothing || g.PlayerLocation(target) != d.Player {
		d.Send("You aren't carrying that.")
		return
	}
	loc := g.PlayerLocation(d.Player)
	obj := g.DB.Get(target)
	if err := g.MoveObject(target, loc); err != nil {
		d.Send("You can't drop that here.")
		return
	}
	d.Send("Dropped.")
	g.EmitRoomExcept(loc, d.Player, roomText(loc, d.Player,
		fmt.Sprintf("%s drops %s.", g.PlayerName(d.Player), obj.Name)))
}

func cmdHome(g *Game, d *Descriptor, _ string) {
	obj := g.DB.Get(d.Player)
	if obj == nil || obj.Link == gamedb.Nothing {
		d.Send("You have no home.")
		return
	}
	d.Send("There's no place like home...")
	g.moveWithAnnounce(d, obj.Link)
}

// ---- Senses ----

func cmdLook(g *Game, d *Descriptor, args string) {
	loc := g.PlayerLocation(d.Player)
	if args == "" || strings.EqualFold(args, "here") {
		g.ShowRoom(d, loc)
		return
	}

	target := g.DB.MatchObject(d.Player, args)
	if target == gamedb.Nothing {
		if g.InterceptVRLook(d, args) {
			return
		}
		d.Send("You don't see that here.")
		return
	}
	if target == gamedb.Ambiguous {
		d.Send("Which one do you mean?")
		return
	}

	// Diverged players see their cached subjective description first.
	if vr := g.Overlay.Get(d.Player, loc); vr != nil && vr.Diverged {
		if desc, ok := g.Overlay.CachedLook(d.Player, loc, args); ok {
			d.Send(desc)
			return
		}
	}

	obj := g.DB.Get(target)
	desc := obj.AttrValue(gamedb.AttrDesc)
	if desc == "" {
		d.Send("You see nothing special.")
		return
	}
	d.Send(g.evalFor(target, d.Player, desc, nil))
}

func cmdListen(g *Game, d *Descriptor, args string) {
	senseVerb(g, d, args, gamedb.AttrSound, "hear")
}

func cmdSmell(g *Game, d *Descriptor, args string) {
	senseVerb(g, d, args, gamedb.AttrScent, "smell")
}

func cmdTaste(g *Game, d *Descriptor, args string) {
	senseVerb(g, d, args, gamedb.AttrTaste, "taste")
}

func cmdTouch(g *Game, d *Descriptor, args string) {
	senseVerb(g, d, args, gamedb.AttrTexture, "feel")
}

// senseVerb resolves a sense command against the target's sense attribute.
// AiOk targets with no attribute get an asynchronous narrative flavor line.
func senseVerb(g *Game, d *Descriptor, args, attrName, verb string) {
	target := g.PlayerLocation(d.Player)
	if args != "" && !strings.EqualFold(args, "here") {
		target = g.DB.MatchObject(d.Player, args)
	}
	if target == gamedb.Nothing {
		d.Send("You don't see that here.")
		return
	}
	if target == gamedb.Ambiguous {
		d.Send("Which one do you mean?")
		return
	}
	obj := g.DB.Get(target)
	if obj == nil {
		d.Send("You don't see that here.")
		return
	}
	if text := obj.AttrValue(attrName); text != "" {
		d.Send(g.evalFor(target, d.Player, text, nil))
		return
	}
	if obj.HasFlag(gamedb.FlagAiOK) && g.RequestSenseFlavor(d, target, verb) {
		return
	}
	d.Send(fmt.Sprintf("You %s nothing unusual.", verb))
}

// ---- Information ----

func cmdExamine(g *Game, d *Descriptor, args string) {
	target := d.Player
	if args != "" {
		target = g.DB.MatchObject(d.Player, args)
	}
	if target == gamedb.Nothing {
		d.Send("You don't see that here.")
		return
	}
	if target == gamedb.Ambiguous {
		d.Send("Which one do you mean?")
		return
	}
	obj := g.DB.Get(target)
	viewer := g.DB.Get(d.Player)
	if obj == nil || viewer == nil {
		d.Send("You don't see that here.")
		return
	}
	if obj.Owner != d.Player && !g.Wizard(d.Player) && !obj.HasFlag(gamedb.FlagVisual) {
		d.Send("Permission denied.")
		return
	}

	d.Send(fmt.Sprintf("%s(#%d%s)", obj.Name, target, obj.FlagString()))
	d.Send("Type: " + obj.ObjType().String() + "  Owner: " + g.ObjName(obj.Owner))
	if obj.Cost > 0 {
		d.Send(fmt.Sprintf("Creation cost: %d", obj.Cost))
	}
	if obj.Location != gamedb.Nothing {
		d.Send("Location: " + g.ObjName(obj.Location))
	}
	if obj.Link != gamedb.Nothing {
		d.Send("Link: " + g.ObjName(obj.Link))
	}
	for lockType, src := range obj.Locks {
		d.Send(fmt.Sprintf("Lock[%s]: %s", lockType, src))
	}
	for _, a := range obj.Attrs {
		if !gamedb.CanReadAttr(viewer, obj, a) {
			continue
		}
		d.Send(fmt.Sprintf("%s: %s", a.Name, a.Value))
	}
	for _, ref := range g.DB.ContentsOf(target) {
		d.Send("Contents: " + g.ObjName(ref))
	}
}

func cmdInventory(g *Game, d *Descriptor, _ string) {
	contents := g.DB.ContentsOf(d.Player)
	if len(contents) == 0 {
		d.Send("You aren't carrying anything.")
	} else {
		d.Send("You are carrying:")
		for _, ref := range contents {
			d.Send("  " + g.PlayerName(ref))
		}
	}
	d.Send(fmt.Sprintf("You have %d tokens.", g.Balance(d.Player)))
}

func cmdWho(g *Game, d *Descriptor, _ string) {
	players := g.Conns.ConnectedPlayers()
	sort.Slice(players, func(i, j int) bool { return players[i] < players[j] })

	d.Send(fmt.Sprintf("%-20s %10s %8s", "Player Name", "On For", "Idle"))
	now := time.Now()
	for _, p := range players {
		descs := g.Conns.GetByPlayer(p)
		if len(descs) == 0 {
			continue
		}
		first := descs[0]
		d.Send(fmt.Sprintf("%-20s %10s %8s",
			g.PlayerName(p),
			FormatConnTime(now.Sub(first.ConnTime)),
			FormatIdleTime(now.Sub(first.LastCmd))))
	}
	d.Send(fmt.Sprintf("%d players are connected.", len(players)))
}

func cmdScore(g *Game, d *Descriptor, _ string) {
	d.Send(fmt.Sprintf("You have %d tokens.", g.Balance(d.Player)))
}

func cmdQuit(g *Game, d *Descriptor, _ string) {
	d.Send("Goodbye!")
	d.Close()
}
