package server

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/veilmush/goveilmush/pkg/gamedb"
	"github.com/veilmush/goveilmush/pkg/ledger"
)

// splitEquals breaks "lhs=rhs" at the first equals sign.
func splitEquals(args string) (string, string, bool) {
	idx := strings.IndexByte(args, '=')
	if idx < 0 {
		return strings.TrimSpace(args), "", false
	}
	return strings.TrimSpace(args[:idx]), strings.TrimSpace(args[idx+1:]), true
}

// matchControlled resolves a name to an object the actor may modify.
func (g *Game) matchControlled(d *Descriptor, name string) (gamedb.DBRef, *gamedb.Object) {
	if strings.EqualFold(name, "here") {
		name = fmt.Sprintf("#%d", g.PlayerLocation(d.Player))
	} else if strings.EqualFold(name, "me") {
		name = fmt.Sprintf("#%d", d.Player)
	}
	ref := g.DB.MatchObject(d.Player, name)
	if ref == gamedb.Nothing {
		d.Send("You don't see that here.")
		return gamedb.Nothing, nil
	}
	if ref == gamedb.Ambiguous {
		d.Send("Which one do you mean?")
		return gamedb.Nothing, nil
	}
	obj := g.DB.Get(ref)
	if obj == nil {
		d.Send("You don't see that here.")
		return gamedb.Nothing, nil
	}
	if obj.Owner != d.Player && !g.Wizard(d.Player) {
		d.Send("Permission denied.")
		return gamedb.Nothing, nil
	}
	return ref, obj
}

// chargeCreate reserves the token cost before creating, so a failed
// create never leaves a partial debit.
func (g *Game) chargeCreate(d *Descriptor, cost int, reason string,
	create func() (gamedb.DBRef, error)) (gamedb.DBRef, bool) {

	res, err := g.Reserve(d.Player, cost, reason)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientTokens) {
			d.Send(fmt.Sprintf("That costs %d tokens, and you have %d.", cost, g.Balance(d.Player)))
		} else {
			d.Send("The ledger refused: " + err.Error())
		}
		return gamedb.Nothing, false
	}
	ref, err := create()
	if err != nil {
		ReleaseReservation(res)
		d.Send("Creation failed: " + err.Error())
		return gamedb.Nothing, false
	}
	CommitReservation(res)
	return ref, true
}

func cmdCreate(g *Game, d *Descriptor, args string) {
	name := strings.TrimSpace(args)
	if name == "" {
		d.Send("Create what?")
		return
	}
	cost := g.Conf().CreateCost
	ref, ok := g.chargeCreate(d, cost, "@create "+name, func() (gamedb.DBRef, error) {
		return g.DB.Create(gamedb.TypeThing, name, d.Player, d.Player, cost)
	})
	if !ok {
		return
	}
	g.PersistObjects(ref, d.Player)
	d.Send(fmt.Sprintf("Created %s(#%d).", name, ref))
}

func cmdDig(g *Game, d *Descriptor, args string) {
	roomName, exitName, hasExit := splitEquals(args)
	if roomName == "" {
		d.Send("Dig what?")
		return
	}
	cost := g.Conf().DigCost
	room, ok := g.chargeCreate(d, cost, "@dig "+roomName, func() (gamedb.DBRef, error) {
		return g.DB.Create(gamedb.TypeRoom, roomName, d.Player, gamedb.Nothing, cost)
	})
	if !ok {
		return
	}
	g.PersistObjects(room)
	d.Send(fmt.Sprintf("Dug %s(#%d).", roomName, room))

	if hasExit && exitName != "" {
		loc := g.PlayerLocation(d.Player)
		exitRef, err := g.DB.Create(gamedb.TypeExit, exitName, d.Player, loc, 0)
		if err != nil {
			d.Send("Opened no exit: " + err.Error())
			return
		}
		if err := g.DB.LinkExit(exitRef, room); err != nil {
			d.Send("Exit opened but not linked: " + err.Error())
		}
		g.PersistObjects(exitRef, loc)
		d.Send(fmt.Sprintf("Opened %s(#%d) to %s.", exitName, exitRef, roomName))
	}
}

func cmdOpen(g *Game, d *Descriptor, args string) {
	exitName, destName, hasDest := splitEquals(args)
	if exitName == "" {
		d.Send("Open what?")
		return
	}
	loc := g.PlayerLocation(d.Player)
	locObj := g.DB.Get(loc)
	if locObj == nil || (locObj.Owner != d.Player && !g.Wizard(d.Player)) {
		d.Send("You don't own this room.")
		return
	}
	exitRef, err := g.DB.Create(gamedb.TypeExit, exitName, d.Player, loc, 0)
	if err != nil {
		d.Send("Open failed: " + err.Error())
		return
	}
	d.Send(fmt.Sprintf("Opened %s(#%d).", exitName, exitRef))
	if hasDest {
		dest := g.DB.MatchObject(d.Player, destName)
		if dest == gamedb.Nothing || g.DB.Get(dest) == nil {
			d.Send("Can't find the destination to link to.")
		} else if err := g.DB.LinkExit(exitRef, dest); err != nil {
			d.Send("Link failed: " + err.Error())
		} else {
			d.Send("Linked.")
		}
	}
	g.PersistObjects(exitRef, loc)
}

func cmdLink(g *Game, d *Descriptor, args string) {
	objName, destName, ok := splitEquals(args)
	if !ok {
		d.Send("Usage: @link <object>=<destination>")
		return
	}
	ref, obj := g.matchControlled(d, objName)
	if obj == nil {
		return
	}
	dest := g.DB.MatchObject(d.Player, destName)
	if dest == gamedb.Nothing || g.DB.Get(dest) == nil {
		d.Send("Can't find the destination.")
		return
	}
	if obj.ObjType() == gamedb.TypeExit {
		if err := g.DB.LinkExit(ref, dest); err != nil {
			d.Send("Link failed: " + err.Error())
			return
		}
	} else {
		if err := g.DB.SetLink(ref, dest); err != nil {
			d.Send("Link failed: " + err.Error())
			return
		}
	}
	g.PersistObjects(ref)
	d.Send("Linked.")
}

func cmdAgent(g *Game, d *Descriptor, args string) {
	name := strings.TrimSpace(args)
	if name == "" {
		d.Send("Name the agent.")
		return
	}
	cost := g.Conf().AgentCost
	ref, ok := g.chargeCreate(d, cost, "@agent "+name, func() (gamedb.DBRef, error) {
		return g.DB.Create(gamedb.TypeThing, name, d.Player, g.PlayerLocation(d.Player), cost)
	})
	if !ok {
		return
	}
	g.DB.SetFlag(ref, gamedb.FlagRobot, true)
	g.DB.SetFlag(ref, gamedb.FlagAiOK, true)
	g.DB.SetLink(ref, d.Player)
	g.PersistObjects(ref, g.PlayerLocation(d.Player))
	d.Send(fmt.Sprintf("Agent %s(#%d) awakens.", name, ref))
}

func cmdDestroy(g *Game, d *Descriptor, args string) {
	ref, obj := g.matchControlled(d, args)
	if obj == nil {
		return
	}
	if obj.ObjType() == gamedb.TypePlayer {
		d.Send("Players can't be destroyed that way.")
		return
	}
	owner := obj.Owner
	name := obj.Name
	result, err := g.DB.Destroy(ref)
	if err != nil {
		d.Send("Destroy failed: " + err.Error())
		return
	}
	if result.Refund > 0 && g.Ledger != nil && !g.Wizard(owner) {
		if err := g.Ledger.Credit(owner, result.Refund, "@destroy "+name); err != nil {
			d.Send("Destroyed, but the refund failed: " + err.Error())
		} else {
			d.Send(fmt.Sprintf("Destroyed. You get back %d tokens.", result.Refund))
		}
	} else {
		d.Send("Destroyed.")
	}
	g.Overlay.ClearRoom(ref)
	if g.Store != nil {
		if err := g.Store.DeleteObject(ref, ""); err != nil {
			log.Printf("boltstore: delete #%d: %v", ref, err)
		}
		if err := g.Store.DeleteVRStates(gamedb.Nothing, ref); err != nil {
			log.Printf("boltstore: clear vr states for #%d: %v", ref, err)
		}
	}
	g.PersistObjects(result.Relocated...)
}

func cmdSet(g *Game, d *Descriptor, args string) {
	objName, flagSpec, ok := splitEquals(args)
	if !ok {
		d.Send("Usage: @set <object>=[!]<flag>")
		return
	}
	ref, obj := g.matchControlled(d, objName)
	if obj == nil {
		return
	}
	clear := strings.HasPrefix(flagSpec, "!")
	flagName := strings.ToUpper(strings.TrimPrefix(flagSpec, "!"))
	flag, found := gamedb.FlagNames[flagName]
	if !found {
		d.Send("I don't know that flag.")
		return
	}
	if flag == gamedb.FlagWizard && !g.Wizard(d.Player) {
		d.Send("Permission denied.")
		return
	}
	g.DB.SetFlag(ref, flag, !clear)
	g.PersistObjects(ref)
	if clear {
		d.Send(flagName + " cleared.")
	} else {
		d.Send(flagName + " set.")
	}
}

func cmdDescribe(g *Game, d *Descriptor, args string) {
	objName, desc, ok := splitEquals(args)
	if !ok {
		d.Send("Usage: @describe <object>=<description>")
		return
	}
	ref, obj := g.matchControlled(d, objName)
	if obj == nil {
		return
	}
	if err := g.DB.SetAttr(ref, gamedb.AttrDesc, desc, d.Player); err != nil {
		d.Send("Describe failed: " + err.Error())
		return
	}
	g.PersistObjects(ref)
	d.Send("Description set.")
}

func cmdName(g *Game, d *Descriptor, args string) {
	objName, newName, ok := splitEquals(args)
	if !ok || newName == "" {
		d.Send("Usage: @name <object>=<new name>")
		return
	}
	ref, obj := g.matchControlled(d, objName)
	if obj == nil {
		return
	}
	if err := g.DB.Rename(ref, newName); err != nil {
		d.Send("Rename failed: " + err.Error())
		return
	}
	g.PersistObjects(ref)
	d.Send("Name set.")
}

// lockTarget parses "object[/locktype]" for @lock and @unlock.
func lockTarget(spec string) (string, string) {
	if idx := strings.IndexByte(spec, '/'); idx >= 0 {
		return strings.TrimSpace(spec[:idx]), strings.ToLower(strings.TrimSpace(spec[idx+1:]))
	}
	return strings.TrimSpace(spec), gamedb.LockDefault
}

func cmdLock(g *Game, d *Descriptor, args string) {
	target, expr, ok := splitEquals(args)
	if !ok || expr == "" {
		d.Send("Usage: @lock <object>[/<type>]=<expression>")
		return
	}
	objName, lockType := lockTarget(target)
	ref, obj := g.matchControlled(d, objName)
	if obj == nil {
		return
	}
	// Parse eagerly so the builder hears about bad names now.
	if _, err := ParseBoolExp(g, d.Player, expr); err != nil {
		d.Send("I don't understand that lock: " + err.Error())
		return
	}
	if err := g.DB.SetLock(ref, lockType, expr); err != nil {
		d.Send("Lock failed: " + err.Error())
		return
	}
	g.PersistObjects(ref)
	d.Send("Locked.")
}

func cmdUnlock(g *Game, d *Descriptor, args string) {
	objName, lockType := lockTarget(args)
	ref, obj := g.matchControlled(d, objName)
	if obj == nil {
		return
	}
	if err := g.DB.SetLock(ref, lockType, ""); err != nil {
		d.Send("Unlock failed: " + err.Error())
		return
	}
	g.PersistObjects(ref)
	d.Send("Unlocked.")
}

// cmdSetVAttr handles the &ATTR object=value shorthand.
func cmdSetVAttr(g *Game, d *Descriptor, args string) {
	spaceIdx := strings.IndexByte(args, ' ')
	if spaceIdx < 0 {
		d.Send("Usage: &<attribute> <object>=<value>")
		return
	}
	attrName := strings.TrimSpace(args[:spaceIdx])
	objName, value, ok := splitEquals(args[spaceIdx+1:])
	if !ok {
		d.Send("Usage: &<attribute> <object>=<value>")
		return
	}
	ref, obj := g.matchControlled(d, objName)
	if obj == nil {
		return
	}
	if a, found := obj.GetAttr(attrName); found && a.Flags&gamedb.AFLock != 0 && !g.Wizard(d.Player) {
		d.Send("That attribute is locked.")
		return
	}
	if err := g.DB.SetAttr(ref, attrName, value, d.Player); err != nil {
		d.Send("Set failed: " + err.Error())
		return
	}
	g.PersistObjects(ref)
	if value == "" {
		d.Send(fmt.Sprintf("%s - cleared.", g.ObjName(ref)))
	} else {
		d.Send(fmt.Sprintf("%s - set.", g.ObjName(ref)))
	}
}

// ---- Economy ----

func cmdGive(g *Game, d *Descriptor, args string) {
	targetName, amountStr, ok := splitEquals(args)
	if !ok {
		d.Send("Usage: give <player>=<amount>")
		return
	}
	amount, err := strconv.Atoi(amountStr)
	if err != nil || amount <= 0 {
		d.Send("Give a positive number of tokens.")
		return
	}
	target := g.DB.LookupPlayer(targetName)
	if target == gamedb.Nothing {
		target = g.DB.MatchObject(d.Player, targetName)
	}
	obj := g.DB.Get(target)
	if target == gamedb.Nothing || target == gamedb.Ambiguous || obj == nil || obj.ObjType() != gamedb.TypePlayer {
		d.Send("Give tokens to whom?")
		return
	}
	if g.Ledger == nil {
		d.Send("The ledger is closed.")
		return
	}
	if err := g.Ledger.Transfer(d.Player, target, amount, "give"); err != nil {
		if errors.Is(err, ledger.ErrInsufficientTokens) {
			d.Send("You don't have that many tokens.")
		} else {
			d.Send("Transfer failed: " + err.Error())
		}
		return
	}
	d.Send(fmt.Sprintf("You give %d tokens to %s.", amount, obj.Name))
	g.notifyActor(target, fmt.Sprintf("%s gives you %d tokens.", g.PlayerName(d.Player), amount))
}

// cmdPay mints tokens. Wizard-only; the dispatcher enforces that.
func cmdPay(g *Game, d *Descriptor, args string) {
	targetName, amountStr, ok := splitEquals(args)
	if !ok {
		d.Send("Usage: @pay <player>=<amount>")
		return
	}
	amount, err := strconv.Atoi(amountStr)
	if err != nil || amount <= 0 {
		d.Send("Pay a positive number of tokens.")
		return
	}
	target := g.DB.LookupPlayer(targetName)
	if target == gamedb.Nothing {
		d.Send("Pay whom?")
		return
	}
	if g.Ledger == nil {
		d.Send("The ledger is closed.")
		return
	}
	if err := g.Ledger.Credit(target, amount, "@pay by #"+strconv.Itoa(int(d.Player))); err != nil {
		d.Send("Pay failed: " + err.Error())
		return
	}
	d.Send(fmt.Sprintf("Paid %d tokens to %s.", amount, g.PlayerName(target)))
	g.notifyActor(target, fmt.Sprintf("%s pays you %d tokens.", g.PlayerName(d.Player), amount))
}
