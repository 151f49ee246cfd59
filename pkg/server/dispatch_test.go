package server

import (
	"strings"
	"testing"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

func TestDispatchUnknownCommand(t *testing.T) {
	g := newTestGame(t)
	room := makeRoom(t, g, "Plaza")
	_, alice := connectPlayer(t, g, "Alice", room)
	_, bob := connectPlayer(t, g, "Bob", room)

	bob.Clear()
	DispatchCommand(g, alice.d, "frobnicate the widget")
	if !alice.Contains("Huh?") {
		t.Errorf("actor did not get Huh?:\n%s", alice.Output())
	}
	if bob.Contains("Huh?") {
		t.Error("bystander saw the Huh? message")
	}
}

func TestDispatchBuiltinBeatsExit(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	cellar := makeRoom(t, g, "Cellar")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	// An exit named after a builtin must never shadow the builtin.
	exit, _ := g.DB.Create(gamedb.TypeExit, "look", alice, plaza, 0)
	g.DB.LinkExit(exit, cellar)

	tc.Clear()
	DispatchCommand(g, tc.d, "look")
	if got := g.PlayerLocation(alice); got != plaza {
		t.Fatalf("builtin shadowed by exit: player moved to #%d", got)
	}
	if !tc.Contains("Plaza") {
		t.Errorf("look did not render the room:\n%s", tc.Output())
	}
}

func TestDispatchExitMoves(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	cellar := makeRoom(t, g, "Cellar")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	_, bob := connectPlayer(t, g, "Bob", plaza)
	exit, _ := g.DB.Create(gamedb.TypeExit, "down;d", alice, plaza, 0)
	g.DB.LinkExit(exit, cellar)
	g.DB.SetAttr(exit, gamedb.AttrSucc, "You climb down the ladder.", alice)

	bob.Clear()
	DispatchCommand(g, tc.d, "down")
	if got := g.PlayerLocation(alice); got != cellar {
		t.Fatalf("player at #%d, want #%d", got, cellar)
	}
	if !tc.Contains("You climb down the ladder.") {
		t.Errorf("success message missing:\n%s", tc.Output())
	}
	if !bob.Contains("Alice has left.") {
		t.Errorf("departure not announced:\n%s", bob.Output())
	}

	tc.Clear()
	DispatchCommand(g, tc.d, "go up")
	if got := g.PlayerLocation(alice); got != cellar {
		t.Errorf("player moved through a nonexistent exit to #%d", got)
	}
	if !tc.Contains("You can't go that way.") {
		t.Errorf("missing refusal:\n%s", tc.Output())
	}
}

func TestDispatchExitAlias(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	cellar := makeRoom(t, g, "Cellar")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	exit, _ := g.DB.Create(gamedb.TypeExit, "down;d", alice, plaza, 0)
	g.DB.LinkExit(exit, cellar)

	DispatchCommand(g, tc.d, "d")
	if got := g.PlayerLocation(alice); got != cellar {
		t.Errorf("alias did not move: at #%d, want #%d", got, cellar)
	}
}

func TestDispatchLockedExit(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	cellar := makeRoom(t, g, "Cellar")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	_, bob := connectPlayer(t, g, "Bob", plaza)
	exit, _ := g.DB.Create(gamedb.TypeExit, "vault", alice, plaza, 0)
	g.DB.LinkExit(exit, cellar)
	g.DB.SetLock(exit, gamedb.LockDefault, "#9999")
	g.DB.SetAttr(exit, gamedb.AttrFail, "The vault door refuses you.", alice)
	g.DB.SetAttr(exit, gamedb.AttrOFail, "rattles the vault door in vain.", alice)

	bob.Clear()
	DispatchCommand(g, tc.d, "vault")
	if got := g.PlayerLocation(alice); got != plaza {
		t.Fatalf("locked exit let the player through to #%d", got)
	}
	if !tc.Contains("The vault door refuses you.") {
		t.Errorf("fail message missing:\n%s", tc.Output())
	}
	if !bob.Contains("Alice rattles the vault door in vain.") {
		t.Errorf("ofail not shown to room:\n%s", bob.Output())
	}
}

func TestSayReachesRoom(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	_, alice := connectPlayer(t, g, "Alice", plaza)
	_, bob := connectPlayer(t, g, "Bob", plaza)
	cellar := makeRoom(t, g, "Cellar")
	_, carol := connectPlayer(t, g, "Carol", cellar)

	bob.Clear()
	carol.Clear()
	DispatchCommand(g, alice.d, "say hello there")
	if !alice.Contains(`You say, "hello there"`) {
		t.Errorf("speaker echo missing:\n%s", alice.Output())
	}
	if !bob.Contains(`Alice says, "hello there"`) {
		t.Errorf("room did not hear:\n%s", bob.Output())
	}
	if strings.Contains(carol.Output(), "hello there") {
		t.Error("speech leaked into another room")
	}
}

func TestQuoteAndColonPrefixes(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	_, alice := connectPlayer(t, g, "Alice", plaza)
	_, bob := connectPlayer(t, g, "Bob", plaza)

	DispatchCommand(g, alice.d, `"hi`)
	if !bob.Contains(`Alice says, "hi"`) {
		t.Errorf("quote prefix not treated as say:\n%s", bob.Output())
	}
	bob.Clear()
	DispatchCommand(g, alice.d, ":waves.")
	if !bob.Contains("Alice waves.") {
		t.Errorf("colon prefix not treated as pose:\n%s", bob.Output())
	}
}

func TestWizOnlyCommandDenied(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)

	DispatchCommand(g, tc.d, "@pay Alice=1000")
	if !tc.Contains("Permission denied.") {
		t.Errorf("mortal ran a wizard command:\n%s", tc.Output())
	}
	if got := g.Balance(alice); got != g.Conf().StartingTokens {
		t.Errorf("balance changed to %d", got)
	}
}

func TestAmpersandSetsAttribute(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	thing, _ := g.DB.Create(gamedb.TypeThing, "statue", alice, plaza, 1)

	DispatchCommand(g, tc.d, "&GREETING statue=Welcome, traveler.")
	if got := g.DB.Get(thing).AttrValue("GREETING"); got != "Welcome, traveler." {
		t.Errorf("attribute = %q", got)
	}
	if !tc.Contains("- set.") {
		t.Errorf("no confirmation:\n%s", tc.Output())
	}

	DispatchCommand(g, tc.d, "&GREETING statue=")
	if got := g.DB.Get(thing).AttrValue("GREETING"); got != "" {
		t.Errorf("attribute not cleared: %q", got)
	}
}
