package server

import (
	"fmt"
	"testing"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

func TestCreateChargesCost(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	start := g.Balance(alice)

	DispatchCommand(g, tc.d, "@create rock")
	if !tc.Contains("Created rock(#") {
		t.Fatalf("no creation confirmation:\n%s", tc.Output())
	}
	if got := g.Balance(alice); got != start-g.Conf().CreateCost {
		t.Errorf("balance = %d, want %d", got, start-g.Conf().CreateCost)
	}
	rock := g.DB.MatchObject(alice, "rock")
	if rock == gamedb.Nothing {
		t.Fatal("rock not found near the player")
	}
	if got := g.DB.Get(rock).Location; got != alice {
		t.Errorf("new thing at #%d, want carried by #%d", got, alice)
	}
}

func TestCreateRefusedWhenBroke(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	g.Ledger.Charge(alice, g.Balance(alice), "drain")

	DispatchCommand(g, tc.d, "@create rock")
	want := fmt.Sprintf("That costs %d tokens, and you have 0.", g.Conf().CreateCost)
	if !tc.Contains(want) {
		t.Errorf("missing refusal %q:\n%s", want, tc.Output())
	}
	if g.DB.MatchObject(alice, "rock") != gamedb.Nothing {
		t.Error("object created without payment")
	}
}

func TestWizardCreatesForFree(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	wiz, tc := connectPlayer(t, g, "Merlin", plaza)
	g.DB.SetFlag(wiz, gamedb.FlagWizard, true)
	start := g.Balance(wiz)

	DispatchCommand(g, tc.d, "@create orb")
	if !tc.Contains("Created orb(#") {
		t.Fatalf("wizard create failed:\n%s", tc.Output())
	}
	if got := g.Balance(wiz); got != start {
		t.Errorf("wizard was charged: %d -> %d", start, got)
	}
}

func TestDigRoomWithExit(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	start := g.Balance(alice)

	DispatchCommand(g, tc.d, "@dig Cellar=down;d")
	if !tc.Contains("Dug Cellar(#") || !tc.Contains("Opened down;d(#") {
		t.Fatalf("dig output incomplete:\n%s", tc.Output())
	}
	if got := g.Balance(alice); got != start-g.Conf().DigCost {
		t.Errorf("balance = %d, want %d", got, start-g.Conf().DigCost)
	}
	// The new exit is usable immediately.
	DispatchCommand(g, tc.d, "down")
	if loc := g.PlayerLocation(alice); g.DB.Get(loc).Name != "Cellar" {
		t.Errorf("exit did not lead to the new room; player in %q", g.DB.Get(loc).Name)
	}
}

func TestDestroyRefundsCost(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	start := g.Balance(alice)

	DispatchCommand(g, tc.d, "@create rock")
	rock := g.DB.MatchObject(alice, "rock")
	DispatchCommand(g, tc.d, "@destroy rock")
	if !tc.Contains("Destroyed. You get back 1 tokens.") {
		t.Errorf("refund message missing:\n%s", tc.Output())
	}
	if got := g.Balance(alice); got != start {
		t.Errorf("create+destroy not token-neutral: %d -> %d", start, got)
	}
	if obj := g.DB.Get(rock); obj != nil && !obj.IsGoing() {
		t.Error("rock still present after destroy")
	}
}

func TestDestroyRefusesPlayers(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, _ := connectPlayer(t, g, "Alice", plaza)
	wiz, wizTC := connectPlayer(t, g, "Merlin", plaza)
	g.DB.SetFlag(wiz, gamedb.FlagWizard, true)

	DispatchCommand(g, wizTC.d, "@destroy Alice")
	if !wizTC.Contains("Players can't be destroyed that way.") {
		t.Errorf("missing refusal:\n%s", wizTC.Output())
	}
	if g.DB.Get(alice) == nil {
		t.Fatal("player destroyed")
	}
}

func TestGiveTransfersTokens(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, aliceTC := connectPlayer(t, g, "Alice", plaza)
	bob, _ := connectPlayer(t, g, "Bob", plaza)
	startA, startB := g.Balance(alice), g.Balance(bob)

	DispatchCommand(g, aliceTC.d, "give Bob=25")
	if !aliceTC.Contains("You give 25 tokens to Bob.") {
		t.Errorf("giver confirmation missing:\n%s", aliceTC.Output())
	}
	if got := g.Balance(alice); got != startA-25 {
		t.Errorf("giver balance = %d, want %d", got, startA-25)
	}
	if got := g.Balance(bob); got != startB+25 {
		t.Errorf("receiver balance = %d, want %d", got, startB+25)
	}
}

func TestGiveRejectsBadAmounts(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	connectPlayer(t, g, "Bob", plaza)
	start := g.Balance(alice)

	DispatchCommand(g, tc.d, "give Bob=-5")
	DispatchCommand(g, tc.d, "give Bob=0")
	DispatchCommand(g, tc.d, "give Bob=9999")
	if got := g.Balance(alice); got != start {
		t.Errorf("balance changed by a rejected give: %d -> %d", start, got)
	}
}

func TestPayMintsTokens(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	wiz, tc := connectPlayer(t, g, "Merlin", plaza)
	g.DB.SetFlag(wiz, gamedb.FlagWizard, true)
	bob, _ := connectPlayer(t, g, "Bob", plaza)
	startB := g.Balance(bob)

	DispatchCommand(g, tc.d, "@pay Bob=100")
	if !tc.Contains("Paid 100 tokens to Bob") {
		t.Errorf("pay confirmation missing:\n%s", tc.Output())
	}
	if got := g.Balance(bob); got != startB+100 {
		t.Errorf("minted balance = %d, want %d", got, startB+100)
	}
}

func TestSetAndClearFlags(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	statue, _ := g.DB.Create(gamedb.TypeThing, "statue", alice, plaza, 1)

	DispatchCommand(g, tc.d, "@set statue=VISUAL")
	if !g.DB.Get(statue).HasFlag(gamedb.FlagVisual) {
		t.Error("flag not set")
	}
	DispatchCommand(g, tc.d, "@set statue=!VISUAL")
	if g.DB.Get(statue).HasFlag(gamedb.FlagVisual) {
		t.Error("flag not cleared")
	}
	tc.Clear()
	DispatchCommand(g, tc.d, "@set statue=NOSUCHFLAG")
	if !tc.Contains("I don't know that flag.") {
		t.Errorf("unknown flag accepted:\n%s", tc.Output())
	}
	tc.Clear()
	DispatchCommand(g, tc.d, "@set me=WIZARD")
	if g.DB.Get(alice).HasFlag(gamedb.FlagWizard) {
		t.Error("mortal granted themselves the wizard flag")
	}
}

func TestLockValidatesExpression(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	statue, _ := g.DB.Create(gamedb.TypeThing, "statue", alice, plaza, 1)

	DispatchCommand(g, tc.d, fmt.Sprintf("@lock statue=#%d", alice))
	if !tc.Contains("Locked.") {
		t.Fatalf("valid lock rejected:\n%s", tc.Output())
	}
	if g.DB.Get(statue).GetLock(gamedb.LockDefault) == "" {
		t.Error("lock not stored")
	}

	tc.Clear()
	DispatchCommand(g, tc.d, "@lock statue=somebody nobody knows")
	if !tc.Contains("I don't understand that lock") {
		t.Errorf("bad lock accepted:\n%s", tc.Output())
	}

	tc.Clear()
	DispatchCommand(g, tc.d, "@unlock statue")
	if !tc.Contains("Unlocked.") {
		t.Errorf("unlock failed:\n%s", tc.Output())
	}
	if g.DB.Get(statue).GetLock(gamedb.LockDefault) != "" {
		t.Error("lock still stored after unlock")
	}
}

func TestDescribeAndName(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	statue, _ := g.DB.Create(gamedb.TypeThing, "statue", alice, plaza, 1)

	DispatchCommand(g, tc.d, "@describe statue=A marble figure.")
	if got := g.DB.Get(statue).AttrValue(gamedb.AttrDesc); got != "A marble figure." {
		t.Errorf("description = %q", got)
	}
	DispatchCommand(g, tc.d, "@name statue=colossus")
	if got := g.DB.Get(statue).Name; got != "colossus" {
		t.Errorf("name = %q", got)
	}
}

func TestGetAndDrop(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	rock, _ := g.DB.Create(gamedb.TypeThing, "rock", alice, plaza, 1)

	DispatchCommand(g, tc.d, "get rock")
	if !tc.Contains("Taken.") {
		t.Fatalf("get refused:\n%s", tc.Output())
	}
	if got := g.DB.Get(rock).Location; got != alice {
		t.Errorf("rock at #%d, want carried", got)
	}
	DispatchCommand(g, tc.d, "drop rock")
	if !tc.Contains("Dropped.") {
		t.Fatalf("drop refused:\n%s", tc.Output())
	}
	if got := g.DB.Get(rock).Location; got != plaza {
		t.Errorf("rock at #%d, want #%d", got, plaza)
	}
}

func TestExamineVisibility(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, aliceTC := connectPlayer(t, g, "Alice", plaza)
	_, bobTC := connectPlayer(t, g, "Bob", plaza)
	statue, _ := g.DB.Create(gamedb.TypeThing, "statue", alice, plaza, 1)
	g.DB.SetAttr(statue, "SECRET", "the vault code", alice)

	DispatchCommand(g, bobTC.d, "examine statue")
	if !bobTC.Contains("Permission denied.") {
		t.Errorf("stranger examined a private object:\n%s", bobTC.Output())
	}

	g.DB.SetFlag(statue, gamedb.FlagVisual, true)
	bobTC.Clear()
	DispatchCommand(g, bobTC.d, "examine statue")
	if !bobTC.Contains("statue(#") {
		t.Errorf("visual object not shown:\n%s", bobTC.Output())
	}

	aliceTC.Clear()
	DispatchCommand(g, aliceTC.d, "examine statue")
	if !aliceTC.Contains("SECRET: the vault code") {
		t.Errorf("owner could not read own attribute:\n%s", aliceTC.Output())
	}
}

func TestScoreReportsBalance(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)

	DispatchCommand(g, tc.d, "score")
	want := fmt.Sprintf("You have %d tokens.", g.Balance(alice))
	if !tc.Contains(want) {
		t.Errorf("missing %q:\n%s", want, tc.Output())
	}
}

func TestSenseVerbs(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	bell, _ := g.DB.Create(gamedb.TypeThing, "bell", alice, plaza, 1)
	g.DB.SetAttr(bell, gamedb.AttrSound, "A deep bronze hum.", alice)

	DispatchCommand(g, tc.d, "listen bell")
	if !tc.Contains("A deep bronze hum.") {
		t.Errorf("authored sound not shown:\n%s", tc.Output())
	}

	tc.Clear()
	DispatchCommand(g, tc.d, "smell bell")
	if !tc.Contains("You smell nothing unusual.") {
		t.Errorf("missing default sense line:\n%s", tc.Output())
	}

	tc.Clear()
	DispatchCommand(g, tc.d, "listen")
	// The room has no SOUND attribute either.
	if !tc.Contains("You hear nothing unusual.") {
		t.Errorf("bare sense verb should target the room:\n%s", tc.Output())
	}
}

func TestAgentCreation(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	start := g.Balance(alice)

	DispatchCommand(g, tc.d, "@agent Watchman")
	if !tc.Contains("Agent Watchman(#") {
		t.Fatalf("agent not created:\n%s", tc.Output())
	}
	if got := g.Balance(alice); got != start-g.Conf().AgentCost {
		t.Errorf("balance = %d, want %d", got, start-g.Conf().AgentCost)
	}
	agent := g.DB.MatchObject(alice, "Watchman")
	obj := g.DB.Get(agent)
	if obj == nil || !obj.HasFlag(gamedb.FlagRobot) || !obj.HasFlag(gamedb.FlagAiOK) {
		t.Error("agent missing ROBOT/AI_OK flags")
	}
	if obj.Link != alice {
		t.Errorf("agent home = #%d, want its maker #%d", obj.Link, alice)
	}
}
