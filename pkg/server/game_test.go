package server

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/veilmush/goveilmush/pkg/gamedb"
	"github.com/veilmush/goveilmush/pkg/ledger"
	"github.com/veilmush/goveilmush/pkg/overlay"
)

// testClient captures everything a descriptor would have written to its
// connection: direct Sends and events delivered through the bus.
type testClient struct {
	d     *Descriptor
	mu    sync.Mutex
	lines []string
}

func (tc *testClient) capture(msg string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.lines = append(tc.lines, msg)
}

func (tc *testClient) Output() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return strings.Join(tc.lines, "\n")
}

func (tc *testClient) Contains(s string) bool {
	return strings.Contains(tc.Output(), s)
}

func (tc *testClient) Clear() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.lines = nil
}

// newTestGame builds a game with an in-memory world and a temp-file
// ledger. No bolt store is attached, so persistence calls are no-ops.
func newTestGame(t *testing.T) *Game {
	t.Helper()
	led, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { led.Close() })
	return NewGame(gamedb.NewDatabase(), led, overlay.NewManager())
}

func makeRoom(t *testing.T, g *Game, name string) gamedb.DBRef {
	t.Helper()
	ref, err := g.DB.Create(gamedb.TypeRoom, name, 1, gamedb.Nothing, 0)
	if err != nil {
		t.Fatalf("create room %q: %v", name, err)
	}
	return ref
}

// connectPlayer creates a self-owned player in room, funds it with the
// default starting tokens, and attaches a capturing descriptor.
func connectPlayer(t *testing.T, g *Game, name string, room gamedb.DBRef) (gamedb.DBRef, *testClient) {
	t.Helper()
	ref, err := g.DB.Create(gamedb.TypePlayer, name, gamedb.Nothing, room, 0)
	if err != nil {
		t.Fatalf("create player %q: %v", name, err)
	}
	g.DB.SetOwner(ref, ref)
	g.DB.SetLink(ref, room)
	if err := g.Ledger.Credit(ref, g.Conf().StartingTokens, "character creation"); err != nil {
		t.Fatalf("fund player %q: %v", name, err)
	}
	tc := &testClient{}
	d := NewDescriptor(g.Conns.NextID(), nullConn{})
	d.SendFunc = tc.capture
	tc.d = d
	g.Conns.Add(d)
	g.Conns.Login(d, ref)
	return ref, tc
}

// drainQueue runs the softcode queue until empty.
func drainQueue(t *testing.T, g *Game) {
	t.Helper()
	for i := 0; i < 64; i++ {
		if !g.ProcessQueue() {
			return
		}
	}
	t.Fatal("queue did not drain after 64 batches")
}

func TestChargeAndBalance(t *testing.T) {
	g := newTestGame(t)
	room := makeRoom(t, g, "Plaza")
	alice, _ := connectPlayer(t, g, "Alice", room)

	start := g.Balance(alice)
	if start != g.Conf().StartingTokens {
		t.Fatalf("starting balance = %d, want %d", start, g.Conf().StartingTokens)
	}
	if err := g.Charge(alice, 10, "test"); err != nil {
		t.Fatal(err)
	}
	if got := g.Balance(alice); got != start-10 {
		t.Errorf("balance after charge = %d, want %d", got, start-10)
	}
}

func TestWizardsExemptFromCharges(t *testing.T) {
	g := newTestGame(t)
	room := makeRoom(t, g, "Plaza")
	wiz, _ := connectPlayer(t, g, "Merlin", room)
	g.DB.SetFlag(wiz, gamedb.FlagWizard, true)

	start := g.Balance(wiz)
	if err := g.Charge(wiz, 100, "test"); err != nil {
		t.Fatal(err)
	}
	if got := g.Balance(wiz); got != start {
		t.Errorf("wizard balance changed: %d -> %d", start, got)
	}
	r, err := g.Reserve(wiz, 100, "test")
	if err != nil {
		t.Fatal(err)
	}
	if r != nil {
		t.Error("wizard reserve should be the exempt nil reservation")
	}
	// The exempt case must be safe to commit or release.
	CommitReservation(r)
	ReleaseReservation(r)
}

func TestReserveReleaseRefunds(t *testing.T) {
	g := newTestGame(t)
	room := makeRoom(t, g, "Plaza")
	alice, _ := connectPlayer(t, g, "Alice", room)

	start := g.Balance(alice)
	r, err := g.Reserve(alice, 50, "job")
	if err != nil {
		t.Fatal(err)
	}
	if got := g.Balance(alice); got != start-50 {
		t.Fatalf("balance during hold = %d, want %d", got, start-50)
	}
	ReleaseReservation(r)
	if got := g.Balance(alice); got != start {
		t.Errorf("balance after release = %d, want %d", got, start)
	}
	// Release after release stays a no-op.
	ReleaseReservation(r)
	if got := g.Balance(alice); got != start {
		t.Errorf("double release changed balance: %d", got)
	}
}

func TestMoveObjectNotifiesNothing(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	cellar := makeRoom(t, g, "Cellar")
	alice, _ := connectPlayer(t, g, "Alice", plaza)

	if err := g.MoveObject(alice, cellar); err != nil {
		t.Fatal(err)
	}
	if got := g.PlayerLocation(alice); got != cellar {
		t.Errorf("location = #%d, want #%d", got, cellar)
	}
}

func TestShowRoomListsContentsAndExits(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	cellar := makeRoom(t, g, "Cellar")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	g.DB.SetAttr(plaza, gamedb.AttrDesc, "A wide plaza.", alice)
	g.DB.Create(gamedb.TypeThing, "statue", alice, plaza, 1)
	exit, _ := g.DB.Create(gamedb.TypeExit, "down;d", alice, plaza, 0)
	g.DB.LinkExit(exit, cellar)

	tc.Clear()
	g.ShowRoom(tc.d, plaza)
	out := tc.Output()
	for _, want := range []string{"Plaza", "A wide plaza.", "statue", "down"} {
		if !strings.Contains(out, want) {
			t.Errorf("room display missing %q:\n%s", want, out)
		}
	}
}

func TestShowRoomSkipsDarkContents(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	thing, _ := g.DB.Create(gamedb.TypeThing, "lurker", alice, plaza, 1)
	g.DB.SetFlag(thing, gamedb.FlagDark, true)

	tc.Clear()
	g.ShowRoom(tc.d, plaza)
	if tc.Contains("lurker") {
		t.Errorf("dark object shown in room:\n%s", tc.Output())
	}
}
