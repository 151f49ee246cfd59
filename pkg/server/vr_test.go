package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/veilmush/goveilmush/pkg/gamedb"
	"github.com/veilmush/goveilmush/pkg/narrative"
	"github.com/veilmush/goveilmush/pkg/overlay"
)

func TestInterceptVRNeedsServiceAndFlag(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	_, tc := connectPlayer(t, g, "Alice", plaza)

	// No narrative service wired: unknown input stays Huh?, even in a
	// VR-enabled room.
	g.DB.SetFlag(plaza, gamedb.FlagVrOK, true)
	DispatchCommand(g, tc.d, "whisper to the shadows")
	if !tc.Contains("Huh?") {
		t.Errorf("input swallowed without a narrative service:\n%s", tc.Output())
	}
	if g.InterceptVR(tc.d, "anything") {
		t.Error("InterceptVR claimed input with no service")
	}
}

func TestVrOkToggle(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	g.DB.SetOwner(plaza, alice)

	DispatchCommand(g, tc.d, "@vr_ok")
	if !g.DB.Get(plaza).HasFlag(gamedb.FlagVrOK) {
		t.Fatal("flag not set")
	}
	if !tc.Contains("This room now admits subjective realities.") {
		t.Errorf("missing confirmation:\n%s", tc.Output())
	}
	tc.Clear()
	DispatchCommand(g, tc.d, "@vr_ok")
	if g.DB.Get(plaza).HasFlag(gamedb.FlagVrOK) {
		t.Fatal("flag not cleared")
	}
	if !tc.Contains("This room is canonical again.") {
		t.Errorf("missing confirmation:\n%s", tc.Output())
	}
}

func TestShowRoomSubjectiveOverlay(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	g.DB.SetAttr(plaza, gamedb.AttrDesc, "A wide plaza.", 1)
	alice, aliceTC := connectPlayer(t, g, "Alice", plaza)
	_, bobTC := connectPlayer(t, g, "Bob", plaza)

	g.Overlay.ApplyScene(alice, plaza, "The Glass Forest", "Trees of glass chime overhead.")

	aliceTC.Clear()
	g.ShowRoom(aliceTC.d, plaza)
	if !aliceTC.Contains("The Glass Forest") || !aliceTC.Contains("Trees of glass chime overhead.") {
		t.Errorf("diverged player saw the canonical room:\n%s", aliceTC.Output())
	}
	if aliceTC.Contains("A wide plaza.") {
		t.Errorf("canonical description leaked into the scene:\n%s", aliceTC.Output())
	}

	// The canonical room is untouched, and other players see it.
	if got := g.DB.Get(plaza).Name; got != "Plaza" {
		t.Errorf("room renamed by an overlay: %q", got)
	}
	bobTC.Clear()
	g.ShowRoom(bobTC.d, plaza)
	if !bobTC.Contains("Plaza") || bobTC.Contains("Glass Forest") {
		t.Errorf("bystander saw someone else's scene:\n%s", bobTC.Output())
	}
}

func TestVrMemoAndIntent(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)

	DispatchCommand(g, tc.d, "@vr_memo the innkeeper owes me three coins")
	if !tc.Contains("Memo set.") {
		t.Fatalf("memo not acknowledged:\n%s", tc.Output())
	}
	vr := g.Overlay.Get(alice, plaza)
	if vr == nil || vr.Memo != "the innkeeper owes me three coins" {
		t.Fatal("memo not stored in the overlay")
	}
	if got := g.DB.Get(alice).AttrValue(gamedb.AttrVrMemo); got != "the innkeeper owes me three coins" {
		t.Errorf("memo attribute = %q", got)
	}

	DispatchCommand(g, tc.d, "@vr_intent find the hidden door")
	if got := g.Overlay.Get(alice, plaza).Intent; got != "find the hidden door" {
		t.Errorf("intent = %q", got)
	}

	tc.Clear()
	DispatchCommand(g, tc.d, "@vr_memo")
	if !tc.Contains("Memo cleared.") {
		t.Errorf("empty memo should clear:\n%s", tc.Output())
	}
	if got := g.Overlay.Get(alice, plaza).Memo; got != "" {
		t.Errorf("memo survived clearing: %q", got)
	}
}

func TestVrResetRestoresCanonical(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)

	tc.Clear()
	DispatchCommand(g, tc.d, "@reset")
	if !tc.Contains("Your view of this place is already canonical.") {
		t.Errorf("reset without a scene should say so:\n%s", tc.Output())
	}

	g.Overlay.ApplyScene(alice, plaza, "The Glass Forest", "Trees of glass.")
	tc.Clear()
	DispatchCommand(g, tc.d, "@reset")
	if !tc.Contains("The world snaps back into focus.") {
		t.Errorf("reset not acknowledged:\n%s", tc.Output())
	}
	if vr := g.Overlay.Get(alice, plaza); vr != nil && vr.Diverged {
		t.Error("overlay still diverged after reset")
	}
	// The canonical room is shown again.
	if !tc.Contains("Plaza") {
		t.Errorf("room not re-rendered:\n%s", tc.Output())
	}
}

func TestSummonSharesScene(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, aliceTC := connectPlayer(t, g, "Alice", plaza)
	bob, bobTC := connectPlayer(t, g, "Bob", plaza)
	g.Overlay.ApplyScene(alice, plaza, "The Glass Forest", "Trees of glass.")
	g.Overlay.SetMemo(alice, plaza, "shared secret")

	// Without consent, no summoning.
	DispatchCommand(g, aliceTC.d, "@summon Bob")
	if !aliceTC.Contains("They are not open to being summoned.") {
		t.Errorf("consent not enforced:\n%s", aliceTC.Output())
	}

	g.DB.SetFlag(bob, gamedb.FlagSummonOK, true)
	aliceTC.Clear()
	bobTC.Clear()
	DispatchCommand(g, aliceTC.d, "@summon Bob")
	if !aliceTC.Contains("You draw Bob into your scene.") {
		t.Errorf("summoner not confirmed:\n%s", aliceTC.Output())
	}
	if !bobTC.Contains("Alice draws you into their scene") {
		t.Errorf("target not notified:\n%s", bobTC.Output())
	}
	vr := g.Overlay.Get(bob, plaza)
	if vr == nil || !vr.Diverged || vr.Title != "The Glass Forest" {
		t.Fatal("scene not shared with the target")
	}
	if vr.Memo != "shared secret" {
		t.Errorf("memo not carried over: %q", vr.Memo)
	}
}

func TestSummonNeedsOwnScene(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	_, aliceTC := connectPlayer(t, g, "Alice", plaza)
	bob, _ := connectPlayer(t, g, "Bob", plaza)
	g.DB.SetFlag(bob, gamedb.FlagSummonOK, true)

	DispatchCommand(g, aliceTC.d, "@summon Bob")
	if !aliceTC.Contains("You have no scene to summon anyone into.") {
		t.Errorf("summon without a scene allowed:\n%s", aliceTC.Output())
	}
}

func TestVrClearIsWizardOnly(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, aliceTC := connectPlayer(t, g, "Alice", plaza)
	wiz, wizTC := connectPlayer(t, g, "Merlin", plaza)
	g.DB.SetFlag(wiz, gamedb.FlagWizard, true)
	g.Overlay.ApplyScene(alice, plaza, "The Glass Forest", "Trees of glass.")

	DispatchCommand(g, aliceTC.d, "@vr_clear")
	if !aliceTC.Contains("Permission denied.") {
		t.Errorf("mortal ran @vr_clear:\n%s", aliceTC.Output())
	}

	DispatchCommand(g, wizTC.d, "@vr_clear")
	if !wizTC.Contains("Cleared 1 subjective states for Plaza(#") {
		t.Errorf("clear count wrong:\n%s", wizTC.Output())
	}
	if vr := g.Overlay.Get(alice, plaza); vr != nil {
		t.Error("overlay state survived @vr_clear")
	}
}

func TestDeliverArchitectAppliesScene(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	g.Overlay.GetOrCreate(alice, plaza)

	tc.Clear()
	g.deliverPersona(alice, plaza, overlay.PersonaArchitect, narrative.Result{
		Response: narrative.Response{
			Text:    "Glass trees rise around you.",
			VRTitle: "The Glass Forest",
		},
	})
	vr := g.Overlay.Get(alice, plaza)
	if vr == nil || !vr.Diverged {
		t.Fatal("scene not applied")
	}
	if vr.Title != "The Glass Forest" || vr.Desc != "Glass trees rise around you." {
		t.Errorf("scene = %q / %q", vr.Title, vr.Desc)
	}
	if !tc.Contains("The Glass Forest") || !tc.Contains("Glass trees rise around you.") {
		t.Errorf("player not shown the new scene:\n%s", tc.Output())
	}
}

func TestDeliverDungeonMasterKeepsScene(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	g.Overlay.ApplyScene(alice, plaza, "The Glass Forest", "Glass trees.")

	tc.Clear()
	g.deliverPersona(alice, plaza, overlay.PersonaDungeonMaster, narrative.Result{
		Response: narrative.Response{Text: "A branch chimes softly."},
	})
	if !tc.Contains("A branch chimes softly.") {
		t.Errorf("narration not delivered:\n%s", tc.Output())
	}
	vr := g.Overlay.Get(alice, plaza)
	if vr.Title != "The Glass Forest" {
		t.Errorf("narration rewrote the scene title: %q", vr.Title)
	}
	last := vr.History[len(vr.History)-1]
	if last.Persona != overlay.PersonaDungeonMaster || last.Text != "A branch chimes softly." {
		t.Errorf("exchange not recorded: %+v", last)
	}
}

func TestHistoryMessages(t *testing.T) {
	vr := &overlay.VRState{
		History: []overlay.Exchange{
			{Persona: "player", Text: "I open the door."},
			{Persona: overlay.PersonaDungeonMaster, Text: "It creaks."},
			{Persona: overlay.PersonaArchitect, Text: "A new hall unfolds."},
		},
	}
	msgs := historyMessages(vr)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" || msgs[2].Role != "assistant" {
		t.Errorf("roles = %q %q %q", msgs[0].Role, msgs[1].Role, msgs[2].Role)
	}
}

// wireNarrative attaches a live persona service backed by a canned
// completion endpoint.
func wireNarrative(t *testing.T, g *Game, reply string) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	svc := narrative.NewService(narrative.NewClient(srv.URL, "", "test-model"), 1, 8, 2*time.Second)
	t.Cleanup(svc.Close)
	g.Narrative = svc
}

// waitFor polls until the condition holds or the deadline passes.
// Persona answers arrive on a worker goroutine, so tests wait for the
// delivered narration instead of sleeping.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestFailedMoveInVrRoomDivergesFreshPlayer(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	g.DB.SetFlag(plaza, gamedb.FlagVrOK, true)
	wireNarrative(t, g, "[vr_title The Glass Orchard]\nTrees of glass part before you.")

	// Alice has no subjective state yet; the failed move must still be
	// intercepted and answered with a scene, not the canonical refusal.
	DispatchCommand(g, tc.d, "go north")
	if tc.Contains("You can't go that way.") {
		t.Fatalf("failed move fell through to the canonical refusal:\n%s", tc.Output())
	}
	waitFor(t, func() bool { return tc.Contains("Trees of glass part before you.") })

	vr := g.Overlay.Get(alice, plaza)
	if vr == nil || !vr.Diverged {
		t.Fatal("no diverged state after a failed move in a vr_ok room")
	}
	if vr.Title != "The Glass Orchard" {
		t.Errorf("scene title = %q, want \"The Glass Orchard\"", vr.Title)
	}
	if got := g.DB.Get(plaza).Name; got != "Plaza" {
		t.Errorf("canonical room renamed to %q", got)
	}
}

func TestFailedMoveOutsideVrRoomRefuses(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	_, tc := connectPlayer(t, g, "Alice", plaza)
	wireNarrative(t, g, "[vr_title Nowhere]\nShould never be asked.")

	DispatchCommand(g, tc.d, "go north")
	if !tc.Contains("You can't go that way.") {
		t.Errorf("canonical room did not refuse the move:\n%s", tc.Output())
	}
}
