package server

import (
	"os"
	"strings"
	"testing"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

func TestWriteArtifact(t *testing.T) {
	g := newTestGame(t)
	gc := DefaultGameConf()
	gc.ArtifactDir = t.TempDir()
	g.SetConf(gc)

	path, err := g.writeArtifact("research", "abc123", "Glass Forests", "They chime in the wind.")
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	if !strings.HasPrefix(body, "# Glass Forests\n") {
		t.Errorf("artifact missing title header:\n%s", body)
	}
	if !strings.Contains(body, "They chime in the wind.") {
		t.Errorf("artifact missing body:\n%s", body)
	}
	if !strings.Contains(path, "research-abc123.md") {
		t.Errorf("artifact path = %q", path)
	}
}

func TestDeepResearchNeedsService(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	start := g.Balance(alice)

	DispatchCommand(g, tc.d, "@deep_research glass forests")
	if !tc.Contains("The research service is not available.") {
		t.Errorf("missing refusal:\n%s", tc.Output())
	}
	if got := g.Balance(alice); got != start {
		t.Errorf("tokens held with no service: %d -> %d", start, got)
	}
}

func TestSnapshotNeedsService(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	alice, tc := connectPlayer(t, g, "Alice", plaza)
	start := g.Balance(alice)

	DispatchCommand(g, tc.d, "@snapshot")
	if !tc.Contains("The snapshot service is not available.") {
		t.Errorf("missing refusal:\n%s", tc.Output())
	}
	if got := g.Balance(alice); got != start {
		t.Errorf("tokens held with no service: %d -> %d", start, got)
	}
}

func TestPurgeBuffersCommand(t *testing.T) {
	g := newTestGame(t)
	plaza := makeRoom(t, g, "Plaza")
	wiz, tc := connectPlayer(t, g, "Merlin", plaza)
	g.DB.SetFlag(wiz, gamedb.FlagWizard, true)
	DispatchCommand(g, tc.d, "say filling the buffer")

	tc.Clear()
	DispatchCommand(g, tc.d, "@purge_buffers")
	if tc.d.BufferLen() > 2 {
		t.Errorf("session buffers not purged: %d lines held", tc.d.BufferLen())
	}
}
