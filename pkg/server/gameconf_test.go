package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadGameConfOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	body := `
world_name: Testhaven
port: 7777
create_cost: 3
dig_cost: 25
narrative_url: http://localhost:9999/v1
narrative_timeout: 5
web_enabled: false
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	gc, err := LoadGameConf(path)
	if err != nil {
		t.Fatal(err)
	}
	if gc.WorldName != "Testhaven" || gc.Port != 7777 {
		t.Errorf("identity not loaded: %q port %d", gc.WorldName, gc.Port)
	}
	if gc.CreateCost != 3 || gc.DigCost != 25 {
		t.Errorf("costs not loaded: create %d dig %d", gc.CreateCost, gc.DigCost)
	}
	if gc.NarrativeURL != "http://localhost:9999/v1" || gc.NarrativeTimeout != 5 {
		t.Errorf("narrative settings not loaded: %q timeout %d", gc.NarrativeURL, gc.NarrativeTimeout)
	}
	if gc.WebEnabled {
		t.Error("web_enabled: false did not stick")
	}
	// Untouched keys keep their defaults.
	def := DefaultGameConf()
	if gc.StartingTokens != def.StartingTokens || gc.AgentCost != def.AgentCost {
		t.Errorf("defaults lost: tokens %d agent %d", gc.StartingTokens, gc.AgentCost)
	}
}

func TestLoadGameConfEmptyFileIsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	gc, err := LoadGameConf(path)
	if err != nil {
		t.Fatal(err)
	}
	def := DefaultGameConf()
	if gc.WorldName != def.WorldName || gc.Port != def.Port || gc.DigCost != def.DigCost ||
		gc.StartingTokens != def.StartingTokens || gc.SnapshotMin != def.SnapshotMin {
		t.Errorf("empty file diverged from defaults: %+v", gc)
	}
}

func TestLoadGameConfMissingFile(t *testing.T) {
	if _, err := LoadGameConf(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file did not error")
	}
}

func TestLoadGameConfBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "game.yaml")
	os.WriteFile(path, []byte("world_name: [unclosed"), 0o644)
	if _, err := LoadGameConf(path); err == nil {
		t.Error("malformed YAML did not error")
	}
}
