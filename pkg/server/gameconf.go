package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// GameConf holds game-level configuration. Loaded from YAML; every field
// has a workable default so an empty file boots a playable world.
type GameConf struct {
	// --- Identity ---
	WorldName string `yaml:"world_name"`
	Port      int    `yaml:"port"`

	// --- Key rooms ---
	StartRoom int `yaml:"start_room"` // where new players materialize

	// --- Economy ---
	StartingTokens   int `yaml:"starting_tokens"`
	CreateCost       int `yaml:"create_cost"`
	DigCost          int `yaml:"dig_cost"`
	AgentCost        int `yaml:"agent_cost"`
	DeepResearchCost int `yaml:"deep_research_cost"`
	SnapshotCost     int `yaml:"snapshot_cost"`

	// --- Narrative service ---
	NarrativeURL     string `yaml:"narrative_url"`
	NarrativeModel   string `yaml:"narrative_model"`
	NarrativeKey     string `yaml:"narrative_key"`
	NarrativeWorkers int    `yaml:"narrative_workers"`
	NarrativeBacklog int    `yaml:"narrative_backlog"`
	NarrativeTimeout int    `yaml:"narrative_timeout"` // seconds
	ResearchTimeout  int    `yaml:"research_timeout"`  // seconds

	// --- Robot agents ---
	RobotTickSeconds int `yaml:"robot_tick_seconds"`
	RobotActBudget   int `yaml:"robot_act_budget"` // persona calls per tick across all agents

	// --- Storage ---
	DataDir     string `yaml:"data_dir"`
	ArtifactDir string `yaml:"artifact_dir"`
	SnapshotMin int    `yaml:"snapshot_minutes"` // autosave interval, 0 = disabled

	// --- Web/Security ---
	WebEnabled     bool     `yaml:"web_enabled"`
	WebPort        int      `yaml:"web_port"`
	WebHost        string   `yaml:"web_host"`
	WebCORSOrigins []string `yaml:"web_cors_origins"`
	JWTSecret      string   `yaml:"jwt_secret"` // auto-generated if empty
	JWTExpiry      int      `yaml:"jwt_expiry"` // seconds, default 86400

	// --- Idle/timeout ---
	IdleTimeout int `yaml:"idle_timeout"` // seconds, 0 = never
}

// DefaultGameConf returns the stock configuration.
func DefaultGameConf() *GameConf {
	return &GameConf{
		WorldName:        "GoVeilMUSH",
		Port:             6250,
		StartRoom:        0,
		StartingTokens:   150,
		CreateCost:       1,
		DigCost:          10,
		AgentCost:        5,
		DeepResearchCost: 100,
		SnapshotCost:     50,
		NarrativeModel:   "gpt-4o-mini",
		NarrativeWorkers: 4,
		NarrativeBacklog: 64,
		NarrativeTimeout: 30,
		ResearchTimeout:  120,
		RobotTickSeconds: 60,
		RobotActBudget:   3,
		DataDir:          "data",
		ArtifactDir:      "artifacts",
		SnapshotMin:      5,
		WebEnabled:       true,
		WebPort:          8443,
		JWTExpiry:        86400,
		IdleTimeout:      3600,
	}
}

// LoadGameConf reads a YAML config file over the defaults.
func LoadGameConf(path string) (*GameConf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	gc := DefaultGameConf()
	if err := yaml.Unmarshal(data, gc); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	return gc, nil
}

// WatchConfig starts an fsnotify watcher on the config file and hot-swaps
// the running configuration when it changes. Port and storage changes need
// a restart; cost and narrative settings apply immediately.
func (g *Game) WatchConfig(path string) {
	if path == "" {
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("WARNING: could not start config watcher: %v", err)
		return
	}

	base := filepath.Base(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				gc, err := LoadGameConf(path)
				if err != nil {
					log.Printf("WARNING: config reload failed: %v", err)
					continue
				}
				g.SetConf(gc)
				log.Printf("Config reloaded from %s", path)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("Config watcher error: %v", err)
			}
		}
	}()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Printf("WARNING: could not watch config file %s: %v", path, err)
		watcher.Close()
		return
	}
	log.Printf("Watching config file for changes: %s", path)
}
