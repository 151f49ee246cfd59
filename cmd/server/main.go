package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/veilmush/goveilmush/pkg/boltstore"
	"github.com/veilmush/goveilmush/pkg/gamedb"
	"github.com/veilmush/goveilmush/pkg/ledger"
	"github.com/veilmush/goveilmush/pkg/narrative"
	"github.com/veilmush/goveilmush/pkg/overlay"
	"github.com/veilmush/goveilmush/pkg/server"
)

// envDefault returns the environment variable value if set, otherwise the
// fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("VEIL_CONF", ""), "Path to game config file (env: VEIL_CONF)")
	dataDir := flag.String("data", envDefault("VEIL_DATA", ""), "Data directory, overrides config (env: VEIL_DATA)")
	port := flag.Int("port", 0, "TCP port to listen on, overrides config (env: VEIL_PORT)")
	wizPass := flag.String("wizpass", envDefault("VEIL_WIZPASS", ""), "Set the Architect (#1) password and exit (env: VEIL_WIZPASS)")
	flag.Parse()

	log.Printf("Welcome to %s", server.VersionString())

	conf := server.DefaultGameConf()
	if *confFile != "" {
		loaded, err := server.LoadGameConf(*confFile)
		if err != nil {
			log.Fatalf("Config: %v", err)
		}
		conf = loaded
	}
	if *dataDir != "" {
		conf.DataDir = *dataDir
	}
	if *port == 0 {
		if envPort := os.Getenv("VEIL_PORT"); envPort != "" {
			if p, err := strconv.Atoi(envPort); err == nil {
				*port = p
			}
		}
	}
	if *port != 0 {
		conf.Port = *port
	}

	if err := os.MkdirAll(conf.DataDir, 0o755); err != nil {
		log.Fatalf("Data directory: %v", err)
	}

	store, err := boltstore.Open(filepath.Join(conf.DataDir, "world.db"))
	if err != nil {
		log.Fatalf("World store: %v", err)
	}
	defer store.Close()

	db, ov, err := store.LoadAll()
	if err != nil {
		log.Fatalf("World load: %v", err)
	}
	if ov == nil {
		ov = overlay.NewManager()
	}
	if db.Size() == 0 {
		db = bootstrapWorld(store)
	}

	led, err := ledger.Open(filepath.Join(conf.DataDir, "ledger.db"))
	if err != nil {
		log.Fatalf("Ledger: %v", err)
	}
	defer led.Close()
	if err := led.Reconcile(); err != nil {
		log.Printf("WARNING: ledger reconcile: %v", err)
	}

	game := server.NewGame(db, led, ov)
	game.Store = store
	game.SetConf(conf)

	if *wizPass != "" {
		if err := server.SetPassword(db, 1, *wizPass); err != nil {
			log.Fatalf("Set password: %v", err)
		}
		game.PersistObjects(1)
		log.Printf("Password for #1 updated.")
		return
	}

	if conf.NarrativeURL != "" {
		client := narrative.NewClient(conf.NarrativeURL, conf.NarrativeKey, conf.NarrativeModel)
		game.Narrative = narrative.NewService(client, conf.NarrativeWorkers,
			conf.NarrativeBacklog, time.Duration(conf.NarrativeTimeout)*time.Second)
		defer game.Narrative.Close()
		log.Printf("Narrative service: %s (%s)", conf.NarrativeURL, conf.NarrativeModel)
	} else {
		log.Printf("Narrative service disabled (no narrative_url)")
	}

	if *confFile != "" {
		game.WatchConfig(*confFile)
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Port = conf.Port
	srvCfg.IdleTimeout = time.Duration(conf.IdleTimeout) * time.Second
	srv := server.NewServer(game, srvCfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, saving world and shutting down", sig)
		if err := store.SaveSnapshot(db, ov); err != nil {
			log.Printf("ERROR: final snapshot: %v", err)
		}
		srv.Stop()
	}()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server: %v", err)
	}
	log.Printf("Goodbye.")
}

// bootstrapWorld seeds a minimal world: the Nexus (#0) and the Architect
// wizard (#1). First connection should set the wizard password with
// -wizpass before exposing the port.
func bootstrapWorld(store *boltstore.Store) *gamedb.Database {
	db := gamedb.NewDatabase()

	nexus, err := db.Create(gamedb.TypeRoom, "The Nexus", 1, gamedb.Nothing, 0)
	if err != nil {
		log.Fatalf("Bootstrap: %v", err)
	}
	wiz, err := db.Create(gamedb.TypePlayer, "Architect", 1, nexus, 0)
	if err != nil {
		log.Fatalf("Bootstrap: %v", err)
	}
	wizObj := db.Get(wiz)
	wizObj.Owner = wiz
	wizObj.Link = nexus
	wizObj.SetFlag(gamedb.FlagWizard, true)
	if err := db.SetAttr(nexus, gamedb.AttrDesc,
		"A still point where every possible world touches. Doors that do not exist yet wait to be named.", wiz); err != nil {
		log.Fatalf("Bootstrap: %v", err)
	}

	if err := store.SaveSnapshot(db, overlay.NewManager()); err != nil {
		log.Fatalf("Bootstrap save: %v", err)
	}
	log.Printf("Bootstrapped new world: The Nexus(#%d), Architect(#%d)", nexus, wiz)
	return db
}
