package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/veilmush/goveilmush/pkg/events"
	"github.com/veilmush/goveilmush/pkg/gamedb"
)

// Config holds listener configuration.
type Config struct {
	Port        int
	IdleTimeout time.Duration
	MaxRetries  int
	WelcomeText string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:        6250,
		IdleTimeout: 3600 * time.Second,
		MaxRetries:  3,
		WelcomeText: WelcomeText,
	}
}

// Server is the main TCP game server.
type Server struct {
	Config    Config
	Game      *Game
	listener  net.Listener
	webServer *WebServer
}

// NewServer wraps an assembled game in listeners.
func NewServer(game *Game, cfg Config) *Server {
	return &Server{Config: cfg, Game: game}
}

// Start begins listening for connections and runs the background loops.
// It blocks until the listeners close.
func (s *Server) Start() error {
	s.Game.StartQueueProcessor()
	s.Game.StartRobotTicker()
	s.startAutoSnapshot()

	playerCount := 0
	for _, ref := range s.Game.DB.LiveRefs() {
		if obj := s.Game.DB.Get(ref); obj != nil && obj.ObjType() == gamedb.TypePlayer {
			playerCount++
		}
	}
	log.Printf("Database: %d objects, %d players", s.Game.DB.Size(), playerCount)

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Config.Port))
		if err != nil {
			errCh <- fmt.Errorf("listener: %w", err)
			return
		}
		s.listener = ln
		log.Printf("Listening on port %d", s.Config.Port)
		s.acceptLoop(ln)
	}()

	conf := s.Game.Conf()
	if conf.WebEnabled {
		cfg := WebConfig{
			Port:        conf.WebPort,
			Host:        conf.WebHost,
			CORSOrigins: conf.WebCORSOrigins,
			JWTSecret:   conf.JWTSecret,
			JWTExpiry:   conf.JWTExpiry,
		}
		s.webServer = NewWebServer(s.Game, cfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.webServer.Start(); err != nil {
				errCh <- fmt.Errorf("web server: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	default:
	}

	wg.Wait()
	return nil
}

// startAutoSnapshot persists the world on the configured interval.
func (s *Server) startAutoSnapshot() {
	conf := s.Game.Conf()
	if s.Game.Store == nil || conf.SnapshotMin <= 0 {
		return
	}
	interval := time.Duration(conf.SnapshotMin) * time.Minute
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if err := s.Game.Store.SaveSnapshot(s.Game.DB, s.Game.Overlay); err != nil {
				log.Printf("ERROR: auto-snapshot: %v", err)
			} else {
				log.Printf("Auto-snapshot saved (%d objects)", s.Game.DB.Size())
			}
		}
	}()
	log.Printf("Auto-snapshot every %s", interval)
}

// acceptLoop accepts connections until the listener closes.
func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("Accept error: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// Stop closes the listeners.
func (s *Server) Stop() {
	if s.listener != nil {
		s.listener.Close()
	}
	if s.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.webServer.Stop(ctx)
	}
}

// handleConnection manages a single client connection lifecycle.
func (s *Server) handleConnection(conn net.Conn) {
	id := s.Game.Conns.NextID()
	d := NewDescriptor(id, conn)
	d.Retries = s.Config.MaxRetries
	s.Game.Conns.Add(d)
	if s.Game.Metrics != nil {
		s.Game.Metrics.ConnectionOpened()
	}

	log.Printf("[%d] New connection from %s", d.ID, d.Addr)

	defer func() {
		s.Game.DisconnectPlayer(d)
		s.Game.Conns.Remove(d)
		d.Close()
		if s.Game.Metrics != nil {
			s.Game.Metrics.ConnectionClosed()
		}
		log.Printf("[%d] Connection closed from %s", d.ID, d.Addr)
	}()

	d.SendNoNewline(s.Config.WelcomeText + "\r\n")

	scanner := bufio.NewScanner(d.Conn)
	scanner.Buffer(make([]byte, 8192), 8192)

	for scanner.Scan() {
		if d.IsClosed() {
			return
		}

		line := scanner.Text()
		d.BytesRecv += len(line) + 1
		line = stripTelnet(line)
		line = strings.TrimRight(line, "\r\n")
		d.LastCmd = time.Now()
		if d.State == ConnConnected {
			d.CmdCount++
		}

		if d.State == ConnLogin {
			s.handleLoginCommand(d, line)
		} else {
			DispatchCommand(s.Game, d, line)
		}

		if d.IsClosed() {
			return
		}
	}
}

// handleLoginCommand processes pre-login commands.
func (s *Server) handleLoginCommand(d *Descriptor, input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	upper := strings.ToUpper(input)
	if upper == "QUIT" {
		d.Send("Goodbye!")
		d.Close()
		return
	}
	if upper == "WHO" {
		d.Send(fmt.Sprintf("%d players are connected.", len(s.Game.Conns.ConnectedPlayers())))
		return
	}

	command, user, password := ParseConnect(input)

	switch {
	case strings.HasPrefix(command, "co"):
		s.handleConnect(d, user, password)
	case strings.HasPrefix(command, "cr"):
		s.handleCreate(d, user, password)
	default:
		d.Send("Commands: connect <name> <password>, create <name> <password>, WHO, QUIT")
	}
}

// handleConnect authenticates and logs in a player.
func (s *Server) handleConnect(d *Descriptor, user, password string) {
	if user == "" {
		d.Send("Usage: connect <name> <password>")
		return
	}

	player := s.Game.DB.LookupPlayer(user)
	if player == gamedb.Nothing || !CheckPassword(s.Game.DB, player, password) {
		d.Send("Either that player does not exist, or has a different password.")
		d.Retries--
		if d.Retries <= 0 {
			d.Send("Too many failed attempts. Disconnecting.")
			d.Close()
		}
		return
	}

	s.Game.ConnectPlayer(d, player)
}

// handleCreate creates a new player and logs them in.
func (s *Server) handleCreate(d *Descriptor, user, password string) {
	if user == "" || password == "" {
		d.Send("Usage: create <name> <password>")
		return
	}
	if s.Game.DB.LookupPlayer(user) != gamedb.Nothing {
		d.Send("That name is already taken.")
		return
	}
	if len(user) < 2 {
		d.Send("That name is too short.")
		return
	}
	if strings.ContainsAny(user, "\";#=%") {
		d.Send("That name contains illegal characters.")
		return
	}

	conf := s.Game.Conf()
	start := gamedb.DBRef(conf.StartRoom)
	ref, err := s.Game.DB.Create(gamedb.TypePlayer, user, gamedb.Nothing, start, 0)
	if err != nil {
		d.Send("Character creation failed: " + err.Error())
		return
	}
	s.Game.DB.SetOwner(ref, ref)
	s.Game.DB.SetLink(ref, start) // home
	if err := SetPassword(s.Game.DB, ref, password); err != nil {
		log.Printf("ERROR: set password for #%d: %v", ref, err)
	}
	if s.Game.Ledger != nil && conf.StartingTokens > 0 {
		if err := s.Game.Ledger.Credit(ref, conf.StartingTokens, "character creation"); err != nil {
			log.Printf("LEDGER: grant to #%d failed: %v", ref, err)
		}
	}
	s.Game.PersistObjects(ref, start)

	log.Printf("[%d] New player %s(#%d) created from %s", d.ID, user, ref, d.Addr)
	d.Send(fmt.Sprintf("Welcome to %s, %s! Your character is #%d.", conf.WorldName, user, ref))
	s.Game.ConnectPlayer(d, ref)
}

// ConnectPlayer binds an authenticated descriptor to a player, announces
// the connection, and fires the player's ACONNECT attribute.
func (g *Game) ConnectPlayer(d *Descriptor, player gamedb.DBRef) {
	g.Conns.Login(d, player)
	name := g.PlayerName(player)
	log.Printf("[%d] Player %s(#%d) connected from %s", d.ID, name, player, d.Addr)

	d.Send(fmt.Sprintf("Welcome back, %s!", name))

	loc := g.PlayerLocation(player)
	g.EmitRoomExcept(loc, player, events.Event{
		Type: events.EvConnect, Source: player, Room: loc,
		Text: name + " has connected.",
	})
	g.ShowRoom(d, loc)

	if obj := g.DB.Get(player); obj != nil {
		if obj.AttrValue("ACONNECT") != "" {
			g.QueueAttrAction(player, player, "ACONNECT", nil)
		}
	}
}

// stripTelnet removes telnet IAC command sequences from input.
func stripTelnet(s string) string {
	var buf strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == 0xFF && i+2 < len(s) {
			i += 3
			continue
		}
		if s[i] == 0xFF && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] < 32 && s[i] != '\t' {
			i++
			continue
		}
		buf.WriteByte(s[i])
		i++
	}
	return buf.String()
}
