package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/veilmush/goveilmush/pkg/events"
	"github.com/veilmush/goveilmush/pkg/gamedb"
	"github.com/veilmush/goveilmush/pkg/ledger"
	"github.com/veilmush/goveilmush/pkg/narrative"
)

// artifactPath builds the on-disk location for a finished job artifact.
func (g *Game) artifactPath(kind, id string) string {
	dir := g.Conf().ArtifactDir
	if dir == "" {
		dir = "artifacts"
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.md", kind, id))
}

// writeArtifact persists job output and returns the path written.
func (g *Game) writeArtifact(kind, id, title, body string) (string, error) {
	path := g.artifactPath(kind, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	content := fmt.Sprintf("# %s\n\n_%s_\n\n%s\n", title, time.Now().Format(time.RFC3339), body)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// reserveJob holds tokens for a background job, reporting failures to the
// actor. ok=false means nothing was reserved.
func (g *Game) reserveJob(d *Descriptor, cost int, reason string) (*ledger.Reservation, bool) {
	res, err := g.Reserve(d.Player, cost, reason)
	if err != nil {
		if err == ledger.ErrInsufficientTokens {
			d.Send(fmt.Sprintf("That costs %d tokens, and you have %d.", cost, g.Balance(d.Player)))
		} else {
			d.Send("The ledger refused: " + err.Error())
		}
		return nil, false
	}
	return res, true
}

// cmdDeepResearch runs a long-form research request against the narrative
// service in the background and files the answer as a markdown artifact.
// Tokens are held up front and refunded if the service fails.
func cmdDeepResearch(g *Game, d *Descriptor, args string) {
	topic := strings.TrimSpace(args)
	if topic == "" {
		d.Send("Research what?")
		return
	}
	if g.Narrative == nil {
		d.Send("The research service is not available.")
		return
	}
	cost := g.Conf().DeepResearchCost
	res, ok := g.reserveJob(d, cost, "@deep_research")
	if !ok {
		return
	}

	id := uuid.NewString()
	player := d.Player
	room := g.PlayerLocation(player)
	sc := g.sceneContextFor(player, room,
		"Write a thorough research report in markdown on: "+topic)
	req := narrative.Request{
		Persona:  narrative.PersonaArchitect,
		Player:   player,
		Room:     room,
		Scene:    sc,
		Timeout:  time.Duration(g.Conf().ResearchTimeout) * time.Second,
		Fallback: "The archive returned nothing.",
	}
	_, err := g.Narrative.Submit(req, func(result narrative.Result) {
		if result.Err != nil {
			ReleaseReservation(res)
			if g.Metrics != nil {
				g.Metrics.NarrativeFallback()
			}
			g.notifyActor(player, "Research failed; your tokens were returned.")
			return
		}
		path, werr := g.writeArtifact("research", id, topic, result.Response.Text)
		if werr != nil {
			ReleaseReservation(res)
			log.Printf("ERROR: research artifact %s: %v", id, werr)
			g.notifyActor(player, "Research finished but could not be filed; your tokens were returned.")
			return
		}
		CommitReservation(res)
		g.Emit(events.Event{
			Type: events.EvSystem, Player: player, Text: "Research complete: " + path,
			Data: map[string]any{"job": id, "artifact": path},
		})
	})
	if err != nil {
		ReleaseReservation(res)
		d.Send("The research queue is full; try again in a moment.")
		return
	}
	if g.Metrics != nil {
		g.Metrics.NarrativeSubmitted()
	}
	d.Send(fmt.Sprintf("Research %s underway (%d tokens held).", id[:8], cost))
}

// cmdSnapshot captures the player's current (subjective) scene as an image
// prompt artifact.
func cmdSnapshot(g *Game, d *Descriptor, _ string) {
	if g.Narrative == nil {
		d.Send("The snapshot service is not available.")
		return
	}
	cost := g.Conf().SnapshotCost
	res, ok := g.reserveJob(d, cost, "@snapshot")
	if !ok {
		return
	}

	id := uuid.NewString()
	player := d.Player
	room := g.PlayerLocation(player)
	sc := g.sceneContextFor(player, room,
		"Render this scene as a single detailed image-generation prompt. Output only the prompt.")
	req := narrative.Request{
		Persona:  narrative.PersonaDungeonMaster,
		Player:   player,
		Room:     room,
		Scene:    sc,
		Fallback: "A quiet room, out of focus.",
	}
	title := "Snapshot of " + sc.RoomName
	_, err := g.Narrative.Submit(req, func(result narrative.Result) {
		if result.Err != nil {
			ReleaseReservation(res)
			if g.Metrics != nil {
				g.Metrics.NarrativeFallback()
			}
			g.notifyActor(player, "The snapshot failed to develop; your tokens were returned.")
			return
		}
		path, werr := g.writeArtifact("snapshot", id, title, result.Response.Text)
		if werr != nil {
			ReleaseReservation(res)
			log.Printf("ERROR: snapshot artifact %s: %v", id, werr)
			g.notifyActor(player, "The snapshot could not be filed; your tokens were returned.")
			return
		}
		CommitReservation(res)
		g.Emit(events.Event{
			Type: events.EvSystem, Player: player, Text: "Snapshot developed: " + path,
			Data: map[string]any{"job": id, "artifact": path},
		})
	})
	if err != nil {
		ReleaseReservation(res)
		d.Send("The snapshot queue is full; try again in a moment.")
		return
	}
	if g.Metrics != nil {
		g.Metrics.NarrativeSubmitted()
	}
	d.Send(fmt.Sprintf("Snapshot %s developing (%d tokens held).", id[:8], cost))
}

// cmdBackup copies the world store to a timestamped file.
func cmdBackup(g *Game, d *Descriptor, _ string) {
	if g.Store == nil {
		d.Send("No world store to back up.")
		return
	}
	if err := g.Store.SaveSnapshot(g.DB, g.Overlay); err != nil {
		d.Send("Snapshot before backup failed: " + err.Error())
		return
	}
	dest := filepath.Join(g.Conf().DataDir,
		fmt.Sprintf("world-%s.db.bak", time.Now().Format("20060102-150405")))
	if err := g.Store.Backup(dest); err != nil {
		d.Send("Backup failed: " + err.Error())
		return
	}
	log.Printf("Backup written to %s", dest)
	d.Send("Backup written to " + dest)
}

// cmdPurgeBuffers drops session scrollback on every connection.
func cmdPurgeBuffers(g *Game, d *Descriptor, _ string) {
	total := 0
	for _, dd := range g.Conns.AllDescriptors() {
		total += dd.PurgeBuffer()
	}
	d.Send(fmt.Sprintf("Purged %d buffered lines.", total))
}

// cmdHalt stops queued softcode. Bare @halt halts the actor's own objects;
// @halt <object> halts one object and sets its HALT flag.
func cmdHalt(g *Game, d *Descriptor, args string) {
	if strings.TrimSpace(args) == "" {
		n := 0
		for _, ref := range g.DB.ContentsOf(d.Player) {
			n += g.Queue.HaltObject(ref)
		}
		n += g.Queue.HaltObject(d.Player)
		d.Send(fmt.Sprintf("Halted %d queue entries.", n))
		return
	}
	ref, obj := g.matchControlled(d, args)
	if obj == nil {
		return
	}
	g.DB.SetFlag(ref, gamedb.FlagHalt, true)
	n := g.Queue.HaltObject(ref)
	g.PersistObjects(ref)
	d.Send(fmt.Sprintf("%s halted (%d queue entries dropped).", obj.Name, n))
}
