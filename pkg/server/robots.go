package server

import (
	"fmt"
	"log"
	"time"

	"github.com/veilmush/goveilmush/pkg/events"
	"github.com/veilmush/goveilmush/pkg/gamedb"
	"github.com/veilmush/goveilmush/pkg/narrative"
)

// AttrTick is the softcode attribute a robot runs each tick.
const AttrTick = "ATICK"

// StartRobotTicker drives autonomous agents. Each tick every ROBOT object
// with an ATICK attribute queues it; AI_OK robots without one take a
// persona-driven action instead, limited by the per-tick budget so a world
// full of agents cannot saturate the narrative service.
func (g *Game) StartRobotTicker() {
	conf := g.Conf()
	if conf.RobotTickSeconds <= 0 {
		return
	}
	interval := time.Duration(conf.RobotTickSeconds) * time.Second
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in robot ticker: %v", r)
			}
		}()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			g.tickRobots()
		}
	}()
	log.Printf("Robot ticker started (every %s, budget %d persona calls)",
		interval, conf.RobotActBudget)
}

// tickRobots runs one round of agent actions.
func (g *Game) tickRobots() {
	var robots []gamedb.DBRef
	for _, ref := range g.DB.LiveRefs() {
		obj := g.DB.Get(ref)
		if obj != nil && obj.HasFlag(gamedb.FlagRobot) && !obj.HasFlag(gamedb.FlagHalt) {
			robots = append(robots, ref)
		}
	}

	budget := g.Conf().RobotActBudget
	for _, ref := range robots {
		obj := g.DB.Get(ref)
		if obj == nil {
			continue
		}
		if obj.AttrValue(AttrTick) != "" {
			g.QueueAttrAction(ref, obj.Owner, AttrTick, nil)
			continue
		}
		if obj.HasFlag(gamedb.FlagAiOK) && budget > 0 && g.robotPersonaAct(ref, obj) {
			budget--
		}
	}
}

// robotPersonaAct asks the Dungeon Master what the agent does next and
// poses the answer in its room. Skips rooms with nobody awake to hear it.
func (g *Game) robotPersonaAct(ref gamedb.DBRef, obj *gamedb.Object) bool {
	if g.Narrative == nil {
		return false
	}
	room := obj.Location
	audience := false
	for _, here := range g.DB.ContentsOf(room) {
		if g.Conns.IsConnected(here) {
			audience = true
			break
		}
	}
	if !audience {
		return false
	}

	sc := g.sceneContextFor(obj.Owner, room, fmt.Sprintf(
		"Describe in one short line what %s does right now. Output only the action.", obj.Name))
	req := narrative.Request{
		Persona:  narrative.PersonaDungeonMaster,
		Player:   obj.Owner,
		Room:     room,
		Scene:    sc,
		Fallback: "",
	}
	name := obj.Name
	_, err := g.Narrative.Submit(req, func(res narrative.Result) {
		if res.Err != nil || res.Response.Text == "" {
			return
		}
		line := fmt.Sprintf("%s %s", name, res.Response.Text)
		g.EmitRoom(room, events.Event{Type: events.EvPose, Source: ref, Room: room, Text: line})
	})
	if err != nil {
		return false
	}
	if g.Metrics != nil {
		g.Metrics.NarrativeSubmitted()
	}
	return true
}
