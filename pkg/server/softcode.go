package server

import (
	"fmt"
	"sort"
	"strings"

	"github.com/veilmush/goveilmush/pkg/eval"
	"github.com/veilmush/goveilmush/pkg/gamedb"
)

// RecursionMarker is reported to the original actor when a trigger chain
// exceeds TriggerDepthLimit.
const RecursionMarker = "#-1 RECURSION LIMIT EXCEEDED"

// matchWild performs wildcard matching with * captures. Matching is
// case-insensitive; captures preserve the original case.
func matchWild(pattern, str string) (bool, []string) {
	var args []string
	matched := matchWildHelper(strings.ToLower(pattern), strings.ToLower(str), str, 0, &args)
	return matched, args
}

func matchWildHelper(pattern, str, origStr string, origOff int, args *[]string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			pattern = pattern[1:]
			if len(pattern) == 0 {
				*args = append(*args, origStr[origOff:origOff+len(str)])
				return true
			}
			for i := len(str); i >= 0; i-- {
				testArgs := make([]string, len(*args))
				copy(testArgs, *args)
				testArgs = append(testArgs, origStr[origOff:origOff+i])
				if matchWildHelper(pattern, str[i:], origStr, origOff+i, &testArgs) {
					*args = testArgs
					return true
				}
			}
			return false
		case '?':
			if len(str) == 0 {
				return false
			}
			*args = append(*args, string(origStr[origOff]))
			pattern = pattern[1:]
			str = str[1:]
			origOff++
		default:
			if len(str) == 0 || pattern[0] != str[0] {
				return false
			}
			pattern = pattern[1:]
			str = str[1:]
			origOff++
		}
	}
	return len(str) == 0
}

// splitTrigger splits "$pattern:action" / "^pattern:action" text (already
// stripped of its leading sigil) at the first unescaped colon.
func splitTrigger(text string) (pattern, action string, ok bool) {
	for i := 0; i < len(text); i++ {
		if text[i] == '\\' {
			i++
			continue
		}
		if text[i] == ':' {
			return text[:i], text[i+1:], true
		}
	}
	return "", "", false
}

// dollarSearchList returns the objects checked for $-commands: the room,
// its contents, then the actor's inventory, each in ascending dbref order.
func (g *Game) dollarSearchList(actor gamedb.DBRef) []gamedb.DBRef {
	var refs []gamedb.DBRef
	loc := g.PlayerLocation(actor)
	if loc != gamedb.Nothing {
		refs = append(refs, loc)
		refs = append(refs, sortedAscending(g.DB.ContentsOf(loc))...)
	}
	refs = append(refs, sortedAscending(g.DB.ContentsOf(actor))...)
	return refs
}

func sortedAscending(refs []gamedb.DBRef) []gamedb.DBRef {
	out := make([]gamedb.DBRef, len(refs))
	copy(out, refs)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MatchDollarCommands searches for a $-pattern attribute matching the
// input. Only Listening objects answer. The first match (ascending dbref,
// attribute order on the object) wins; its action is queued running as the
// matched object. Returns true when the input was consumed.
func (g *Game) MatchDollarCommands(actor gamedb.DBRef, input string, depth int, origActor gamedb.DBRef) bool {
	for _, objRef := range g.dollarSearchList(actor) {
		if g.matchDollarOnObject(objRef, actor, input, depth, origActor) {
			return true
		}
	}
	return false
}

func (g *Game) matchDollarOnObject(objRef, actor gamedb.DBRef, input string, depth int, origActor gamedb.DBRef) bool {
	obj := g.DB.Get(objRef)
	if obj == nil || obj.HasFlag(gamedb.FlagHalt) || !obj.HasFlag(gamedb.FlagListening) {
		return false
	}

	// Use-locked objects only answer to actors that pass the lock.
	if !g.PassesLock(actor, objRef, gamedb.LockUse) {
		return false
	}

	for _, attr := range obj.Attrs {
		if !strings.HasPrefix(attr.Value, "$") || attr.Flags&gamedb.AFNoProg != 0 {
			continue
		}
		pattern, action, ok := splitTrigger(attr.Value[1:])
		if !ok {
			continue
		}
		matched, args := matchWild(pattern, input)
		if !matched {
			continue
		}
		g.Queue.Add(&QueueEntry{
			Executor:  objRef,
			Enactor:   actor,
			OrigActor: origActor,
			Command:   action,
			Args:      args,
			Depth:     depth + 1,
		})
		return true
	}
	return false
}

// MatchListenPatterns fans speech out to ^-pattern attributes. Every
// matching attribute on every Listening object in the room fires, in
// ascending dbref order; the speaker's own objects are not excluded.
func (g *Game) MatchListenPatterns(room, speaker gamedb.DBRef, message string, depth int, origActor gamedb.DBRef) {
	roomObj := g.DB.Get(room)
	if roomObj == nil {
		return
	}

	targets := sortedAscending(g.DB.ContentsOf(room))
	if roomObj.HasFlag(gamedb.FlagListening) {
		targets = append(targets, room)
	}

	for _, ref := range targets {
		obj := g.DB.Get(ref)
		if obj == nil || obj.HasFlag(gamedb.FlagHalt) {
			continue
		}
		if ref != room && !obj.HasFlag(gamedb.FlagListening) {
			continue
		}
		for _, attr := range obj.Attrs {
			if !strings.HasPrefix(attr.Value, "^") || attr.Flags&gamedb.AFNoProg != 0 {
				continue
			}
			pattern, action, ok := splitTrigger(attr.Value[1:])
			if !ok {
				continue
			}
			matched, args := matchWild(pattern, message)
			if !matched {
				continue
			}
			g.Queue.Add(&QueueEntry{
				Executor:  ref,
				Enactor:   speaker,
				OrigActor: origActor,
				Command:   action,
				Args:      args,
				Depth:     depth + 1,
			})
		}
	}
}

// ExecuteQueueEntry runs one queued action: the command is split into
// statements, each evaluated and fed back through the dispatcher as the
// executing object.
func (g *Game) ExecuteQueueEntry(entry *QueueEntry) {
	if obj := g.DB.Get(entry.Executor); obj == nil || obj.HasFlag(gamedb.FlagHalt) {
		return
	}
	if entry.Depth > TriggerDepthLimit {
		g.notifyActor(entry.OrigActor, RecursionMarker)
		return
	}

	ctx := g.EvalContext(entry.Executor, entry.Enactor, entry.Args)
	for _, stmt := range eval.SplitStatements(entry.Command) {
		evaluated := strings.TrimSpace(ctx.Eval(stmt))
		if evaluated == "" {
			continue
		}
		g.dispatchAsObject(entry, evaluated)
	}
}

// dispatchAsObject routes a statement produced by a trigger. Connected
// executors dispatch through their first descriptor; detached objects use
// a synthetic one so output is discarded but side effects still happen.
func (g *Game) dispatchAsObject(entry *QueueEntry, command string) {
	descs := g.Conns.GetByPlayer(entry.Executor)
	var d *Descriptor
	if len(descs) > 0 {
		d = descs[0]
	} else {
		d = g.MakeObjDescriptor(entry.Executor)
	}
	dispatchCommand(g, d, command, entry.Depth, entry.OrigActor)
}

// QueueAttrAction queues the text of a named attribute as an action, if
// the attribute is set. Used for robot ticks and arrival triggers.
func (g *Game) QueueAttrAction(obj, cause gamedb.DBRef, attrName string, args []string) {
	o := g.DB.Get(obj)
	if o == nil {
		return
	}
	text := o.AttrValue(attrName)
	if text == "" {
		return
	}
	g.Queue.Add(&QueueEntry{
		Executor:  obj,
		Enactor:   cause,
		OrigActor: cause,
		Command:   text,
		Args:      args,
		Depth:     1,
	})
}

// notifyActor sends a line to a player if connected.
func (g *Game) notifyActor(player gamedb.DBRef, msg string) {
	if player == gamedb.Nothing {
		return
	}
	g.Conns.SendToPlayer(player, msg)
}

// SpeechFanout delivers spoken text to a room and then runs the
// listen-pattern pass. Dollar-commands never reach here; input consumed
// by a $-command is not also heard by listeners.
func (g *Game) SpeechFanout(room, speaker gamedb.DBRef, message string, depth int, origActor gamedb.DBRef) {
	g.MatchListenPatterns(room, speaker, message, depth, origActor)
}

// formatSpeech renders `say` output per viewer role.
func formatSpeech(speaker string, message string) (toSpeaker, toRoom string) {
	toSpeaker = fmt.Sprintf("You say, \"%s\"", message)
	toRoom = fmt.Sprintf("%s says, \"%s\"", speaker, message)
	return
}
