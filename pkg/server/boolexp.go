package server

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

// Maximum indirection depth for object:#n locks.
const maxIndirDepth = 20

// BoolExp node types.
type boolOp int

const (
	boolConst boolOp = iota // actor is, or carries, #Thing
	boolFlag                // actor has the named flag
	boolAttr                // actor's attr wildcard-matches a pattern
	boolIndir               // defer to #Thing's default lock
	boolAnd
	boolOr
	boolNot
)

// BoolExp is one node of a parsed lock expression.
type BoolExp struct {
	Op      boolOp
	Thing   gamedb.DBRef
	Flag    int
	Attr    string
	Pattern string
	Sub1    *BoolExp
	Sub2    *BoolExp
}

// boolParser holds the state for parsing a lock string.
type boolParser struct {
	g      *Game
	player gamedb.DBRef
	src    string
	pos    int
	err    error
}

// fail records the first parse problem; parsing continues so stored
// locks still evaluate (closed) even when a name no longer resolves.
func (p *boolParser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
}

func (p *boolParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *boolParser) advance() byte {
	ch := p.peek()
	if ch != 0 {
		p.pos++
	}
	return ch
}

func (p *boolParser) skipSpaces() {
	for p.pos < len(p.src) && p.src[p.pos] == ' ' {
		p.pos++
	}
}

// ParseBoolExp parses a lock string into an expression tree.
// Grammar:
//
//	E → T ('|' E)?
//	T → F ('&' T)?
//	F → '!' F | '(' E ')' | atom
//	atom → '#' number | name ':' pattern | flag-or-object name
//
// The special atom `object:#n` defers to #n's default lock.
func ParseBoolExp(g *Game, player gamedb.DBRef, lockStr string) (*BoolExp, error) {
	lockStr = strings.TrimSpace(lockStr)
	if lockStr == "" {
		return nil, nil
	}
	p := &boolParser{g: g, player: player, src: lockStr}
	tree := p.parseE()
	return tree, p.err
}

func (p *boolParser) parseE() *BoolExp {
	left := p.parseT()
	p.skipSpaces()
	if p.peek() == '|' {
		p.advance()
		return &BoolExp{Op: boolOr, Sub1: left, Sub2: p.parseE()}
	}
	return left
}

func (p *boolParser) parseT() *BoolExp {
	left := p.parseF()
	p.skipSpaces()
	if p.peek() == '&' {
		p.advance()
		return &BoolExp{Op: boolAnd, Sub1: left, Sub2: p.parseT()}
	}
	return left
}

func (p *boolParser) parseF() *BoolExp {
	p.skipSpaces()
	switch p.peek() {
	case '!':
		p.advance()
		return &BoolExp{Op: boolNot, Sub1: p.parseF()}
	case '(':
		p.advance()
		sub := p.parseE()
		p.skipSpaces()
		if p.peek() == ')' {
			p.advance()
		}
		return sub
	default:
		return p.parseAtom()
	}
}

func (p *boolParser) parseAtom() *BoolExp {
	start := p.pos
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		if ch == '&' || ch == '|' || ch == '(' || ch == ')' {
			break
		}
		if ch == ':' {
			name := strings.TrimSpace(p.src[start:p.pos])
			p.pos++
			patStart := p.pos
			for p.pos < len(p.src) {
				pc := p.src[p.pos]
				if pc == '&' || pc == '|' || pc == ')' {
					break
				}
				p.pos++
			}
			pattern := strings.TrimSpace(p.src[patStart:p.pos])
			if strings.EqualFold(name, "object") {
				if ref, ok := parseRef(pattern); ok {
					return &BoolExp{Op: boolIndir, Thing: ref}
				}
				p.fail("indirect lock needs a #dbref, got %q", pattern)
				return &BoolExp{Op: boolConst, Thing: gamedb.Nothing}
			}
			return &BoolExp{Op: boolAttr, Attr: strings.ToUpper(name), Pattern: pattern}
		}
		p.pos++
	}

	token := strings.TrimSpace(p.src[start:p.pos])
	if token == "" {
		return nil
	}

	if ref, ok := parseRef(token); ok {
		return &BoolExp{Op: boolConst, Thing: ref}
	}

	if bit, ok := gamedb.FlagNames[strings.ToUpper(token)]; ok {
		return &BoolExp{Op: boolFlag, Flag: bit}
	}

	// Resolve as an object name from the lock-setter's point of view.
	ref := p.g.DB.MatchObject(p.player, token)
	if ref == gamedb.Nothing || ref == gamedb.Ambiguous {
		ref = p.g.DB.LookupPlayer(token)
	}
	if ref != gamedb.Nothing && ref != gamedb.Ambiguous {
		return &BoolExp{Op: boolConst, Thing: ref}
	}

	// Unresolved: a lock nobody passes.
	log.Printf("BOOLEXP: unresolved name %q in lock", token)
	p.fail("unknown name %q", token)
	return &BoolExp{Op: boolConst, Thing: gamedb.Nothing}
}

func parseRef(token string) (gamedb.DBRef, bool) {
	if len(token) < 2 || token[0] != '#' {
		return gamedb.Nothing, false
	}
	n, err := strconv.Atoi(token[1:])
	if err != nil {
		return gamedb.Nothing, false
	}
	return gamedb.DBRef(n), true
}

// EvalBoolExp evaluates a lock tree against an actor. A nil tree is an
// open lock.
func EvalBoolExp(g *Game, actor gamedb.DBRef, b *BoolExp, depth int) bool {
	if b == nil {
		return true
	}
	if depth > maxIndirDepth {
		return false
	}

	switch b.Op {
	case boolAnd:
		return EvalBoolExp(g, actor, b.Sub1, depth) && EvalBoolExp(g, actor, b.Sub2, depth)
	case boolOr:
		return EvalBoolExp(g, actor, b.Sub1, depth) || EvalBoolExp(g, actor, b.Sub2, depth)
	case boolNot:
		return !EvalBoolExp(g, actor, b.Sub1, depth)

	case boolConst:
		if b.Thing == gamedb.Nothing {
			return false
		}
		if actor == b.Thing {
			return true
		}
		return actorCarries(g, actor, b.Thing)

	case boolFlag:
		obj := g.DB.Get(actor)
		return obj != nil && obj.HasFlag(b.Flag)

	case boolAttr:
		obj := g.DB.Get(actor)
		if obj == nil {
			return false
		}
		return wildMatchCI(b.Pattern, obj.AttrValue(b.Attr))

	case boolIndir:
		target := g.DB.Get(b.Thing)
		if target == nil {
			return false
		}
		src := target.GetLock(gamedb.LockDefault)
		if src == "" {
			return true
		}
		be, _ := ParseBoolExp(g, target.Owner, src)
		return EvalBoolExp(g, actor, be, depth+1)
	}
	return false
}

// actorCarries returns true if actor has target in their contents chain.
func actorCarries(g *Game, actor, target gamedb.DBRef) bool {
	for _, ref := range g.DB.ContentsOf(actor) {
		if ref == target {
			return true
		}
	}
	return false
}

// wildMatchCI performs case-insensitive wildcard matching without captures.
func wildMatchCI(pattern, str string) bool {
	matched, _ := matchWild(pattern, str)
	return matched
}

// PassesLock checks an actor against one lock type on a thing. Wizards
// always pass; an unset lock is open.
func (g *Game) PassesLock(actor, thing gamedb.DBRef, lockType string) bool {
	if g.Wizard(actor) {
		return true
	}
	obj := g.DB.Get(thing)
	if obj == nil {
		return false
	}
	src := obj.GetLock(lockType)
	if src == "" {
		return true
	}
	be, _ := ParseBoolExp(g, obj.Owner, src)
	return EvalBoolExp(g, actor, be, 0)
}

// LockFailure shows the thing's FAIL message (or a default) to the actor
// and the OFAIL message to the room.
func (g *Game) LockFailure(d *Descriptor, thing gamedb.DBRef, defaultMsg string) {
	obj := g.DB.Get(thing)
	if obj == nil {
		d.Send(defaultMsg)
		return
	}
	if fail := obj.AttrValue(gamedb.AttrFail); fail != "" {
		d.Send(g.evalFor(thing, d.Player, fail, nil))
	} else {
		d.Send(defaultMsg)
	}
	if ofail := obj.AttrValue(gamedb.AttrOFail); ofail != "" {
		loc := g.PlayerLocation(d.Player)
		g.EmitRoomExcept(loc, d.Player, roomText(loc, d.Player,
			g.PlayerName(d.Player)+" "+g.evalFor(thing, d.Player, ofail, nil)))
	}
}
