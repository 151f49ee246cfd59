package gamedb

import (
	"strings"
	"sync"
	"time"
)

// DBRef is the fundamental object reference type.
type DBRef int

const (
	Nothing   DBRef = -1
	Ambiguous DBRef = -2
	Home      DBRef = -3
	NoPerm    DBRef = -4
)

// ObjectType represents the type of a world object.
type ObjectType int

const (
	TypeRoom   ObjectType = 0
	TypeThing  ObjectType = 1
	TypeExit   ObjectType = 2
	TypePlayer ObjectType = 3
	TypeAgent  ObjectType = 4
)

func (t ObjectType) String() string {
	switch t {
	case TypeRoom:
		return "ROOM"
	case TypeThing:
		return "THING"
	case TypeExit:
		return "EXIT"
	case TypePlayer:
		return "PLAYER"
	case TypeAgent:
		return "AGENT"
	default:
		return "UNKNOWN"
	}
}

const TypeMask = 0x7

// Flag constants. The low three bits of the flag word hold the type.
const (
	FlagWizard    = 0x00000008
	FlagDark      = 0x00000010
	FlagSticky    = 0x00000020
	FlagHalt      = 0x00000040
	FlagGoing     = 0x00000080
	FlagListening = 0x00000100
	FlagEnterOK   = 0x00000200
	FlagVrOK      = 0x00000400
	FlagSummonOK  = 0x00000800
	FlagAiOK      = 0x00001000
	FlagRobot     = 0x00002000
	FlagQuiet     = 0x00004000
	FlagVisual    = 0x00008000
)

// FlagNames maps settable flag names (as used by @set) to their bits.
var FlagNames = map[string]int{
	"WIZARD":    FlagWizard,
	"DARK":      FlagDark,
	"STICKY":    FlagSticky,
	"HALT":      FlagHalt,
	"LISTENING": FlagListening,
	"ENTER_OK":  FlagEnterOK,
	"VR_OK":     FlagVrOK,
	"SUMMON_OK": FlagSummonOK,
	"AI_OK":     FlagAiOK,
	"ROBOT":     FlagRobot,
	"QUIET":     FlagQuiet,
	"VISUAL":    FlagVisual,
}

// FlagLetters gives the single-letter codes shown after an object's name.
var FlagLetters = []struct {
	Bit    int
	Letter byte
}{
	{FlagWizard, 'W'},
	{FlagDark, 'D'},
	{FlagSticky, 'S'},
	{FlagHalt, 'H'},
	{FlagListening, 'L'},
	{FlagEnterOK, 'e'},
	{FlagVrOK, 'v'},
	{FlagSummonOK, 's'},
	{FlagAiOK, 'a'},
	{FlagRobot, 'r'},
	{FlagQuiet, 'q'},
	{FlagVisual, 'V'},
}

// Attribute flag constants.
const (
	AFPrivate = 0x0001 // only owner and wizards can read
	AFNoProg  = 0x0002 // skip during $-command and ^-pattern matching
	AFLock    = 0x0004 // only owner and wizards can change
)

// Attribute is a single named attribute on an object. Names are stored
// uppercase; lookups are case-insensitive.
type Attribute struct {
	Name  string
	Value string
	Owner DBRef
	Flags int
}

// Lock type names. Every object may carry one expression per type.
const (
	LockDefault = "default" // who may pick up / pass through
	LockEnter   = "enter"   // who may enter (things, rooms)
	LockUse     = "use"     // who may trigger $-commands
)

// Object is a single node in the world graph.
type Object struct {
	DBRef    DBRef
	Name     string
	Location DBRef // containing object; Nothing for rooms
	Contents DBRef // head of contents chain
	Exits    DBRef // head of exits chain (rooms)
	Link     DBRef // exit destination, or player/thing home
	Next     DBRef // next sibling in the containing chain
	Owner    DBRef
	Flags    int
	Cost     int // tokens charged at creation; refunded on destroy
	Created  time.Time
	Attrs    []Attribute
	Locks    map[string]string // lock type -> expression source
}

// ObjType returns the object type from the flag word.
func (o *Object) ObjType() ObjectType {
	return ObjectType(o.Flags & TypeMask)
}

// HasFlag checks whether a flag bit is set.
func (o *Object) HasFlag(flag int) bool {
	return o.Flags&flag != 0
}

// SetFlag sets or clears a flag bit.
func (o *Object) SetFlag(flag int, set bool) {
	if set {
		o.Flags |= flag
	} else {
		o.Flags &^= flag
	}
}

// IsWizard reports whether the object has administrative permission.
func (o *Object) IsWizard() bool {
	return o.HasFlag(FlagWizard)
}

// IsGoing returns true if the object is marked for destruction.
func (o *Object) IsGoing() bool {
	return o.HasFlag(FlagGoing)
}

// Hears reports whether the object participates in listen-pattern matching.
func (o *Object) Hears() bool {
	return o.HasFlag(FlagListening) && !o.HasFlag(FlagHalt)
}

// FlagString renders the type letter plus set-flag letters, e.g. "TLv".
func (o *Object) FlagString() string {
	var sb strings.Builder
	switch o.ObjType() {
	case TypeRoom:
		sb.WriteByte('R')
	case TypeExit:
		sb.WriteByte('E')
	case TypePlayer:
		sb.WriteByte('P')
	case TypeAgent:
		sb.WriteByte('A')
	}
	for _, fl := range FlagLetters {
		if o.HasFlag(fl.Bit) {
			sb.WriteByte(fl.Letter)
		}
	}
	return sb.String()
}

// Database holds the complete in-memory world graph. All mutating access
// goes through the store operations in store.go, which serialize under mu so
// no caller ever observes a partially applied move or attribute write.
type Database struct {
	mu      sync.RWMutex
	Objects map[DBRef]*Object
	NextRef DBRef // next dbref to assign; monotonic, never reused
}

// NewDatabase creates an empty Database.
func NewDatabase() *Database {
	return &Database{
		Objects: make(map[DBRef]*Object),
	}
}

// Get returns the object for a dbref, or nil if it does not exist or is
// marked for destruction.
func (db *Database) Get(ref DBRef) *Object {
	db.mu.RLock()
	defer db.mu.RUnlock()
	o := db.Objects[ref]
	if o == nil || o.IsGoing() {
		return nil
	}
	return o
}

// Exists reports whether a dbref names a live object.
func (db *Database) Exists(ref DBRef) bool {
	return db.Get(ref) != nil
}

// Size returns the number of live objects.
func (db *Database) Size() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.Objects)
}

// ContentsOf returns the dbrefs in an object's contents chain, in chain
// order. Returns nil for unknown objects.
func (db *Database) ContentsOf(ref DBRef) []DBRef {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.chain(ref, false)
}

// ExitsOf returns the dbrefs in a room's exits chain.
func (db *Database) ExitsOf(ref DBRef) []DBRef {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.chain(ref, true)
}

// chain walks a contents or exits chain. Caller holds at least a read lock.
func (db *Database) chain(ref DBRef, exits bool) []DBRef {
	o := db.Objects[ref]
	if o == nil {
		return nil
	}
	var out []DBRef
	next := o.Contents
	if exits {
		next = o.Exits
	}
	for next != Nothing {
		obj := db.Objects[next]
		if obj == nil {
			break
		}
		out = append(out, next)
		next = obj.Next
		if len(out) > len(db.Objects) {
			break // corrupt chain guard
		}
	}
	return out
}
