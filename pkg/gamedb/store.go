package gamedb

import (
	"fmt"
	"sort"
	"time"
)

// Create allocates a new object of the given kind. Location semantics by
// kind: rooms have no location; exits hang off the source room's exits
// chain; everything else joins the location's contents chain. The recorded
// cost is what Destroy later refunds. Dbrefs are assigned monotonically and
// never reused.
func (db *Database) Create(kind ObjectType, name string, owner, location DBRef, cost int) (DBRef, error) {
	if name == "" {
		return Nothing, fmt.Errorf("create: empty name: %w", ErrBadRequest)
	}
	db.mu.Lock()
	defer db.mu.Unlock()

	ref := db.NextRef
	db.NextRef++

	o := &Object{
		DBRef:    ref,
		Name:     name,
		Location: Nothing,
		Contents: Nothing,
		Exits:    Nothing,
		Link:     Nothing,
		Next:     Nothing,
		Owner:    owner,
		Flags:    int(kind),
		Cost:     cost,
		Created:  time.Now(),
		Locks:    make(map[string]string),
	}
	db.Objects[ref] = o

	if kind == TypeExit {
		if src := db.Objects[location]; src != nil {
			o.Location = location
			o.Next = src.Exits
			src.Exits = ref
		}
	} else if kind != TypeRoom {
		if loc := db.Objects[location]; loc != nil {
			db.insertContents(o, loc)
		}
	}
	return ref, nil
}

// Move relocates an object into a new container. It rejects moves that
// would make an object contain one of its own ancestors, moves of rooms,
// and moves into exits. The contents-chain splice is atomic: either the
// object is fully in the old chain or fully in the new one.
func (db *Database) Move(ref, dest DBRef) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	o := db.Objects[ref]
	if o == nil || o.IsGoing() {
		return fmt.Errorf("move #%d: %w", ref, ErrNotFound)
	}
	d := db.Objects[dest]
	if d == nil || d.IsGoing() {
		return fmt.Errorf("move to #%d: %w", dest, ErrNotFound)
	}
	if o.ObjType() == TypeRoom {
		return fmt.Errorf("move #%d: rooms have no location: %w", ref, ErrBadRequest)
	}
	if d.ObjType() == TypeExit {
		return fmt.Errorf("move into exit #%d: %w", dest, ErrBadRequest)
	}

	// Walk up from the destination; finding ref means ref would contain
	// an ancestor of itself.
	depth := 0
	for at := dest; at != Nothing; {
		if at == ref {
			return fmt.Errorf("move #%d into #%d: %w", ref, dest, ErrCycleViolation)
		}
		parent := db.Objects[at]
		if parent == nil {
			break
		}
		at = parent.Location
		depth++
		if depth > len(db.Objects) {
			break
		}
	}

	db.spliceOut(o)
	db.insertContents(o, d)
	return nil
}

// DestroyResult reports what Destroy did.
type DestroyResult struct {
	Refund    int     // the object's recorded creation cost
	Relocated []DBRef // contents moved to the owner's home
}

// Destroy removes an object from the graph. Contents are never destroyed:
// they relocate to their own owner's home (falling back to the destroyed
// object's former location). Exits are unhooked from their source room. The
// dbref is retired, not recycled.
func (db *Database) Destroy(ref DBRef) (DestroyResult, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	o := db.Objects[ref]
	if o == nil || o.IsGoing() {
		return DestroyResult{}, fmt.Errorf("destroy #%d: %w", ref, ErrNotFound)
	}

	res := DestroyResult{Refund: o.Cost}

	// Relocate contents before unhooking the object itself.
	next := o.Contents
	for next != Nothing {
		c := db.Objects[next]
		if c == nil {
			break
		}
		after := c.Next
		home := db.homeFor(c, o.Location)
		c.Next = Nothing
		c.Location = Nothing
		if h := db.Objects[home]; h != nil {
			db.insertContents(c, h)
		}
		res.Relocated = append(res.Relocated, c.DBRef)
		next = after
	}
	o.Contents = Nothing

	// Unlink exits that hang off a destroyed room.
	if o.ObjType() == TypeRoom {
		ex := o.Exits
		for ex != Nothing {
			e := db.Objects[ex]
			if e == nil {
				break
			}
			after := e.Next
			e.SetFlag(FlagGoing, true)
			delete(db.Objects, ex)
			ex = after
		}
		o.Exits = Nothing
	}

	db.spliceOut(o)

	// Unlink any exits pointing at the destroyed object.
	for _, other := range db.Objects {
		if other.Link == ref {
			other.Link = Nothing
		}
	}

	o.SetFlag(FlagGoing, true)
	delete(db.Objects, ref)
	return res, nil
}

// homeFor picks the relocation target for a displaced object: its owner's
// home if that still exists, else the fallback location. Caller holds mu.
func (db *Database) homeFor(o *Object, fallback DBRef) DBRef {
	if owner := db.Objects[o.Owner]; owner != nil && owner.Link != Nothing {
		if db.Objects[owner.Link] != nil {
			return owner.Link
		}
	}
	return fallback
}

// spliceOut removes an object from whatever chain currently holds it.
// Caller holds mu.
func (db *Database) spliceOut(o *Object) {
	loc := db.Objects[o.Location]
	if loc == nil {
		o.Location = Nothing
		o.Next = Nothing
		return
	}
	head := &loc.Contents
	if o.ObjType() == TypeExit {
		head = &loc.Exits
	}
	if *head == o.DBRef {
		*head = o.Next
	} else {
		prev := db.Objects[*head]
		for prev != nil && prev.Next != o.DBRef {
			prev = db.Objects[prev.Next]
		}
		if prev != nil {
			prev.Next = o.Next
		}
	}
	o.Location = Nothing
	o.Next = Nothing
}

// insertContents puts o at the head of dest's contents chain. Caller holds mu.
func (db *Database) insertContents(o *Object, dest *Object) {
	o.Location = dest.DBRef
	o.Next = dest.Contents
	dest.Contents = o.DBRef
}

// LinkExit points an exit (or a player/thing home) at a destination.
func (db *Database) LinkExit(ref, dest DBRef) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	o := db.Objects[ref]
	if o == nil {
		return fmt.Errorf("link #%d: %w", ref, ErrNotFound)
	}
	if dest != Nothing && db.Objects[dest] == nil {
		return fmt.Errorf("link to #%d: %w", dest, ErrNotFound)
	}
	o.Link = dest
	return nil
}

// Rename changes an object's name.
func (db *Database) Rename(ref DBRef, name string) error {
	if name == "" {
		return fmt.Errorf("rename #%d: empty name: %w", ref, ErrBadRequest)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	o := db.Objects[ref]
	if o == nil {
		return fmt.Errorf("rename #%d: %w", ref, ErrNotFound)
	}
	o.Name = name
	return nil
}

// SetLink sets the home (players and things) or drop-to link of a
// non-exit object. Exit destinations go through LinkExit, which validates
// the target.
func (db *Database) SetLink(ref, dest DBRef) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	o := db.Objects[ref]
	if o == nil {
		return fmt.Errorf("set link #%d: %w", ref, ErrNotFound)
	}
	o.Link = dest
	return nil
}

// SetFlag sets or clears a flag bit on an object under the write lock, so
// readers on other connections never see a torn flag word.
func (db *Database) SetFlag(ref DBRef, flag int, set bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	o := db.Objects[ref]
	if o == nil {
		return fmt.Errorf("set flag on #%d: %w", ref, ErrNotFound)
	}
	o.SetFlag(flag, set)
	return nil
}

// SetOwner reassigns ownership of an object.
func (db *Database) SetOwner(ref, owner DBRef) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	o := db.Objects[ref]
	if o == nil {
		return fmt.Errorf("set owner of #%d: %w", ref, ErrNotFound)
	}
	o.Owner = owner
	return nil
}

// LiveRefs returns a snapshot of every live dbref in ascending order.
// Background loops iterate the snapshot instead of the map itself.
func (db *Database) LiveRefs() []DBRef {
	db.mu.RLock()
	defer db.mu.RUnlock()
	refs := make([]DBRef, 0, len(db.Objects))
	for _, o := range db.Objects {
		if !o.IsGoing() {
			refs = append(refs, o.DBRef)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i] < refs[j] })
	return refs
}

// CheckInvariants verifies the containment-forest invariants: every
// non-room object has exactly one location, rooms have none, and no object
// is its own ancestor. Used by tests and @dbck.
func (db *Database) CheckInvariants() error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for ref, o := range db.Objects {
		if o.ObjType() == TypeRoom {
			if o.Location != Nothing {
				return fmt.Errorf("room #%d has location #%d", ref, o.Location)
			}
			continue
		}
		depth := 0
		for at := o.Location; at != Nothing; {
			if at == ref {
				return fmt.Errorf("#%d contains itself", ref)
			}
			parent := db.Objects[at]
			if parent == nil {
				break
			}
			at = parent.Location
			depth++
			if depth > len(db.Objects) {
				return fmt.Errorf("#%d: containment chain does not terminate", ref)
			}
		}
	}
	return nil
}
