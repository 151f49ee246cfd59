package gamedb

import (
	"strconv"
	"strings"
)

// MatchObject resolves a name typed by an actor into a dbref. Accepted
// forms: "me", "here", "#<n>", or a name matched case-insensitively
// against the actor's location contents, the actor's inventory, and the
// location's exits. Exact matches beat prefix matches; within a class the
// lowest dbref wins. Exit names are alias lists split on ';'.
func (db *Database) MatchObject(actor DBRef, name string) DBRef {
	name = strings.TrimSpace(name)
	if name == "" {
		return Nothing
	}
	a := db.Get(actor)
	if a == nil {
		return Nothing
	}
	switch strings.ToLower(name) {
	case "me":
		return actor
	case "here":
		return a.Location
	}
	if strings.HasPrefix(name, "#") {
		n, err := strconv.Atoi(name[1:])
		if err != nil {
			return Nothing
		}
		if db.Get(DBRef(n)) == nil {
			return Nothing
		}
		return DBRef(n)
	}

	lower := strings.ToLower(name)
	exact, prefix := Nothing, Nothing

	consider := func(ref DBRef) {
		o := db.Get(ref)
		if o == nil {
			return
		}
		for _, alias := range strings.Split(o.Name, ";") {
			alias = strings.ToLower(strings.TrimSpace(alias))
			if alias == lower {
				if exact == Nothing || ref < exact {
					exact = ref
				}
			} else if strings.HasPrefix(alias, lower) {
				if prefix == Nothing || ref < prefix {
					prefix = ref
				}
			}
		}
	}

	for _, ref := range db.ContentsOf(a.Location) {
		consider(ref)
	}
	for _, ref := range db.ContentsOf(actor) {
		consider(ref)
	}
	for _, ref := range db.ExitsOf(a.Location) {
		consider(ref)
	}

	if exact != Nothing {
		return exact
	}
	return prefix
}

// MatchExit resolves a direction name against the exits of the actor's
// location only. Used by movement before VR interception kicks in.
func (db *Database) MatchExit(actor DBRef, name string) DBRef {
	a := db.Get(actor)
	if a == nil {
		return Nothing
	}
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, ref := range db.ExitsOf(a.Location) {
		e := db.Get(ref)
		if e == nil {
			continue
		}
		for _, alias := range strings.Split(e.Name, ";") {
			if strings.ToLower(strings.TrimSpace(alias)) == lower {
				return ref
			}
		}
	}
	return Nothing
}

// LookupPlayer finds a player (or agent) by name, exact match first, then
// unique prefix. Returns Ambiguous when a prefix matches more than one.
func (db *Database) LookupPlayer(name string) DBRef {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return Nothing
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	found := Nothing
	matches := 0
	for ref, o := range db.Objects {
		if o.ObjType() != TypePlayer && o.ObjType() != TypeAgent {
			continue
		}
		oname := strings.ToLower(o.Name)
		if oname == lower {
			return ref
		}
		if strings.HasPrefix(oname, lower) {
			found = ref
			matches++
		}
	}
	if matches > 1 {
		return Ambiguous
	}
	return found
}
