package gamedb

import (
	"fmt"
	"strings"
)

// Well-known attribute names. User attributes share the same namespace;
// anything set with &ATTR lands here too.
const (
	AttrDesc     = "DESC"
	AttrSucc     = "SUCC"    // shown to the actor on a successful move
	AttrFail     = "FAIL"    // shown to the actor on a lock failure
	AttrOFail    = "OFAIL"   // shown to the room on a lock failure
	AttrScent    = "SCENT"   // smell verb
	AttrSound    = "SOUND"   // listen verb
	AttrTaste    = "TASTE"   // taste verb
	AttrTexture  = "TEXTURE" // touch verb
	AttrVrMemo   = "VR_MEMO"
	AttrVrIntent = "VR_INTENT"
)

// GetAttr returns the attribute with the given (case-insensitive) name.
func (o *Object) GetAttr(name string) (Attribute, bool) {
	name = strings.ToUpper(name)
	for _, a := range o.Attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// AttrValue returns the attribute's raw text, or "" if unset.
func (o *Object) AttrValue(name string) string {
	a, _ := o.GetAttr(name)
	return a.Value
}

// SetAttr writes an attribute on an object. An empty value clears it. The
// write is atomic under the database lock: readers see either the old
// attribute or the new one, never a partial state.
func (db *Database) SetAttr(ref DBRef, name, value string, owner DBRef) error {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("set attribute: empty name: %w", ErrBadRequest)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	o := db.Objects[ref]
	if o == nil || o.IsGoing() {
		return fmt.Errorf("set attribute on #%d: %w", ref, ErrNotFound)
	}
	for i, a := range o.Attrs {
		if a.Name == name {
			if value == "" {
				o.Attrs = append(o.Attrs[:i], o.Attrs[i+1:]...)
			} else {
				o.Attrs[i].Value = value
				o.Attrs[i].Owner = owner
			}
			return nil
		}
	}
	if value == "" {
		return nil
	}
	o.Attrs = append(o.Attrs, Attribute{Name: name, Value: value, Owner: owner})
	return nil
}

// SetAttrFlags updates the flag word on an existing attribute.
func (db *Database) SetAttrFlags(ref DBRef, name string, flags int) error {
	name = strings.ToUpper(name)
	db.mu.Lock()
	defer db.mu.Unlock()
	o := db.Objects[ref]
	if o == nil {
		return fmt.Errorf("attribute flags on #%d: %w", ref, ErrNotFound)
	}
	for i, a := range o.Attrs {
		if a.Name == name {
			o.Attrs[i].Flags = flags
			return nil
		}
	}
	return fmt.Errorf("attribute %s on #%d: %w", name, ref, ErrNotFound)
}

// CanReadAttr reports whether viewer may read an attribute on target.
// Private attributes are visible only to the attribute's owner, the
// object's owner, and wizards.
func CanReadAttr(viewer, target *Object, a Attribute) bool {
	if a.Flags&AFPrivate == 0 {
		return true
	}
	if viewer == nil {
		return false
	}
	return viewer.IsWizard() || viewer.DBRef == a.Owner || viewer.DBRef == target.Owner || viewer.Owner == target.Owner
}

// SetLock installs a lock expression source on an object. Empty source
// removes the lock.
func (db *Database) SetLock(ref DBRef, lockType, source string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	o := db.Objects[ref]
	if o == nil {
		return fmt.Errorf("lock #%d: %w", ref, ErrNotFound)
	}
	if o.Locks == nil {
		o.Locks = make(map[string]string)
	}
	if source == "" {
		delete(o.Locks, lockType)
	} else {
		o.Locks[lockType] = source
	}
	return nil
}

// GetLock returns the lock expression source of the given type, or "".
func (o *Object) GetLock(lockType string) string {
	if o.Locks == nil {
		return ""
	}
	return o.Locks[lockType]
}
