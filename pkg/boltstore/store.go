// Package boltstore persists the world graph and overlay states in bbolt.
// The in-memory Database stays authoritative; writes flow through here so a
// restart reproduces the exact same world.
package boltstore

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/veilmush/goveilmush/pkg/gamedb"
	"github.com/veilmush/goveilmush/pkg/overlay"
)

// Store wraps a bbolt database holding the persistent world snapshot.
type Store struct {
	bolt *bolt.DB
	path string
}

// Open opens (or creates) the persistent store and ensures all buckets
// exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: opening %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketObjects, bucketPlayers, bucketVRStates} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("creating bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{bolt: db, path: path}, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	return s.bolt.Close()
}

// Path returns the filesystem path of the store.
func (s *Store) Path() string { return s.path }

// PutObject writes one object through to disk. Player and agent objects
// also refresh the name index.
func (s *Store) PutObject(obj *gamedb.Object) error {
	data, err := encodeObject(obj)
	if err != nil {
		return fmt.Errorf("boltstore: encoding #%d: %w", obj.DBRef, err)
	}
	return s.bolt.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketObjects).Put(refToKey(obj.DBRef), data); err != nil {
			return err
		}
		if t := obj.ObjType(); t == gamedb.TypePlayer || t == gamedb.TypeAgent {
			return tx.Bucket(bucketPlayers).Put([]byte(strings.ToLower(obj.Name)), refToKey(obj.DBRef))
		}
		return nil
	})
}

// PutObjects writes a batch of objects in one transaction.
func (s *Store) PutObjects(objs []*gamedb.Object) error {
	return s.bolt.Update(func(tx *bolt.Tx) error {
		ob := tx.Bucket(bucketObjects)
		pb := tx.Bucket(bucketPlayers)
		for _, obj := range objs {
			data, err := encodeObject(obj)
			if err != nil {
				return fmt.Errorf("boltstore: encoding #%d: %w", obj.DBRef, err)
			}
			if err := ob.Put(refToKey(obj.DBRef), data); err != nil {
				return err
			}
			if t := obj.ObjType(); t == gamedb.TypePlayer || t == gamedb.TypeAgent {
				if err := pb.Put([]byte(strings.ToLower(obj.Name)), refToKey(obj.DBRef)); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// DeleteObject removes an object (and any name-index row) from disk.
func (s *Store) DeleteObject(ref gamedb.DBRef, name string) error {
	return s.bolt.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketObjects).Delete(refToKey(ref)); err != nil {
			return err
		}
		if name != "" {
			return tx.Bucket(bucketPlayers).Delete([]byte(strings.ToLower(name)))
		}
		return nil
	})
}

// PutNextRef persists the dbref allocator position so retired refs are
// never reissued after a restart.
func (s *Store) PutNextRef(next gamedb.DBRef) error {
	return s.bolt.Update(func(tx *bolt.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(int64(next)))
		return tx.Bucket(bucketMeta).Put(keyNextRef, buf)
	})
}

// SaveSnapshot writes the entire database, allocator position, and overlay
// states in batched transactions.
func (s *Store) SaveSnapshot(db *gamedb.Database, ov *overlay.Manager) error {
	start := time.Now()

	var objs []*gamedb.Object
	for _, ref := range sortedRefs(db) {
		objs = append(objs, db.Get(ref))
	}
	const batch = 1000
	for i := 0; i < len(objs); i += batch {
		end := i + batch
		if end > len(objs) {
			end = len(objs)
		}
		if err := s.PutObjects(objs[i:end]); err != nil {
			return err
		}
	}
	if err := s.PutNextRef(db.NextRef); err != nil {
		return err
	}

	if ov != nil {
		states := ov.Snapshot()
		err := s.bolt.Update(func(tx *bolt.Tx) error {
			vb := tx.Bucket(bucketVRStates)
			for i := range states {
				data, err := encodeVRState(&states[i])
				if err != nil {
					return err
				}
				if err := vb.Put(pairKey(states[i].Player, states[i].Room), data); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("boltstore: saving vr states: %w", err)
		}
	}

	log.Printf("boltstore: snapshot of %d objects in %v", len(objs), time.Since(start))
	return nil
}

// LoadAll reads the full world graph and overlay states back into memory.
func (s *Store) LoadAll() (*gamedb.Database, *overlay.Manager, error) {
	db := gamedb.NewDatabase()
	ov := overlay.NewManager()

	err := s.bolt.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketMeta).Get(keyNextRef); v != nil {
			db.NextRef = gamedb.DBRef(int64(binary.BigEndian.Uint64(v)))
		}
		err := tx.Bucket(bucketObjects).ForEach(func(k, v []byte) error {
			obj, err := decodeObject(v)
			if err != nil {
				return fmt.Errorf("decoding object %v: %w", keyToRef(k), err)
			}
			db.Objects[obj.DBRef] = obj
			if obj.DBRef >= db.NextRef {
				db.NextRef = obj.DBRef + 1
			}
			return nil
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketVRStates).ForEach(func(k, v []byte) error {
			vr, err := decodeVRState(v)
			if err != nil {
				return fmt.Errorf("decoding vr state: %w", err)
			}
			ov.Restore(*vr)
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}
	log.Printf("boltstore: loaded %d objects, %d vr states from %s", db.Size(), ov.Count(), s.path)
	return db, ov, nil
}

// DeleteVRStates drops persisted overlay rows for a room or player. Either
// argument may be Nothing to mean "any".
func (s *Store) DeleteVRStates(player, room gamedb.DBRef) error {
	return s.bolt.Update(func(tx *bolt.Tx) error {
		vb := tx.Bucket(bucketVRStates)
		c := vb.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			vr, err := decodeVRState(v)
			if err != nil {
				continue
			}
			if (player == gamedb.Nothing || vr.Player == player) &&
				(room == gamedb.Nothing || vr.Room == room) {
				if err := c.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// LookupPlayer resolves a player name through the on-disk index.
func (s *Store) LookupPlayer(name string) (gamedb.DBRef, bool) {
	var ref gamedb.DBRef
	found := false
	s.bolt.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketPlayers).Get([]byte(strings.ToLower(name))); v != nil {
			ref = keyToRef(v)
			found = true
		}
		return nil
	})
	return ref, found
}

// Backup writes a consistent online copy of the store to w-style path.
func (s *Store) Backup(dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("boltstore: creating backup %s: %w", dest, err)
	}
	defer f.Close()
	return s.bolt.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(f)
		return err
	})
}

// sortedRefs returns all live dbrefs in ascending order for deterministic
// snapshots.
func sortedRefs(db *gamedb.Database) []gamedb.DBRef {
	refs := make([]gamedb.DBRef, 0, db.Size())
	for ref := gamedb.DBRef(0); ref < db.NextRef; ref++ {
		if db.Exists(ref) {
			refs = append(refs, ref)
		}
	}
	return refs
}
