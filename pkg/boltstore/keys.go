package boltstore

import (
	"encoding/binary"

	"github.com/veilmush/goveilmush/pkg/gamedb"
)

// Bucket name constants.
var (
	bucketMeta     = []byte("meta")
	bucketObjects  = []byte("objects")
	bucketPlayers  = []byte("players")  // player name -> dbref index
	bucketVRStates = []byte("vrstates") // (player,room) -> VRState
)

// Meta key constants.
var (
	keyNextRef = []byte("nextref")
)

// refToKey converts a DBRef to an 8-byte big-endian key. Offset by a large
// constant so negative sentinel refs sort correctly.
func refToKey(ref gamedb.DBRef) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(int64(ref)+1<<32))
	return buf
}

// keyToRef converts an 8-byte big-endian key back to a DBRef.
func keyToRef(b []byte) gamedb.DBRef {
	v := binary.BigEndian.Uint64(b)
	return gamedb.DBRef(int64(v) - 1<<32)
}

// pairKey builds the (player,room) composite key for VR state rows.
func pairKey(player, room gamedb.DBRef) []byte {
	buf := make([]byte, 16)
	copy(buf, refToKey(player))
	copy(buf[8:], refToKey(room))
	return buf
}
