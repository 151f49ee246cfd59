package boltstore

import (
	"bytes"
	"encoding/gob"

	"github.com/veilmush/goveilmush/pkg/gamedb"
	"github.com/veilmush/goveilmush/pkg/overlay"
)

func init() {
	gob.Register(gamedb.Object{})
	gob.Register(gamedb.Attribute{})
	gob.Register(overlay.VRState{})
	gob.Register(overlay.Exchange{})
}

// encodeObject serializes an Object using gob.
func encodeObject(obj *gamedb.Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeObject deserializes bytes back into an Object.
func decodeObject(data []byte) (*gamedb.Object, error) {
	var obj gamedb.Object
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

func encodeVRState(vr *overlay.VRState) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVRState(data []byte) (*overlay.VRState, error) {
	var vr overlay.VRState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vr); err != nil {
		return nil, err
	}
	return &vr, nil
}
