package events

import "github.com/veilmush/goveilmush/pkg/gamedb"

// EventType classifies events for transport-specific encoding.
type EventType int

const (
	EvText       EventType = iota // raw text (universal fallback)
	EvSay                         // speech
	EvPose                        // pose/emote
	EvEmit                        // @emit
	EvRoom                        // room description (look output)
	EvMove                        // arrive/depart
	EvVista                       // subjective scene update (VR overlay)
	EvNarrative                   // async narrative-service result
	EvError                       // error surfaced to the actor only
	EvConnect                     // player connected
	EvDisconnect                  // player disconnected
	EvSystem                      // server notices
)

func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvSay:
		return "say"
	case EvPose:
		return "pose"
	case EvEmit:
		return "emit"
	case EvRoom:
		return "room"
	case EvMove:
		return "move"
	case EvVista:
		return "vista"
	case EvNarrative:
		return "narrative"
	case EvError:
		return "error"
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	case EvSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Event is a structured game event that flows through the bus. Telnet
// transports render Text; the WebSocket transport sends the whole structure
// as JSON.
type Event struct {
	Type   EventType      `json:"type"`
	Player gamedb.DBRef   `json:"player"` // recipient (Nothing for broadcast)
	Source gamedb.DBRef   `json:"source"` // who generated the event
	Room   gamedb.DBRef   `json:"room"`   // room context
	Text   string         `json:"text"`
	Data   map[string]any `json:"data,omitempty"`
}
