package events

import (
	"encoding/json"
	"fmt"
)

// ClientEventType identifies a client-to-server event on the wire.
type ClientEventType string

const (
	ClientJoinRoom        ClientEventType = "joinRoom"
	ClientLeaveRoom       ClientEventType = "leaveRoom"
	ClientTug             ClientEventType = "tug"
	ClientGridTap         ClientEventType = "gridTap"
	ClientFrequencyUpdate ClientEventType = "frequencyUpdate"
)

// ClientEvent is the envelope for client-to-server messages.
type ClientEvent struct {
	Type ClientEventType `json:"type"`
	Data json.RawMessage `json:"data"`
}

// JoinRoom asks to create-or-join a room. GameType is honored for the first
// joiner (the room creator); later joiners adopt the room's existing game.
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	GameType string `json:"gameType,omitempty"`
}

// LeaveRoom leaves the given room.
type LeaveRoom struct {
	RoomID string `json:"roomId"`
}

// Tug is a single tug-of-war pull in the sender's own frame.
type Tug struct {
	RoomID    string  `json:"roomId"`
	Direction string  `json:"direction"`
	Force     float64 `json:"force"`
}

// GridTap is a sync-grid tile tap. Timestamp is client milliseconds since
// the Unix epoch; zero means "use server receipt time".
type GridTap struct {
	RoomID    string `json:"roomId"`
	Index     int    `json:"index"`
	Timestamp int64  `json:"timestamp"`
}

// FrequencyUpdate is a frequency-sync slider value in [0,1].
type FrequencyUpdate struct {
	RoomID string  `json:"roomId"`
	Value  float64 `json:"value"`
}

// ParseClientEvent decodes a raw wire message into its typed payload.
func ParseClientEvent(raw []byte) (ClientEventType, any, error) {
	var ev ClientEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return "", nil, fmt.Errorf("unmarshal client event: %w", err)
	}

	switch ev.Type {
	case ClientJoinRoom:
		var p JoinRoom
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return ev.Type, nil, fmt.Errorf("unmarshal joinRoom: %w", err)
		}
		return ev.Type, p, nil

	case ClientLeaveRoom:
		var p LeaveRoom
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return ev.Type, nil, fmt.Errorf("unmarshal leaveRoom: %w", err)
		}
		return ev.Type, p, nil

	case ClientTug:
		var p Tug
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return ev.Type, nil, fmt.Errorf("unmarshal tug: %w", err)
		}
		return ev.Type, p, nil

	case ClientGridTap:
		var p GridTap
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return ev.Type, nil, fmt.Errorf("unmarshal gridTap: %w", err)
		}
		return ev.Type, p, nil

	case ClientFrequencyUpdate:
		var p FrequencyUpdate
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return ev.Type, nil, fmt.Errorf("unmarshal frequencyUpdate: %w", err)
		}
		return ev.Type, p, nil

	default:
		return ev.Type, nil, fmt.Errorf("unknown client event type: %q", ev.Type)
	}
}
