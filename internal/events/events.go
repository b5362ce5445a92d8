package events

import (
	"time"
)

// EventType identifies a server-to-client event on the wire.
type EventType string

const (
	EventCordUpdate    EventType = "cordUpdate"
	EventBioTagReveal  EventType = "bioTagReveal"
	EventGridMatch     EventType = "gridMatch"
	EventRipple        EventType = "ripple"
	EventSyncState     EventType = "syncState"
	EventResonance     EventType = "resonanceEvent"
	EventProfileReveal EventType = "profileReveal"
	EventGameComplete  EventType = "gameComplete"
	EventRoomJoined    EventType = "roomJoined"
	EventOpponentLeft  EventType = "opponentLeft"
	EventError         EventType = "error"
)

// Payload is implemented by every server event body.
type Payload interface {
	EventType() EventType
}

// ServerEvent is the envelope every server-to-client message is wrapped in.
// Payloads always carry absolute state so clients can reconcile by overwrite.
type ServerEvent struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId,omitempty"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      Payload   `json:"data,omitempty"`
}

// CordUpdate carries the authoritative tug-of-war cord state.
type CordUpdate struct {
	CordPosition       float64 `json:"cordPosition"`
	RevealedMilestones []int   `json:"revealedMilestones"`
}

func (CordUpdate) EventType() EventType { return EventCordUpdate }

// BioTagReveal announces a newly crossed milestone. Tag is the index into the
// pair's bio tag list; the profile service owns the tag content.
type BioTagReveal struct {
	Tag int `json:"tag"`
}

func (BioTagReveal) EventType() EventType { return EventBioTagReveal }

// GridMatch announces a tile matched by both participants. BlurRevealIndex is
// the number of matched tiles so far, which drives the photo unblur.
type GridMatch struct {
	Index           int `json:"index"`
	BlurRevealIndex int `json:"blurRevealIndex"`
}

func (GridMatch) EventType() EventType { return EventGridMatch }

// Ripple mirrors a participant's tap to the other side of the room.
type Ripple struct {
	Index int `json:"index"`
}

func (Ripple) EventType() EventType { return EventRipple }

// SyncState carries both slider values and the derived sync state.
type SyncState struct {
	UserAValue        float64 `json:"userAValue"`
	UserBValue        float64 `json:"userBValue"`
	IsInSync          bool    `json:"isInSync"`
	SyncMeterProgress float64 `json:"syncMeterProgress"`
}

func (SyncState) EventType() EventType { return EventSyncState }

// Resonance is emitted while the pair holds sync; intensity approaches 1 as
// the two values converge.
type Resonance struct {
	Intensity float64 `json:"intensity"`
}

func (Resonance) EventType() EventType { return EventResonance }

// ProfileReveal signals a completed frequency-sync hold.
type ProfileReveal struct{}

func (ProfileReveal) EventType() EventType { return EventProfileReveal }

// GameComplete is the terminal broadcast for a room. Winner is empty for
// cooperative games; Revealed is false when the room was abandoned.
type GameComplete struct {
	Winner   string `json:"winner,omitempty"`
	Revealed bool   `json:"revealed"`
}

func (GameComplete) EventType() EventType { return EventGameComplete }

// RoomJoined acknowledges a join and tells the client its assigned role.
type RoomJoined struct {
	RoomID string `json:"roomId"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

func (RoomJoined) EventType() EventType { return EventRoomJoined }

// OpponentLeft notifies the remaining participant why the room ended early.
// Reason is one of "left", "disconnected", "idle".
type OpponentLeft struct {
	Reason string `json:"reason"`
}

func (OpponentLeft) EventType() EventType { return EventOpponentLeft }

// ErrorAck is returned to the originating connection for rejected input.
type ErrorAck struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ErrorAck) EventType() EventType { return EventError }
