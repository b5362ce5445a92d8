// Package game holds the pure state machines for the three two-player games.
// Sessions are deterministic: time enters only through the caller-supplied
// clock reading and input timestamps, so a replay of the same ordered input
// sequence always reaches the same state.
package game

import (
	"fmt"
	"time"

	"github.com/resonance-app/gamesync/internal/events"
)

// Type identifies one of the supported game types.
type Type string

const (
	TugOfWar      Type = "tugOfWar"
	SyncGrid      Type = "syncGrid"
	FrequencySync Type = "frequencySync"
)

// ParseType validates a wire-format game type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TugOfWar, SyncGrid, FrequencySync:
		return Type(s), nil
	default:
		return "", fmt.Errorf("%w: unknown game type %q", ErrInvalidInput, s)
	}
}

// Role is the participant role assigned by join order.
type Role string

const (
	RoleA Role = "A"
	RoleB Role = "B"
)

// Other returns the opposing role.
func (r Role) Other() Role {
	if r == RoleA {
		return RoleB
	}
	return RoleA
}

// Rules holds the tunable constants shared by all sessions.
type Rules struct {
	// Tug-of-war: cord delta per tug of force 1, and the milestone
	// thresholds checked against |cordPosition|.
	TugUnitDelta  float64
	TugMilestones []float64

	// Sync grid: side length (3 means 9 tiles) and the window within which
	// both participants must tap the same tile.
	GridSize    int
	MatchWindow time.Duration

	// Frequency sync: |valueA - valueB| below which the pair is in sync,
	// and how long sync must hold continuously to complete.
	SyncThreshold float64
	HoldDuration  time.Duration
}

// DefaultRules mirrors the client's game constants.
func DefaultRules() Rules {
	return Rules{
		TugUnitDelta:  0.05,
		TugMilestones: []float64{0.3, 0.6, 0.9},
		GridSize:      3,
		MatchWindow:   2 * time.Second,
		SyncThreshold: 0.05,
		HoldDuration:  3 * time.Second,
	}
}

// Input is a validated player input routed to a session.
type Input interface {
	isInput()
}

// TugInput is a tug-of-war pull. Direction is relative to the sender: "left"
// pulls the knot toward role A's side for A and toward role B's side for B.
type TugInput struct {
	Direction Direction
	Force     float64
}

// Direction is a tug pull direction in the sender's own frame.
type Direction string

const (
	DirLeft  Direction = "left"
	DirRight Direction = "right"
)

// GridTapInput is a sync-grid tile tap.
type GridTapInput struct {
	Index    int
	TappedAt time.Time
}

// FrequencyInput is a frequency-sync slider update.
type FrequencyInput struct {
	Value float64
}

// TickInput re-evaluates time-dependent state without player input. The room
// supervisor injects it when a frequency-sync hold deadline elapses.
type TickInput struct{}

func (TugInput) isInput()       {}
func (GridTapInput) isInput()   {}
func (FrequencyInput) isInput() {}
func (TickInput) isInput()      {}

// Session is the two-operation contract every game type implements. Apply
// mutates the session in receipt order and returns the broadcast payloads the
// transition produced. Once Terminal reports true, further Apply calls are
// no-ops returning no events.
type Session interface {
	Type() Type
	Terminal() bool
	// Winner is the winning role for competitive games, or "" when there is
	// no winner (cooperative games, or not yet terminal).
	Winner() Role
	Apply(role Role, in Input, now time.Time) ([]events.Payload, error)
}

// HoldDeadliner is implemented by sessions that can reach terminal purely by
// time passing. The supervisor arms a tick for the reported deadline.
type HoldDeadliner interface {
	HoldDeadline() (time.Time, bool)
}

// NewSession returns the initial session state for a game type.
func NewSession(t Type, rules Rules) (Session, error) {
	switch t {
	case TugOfWar:
		return newTugOfWarSession(rules), nil
	case SyncGrid:
		return newSyncGridSession(rules), nil
	case FrequencySync:
		return newFrequencySyncSession(rules), nil
	default:
		return nil, fmt.Errorf("%w: unknown game type %q", ErrInvalidInput, t)
	}
}
