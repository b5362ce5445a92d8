package game

import (
	"fmt"
	"math"
	"time"

	"github.com/resonance-app/gamesync/internal/events"
)

// tugOfWarSession tracks the cord position on [-1, 1]. Role A's side is -1,
// role B's side is +1. The session is terminal once |cordPosition| >= 1.
type tugOfWarSession struct {
	rules        Rules
	cordPosition float64
	revealed     []int
	winner       Role
	terminal     bool
}

func newTugOfWarSession(rules Rules) *tugOfWarSession {
	return &tugOfWarSession{rules: rules}
}

func (s *tugOfWarSession) Type() Type     { return TugOfWar }
func (s *tugOfWarSession) Terminal() bool { return s.terminal }
func (s *tugOfWarSession) Winner() Role   { return s.winner }

// CordPosition exposes the current cord position for snapshots.
func (s *tugOfWarSession) CordPosition() float64 { return s.cordPosition }

func (s *tugOfWarSession) Apply(role Role, in Input, now time.Time) ([]events.Payload, error) {
	tug, ok := in.(TugInput)
	if !ok {
		return nil, fmt.Errorf("%w: tug-of-war session got %T", ErrInvalidInput, in)
	}
	if tug.Direction != DirLeft && tug.Direction != DirRight {
		return nil, fmt.Errorf("%w: direction %q", ErrInvalidInput, tug.Direction)
	}
	if tug.Force <= 0 || tug.Force > 1 {
		return nil, fmt.Errorf("%w: force %v out of range (0, 1]", ErrInvalidInput, tug.Force)
	}
	if s.terminal {
		return nil, nil
	}

	s.cordPosition = clamp(s.cordPosition+pullSign(role, tug.Direction)*tug.Force*s.rules.TugUnitDelta, -1, 1)

	// Milestones crossed for the first time reveal a bio tag. They are
	// reported before any terminal event.
	var newTags []int
	progress := math.Abs(s.cordPosition)
	for i, threshold := range s.rules.TugMilestones {
		if progress >= threshold && !containsInt(s.revealed, i) {
			s.revealed = append(s.revealed, i)
			newTags = append(newTags, i)
		}
	}

	payloads := []events.Payload{events.CordUpdate{
		CordPosition:       s.cordPosition,
		RevealedMilestones: append([]int(nil), s.revealed...),
	}}
	for _, tag := range newTags {
		payloads = append(payloads, events.BioTagReveal{Tag: tag})
	}

	if progress >= 1 {
		s.terminal = true
		if s.cordPosition < 0 {
			s.winner = RoleA
		} else {
			s.winner = RoleB
		}
		payloads = append(payloads, events.GameComplete{Winner: string(s.winner), Revealed: true})
	}

	return payloads, nil
}

// pullSign maps a direction in the sender's frame onto the shared cord axis.
// "left" draws the knot toward the sender's own side, so role B's axis is
// mirrored.
func pullSign(role Role, dir Direction) float64 {
	sign := 1.0
	if dir == DirLeft {
		sign = -1.0
	}
	if role == RoleB {
		sign = -sign
	}
	return sign
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
