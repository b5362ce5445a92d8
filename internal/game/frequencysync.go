package game

import (
	"fmt"
	"math"
	"time"

	"github.com/resonance-app/gamesync/internal/events"
)

// frequencySyncSession tracks both slider values and the continuous in-sync
// hold. The hold timer starts the instant the values enter sync and resets
// the instant they leave it. Values are not considered in sync until both
// participants have sent at least one update, so zero-value defaults cannot
// auto-complete the game.
type frequencySyncSession struct {
	rules          Rules
	valueA, valueB float64
	haveA, haveB   bool
	holding        bool
	holdStartedAt  time.Time
	progress       float64
	terminal       bool
}

func newFrequencySyncSession(rules Rules) *frequencySyncSession {
	return &frequencySyncSession{rules: rules}
}

func (s *frequencySyncSession) Type() Type     { return FrequencySync }
func (s *frequencySyncSession) Terminal() bool { return s.terminal }
func (s *frequencySyncSession) Winner() Role   { return "" }

// Progress exposes the sync meter for snapshots.
func (s *frequencySyncSession) Progress() float64 { return s.progress }

// HoldDeadline reports when the current hold would complete, so the
// supervisor can tick the session even if neither participant sends input.
func (s *frequencySyncSession) HoldDeadline() (time.Time, bool) {
	if !s.holding || s.terminal {
		return time.Time{}, false
	}
	return s.holdStartedAt.Add(s.rules.HoldDuration), true
}

func (s *frequencySyncSession) Apply(role Role, in Input, now time.Time) ([]events.Payload, error) {
	switch in := in.(type) {
	case FrequencyInput:
		if in.Value < 0 || in.Value > 1 {
			return nil, fmt.Errorf("%w: value %v out of range [0, 1]", ErrInvalidInput, in.Value)
		}
		if s.terminal {
			return nil, nil
		}
		if role == RoleA {
			s.valueA, s.haveA = in.Value, true
		} else {
			s.valueB, s.haveB = in.Value, true
		}
	case TickInput:
		if s.terminal {
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("%w: frequency-sync session got %T", ErrInvalidInput, in)
	}

	diff := math.Abs(s.valueA - s.valueB)
	inSync := s.haveA && s.haveB && diff < s.rules.SyncThreshold

	if inSync {
		if !s.holding {
			s.holding = true
			s.holdStartedAt = now
		}
		elapsed := now.Sub(s.holdStartedAt)
		s.progress = math.Min(100, float64(elapsed)/float64(s.rules.HoldDuration)*100)
	} else {
		s.holding = false
		s.holdStartedAt = time.Time{}
		s.progress = 0
	}

	payloads := []events.Payload{events.SyncState{
		UserAValue:        s.valueA,
		UserBValue:        s.valueB,
		IsInSync:          inSync,
		SyncMeterProgress: s.progress,
	}}
	if inSync {
		payloads = append(payloads, events.Resonance{Intensity: 1 - diff/s.rules.SyncThreshold})
	}

	if s.progress >= 100 {
		s.terminal = true
		payloads = append(payloads, events.ProfileReveal{}, events.GameComplete{Revealed: true})
	}

	return payloads, nil
}
