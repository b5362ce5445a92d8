package game

import (
	"fmt"
	"time"

	"github.com/resonance-app/gamesync/internal/events"
)

// syncGridSession tracks tile matches. A tile matches when both participants
// tap it within the match window of each other; the window boundary is
// inclusive. Only the most recent pending tap per participant per tile is
// kept.
type syncGridSession struct {
	rules    Rules
	matched  map[int]bool
	pending  map[int]map[Role]time.Time
	terminal bool
}

func newSyncGridSession(rules Rules) *syncGridSession {
	return &syncGridSession{
		rules:   rules,
		matched: make(map[int]bool),
		pending: make(map[int]map[Role]time.Time),
	}
}

func (s *syncGridSession) Type() Type     { return SyncGrid }
func (s *syncGridSession) Terminal() bool { return s.terminal }
func (s *syncGridSession) Winner() Role   { return "" }

// MatchedCount exposes match progress for snapshots.
func (s *syncGridSession) MatchedCount() int { return len(s.matched) }

func (s *syncGridSession) tileCount() int {
	return s.rules.GridSize * s.rules.GridSize
}

func (s *syncGridSession) Apply(role Role, in Input, now time.Time) ([]events.Payload, error) {
	tap, ok := in.(GridTapInput)
	if !ok {
		return nil, fmt.Errorf("%w: sync-grid session got %T", ErrInvalidInput, in)
	}
	if tap.Index < 0 || tap.Index >= s.tileCount() {
		return nil, fmt.Errorf("%w: tile index %d out of range [0, %d)", ErrInvalidInput, tap.Index, s.tileCount())
	}
	if s.terminal {
		return nil, nil
	}
	// Later taps on an already matched tile are no-ops.
	if s.matched[tap.Index] {
		return nil, nil
	}

	tappedAt := tap.TappedAt
	if tappedAt.IsZero() {
		tappedAt = now
	}

	if otherAt, ok := s.pending[tap.Index][role.Other()]; ok && absDuration(tappedAt.Sub(otherAt)) <= s.rules.MatchWindow {
		s.matched[tap.Index] = true
		delete(s.pending, tap.Index)

		payloads := []events.Payload{events.GridMatch{
			Index:           tap.Index,
			BlurRevealIndex: len(s.matched),
		}}
		if len(s.matched) == s.tileCount() {
			s.terminal = true
			payloads = append(payloads, events.GameComplete{Revealed: true})
		}
		return payloads, nil
	}

	// No partner tap inside the window: retain only this most recent tap and
	// mirror it to the other side as a ripple.
	if s.pending[tap.Index] == nil {
		s.pending[tap.Index] = make(map[Role]time.Time)
	}
	s.pending[tap.Index][role] = tappedAt

	return []events.Payload{events.Ripple{Index: tap.Index}}, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
