package room

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/resonance-app/gamesync/internal/events"
	"github.com/resonance-app/gamesync/internal/game"
)

type fakeSender struct {
	mu  sync.Mutex
	evs []events.ServerEvent
}

func (f *fakeSender) Send(ev events.ServerEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evs = append(f.evs, ev)
}

func (f *fakeSender) events() []events.ServerEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.ServerEvent, len(f.evs))
	copy(out, f.evs)
	return out
}

func (f *fakeSender) count(t events.EventType) int {
	n := 0
	for _, ev := range f.events() {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (f *fakeSender) last(t *testing.T, et events.EventType) events.ServerEvent {
	t.Helper()
	evs := f.events()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == et {
			return evs[i]
		}
	}
	t.Fatalf("no %s event received; got %v", et, eventTypes(evs))
	return events.ServerEvent{}
}

func eventTypes(evs []events.ServerEvent) []events.EventType {
	out := make([]events.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

// broadcastStream drops the per-participant join acks so the two participants'
// streams can be compared for identical broadcast order.
func broadcastStream(evs []events.ServerEvent) []events.ServerEvent {
	var out []events.ServerEvent
	for _, ev := range evs {
		if ev.Type == events.EventRoomJoined {
			continue
		}
		out = append(out, ev)
	}
	return out
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (f *fakeRecorder) RecordOutcome(o Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, o)
}

func (f *fakeRecorder) all() []Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Outcome, len(f.outcomes))
	copy(out, f.outcomes)
	return out
}

// waitFor polls for a condition produced by the room goroutine after a fake
// clock advance.
func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func newTestManager(t *testing.T) (*Manager, *clockwork.FakeClock, *fakeRecorder) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	rec := &fakeRecorder{}
	m := NewManager(DefaultConfig(), clock, rec)
	t.Cleanup(m.Close)
	return m, clock, rec
}

func pairUp(t *testing.T, m *Manager, roomID string, gt game.Type) (*fakeSender, *fakeSender) {
	t.Helper()
	a, b := &fakeSender{}, &fakeSender{}
	if _, err := m.CreateOrJoin(roomID, "alice", gt, a); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	if _, err := m.CreateOrJoin(roomID, "bob", gt, b); err != nil {
		t.Fatalf("bob join: %v", err)
	}
	return a, b
}

func TestCreateOrJoin_AssignsRolesAndActivates(t *testing.T) {
	m, _, _ := newTestManager(t)
	a, b := &fakeSender{}, &fakeSender{}

	info, err := m.CreateOrJoin("r1", "alice", game.TugOfWar, a)
	if err != nil {
		t.Fatalf("first join: %v", err)
	}
	if info.Role != game.RoleA || info.Status != StatusWaiting {
		t.Errorf("first join = %+v, want role A in waiting", info)
	}

	info, err = m.CreateOrJoin("r1", "bob", game.TugOfWar, b)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if info.Role != game.RoleB || info.Status != StatusActive {
		t.Errorf("second join = %+v, want role B in active", info)
	}

	waitFor(t, "activation broadcast", func() bool {
		return a.count(events.EventRoomJoined) == 2 && b.count(events.EventRoomJoined) == 1
	})
	joined := b.last(t, events.EventRoomJoined).Data.(events.RoomJoined)
	if joined.Status != string(StatusActive) || joined.Role != "B" {
		t.Errorf("bob's join ack = %+v, want active as B", joined)
	}
}

func TestCreateOrJoin_RejectsUnknownGameType(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, err := m.CreateOrJoin("r1", "alice", game.Type("chess"), &fakeSender{})
	if !errors.Is(err, game.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if m.Count() != 0 {
		t.Errorf("rejected create left %d rooms behind", m.Count())
	}
}

func TestCreateOrJoin_ThirdUserGetsRoomFull(t *testing.T) {
	m, _, _ := newTestManager(t)
	pairUp(t, m, "r1", game.TugOfWar)

	_, err := m.CreateOrJoin("r1", "carol", game.TugOfWar, &fakeSender{})
	if !errors.Is(err, ErrRoomFull) {
		t.Fatalf("err = %v, want ErrRoomFull", err)
	}
}

func TestRoute_Rejections(t *testing.T) {
	m, _, _ := newTestManager(t)

	tug := game.TugInput{Direction: game.DirLeft, Force: 1}

	if err := m.Route("missing", "alice", tug); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("unknown room err = %v, want ErrRoomNotFound", err)
	}

	if _, err := m.CreateOrJoin("r1", "alice", game.TugOfWar, &fakeSender{}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := m.Route("r1", "alice", tug); !errors.Is(err, ErrRoomNotActive) {
		t.Errorf("waiting room err = %v, want ErrRoomNotActive", err)
	}

	if _, err := m.CreateOrJoin("r1", "bob", game.TugOfWar, &fakeSender{}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := m.Route("r1", "mallory", tug); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("outsider err = %v, want ErrNotParticipant", err)
	}
}

func TestRoute_BroadcastsInIdenticalOrder(t *testing.T) {
	m, _, _ := newTestManager(t)
	a, b := pairUp(t, m, "r1", game.SyncGrid)

	taps := []struct {
		user  string
		index int
	}{
		{"alice", 0}, {"bob", 4}, {"bob", 0}, {"alice", 4}, {"alice", 8},
	}
	for _, tap := range taps {
		if err := m.Route("r1", tap.user, game.GridTapInput{Index: tap.index}); err != nil {
			t.Fatalf("tap %+v: %v", tap, err)
		}
	}

	// Route is synchronous, so both streams are complete here. Matched tiles 0
	// and 4 produce gridMatch; the rest are ripples.
	aStream, bStream := broadcastStream(a.events()), broadcastStream(b.events())
	if !reflect.DeepEqual(aStream, bStream) {
		t.Fatalf("participants saw different streams:\nA: %v\nB: %v", eventTypes(aStream), eventTypes(bStream))
	}
	want := []events.EventType{
		events.EventRipple, events.EventRipple, events.EventGridMatch,
		events.EventGridMatch, events.EventRipple,
	}
	if got := eventTypes(aStream); !reflect.DeepEqual(got, want) {
		t.Errorf("broadcast sequence = %v, want %v", got, want)
	}
}

func TestRoute_InvalidInputIsNotBroadcast(t *testing.T) {
	m, _, _ := newTestManager(t)
	a, b := pairUp(t, m, "r1", game.TugOfWar)

	before, beforeB := len(a.events()), len(b.events())
	err := m.Route("r1", "alice", game.TugInput{Direction: game.DirLeft, Force: 5})
	if !errors.Is(err, game.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if len(a.events()) != before || len(b.events()) != beforeB {
		t.Error("rejected input produced broadcast events")
	}
}

func TestJoinTimeout_DiscardsWaitingRoom(t *testing.T) {
	m, clock, rec := newTestManager(t)
	a := &fakeSender{}
	if _, err := m.CreateOrJoin("r1", "alice", game.TugOfWar, a); err != nil {
		t.Fatalf("join: %v", err)
	}

	clock.Advance(DefaultConfig().JoinTimeout)
	waitFor(t, "join timeout notice", func() bool {
		return a.count(events.EventError) == 1
	})
	ack := a.last(t, events.EventError).Data.(events.ErrorAck)
	if ack.Code != "Timeout" {
		t.Errorf("ack code = %q, want Timeout", ack.Code)
	}

	// Discard frees the id right away, not after the teardown delay.
	waitFor(t, "room removed", func() bool { return m.Count() == 0 })

	// A room that never activated records no outcome.
	if got := rec.all(); len(got) != 0 {
		t.Errorf("discarded room recorded outcomes: %+v", got)
	}

	// The same id immediately starts a fresh waiting room, not an error.
	info, err := m.CreateOrJoin("r1", "alice", game.TugOfWar, &fakeSender{})
	if err != nil {
		t.Fatalf("rejoin after timeout: %v", err)
	}
	if info.Role != game.RoleA || info.Status != StatusWaiting {
		t.Errorf("rejoin = %+v, want fresh waiting room as A", info)
	}

	// The discarded actor's own teardown must not drop the replacement room.
	clock.Advance(DefaultConfig().TeardownDelay)
	time.Sleep(20 * time.Millisecond)
	if m.Count() != 1 {
		t.Errorf("rooms = %d after stale teardown, want 1", m.Count())
	}
}

func TestDisconnect_GraceExpiryAbandonsRoom(t *testing.T) {
	m, clock, rec := newTestManager(t)
	a, b := pairUp(t, m, "r1", game.TugOfWar)

	m.Disconnect("r1", "bob", b)

	// The room keeps accepting the remaining participant's input.
	if err := m.Route("r1", "alice", game.TugInput{Direction: game.DirLeft, Force: 1}); err != nil {
		t.Fatalf("route during grace: %v", err)
	}
	if a.count(events.EventCordUpdate) != 1 {
		t.Fatal("alice did not receive cordUpdate during bob's grace period")
	}

	clock.Advance(DefaultConfig().GracePeriod)
	waitFor(t, "abandonment broadcast", func() bool {
		return a.count(events.EventGameComplete) == 1
	})

	left := a.last(t, events.EventOpponentLeft).Data.(events.OpponentLeft)
	if left.Reason != "disconnected" {
		t.Errorf("opponentLeft reason = %q, want disconnected", left.Reason)
	}
	done := a.last(t, events.EventGameComplete).Data.(events.GameComplete)
	if done.Revealed {
		t.Error("abandoned game reported revealed=true")
	}

	outcomes := rec.all()
	if len(outcomes) != 1 || outcomes[0].Status != StatusAbandoned || outcomes[0].Reason != "disconnected" {
		t.Errorf("outcomes = %+v, want one abandoned/disconnected record", outcomes)
	}

	clock.Advance(DefaultConfig().TeardownDelay)
	waitFor(t, "room removed", func() bool { return m.Count() == 0 })
}

func TestDisconnect_ReconnectWithinGraceReplaysPending(t *testing.T) {
	m, clock, _ := newTestManager(t)
	_, b := pairUp(t, m, "r1", game.TugOfWar)

	m.Disconnect("r1", "bob", b)
	for i := 0; i < 2; i++ {
		if err := m.Route("r1", "alice", game.TugInput{Direction: game.DirLeft, Force: 1}); err != nil {
			t.Fatalf("route %d: %v", i, err)
		}
	}

	clock.Advance(DefaultConfig().GracePeriod / 2)

	b2 := &fakeSender{}
	info, err := m.CreateOrJoin("r1", "bob", game.TugOfWar, b2)
	if err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if info.Role != game.RoleB || info.Status != StatusActive {
		t.Errorf("reconnect = %+v, want role B in active", info)
	}
	if got := b2.count(events.EventCordUpdate); got != 2 {
		t.Errorf("replayed cordUpdates = %d, want 2", got)
	}

	// The cancelled grace timer must not fire after the rejoin.
	clock.Advance(DefaultConfig().GracePeriod)
	info2, err := m.Get("r1")
	if err != nil || info2.Status != StatusActive {
		t.Errorf("room after rejoin = %+v (%v), want still active", info2, err)
	}
}

func TestDisconnect_StaleConnectionCannotClobberReconnect(t *testing.T) {
	m, clock, _ := newTestManager(t)
	a, b := pairUp(t, m, "r1", game.TugOfWar)

	// Bob rejoins on a fresh connection before the dead one is reaped.
	b2 := &fakeSender{}
	info, err := m.CreateOrJoin("r1", "bob", game.TugOfWar, b2)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if info.Role != game.RoleB || info.Status != StatusActive {
		t.Fatalf("rejoin = %+v, want role B in active", info)
	}

	// The old connection's teardown arrives late and must be ignored.
	m.Disconnect("r1", "bob", b)

	if err := m.Route("r1", "alice", game.TugInput{Direction: game.DirLeft, Force: 1}); err != nil {
		t.Fatalf("route: %v", err)
	}
	if got := b2.count(events.EventCordUpdate); got != 1 {
		t.Errorf("reconnected sender cordUpdates = %d, want 1", got)
	}
	if got := a.count(events.EventCordUpdate); got != 1 {
		t.Errorf("alice cordUpdates = %d, want 1", got)
	}

	// No grace countdown was started, so the room stays active.
	clock.Advance(DefaultConfig().GracePeriod)
	info2, err := m.Get("r1")
	if err != nil || info2.Status != StatusActive {
		t.Errorf("room after stale disconnect = %+v (%v), want still active", info2, err)
	}
}

func TestIdleTimeout_AbandonsActiveRoom(t *testing.T) {
	m, clock, rec := newTestManager(t)
	a, b := pairUp(t, m, "r1", game.TugOfWar)

	clock.Advance(DefaultConfig().IdleTimeout)
	waitFor(t, "idle abandonment", func() bool {
		return a.count(events.EventGameComplete) == 1 && b.count(events.EventGameComplete) == 1
	})

	// Neither participant caused the idle, so both get the notice.
	for name, s := range map[string]*fakeSender{"alice": a, "bob": b} {
		left := s.last(t, events.EventOpponentLeft).Data.(events.OpponentLeft)
		if left.Reason != "idle" {
			t.Errorf("%s opponentLeft reason = %q, want idle", name, left.Reason)
		}
	}

	outcomes := rec.all()
	if len(outcomes) != 1 || outcomes[0].Reason != "idle" {
		t.Errorf("outcomes = %+v, want one idle record", outcomes)
	}
}

func TestLeave_ActiveRoomAbandonsForOpponent(t *testing.T) {
	m, _, rec := newTestManager(t)
	_, b := pairUp(t, m, "r1", game.TugOfWar)

	if err := m.Leave("r1", "alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	left := b.last(t, events.EventOpponentLeft).Data.(events.OpponentLeft)
	if left.Reason != "left" {
		t.Errorf("opponentLeft reason = %q, want left", left.Reason)
	}
	if done := b.last(t, events.EventGameComplete).Data.(events.GameComplete); done.Revealed {
		t.Error("abandoned game reported revealed=true")
	}
	if outcomes := rec.all(); len(outcomes) != 1 || outcomes[0].Status != StatusAbandoned {
		t.Errorf("outcomes = %+v, want one abandoned record", outcomes)
	}
}

func TestFrequencyHold_CompletesWithoutFurtherInput(t *testing.T) {
	m, clock, rec := newTestManager(t)
	a, b := pairUp(t, m, "r1", game.FrequencySync)

	if err := m.Route("r1", "alice", game.FrequencyInput{Value: 0.5}); err != nil {
		t.Fatalf("alice value: %v", err)
	}
	if err := m.Route("r1", "bob", game.FrequencyInput{Value: 0.52}); err != nil {
		t.Fatalf("bob value: %v", err)
	}

	clock.Advance(game.DefaultRules().HoldDuration)
	waitFor(t, "hold completion", func() bool {
		return a.count(events.EventProfileReveal) == 1 && b.count(events.EventProfileReveal) == 1
	})

	done := a.last(t, events.EventGameComplete).Data.(events.GameComplete)
	if !done.Revealed || done.Winner != "" {
		t.Errorf("gameComplete = %+v, want revealed with no winner", done)
	}
	info, err := m.Get("r1")
	if err != nil || info.Status != StatusCompleted {
		t.Errorf("room = %+v (%v), want completed", info, err)
	}
	if outcomes := rec.all(); len(outcomes) != 1 || outcomes[0].Status != StatusCompleted {
		t.Errorf("outcomes = %+v, want one completed record", outcomes)
	}

	clock.Advance(DefaultConfig().TeardownDelay)
	waitFor(t, "room removed", func() bool { return m.Count() == 0 })
}

func TestTugCompletion_RecordsWinner(t *testing.T) {
	m, clock, rec := newTestManager(t)
	a, b := pairUp(t, m, "r1", game.TugOfWar)

	for i := 0; i < 20; i++ {
		if err := m.Route("r1", "alice", game.TugInput{Direction: game.DirLeft, Force: 1}); err != nil {
			t.Fatalf("tug %d: %v", i, err)
		}
	}

	for name, s := range map[string]*fakeSender{"alice": a, "bob": b} {
		done := s.last(t, events.EventGameComplete).Data.(events.GameComplete)
		if done.Winner != "A" || !done.Revealed {
			t.Errorf("%s gameComplete = %+v, want A revealed", name, done)
		}
	}

	// Completed rooms reject further input until teardown.
	err := m.Route("r1", "bob", game.TugInput{Direction: game.DirLeft, Force: 1})
	if !errors.Is(err, ErrRoomNotActive) {
		t.Errorf("post-completion route err = %v, want ErrRoomNotActive", err)
	}
	if outcomes := rec.all(); len(outcomes) != 1 || outcomes[0].Winner != game.RoleA {
		t.Errorf("outcomes = %+v, want one record won by A", outcomes)
	}

	clock.Advance(DefaultConfig().TeardownDelay)
	waitFor(t, "room removed", func() bool { return m.Count() == 0 })
}
