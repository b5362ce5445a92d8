package room

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/resonance-app/gamesync/internal/game"
)

type timerKind int

const (
	timerJoin timerKind = iota
	timerGraceA
	timerGraceB
	timerIdle
	timerHold
	timerTeardown
)

func graceTimerFor(role game.Role) timerKind {
	if role == game.RoleB {
		return timerGraceB
	}
	return timerGraceA
}

// roomTimer couples a clockwork timer with a cancel channel so the waiting
// goroutine exits when the timer is replaced instead of parking until the
// room ends.
type roomTimer struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

func (t *roomTimer) stop() {
	stopAndDrainTimer(t.timer)
	close(t.cancel)
}

// armTimer schedules a one-shot timer that posts back into the room's input
// queue when it fires, replacing any existing timer of the same kind.
func (r *Room) armTimer(k timerKind, d time.Duration) {
	t := &roomTimer{
		timer:  r.clock.NewTimer(d),
		cancel: make(chan struct{}),
	}

	r.timersMu.Lock()
	if prev, ok := r.timers[k]; ok {
		prev.stop()
	}
	r.timers[k] = t
	r.timersMu.Unlock()

	go func() {
		select {
		case <-t.timer.Chan():
			// Best effort: the room may already be shutting down.
			_ = r.post(message{kind: msgTimer, timer: k})
		case <-t.cancel:
		case <-r.done:
		}
	}()
}

func (r *Room) cancelTimer(k timerKind) {
	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	if t, ok := r.timers[k]; ok {
		t.stop()
		delete(r.timers, k)
	}
}

// stopAndDrainTimer stops a timer and drains its channel so a concurrent fire
// cannot leak, per the time.Timer.Stop documentation.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
