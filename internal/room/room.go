// Package room pairs two participants into game rooms and runs one actor
// goroutine per room. All inputs for a room are serialized through its input
// queue, so state transitions are applied one at a time and both participants
// observe the same broadcast order. Rooms are independent of each other.
package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/resonance-app/gamesync/internal/events"
	"github.com/resonance-app/gamesync/internal/game"
)

// Status is a room's lifecycle state.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusAbandoned Status = "abandoned"
)

// Sender delivers a server event to one participant's connection. Send must
// not block; slow connections drop or buffer on their own side.
type Sender interface {
	Send(ev events.ServerEvent)
}

// Config holds room lifecycle tunables.
type Config struct {
	// JoinTimeout discards waiting rooms that never reach active.
	JoinTimeout time.Duration
	// GracePeriod is how long a disconnected participant may rejoin before
	// the room is abandoned.
	GracePeriod time.Duration
	// IdleTimeout abandons active rooms with no input from either side.
	IdleTimeout time.Duration
	// TeardownDelay keeps a finished room around briefly so terminal
	// broadcasts can flush.
	TeardownDelay time.Duration
	// PendingBufferSize caps events buffered per participant during a
	// grace-period disconnect.
	PendingBufferSize int
	// InputQueueSize is the per-room input queue depth.
	InputQueueSize int
	// Rules are the game tunables sessions are created with.
	Rules game.Rules
}

// DefaultConfig returns the recommended lifecycle settings.
func DefaultConfig() Config {
	return Config{
		JoinTimeout:       60 * time.Second,
		GracePeriod:       30 * time.Second,
		IdleTimeout:       5 * time.Minute,
		TeardownDelay:     2 * time.Second,
		PendingBufferSize: 256,
		InputQueueSize:    64,
		Rules:             game.DefaultRules(),
	}
}

type participant struct {
	userID         string
	role           game.Role
	sender         Sender
	connected      bool
	disconnectedAt time.Time
	pending        []events.ServerEvent
}

type msgKind int

const (
	msgJoin msgKind = iota
	msgLeave
	msgInput
	msgDisconnect
	msgInfo
	msgTimer
	msgShutdown
)

type joinReply struct {
	role   game.Role
	status Status
	err    error
}

// Info is a point-in-time view of a room.
type Info struct {
	RoomID       string
	GameType     game.Type
	Status       Status
	Participants []string
}

type message struct {
	kind      msgKind
	userID    string
	sender    Sender
	input     game.Input
	timer     timerKind
	joinReply chan joinReply
	errReply  chan error
	infoReply chan Info
}

// Room is a two-participant game context processed by a single goroutine.
type Room struct {
	id        string
	gameType  game.Type
	cfg       Config
	clock     clockwork.Clock
	recorder  OutcomeRecorder
	onRemove  func(roomID string)
	createdAt time.Time

	status      Status
	parts       []*participant
	session     game.Session
	lastInputAt time.Time

	inputCh chan message
	done    chan struct{}

	closedMu sync.RWMutex
	closed   bool

	timersMu sync.Mutex
	timers   map[timerKind]*roomTimer
}

func newRoom(id string, gt game.Type, cfg Config, clock clockwork.Clock, recorder OutcomeRecorder, onRemove func(string)) *Room {
	r := &Room{
		id:        id,
		gameType:  gt,
		cfg:       cfg,
		clock:     clock,
		recorder:  recorder,
		onRemove:  onRemove,
		createdAt: clock.Now(),
		status:    StatusWaiting,
		inputCh:   make(chan message, cfg.InputQueueSize),
		done:      make(chan struct{}),
		timers:    make(map[timerKind]*roomTimer),
	}
	r.armTimer(timerJoin, cfg.JoinTimeout)
	return r
}

// post enqueues a message unless the room has shut down. The closed flag is
// checked under a read lock so a message accepted here is guaranteed to be
// either handled or failed by the shutdown drain.
func (r *Room) post(m message) error {
	r.closedMu.RLock()
	if r.closed {
		r.closedMu.RUnlock()
		return ErrRoomNotFound
	}
	select {
	case r.inputCh <- m:
		r.closedMu.RUnlock()
		return nil
	default:
	}
	r.closedMu.RUnlock()

	// Queue full: block until there is space or the room shuts down.
	select {
	case r.inputCh <- m:
		return nil
	case <-r.done:
		return ErrRoomNotFound
	}
}

func (r *Room) run() {
	log.Debug().Str("room_id", r.id).Str("game_type", string(r.gameType)).Msg("room started")
	for {
		select {
		case m := <-r.inputCh:
			if r.handle(m) {
				return
			}
		case <-r.done:
			return
		}
	}
}

// handle processes one message; returning true stops the room goroutine.
func (r *Room) handle(m message) bool {
	switch m.kind {
	case msgJoin:
		r.handleJoin(m)
	case msgLeave:
		m.errReply <- r.handleLeave(m.userID)
	case msgInput:
		m.errReply <- r.handleInput(m.userID, m.input)
	case msgDisconnect:
		r.handleDisconnect(m.userID, m.sender)
		m.errReply <- nil
	case msgInfo:
		m.infoReply <- r.info()
	case msgTimer:
		return r.handleTimer(m.timer)
	case msgShutdown:
		r.cleanup()
		return true
	}
	return false
}

func (r *Room) info() Info {
	in := Info{RoomID: r.id, GameType: r.gameType, Status: r.status}
	for _, p := range r.parts {
		in.Participants = append(in.Participants, p.userID)
	}
	return in
}

func (r *Room) participantByUser(userID string) *participant {
	for _, p := range r.parts {
		if p.userID == userID {
			return p
		}
	}
	return nil
}

func (r *Room) handleJoin(m message) {
	// A join for a user the room already knows is a reconnect: rebind the
	// connection, stop the grace countdown, and replay buffered events.
	if p := r.participantByUser(m.userID); p != nil {
		p.sender = m.sender
		p.connected = true
		p.disconnectedAt = time.Time{}
		r.cancelTimer(graceTimerFor(p.role))
		m.joinReply <- joinReply{role: p.role, status: r.status}
		r.sendTo(p, events.RoomJoined{RoomID: r.id, Role: string(p.role), Status: string(r.status)})
		pending := p.pending
		p.pending = nil
		for _, ev := range pending {
			p.sender.Send(ev)
		}
		log.Info().Str("room_id", r.id).Str("user_id", m.userID).Int("replayed", len(pending)).Msg("participant reconnected")
		return
	}

	if len(r.parts) >= 2 {
		m.joinReply <- joinReply{err: ErrRoomFull}
		return
	}
	if r.status != StatusWaiting {
		m.joinReply <- joinReply{err: ErrRoomNotActive}
		return
	}

	role := game.RoleA
	if len(r.parts) == 1 {
		role = game.RoleB
	}
	p := &participant{userID: m.userID, role: role, sender: m.sender, connected: true}
	r.parts = append(r.parts, p)

	if len(r.parts) == 2 {
		r.activate()
	} else {
		r.sendTo(p, events.RoomJoined{RoomID: r.id, Role: string(role), Status: string(r.status)})
	}
	m.joinReply <- joinReply{role: role, status: r.status}
	log.Info().Str("room_id", r.id).Str("user_id", m.userID).Str("role", string(role)).Str("status", string(r.status)).Msg("participant joined")
}

// activate transitions waiting -> active and creates the session.
func (r *Room) activate() {
	session, err := game.NewSession(r.gameType, r.cfg.Rules)
	if err != nil {
		// The game type was validated at creation; this cannot happen for a
		// room that got this far.
		log.Error().Err(err).Str("room_id", r.id).Msg("session init failed")
		r.discard("bad game type")
		return
	}
	r.session = session
	r.status = StatusActive
	r.lastInputAt = r.clock.Now()
	r.cancelTimer(timerJoin)
	r.armTimer(timerIdle, r.cfg.IdleTimeout)

	for _, p := range r.parts {
		r.sendTo(p, events.RoomJoined{RoomID: r.id, Role: string(p.role), Status: string(StatusActive)})
	}
	log.Info().Str("room_id", r.id).Str("game_type", string(r.gameType)).Msg("room active")
}

func (r *Room) handleLeave(userID string) error {
	p := r.participantByUser(userID)
	if p == nil {
		return ErrNotParticipant
	}

	switch r.status {
	case StatusWaiting:
		r.parts = removeParticipant(r.parts, p)
		log.Info().Str("room_id", r.id).Str("user_id", userID).Msg("participant left waiting room")
		if len(r.parts) == 0 {
			r.discard("empty")
		}
	case StatusActive:
		// Leaving an active game abandons it for the remaining participant;
		// the UI distinguishes "opponent left" from "game completed".
		r.abandon("left", p.role)
	default:
		// Already terminal; nothing to do.
	}
	return nil
}

func (r *Room) handleInput(userID string, in game.Input) error {
	p := r.participantByUser(userID)
	if p == nil {
		return ErrNotParticipant
	}
	if r.status != StatusActive {
		return ErrRoomNotActive
	}

	now := r.clock.Now()
	payloads, err := r.session.Apply(p.role, in, now)
	if err != nil {
		return err
	}

	r.lastInputAt = now
	r.armTimer(timerIdle, r.cfg.IdleTimeout)
	r.broadcast(payloads)
	r.syncHoldTimer()

	if r.session.Terminal() {
		r.complete()
	}
	return nil
}

func (r *Room) handleDisconnect(userID string, sender Sender) {
	p := r.participantByUser(userID)
	if p == nil || !p.connected {
		return
	}
	// A reconnect may land before the dead socket's teardown is processed.
	// Only the participant's current connection may disconnect it; a stale
	// socket's cleanup is ignored.
	if sender != nil && p.sender != sender {
		log.Debug().Str("room_id", r.id).Str("user_id", userID).Msg("ignoring disconnect from replaced connection")
		return
	}
	p.connected = false
	p.sender = nil
	p.disconnectedAt = r.clock.Now()
	log.Info().Str("room_id", r.id).Str("user_id", userID).Str("status", string(r.status)).Msg("participant disconnected")

	switch r.status {
	case StatusWaiting:
		// Nobody left to wait for the pairing.
		r.parts = removeParticipant(r.parts, p)
		if len(r.parts) == 0 {
			r.discard("creator disconnected")
		}
	case StatusActive:
		r.armTimer(graceTimerFor(p.role), r.cfg.GracePeriod)
	}
}

func (r *Room) handleTimer(k timerKind) bool {
	switch k {
	case timerJoin:
		if r.status == StatusWaiting {
			for _, p := range r.parts {
				r.sendTo(p, events.ErrorAck{Code: "Timeout", Message: "no one joined the room"})
			}
			r.discard("join timeout")
		}
	case timerGraceA, timerGraceB:
		role := game.RoleA
		if k == timerGraceB {
			role = game.RoleB
		}
		p := r.participantByRole(role)
		if p != nil && !p.connected && r.status == StatusActive &&
			r.clock.Now().Sub(p.disconnectedAt) >= r.cfg.GracePeriod {
			r.abandon("disconnected", role)
		}
	case timerIdle:
		if r.status == StatusActive && r.clock.Now().Sub(r.lastInputAt) >= r.cfg.IdleTimeout {
			r.abandon("idle", "")
		}
	case timerHold:
		if r.status == StatusActive {
			payloads, err := r.session.Apply(game.RoleA, game.TickInput{}, r.clock.Now())
			if err != nil {
				log.Error().Err(err).Str("room_id", r.id).Msg("hold tick rejected")
				return false
			}
			r.broadcast(payloads)
			r.syncHoldTimer()
			if r.session.Terminal() {
				r.complete()
			}
		}
	case timerTeardown:
		r.cleanup()
		return true
	}
	return false
}

func (r *Room) participantByRole(role game.Role) *participant {
	for _, p := range r.parts {
		if p.role == role {
			return p
		}
	}
	return nil
}

// syncHoldTimer arms a tick at the session's hold deadline so time-based
// terminal conditions fire without player input.
func (r *Room) syncHoldTimer() {
	hd, ok := r.session.(game.HoldDeadliner)
	if !ok {
		return
	}
	deadline, ok := hd.HoldDeadline()
	if !ok {
		r.cancelTimer(timerHold)
		return
	}
	d := deadline.Sub(r.clock.Now())
	if d < 0 {
		d = 0
	}
	r.armTimer(timerHold, d)
}

// complete handles active -> completed after the session's own terminal
// broadcast has been queued.
func (r *Room) complete() {
	r.status = StatusCompleted
	r.cancelTimer(timerIdle)
	r.cancelTimer(timerHold)
	r.cancelTimer(timerGraceA)
	r.cancelTimer(timerGraceB)
	r.record("")
	r.armTimer(timerTeardown, r.cfg.TeardownDelay)
	log.Info().Str("room_id", r.id).Str("winner", string(r.session.Winner())).Msg("room completed")
}

// abandon handles active -> abandoned. cause is the role that triggered it,
// or empty for an idle timeout.
func (r *Room) abandon(reason string, cause game.Role) {
	r.status = StatusAbandoned
	r.cancelTimer(timerIdle)
	r.cancelTimer(timerHold)
	r.cancelTimer(timerGraceA)
	r.cancelTimer(timerGraceB)

	for _, p := range r.parts {
		if p.role != cause {
			r.sendTo(p, events.OpponentLeft{Reason: reason})
		}
	}
	r.broadcast([]events.Payload{events.GameComplete{Revealed: false}})
	r.record(reason)
	r.armTimer(timerTeardown, r.cfg.TeardownDelay)
	log.Info().Str("room_id", r.id).Str("reason", reason).Msg("room abandoned")
}

// discard drops a room that never reached active; no outcome is recorded.
// The id is freed immediately so a fresh join can restart the pairing; the
// actor lingers only to flush pending acks.
func (r *Room) discard(reason string) {
	r.status = StatusAbandoned
	r.cancelTimer(timerJoin)
	if r.onRemove != nil {
		r.onRemove(r.id)
		r.onRemove = nil
	}
	r.armTimer(timerTeardown, r.cfg.TeardownDelay)
	log.Info().Str("room_id", r.id).Str("reason", reason).Msg("waiting room discarded")
}

func (r *Room) record(reason string) {
	if r.recorder == nil {
		return
	}
	o := Outcome{
		RoomID:    r.id,
		GameType:  r.gameType,
		Status:    r.status,
		Reason:    reason,
		CreatedAt: r.createdAt,
		EndedAt:   r.clock.Now(),
	}
	if r.session != nil {
		o.Winner = r.session.Winner()
	}
	for _, p := range r.parts {
		o.Participants = append(o.Participants, p.userID)
	}
	r.recorder.RecordOutcome(o)
}

// broadcast wraps payloads into envelopes and delivers them to both
// participants in order. Events for a disconnected participant are buffered
// for grace-period redelivery.
func (r *Room) broadcast(payloads []events.Payload) {
	now := r.clock.Now()
	for _, payload := range payloads {
		ev := events.ServerEvent{
			ID:        uuid.New().String(),
			RoomID:    r.id,
			Type:      payload.EventType(),
			Timestamp: now,
			Data:      payload,
		}
		for _, p := range r.parts {
			r.deliver(p, ev)
		}
	}
}

// sendTo delivers a single-target event such as a join ack.
func (r *Room) sendTo(p *participant, payload events.Payload) {
	r.deliver(p, events.ServerEvent{
		ID:        uuid.New().String(),
		RoomID:    r.id,
		Type:      payload.EventType(),
		Timestamp: r.clock.Now(),
		Data:      payload,
	})
}

func (r *Room) deliver(p *participant, ev events.ServerEvent) {
	if p.connected && p.sender != nil {
		p.sender.Send(ev)
		return
	}
	if len(p.pending) >= r.cfg.PendingBufferSize {
		// Keep the newest events; payloads carry absolute state.
		p.pending = p.pending[1:]
	}
	p.pending = append(p.pending, ev)
}

func (r *Room) cleanup() {
	r.closedMu.Lock()
	r.closed = true
	r.closedMu.Unlock()

	r.timersMu.Lock()
	for k, t := range r.timers {
		t.stop()
		delete(r.timers, k)
	}
	r.timersMu.Unlock()

	// onRemove is nil when discard already freed the id; deleting again here
	// could drop a replacement room created under the same id meanwhile.
	if r.onRemove != nil {
		r.onRemove(r.id)
	}
	close(r.done)

	// Fail everything queued before the closed flag was set, then linger
	// briefly for posts that raced shutdown past the fast path.
	for {
		select {
		case m := <-r.inputCh:
			r.fail(m)
		default:
			go r.drainStragglers()
			log.Debug().Str("room_id", r.id).Msg("room torn down")
			return
		}
	}
}

func (r *Room) drainStragglers() {
	deadline := time.NewTimer(10 * time.Second)
	defer deadline.Stop()
	for {
		select {
		case m := <-r.inputCh:
			r.fail(m)
		case <-deadline.C:
			return
		}
	}
}

// fail answers a message posted to a room that is already gone.
func (r *Room) fail(m message) {
	switch {
	case m.joinReply != nil:
		m.joinReply <- joinReply{err: ErrRoomNotFound}
	case m.errReply != nil:
		m.errReply <- ErrRoomNotFound
	case m.infoReply != nil:
		m.infoReply <- Info{RoomID: r.id}
	}
}

func removeParticipant(parts []*participant, target *participant) []*participant {
	out := parts[:0]
	for _, p := range parts {
		if p != target {
			out = append(out, p)
		}
	}
	return out
}
