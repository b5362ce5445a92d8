package room

import (
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/resonance-app/gamesync/internal/game"
)

// Manager owns the process-wide room table. Room ids are opaque unique keys
// supplied by the caller; everything after lookup happens on the room's own
// goroutine.
type Manager struct {
	cfg      Config
	clock    clockwork.Clock
	recorder OutcomeRecorder

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewManager creates a room manager. recorder may be nil to skip outcome
// recording.
func NewManager(cfg Config, clock clockwork.Clock, recorder OutcomeRecorder) *Manager {
	return &Manager{
		cfg:      cfg,
		clock:    clock,
		recorder: recorder,
		rooms:    make(map[string]*Room),
	}
}

// JoinInfo reports the result of a create-or-join.
type JoinInfo struct {
	Role   game.Role
	Status Status
}

// CreateOrJoin creates the room in waiting if the id is unknown, joins as
// role B (activating the room) if one participant is present, and re-binds a
// reconnecting participant. gameType is honored only for the creator; later
// joiners adopt the room's existing game.
func (m *Manager) CreateOrJoin(roomID, userID string, gameType game.Type, sender Sender) (JoinInfo, error) {
	// A room torn down between lookup and post returns ErrRoomNotFound from
	// post; one retry starts a fresh waiting room in its place.
	for attempt := 0; attempt < 2; attempt++ {
		m.mu.Lock()
		r, ok := m.rooms[roomID]
		if !ok {
			if _, err := game.ParseType(string(gameType)); err != nil {
				m.mu.Unlock()
				return JoinInfo{}, fmt.Errorf("create room %s: %w", roomID, err)
			}
			r = newRoom(roomID, gameType, m.cfg, m.clock, m.recorder, m.remove)
			m.rooms[roomID] = r
			go r.run()
			log.Info().Str("room_id", roomID).Str("game_type", string(gameType)).Msg("room created")
		}
		m.mu.Unlock()

		reply := make(chan joinReply, 1)
		if err := r.post(message{kind: msgJoin, userID: userID, sender: sender, joinReply: reply}); err != nil {
			m.removeIf(roomID, r)
			continue
		}
		res := <-reply
		if res.err != nil {
			return JoinInfo{}, res.err
		}
		return JoinInfo{Role: res.role, Status: res.status}, nil
	}
	return JoinInfo{}, ErrRoomNotFound
}

// Leave removes a participant. Leaving an active room abandons it for the
// remaining participant.
func (m *Manager) Leave(roomID, userID string) error {
	r, err := m.lookup(roomID)
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	if err := r.post(message{kind: msgLeave, userID: userID, errReply: reply}); err != nil {
		return err
	}
	return <-reply
}

// Route forwards a validated input envelope to the room's resolver. The
// returned error is the rejection to acknowledge to the sender; nil means
// the transition was applied and broadcast.
func (m *Manager) Route(roomID, userID string, in game.Input) error {
	r, err := m.lookup(roomID)
	if err != nil {
		return err
	}
	reply := make(chan error, 1)
	if err := r.post(message{kind: msgInput, userID: userID, input: in, errReply: reply}); err != nil {
		return err
	}
	return <-reply
}

// Disconnect marks a participant's connection as gone and starts the grace
// countdown. sender identifies the connection that died; the room ignores the
// call if the participant has already rejoined on a different connection.
// Safe to call for rooms or users that no longer exist.
func (m *Manager) Disconnect(roomID, userID string, sender Sender) {
	r, err := m.lookup(roomID)
	if err != nil {
		return
	}
	reply := make(chan error, 1)
	if err := r.post(message{kind: msgDisconnect, userID: userID, sender: sender, errReply: reply}); err != nil {
		return
	}
	<-reply
}

// Get returns a point-in-time view of a room.
func (m *Manager) Get(roomID string) (Info, error) {
	r, err := m.lookup(roomID)
	if err != nil {
		return Info{}, err
	}
	reply := make(chan Info, 1)
	if err := r.post(message{kind: msgInfo, infoReply: reply}); err != nil {
		return Info{}, err
	}
	return <-reply, nil
}

// Count reports the number of live rooms.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Close shuts down all rooms.
func (m *Manager) Close() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	for _, r := range rooms {
		_ = r.post(message{kind: msgShutdown})
	}
}

func (m *Manager) lookup(roomID string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

func (m *Manager) remove(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, roomID)
}

// removeIf deletes the mapping only if it still points at the given room, so
// a replacement room created meanwhile is not dropped.
func (m *Manager) removeIf(roomID string, r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[roomID]; ok && cur == r {
		delete(m.rooms, roomID)
	}
}
