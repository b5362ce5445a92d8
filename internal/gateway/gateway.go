// Package gateway terminates WebSocket connections and translates the wire
// protocol into registry and room-manager calls. It owns no game state; the
// room actors are the source of truth.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/resonance-app/gamesync/internal/events"
	"github.com/resonance-app/gamesync/internal/game"
	"github.com/resonance-app/gamesync/internal/registry"
	"github.com/resonance-app/gamesync/internal/room"
)

// Gateway upgrades HTTP connections and routes client events.
type Gateway struct {
	cfg      Config
	upgrader websocket.Upgrader
	registry *registry.Registry
	rooms    *room.Manager
}

// New creates a gateway over the given registry and room manager.
func New(cfg Config, reg *registry.Registry, rooms *room.Manager) *Gateway {
	return &Gateway{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		registry: reg,
		rooms:    rooms,
	}
}

// HandleWS upgrades a client connection. Identity is supplied once at
// connect time via the userId query parameter and bound to the connection;
// per-message user ids are not trusted.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	connID := uuid.New().String()
	if err := g.registry.Register(connID); err != nil {
		log.Error().Err(err).Str("connection_id", connID).Msg("failed to register connection")
		http.Error(w, "failed to register connection", http.StatusInternalServerError)
		return
	}
	if err := g.registry.BindIdentity(connID, userID); err != nil {
		log.Error().Err(err).Str("connection_id", connID).Msg("failed to bind identity")
		http.Error(w, "failed to bind identity", http.StatusInternalServerError)
		return
	}

	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.registry.Unregister(connID)
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	c := &Conn{
		id:     connID,
		userID: userID,
		sock:   sock,
		send:   make(chan []byte, g.cfg.SendQueueSize),
		done:   make(chan struct{}),
		gw:     g,
	}

	go c.writePump()
	go c.readPump()

	log.Info().
		Str("connection_id", connID).
		Str("user_id", userID).
		Msg("WebSocket connection established")
}

// dispatch routes one decoded client message.
func (g *Gateway) dispatch(c *Conn, raw []byte) {
	_, payload, err := events.ParseClientEvent(raw)
	if err != nil {
		log.Debug().Err(err).Str("connection_id", c.id).Msg("rejected client message")
		g.ack(c, "", fmt.Errorf("%w: %v", game.ErrInvalidInput, err))
		return
	}

	switch p := payload.(type) {
	case events.JoinRoom:
		g.handleJoinRoom(c, p)

	case events.LeaveRoom:
		err := g.rooms.Leave(p.RoomID, c.userID)
		if err == nil && c.roomID == p.RoomID {
			c.roomID = ""
			g.registry.SetRoom(c.id, "")
		}
		g.ack(c, p.RoomID, err)

	case events.Tug:
		g.routeInput(c, p.RoomID, game.TugInput{
			Direction: game.Direction(p.Direction),
			Force:     p.Force,
		})

	case events.GridTap:
		in := game.GridTapInput{Index: p.Index}
		if p.Timestamp > 0 {
			in.TappedAt = time.UnixMilli(p.Timestamp)
		}
		g.routeInput(c, p.RoomID, in)

	case events.FrequencyUpdate:
		g.routeInput(c, p.RoomID, game.FrequencyInput{Value: p.Value})
	}
}

func (g *Gateway) handleJoinRoom(c *Conn, p events.JoinRoom) {
	if p.UserID != "" && p.UserID != c.userID {
		log.Warn().
			Str("connection_id", c.id).
			Str("bound_user", c.userID).
			Str("claimed_user", p.UserID).
			Msg("joinRoom user id does not match bound identity; using bound identity")
	}

	// An omitted room id asks the server to mint one; the client learns it
	// from the roomJoined event.
	if p.RoomID == "" {
		p.RoomID = uuid.New().String()
	}

	// Joining a new room implicitly leaves the previous one.
	if c.roomID != "" && c.roomID != p.RoomID {
		if err := g.rooms.Leave(c.roomID, c.userID); err != nil && !errors.Is(err, room.ErrRoomNotFound) {
			log.Warn().Err(err).Str("room_id", c.roomID).Msg("implicit leave failed")
		}
		c.roomID = ""
	}

	_, err := g.rooms.CreateOrJoin(p.RoomID, c.userID, game.Type(p.GameType), c)
	if err != nil {
		g.ack(c, p.RoomID, err)
		return
	}
	c.roomID = p.RoomID
	g.registry.SetRoom(c.id, p.RoomID)
	// The room actor sends the roomJoined event with the assigned role.
}

func (g *Gateway) routeInput(c *Conn, roomID string, in game.Input) {
	if err := g.rooms.Route(roomID, c.userID, in); err != nil {
		g.ack(c, roomID, err)
	}
}

// ack reports a rejected operation back to the originating connection only.
// A nil error is not acknowledged; success is observed through broadcasts.
func (g *Gateway) ack(c *Conn, roomID string, err error) {
	if err == nil {
		return
	}
	c.Send(events.ServerEvent{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		Type:      events.EventError,
		Timestamp: time.Now(),
		Data: events.ErrorAck{
			Code:    errorCode(err),
			Message: err.Error(),
		},
	})
}

// dropConnection runs when a read pump exits: any room membership enters its
// disconnect grace period, then the registry entry is removed. A connection
// the registry no longer reports has already started its grace countdown.
func (g *Gateway) dropConnection(c *Conn) {
	if c.roomID != "" {
		g.rooms.Disconnect(c.roomID, c.userID, c)
	}
	userID, _, err := g.registry.Unregister(c.id)
	if err != nil {
		return
	}
	close(c.done)
	log.Info().
		Str("connection_id", c.id).
		Str("user_id", userID).
		Msg("connection closed")
}

// errorCode maps engine errors onto the wire error taxonomy.
func errorCode(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, room.ErrRoomFull):
		return "RoomFull"
	case errors.Is(err, room.ErrRoomNotActive):
		return "RoomNotActive"
	case errors.Is(err, room.ErrNotParticipant):
		return "InvalidInput"
	case errors.Is(err, game.ErrInvalidInput):
		return "InvalidInput"
	case errors.Is(err, registry.ErrDuplicateConnection):
		return "DuplicateConnection"
	case errors.Is(err, registry.ErrUnknownConnection):
		return "UnknownConnection"
	default:
		return "InternalError"
	}
}
