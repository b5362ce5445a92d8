package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/resonance-app/gamesync/internal/events"
)

// Config holds WebSocket connection settings.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendQueueSize   int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns default WebSocket settings.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendQueueSize:   256,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production.
			return true
		},
	}
}

// Conn is one client's WebSocket connection.
type Conn struct {
	id     string
	userID string
	sock   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	gw     *Gateway

	// roomID is touched only by the read pump goroutine.
	roomID string
}

// Send queues a server event for delivery. It never blocks; a client that
// cannot keep up loses events, which is safe because payloads carry absolute
// state.
func (c *Conn) Send(ev events.ServerEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.id).Msg("failed to marshal event")
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		log.Warn().
			Str("connection_id", c.id).
			Str("user_id", c.userID).
			Str("event_type", string(ev.Type)).
			Msg("send buffer full, dropping event")
	}
}

// writePump handles sending messages to the WebSocket connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.gw.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case <-c.done:
			c.sock.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			c.sock.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection and
// dispatching them into the engine.
func (c *Conn) readPump() {
	defer func() {
		c.gw.dropConnection(c)
		c.sock.Close()
	}()

	c.sock.SetReadLimit(c.gw.cfg.MaxMessageSize)
	c.sock.SetReadDeadline(time.Now().Add(c.gw.cfg.ReadTimeout))
	c.sock.SetPongHandler(func(string) error {
		c.sock.SetReadDeadline(time.Now().Add(c.gw.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.id).Msg("unexpected WebSocket close error")
			}
			break
		}
		c.gw.dispatch(c, message)
		c.sock.SetReadDeadline(time.Now().Add(c.gw.cfg.ReadTimeout))
	}
}
