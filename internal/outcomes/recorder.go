// Package outcomes publishes completed-game summaries for the external
// persistence layer. The engine itself keeps no state past a room's
// lifetime; anything that should outlive it leaves through here.
package outcomes

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/resonance-app/gamesync/internal/room"
)

// NATSRecorder publishes outcomes to a NATS subject per game type, e.g.
// "gamesync.outcomes.tugOfWar".
type NATSRecorder struct {
	nc            *nats.Conn
	subjectPrefix string
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultNATSConfig returns default NATS settings.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "gamesync.outcomes",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// NewNATSRecorder connects to NATS.
func NewNATSRecorder(cfg NATSConfig) (*NATSRecorder, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSRecorder{nc: nc, subjectPrefix: cfg.SubjectPrefix}, nil
}

// RecordOutcome publishes one outcome envelope. Failures are logged, not
// propagated; an outcome record must never block or fail a room.
func (r *NATSRecorder) RecordOutcome(o room.Outcome) {
	subject := fmt.Sprintf("%s.%s", r.subjectPrefix, o.GameType)

	envelope := struct {
		EventID   string       `json:"eventId"`
		Timestamp time.Time    `json:"timestamp"`
		Outcome   room.Outcome `json:"outcome"`
	}{
		EventID:   uuid.New().String(),
		Timestamp: time.Now(),
		Outcome:   o,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		log.Error().Err(err).Str("room_id", o.RoomID).Msg("failed to marshal outcome")
		return
	}
	if err := r.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Str("room_id", o.RoomID).Msg("failed to publish outcome")
		return
	}
	log.Debug().
		Str("subject", subject).
		Str("room_id", o.RoomID).
		Str("status", string(o.Status)).
		Msg("outcome published")
}

// Close drains the NATS connection.
func (r *NATSRecorder) Close() {
	if r.nc != nil {
		r.nc.Close()
	}
}

// LogRecorder is an in-process recorder for development and tests.
type LogRecorder struct{}

func (LogRecorder) RecordOutcome(o room.Outcome) {
	log.Info().
		Str("room_id", o.RoomID).
		Str("game_type", string(o.GameType)).
		Str("status", string(o.Status)).
		Str("winner", string(o.Winner)).
		Msg("game outcome")
}
