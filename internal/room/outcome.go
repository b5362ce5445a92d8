package room

import (
	"time"

	"github.com/resonance-app/gamesync/internal/game"
)

// Outcome summarizes a finished room for the external outcome recorder.
type Outcome struct {
	RoomID       string    `json:"roomId"`
	GameType     game.Type `json:"gameType"`
	Status       Status    `json:"status"`
	Winner       game.Role `json:"winner,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
	EndedAt      time.Time `json:"endedAt"`
}

// OutcomeRecorder receives the summary of every room that reached a terminal
// status. Implementations must not block for long; recording happens on the
// room's goroutine after the terminal broadcast is already queued.
type OutcomeRecorder interface {
	RecordOutcome(o Outcome)
}
