package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant statuses. submitted, ended and time_expired are terminal;
// disconnected remembers the prior status so a rejoin can restore it.
const (
	ParticipantPending        = "pending"
	ParticipantConnected      = "connected"
	ParticipantInExam         = "in_exam"
	ParticipantPaused         = "paused"
	ParticipantPauseRequested = "pause_requested"
	ParticipantSubmitted      = "submitted"
	ParticipantTimeExpired    = "time_expired"
	ParticipantEnded          = "ended"
	ParticipantDisconnected   = "disconnected"
)

// TerminalParticipantStatus reports whether no further transitions are
// allowed out of status.
func TerminalParticipantStatus(status string) bool {
	switch status {
	case ParticipantSubmitted, ParticipantEnded, ParticipantTimeExpired:
		return true
	}
	return false
}

type Participant struct {
	ID                    uuid.UUID  `json:"id"`
	SessionID             uuid.UUID  `json:"session_id"`
	LearnerID             uuid.UUID  `json:"learner_id"`
	Name                  string     `json:"name"`
	ConnectionID          *string    `json:"-"`
	Status                string     `json:"status"`
	PriorStatus           string     `json:"-"`
	RemainingTimeSeconds  int        `json:"remaining_time_seconds"`
	AdditionalTimeMinutes int        `json:"additional_time_minutes"`
	StartedAt             *time.Time `json:"started_at,omitempty"`
	SubmittedAt           *time.Time `json:"submitted_at,omitempty"`
	LastHeartbeat         *time.Time `json:"last_heartbeat,omitempty"`
	ChatEnabled           bool       `json:"chat_enabled"`
	CreatedAt             time.Time  `json:"created_at"`
}
