package models

import (
	"time"

	"github.com/google/uuid"
)

// Incident types recorded by the coordinator.
const (
	IncidentDisconnect = "disconnect"
	IncidentProblem    = "problem_report"
)

// Incident rows are append-only, never updated.
type Incident struct {
	ID             uuid.UUID `json:"id"`
	ParticipantID  uuid.UUID `json:"participant_id"`
	Type           string    `json:"type"`
	Description    string    `json:"description"`
	PreviousStatus string    `json:"previous_status"`
	CreatedAt      time.Time `json:"created_at"`
}
