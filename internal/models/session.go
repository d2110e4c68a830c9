package models

import (
	"time"

	"github.com/google/uuid"
)

// Session statuses. Status only moves forward except active⇄paused.
const (
	SessionPending = "pending"
	SessionActive  = "active"
	SessionPaused  = "paused"
	SessionEnded   = "ended"
)

type Session struct {
	ID                     uuid.UUID  `json:"id"`
	GroupCode              string     `json:"group_code"`
	ScheduleID             uuid.UUID  `json:"schedule_id"`
	SupervisorUserID       uuid.UUID  `json:"supervisor_user_id"`
	SupervisorConnectionID *string    `json:"-"`
	Status                 string     `json:"status"`
	StartedAt              *time.Time `json:"started_at,omitempty"`
	EndedAt                *time.Time `json:"ended_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

// SessionSnapshot is the read-only view returned by GetSessionState and
// broadcast on SessionStateChanged.
type SessionSnapshot struct {
	ID           uuid.UUID     `json:"id"`
	GroupCode    string        `json:"group_code"`
	ScheduleID   uuid.UUID     `json:"schedule_id"`
	Status       string        `json:"status"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	EndedAt      *time.Time    `json:"ended_at,omitempty"`
	Participants []Participant `json:"participants"`
}
