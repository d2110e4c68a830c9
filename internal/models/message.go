package models

import (
	"time"

	"github.com/google/uuid"
)

// Actor kinds used by messages and action logs.
const (
	ActorSupervisor  = "supervisor"
	ActorParticipant = "participant"
)

// Message rows are append-only; a nil recipient means broadcast to the
// whole session group.
type Message struct {
	ID            uuid.UUID  `json:"id"`
	SessionID     uuid.UUID  `json:"session_id"`
	SenderType    string     `json:"sender_type"`
	SenderID      uuid.UUID  `json:"sender_id"`
	RecipientType *string    `json:"recipient_type,omitempty"`
	RecipientID   *uuid.UUID `json:"recipient_id,omitempty"`
	Text          string     `json:"text"`
	IsRead        bool       `json:"is_read"`
	CreatedAt     time.Time  `json:"created_at"`
}
