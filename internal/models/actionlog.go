package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionLog is the append-only audit trail: one row per coordinator
// operation that changed state. Details stays an opaque JSON blob; its
// shape varies per action and is documented where the entry is written.
type ActionLog struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	ActorType string          `json:"actor_type"`
	ActorID   uuid.UUID       `json:"actor_id"`
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}
