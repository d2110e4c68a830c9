package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types pushed over websocket connections.
const (
	EventExamStarted              = "exam_started"
	EventExamPaused               = "exam_paused"
	EventExamResumed              = "exam_resumed"
	EventExamEnded                = "exam_ended"
	EventTimeAdded                = "time_added"
	EventChatToggled              = "chat_toggled"
	EventPauseApproved            = "pause_approved"
	EventPauseDenied              = "pause_denied"
	EventForceSubmit              = "force_submit"
	EventMessageReceived          = "message_received"
	EventParticipantJoined        = "participant_joined"
	EventParticipantStatusChanged = "participant_status_changed"
	EventPauseRequested           = "pause_requested"
	EventIncidentReported         = "incident_reported"
	EventExamSubmitted            = "exam_submitted"
	EventSessionStateChanged      = "session_state_changed"
	EventSupervisorDisconnected   = "supervisor_disconnected"
)

// Event is the envelope for every outbound notification.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

func NewEvent(eventType string, payload interface{}) Event {
	return Event{Type: eventType, Payload: payload}
}

type ExamStartedPayload struct {
	DurationSeconds int       `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
}

type TimeAddedPayload struct {
	Minutes             int `json:"minutes"`
	NewRemainingSeconds int `json:"new_remaining_seconds"`
}

type ChatToggledPayload struct {
	Enabled bool `json:"enabled"`
}

type PauseDeniedPayload struct {
	Reason string `json:"reason,omitempty"`
}

type ParticipantStatusChangedPayload struct {
	ParticipantID  uuid.UUID `json:"participant_id"`
	LearnerID      uuid.UUID `json:"learner_id"`
	NewStatus      string    `json:"new_status"`
	PreviousStatus string    `json:"previous_status"`
}

type PauseRequestedPayload struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	LearnerID     uuid.UUID `json:"learner_id"`
	Name          string    `json:"name"`
	Reason        string    `json:"reason,omitempty"`
}

type IncidentReportedPayload struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	LearnerID     uuid.UUID `json:"learner_id"`
	Type          string    `json:"incident_type"`
	Description   string    `json:"description,omitempty"`
}

type ExamSubmittedPayload struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	LearnerID     uuid.UUID `json:"learner_id"`
	SubmittedAt   time.Time `json:"submitted_at"`
}
