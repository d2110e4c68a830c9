package exam

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"proctora-backend/internal/models"
)

// JoinExam admits a learner into a session, or reconciles a returning
// connection with the participant record it left behind. Remaining time
// is never reset on rejoin.
func (c *Coordinator) JoinExam(ctx context.Context, connID, code string, learnerID uuid.UUID, name string) (*models.Participant, error) {
	if learnerID == uuid.Nil {
		return nil, &UnauthorizedError{Message: "Authentication required"}
	}
	state, err := c.session(ctx, code)
	if err != nil {
		return nil, err
	}
	if state.Session.Status == models.SessionEnded {
		return nil, &InvalidStateError{Message: "Session has ended"}
	}

	now := time.Now().UTC()
	p, exists := state.Participant(learnerID)
	rejoined := false

	if !exists {
		p = &models.Participant{
			ID:            uuid.New(),
			SessionID:     state.Session.ID,
			LearnerID:     learnerID,
			Name:          name,
			ConnectionID:  &connID,
			Status:        models.ParticipantConnected,
			LastHeartbeat: &now,
			ChatEnabled:   true,
			CreatedAt:     now,
		}
		if err := c.store.CreateParticipant(ctx, p); err != nil {
			log.Printf("coordinator: failed to persist participant for session %s: %v", code, err)
			return nil, fmt.Errorf("failed to join session")
		}
		state.PutParticipant(p)
	} else {
		rejoined = true
		p.ConnectionID = &connID
		p.LastHeartbeat = &now
		if p.Status == models.ParticipantDisconnected {
			// Mid-exam participants pick up right where they were;
			// everyone else comes back to the lobby.
			if p.PriorStatus == models.ParticipantInExam {
				p.Status = models.ParticipantInExam
			} else {
				p.Status = models.ParticipantConnected
			}
		}
		if err := c.persistParticipant(ctx, p); err != nil {
			return nil, err
		}
	}

	c.registry.Register(connID, ParticipantIdentity(code, learnerID))
	c.notifier.JoinGroup(code, connID)

	c.notifySupervisor(state, models.NewEvent(models.EventParticipantJoined, p))
	c.audit.Record(state.Session.ID, models.ActorParticipant, learnerID, "join_exam", map[string]interface{}{
		"participant_id": p.ID,
		"rejoined":       rejoined,
	})
	return p, nil
}

// RequestPause asks the supervisor for a break. Only valid mid-exam.
func (c *Coordinator) RequestPause(ctx context.Context, code string, learnerID uuid.UUID, reason string) error {
	state, err := c.session(ctx, code)
	if err != nil {
		return err
	}
	p, err := c.participant(state, learnerID)
	if err != nil {
		return err
	}
	if p.Status != models.ParticipantInExam {
		return &InvalidStateError{Message: "Pause can only be requested during the exam"}
	}

	p.Status = models.ParticipantPauseRequested
	if err := c.persistParticipant(ctx, p); err != nil {
		return err
	}

	c.notifySupervisor(state, models.NewEvent(models.EventPauseRequested, models.PauseRequestedPayload{
		ParticipantID: p.ID,
		LearnerID:     p.LearnerID,
		Name:          p.Name,
		Reason:        reason,
	}))
	c.audit.Record(state.Session.ID, models.ActorParticipant, learnerID, "request_pause", map[string]interface{}{
		"reason": reason,
	})
	return nil
}

// ReportIncident appends an incident row capturing the participant's
// current status and alerts the supervisor.
func (c *Coordinator) ReportIncident(ctx context.Context, code string, learnerID uuid.UUID, incidentType, description string) error {
	state, err := c.session(ctx, code)
	if err != nil {
		return err
	}
	p, err := c.participant(state, learnerID)
	if err != nil {
		return err
	}
	if incidentType == "" {
		incidentType = models.IncidentProblem
	}

	incident := c.appendIncident(ctx, p, incidentType, description, p.Status)
	if incident == nil {
		return fmt.Errorf("failed to record incident")
	}

	c.notifySupervisor(state, models.NewEvent(models.EventIncidentReported, models.IncidentReportedPayload{
		ParticipantID: p.ID,
		LearnerID:     p.LearnerID,
		Type:          incidentType,
		Description:   description,
	}))
	c.audit.Record(state.Session.ID, models.ActorParticipant, learnerID, "report_incident", map[string]interface{}{
		"incident_id":   incident.ID,
		"incident_type": incidentType,
	})
	return nil
}

// SubmitExam finishes the attempt. Valid while in the exam or paused.
func (c *Coordinator) SubmitExam(ctx context.Context, code string, learnerID uuid.UUID) error {
	state, err := c.session(ctx, code)
	if err != nil {
		return err
	}
	p, err := c.participant(state, learnerID)
	if err != nil {
		return err
	}
	if p.Status != models.ParticipantInExam && p.Status != models.ParticipantPaused {
		return &InvalidStateError{Message: "Nothing to submit in the current state"}
	}

	now := time.Now().UTC()
	p.Status = models.ParticipantSubmitted
	p.SubmittedAt = &now
	if err := c.persistParticipant(ctx, p); err != nil {
		return err
	}

	c.notifySupervisor(state, models.NewEvent(models.EventExamSubmitted, models.ExamSubmittedPayload{
		ParticipantID: p.ID,
		LearnerID:     p.LearnerID,
		SubmittedAt:   now,
	}))
	c.audit.Record(state.Session.ID, models.ActorParticipant, learnerID, "submit_exam", map[string]interface{}{
		"participant_id": p.ID,
	})
	return nil
}

// SendChatMessage relays a participant message to the supervisor.
// Requires the participant's chat flag to be on.
func (c *Coordinator) SendChatMessage(ctx context.Context, code string, learnerID uuid.UUID, text string) (*models.Message, error) {
	state, err := c.session(ctx, code)
	if err != nil {
		return nil, err
	}
	p, err := c.participant(state, learnerID)
	if err != nil {
		return nil, err
	}
	if !p.ChatEnabled {
		return nil, &ForbiddenError{Message: "Chat is disabled for this participant"}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Fields: map[string]string{"text": "Message text is required"}}
	}

	recipientType := models.ActorSupervisor
	supervisorID := state.Session.SupervisorUserID
	msg := &models.Message{
		ID:            uuid.New(),
		SessionID:     state.Session.ID,
		SenderType:    models.ActorParticipant,
		SenderID:      p.ID,
		RecipientType: &recipientType,
		RecipientID:   &supervisorID,
		Text:          text,
		CreatedAt:     time.Now().UTC(),
	}
	if err := c.store.CreateMessage(ctx, msg); err != nil {
		log.Printf("coordinator: failed to persist chat message for session %s: %v", code, err)
		return nil, fmt.Errorf("failed to persist message")
	}

	c.notifySupervisor(state, models.NewEvent(models.EventMessageReceived, msg))
	c.audit.Record(state.Session.ID, models.ActorParticipant, learnerID, "send_chat_message", map[string]interface{}{
		"message_id": msg.ID,
	})
	return msg, nil
}

// Heartbeat records the client-reported remaining time. The server runs
// no countdown of its own; a report of zero or less while in the exam is
// what expires the participant, exactly once.
func (c *Coordinator) Heartbeat(ctx context.Context, code string, learnerID uuid.UUID, remainingSeconds int) error {
	state, err := c.session(ctx, code)
	if err != nil {
		return err
	}
	p, err := c.participant(state, learnerID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	p.LastHeartbeat = &now
	p.RemainingTimeSeconds = remainingSeconds

	if remainingSeconds <= 0 && p.Status == models.ParticipantInExam {
		prev := p.Status
		p.Status = models.ParticipantTimeExpired
		if err := c.persistParticipant(ctx, p); err != nil {
			return err
		}
		c.notifyParticipant(p, models.NewEvent(models.EventForceSubmit, nil))
		c.notifySupervisor(state, models.NewEvent(models.EventParticipantStatusChanged, models.ParticipantStatusChangedPayload{
			ParticipantID:  p.ID,
			LearnerID:      p.LearnerID,
			NewStatus:      p.Status,
			PreviousStatus: prev,
		}))
		c.audit.Record(state.Session.ID, models.ActorParticipant, learnerID, "time_expired", map[string]interface{}{
			"participant_id": p.ID,
		})
		return nil
	}

	return c.persistParticipant(ctx, p)
}
