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

// CreateSession persists a new session, seeds the cache and registers the
// creating connection as supervisor. connID may be empty when the session
// is created over HTTP before the dashboard opens its socket.
func (c *Coordinator) CreateSession(ctx context.Context, connID string, supervisorUserID, scheduleID uuid.UUID) (*models.Session, error) {
	if supervisorUserID == uuid.Nil {
		return nil, &UnauthorizedError{Message: "Authentication required"}
	}
	if scheduleID == uuid.Nil {
		return nil, &ValidationError{Fields: map[string]string{"schedule_id": "Schedule ID is required"}}
	}

	code, err := c.generateGroupCode(ctx)
	if err != nil {
		log.Printf("coordinator: group code generation failed: %v", err)
		return nil, fmt.Errorf("failed to generate group code")
	}

	session := &models.Session{
		ID:               uuid.New(),
		GroupCode:        code,
		ScheduleID:       scheduleID,
		SupervisorUserID: supervisorUserID,
		Status:           models.SessionPending,
		CreatedAt:        time.Now().UTC(),
	}
	if connID != "" {
		session.SupervisorConnectionID = &connID
	}

	if err := c.store.CreateSession(ctx, session); err != nil {
		log.Printf("coordinator: failed to persist session %s: %v", code, err)
		return nil, fmt.Errorf("failed to create session")
	}

	c.cache.Put(NewSessionState(session))
	if connID != "" {
		c.registry.Register(connID, SupervisorIdentity(code))
		c.notifier.JoinGroup(code, connID)
	}

	c.audit.Record(session.ID, models.ActorSupervisor, supervisorUserID, "create_session", map[string]interface{}{
		"group_code":  code,
		"schedule_id": scheduleID,
	})
	return session, nil
}

// JoinAsSupervisor binds the calling connection as the session's live
// supervisor connection. A previous supervisor connection is not closed;
// it simply stops receiving supervisor-addressed events.
func (c *Coordinator) JoinAsSupervisor(ctx context.Context, connID, code string, userID uuid.UUID) (*models.SessionSnapshot, error) {
	state, err := c.authorizeSupervisor(ctx, code, userID)
	if err != nil {
		return nil, err
	}

	state.Session.SupervisorConnectionID = &connID
	if err := c.persistSession(ctx, state.Session); err != nil {
		return nil, err
	}

	c.registry.Register(connID, SupervisorIdentity(code))
	c.notifier.JoinGroup(code, connID)

	c.audit.Record(state.Session.ID, models.ActorSupervisor, userID, "join_as_supervisor", map[string]interface{}{
		"connection_id": connID,
	})
	return state.Snapshot(), nil
}

// SessionState returns a read-only snapshot of the session and all of
// its participants.
func (c *Coordinator) SessionState(ctx context.Context, code string, userID uuid.UUID) (*models.SessionSnapshot, error) {
	state, err := c.authorizeSupervisor(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	return state.Snapshot(), nil
}

// StartExam moves eligible participants into the exam. The first call
// also activates the session itself. learnerIDs narrows the selection;
// nil means everyone in pending or connected.
func (c *Coordinator) StartExam(ctx context.Context, code string, userID uuid.UUID, durationMinutes int, learnerIDs []uuid.UUID) (int, error) {
	state, err := c.authorizeSupervisor(ctx, code, userID)
	if err != nil {
		return 0, err
	}
	if durationMinutes <= 0 {
		return 0, &ValidationError{Fields: map[string]string{"duration_minutes": "Duration must be positive"}}
	}

	now := time.Now().UTC()
	if state.Session.Status == models.SessionPending {
		state.Session.Status = models.SessionActive
		state.Session.StartedAt = &now
		if err := c.persistSession(ctx, state.Session); err != nil {
			return 0, err
		}
	}

	selected := selectLearners(learnerIDs)
	count := 0
	var firstErr error
	for _, p := range state.Participants() {
		if !selected(p.LearnerID) {
			continue
		}
		if p.Status != models.ParticipantPending && p.Status != models.ParticipantConnected {
			continue
		}
		started := now
		p.Status = models.ParticipantInExam
		p.StartedAt = &started
		p.RemainingTimeSeconds = durationMinutes*60 + p.AdditionalTimeMinutes*60
		if err := c.persistParticipant(ctx, p); err != nil && firstErr == nil {
			firstErr = err
		}
		c.notifyParticipant(p, models.NewEvent(models.EventExamStarted, models.ExamStartedPayload{
			DurationSeconds: p.RemainingTimeSeconds,
			StartedAt:       started,
		}))
		count++
	}

	c.broadcastSnapshot(state)
	c.audit.Record(state.Session.ID, models.ActorSupervisor, userID, "start_exam", map[string]interface{}{
		"duration_minutes": durationMinutes,
		"learner_ids":      learnerIDs,
		"started":          count,
	})
	return count, firstErr
}

// PauseExam pauses matching in-exam participants. With no learner filter
// a successful pause also pauses the session.
func (c *Coordinator) PauseExam(ctx context.Context, code string, userID uuid.UUID, learnerID *uuid.UUID) (int, error) {
	return c.shiftParticipants(ctx, code, userID, learnerID, shift{
		action:      "pause_exam",
		from:        []string{models.ParticipantInExam},
		to:          models.ParticipantPaused,
		event:       models.EventExamPaused,
		sessionFrom: models.SessionActive,
		sessionTo:   models.SessionPaused,
	})
}

// ResumeExam is the inverse of PauseExam.
func (c *Coordinator) ResumeExam(ctx context.Context, code string, userID uuid.UUID, learnerID *uuid.UUID) (int, error) {
	return c.shiftParticipants(ctx, code, userID, learnerID, shift{
		action:      "resume_exam",
		from:        []string{models.ParticipantPaused},
		to:          models.ParticipantInExam,
		event:       models.EventExamResumed,
		sessionFrom: models.SessionPaused,
		sessionTo:   models.SessionActive,
	})
}

type shift struct {
	action      string
	from        []string
	to          string
	event       string
	sessionFrom string
	sessionTo   string
}

func (c *Coordinator) shiftParticipants(ctx context.Context, code string, userID uuid.UUID, learnerID *uuid.UUID, sh shift) (int, error) {
	state, err := c.authorizeSupervisor(ctx, code, userID)
	if err != nil {
		return 0, err
	}

	count := 0
	var firstErr error
	for _, p := range state.Participants() {
		if learnerID != nil && p.LearnerID != *learnerID {
			continue
		}
		if !statusIn(p.Status, sh.from) {
			continue
		}
		p.Status = sh.to
		if err := c.persistParticipant(ctx, p); err != nil && firstErr == nil {
			firstErr = err
		}
		c.notifyParticipant(p, models.NewEvent(sh.event, nil))
		count++
	}

	if learnerID == nil && count > 0 && state.Session.Status == sh.sessionFrom {
		state.Session.Status = sh.sessionTo
		if err := c.persistSession(ctx, state.Session); err != nil && firstErr == nil {
			firstErr = err
		}
		c.broadcastSnapshot(state)
	}

	c.audit.Record(state.Session.ID, models.ActorSupervisor, userID, sh.action, map[string]interface{}{
		"learner_id": learnerID,
		"changed":    count,
	})
	return count, firstErr
}

// EndExam moves matching non-terminal participants to ended. Without a
// learner filter the whole session ends.
func (c *Coordinator) EndExam(ctx context.Context, code string, userID uuid.UUID, learnerID *uuid.UUID) (int, error) {
	state, err := c.authorizeSupervisor(ctx, code, userID)
	if err != nil {
		return 0, err
	}

	count := 0
	var firstErr error
	for _, p := range state.Participants() {
		if learnerID != nil && p.LearnerID != *learnerID {
			continue
		}
		if models.TerminalParticipantStatus(p.Status) {
			continue
		}
		p.Status = models.ParticipantEnded
		if err := c.persistParticipant(ctx, p); err != nil && firstErr == nil {
			firstErr = err
		}
		c.notifyParticipant(p, models.NewEvent(models.EventExamEnded, nil))
		count++
	}

	if learnerID == nil && state.Session.Status != models.SessionEnded {
		now := time.Now().UTC()
		state.Session.Status = models.SessionEnded
		state.Session.EndedAt = &now
		if err := c.persistSession(ctx, state.Session); err != nil && firstErr == nil {
			firstErr = err
		}
		c.broadcastSnapshot(state)
	}

	c.audit.Record(state.Session.ID, models.ActorSupervisor, userID, "end_exam", map[string]interface{}{
		"learner_id": learnerID,
		"ended":      count,
	})
	return count, firstErr
}

// AddTime grants extra minutes to participants currently in the exam or
// paused. The grant accumulates in additionalTimeMinutes so later
// StartExam calls include it.
func (c *Coordinator) AddTime(ctx context.Context, code string, userID uuid.UUID, minutes int, learnerID *uuid.UUID) (int, error) {
	state, err := c.authorizeSupervisor(ctx, code, userID)
	if err != nil {
		return 0, err
	}
	if minutes <= 0 {
		return 0, &ValidationError{Fields: map[string]string{"minutes": "Minutes must be positive"}}
	}

	count := 0
	var firstErr error
	for _, p := range state.Participants() {
		if learnerID != nil && p.LearnerID != *learnerID {
			continue
		}
		if p.Status != models.ParticipantInExam && p.Status != models.ParticipantPaused {
			continue
		}
		p.RemainingTimeSeconds += minutes * 60
		p.AdditionalTimeMinutes += minutes
		if err := c.persistParticipant(ctx, p); err != nil && firstErr == nil {
			firstErr = err
		}
		c.notifyParticipant(p, models.NewEvent(models.EventTimeAdded, models.TimeAddedPayload{
			Minutes:             minutes,
			NewRemainingSeconds: p.RemainingTimeSeconds,
		}))
		count++
	}

	c.audit.Record(state.Session.ID, models.ActorSupervisor, userID, "add_time", map[string]interface{}{
		"minutes":    minutes,
		"learner_id": learnerID,
		"granted":    count,
	})
	return count, firstErr
}

// SendMessage persists a supervisor message and delivers it to one
// participant or the whole session group.
func (c *Coordinator) SendMessage(ctx context.Context, code string, userID uuid.UUID, text string, learnerID *uuid.UUID) (*models.Message, error) {
	state, err := c.authorizeSupervisor(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, &ValidationError{Fields: map[string]string{"text": "Message text is required"}}
	}

	msg := &models.Message{
		ID:         uuid.New(),
		SessionID:  state.Session.ID,
		SenderType: models.ActorSupervisor,
		SenderID:   userID,
		Text:       text,
		CreatedAt:  time.Now().UTC(),
	}

	var target *models.Participant
	if learnerID != nil {
		target, err = c.participant(state, *learnerID)
		if err != nil {
			return nil, err
		}
		recipientType := models.ActorParticipant
		msg.RecipientType = &recipientType
		msg.RecipientID = &target.ID
	}

	if err := c.store.CreateMessage(ctx, msg); err != nil {
		log.Printf("coordinator: failed to persist message for session %s: %v", code, err)
		return nil, fmt.Errorf("failed to persist message")
	}

	ev := models.NewEvent(models.EventMessageReceived, msg)
	if target != nil {
		c.notifyParticipant(target, ev)
	} else {
		c.notifier.SendToSession(code, ev)
	}

	c.audit.Record(state.Session.ID, models.ActorSupervisor, userID, "send_message", map[string]interface{}{
		"message_id": msg.ID,
		"learner_id": learnerID,
	})
	return msg, nil
}

// ToggleChat flips a participant's chat flag. The flag is not persisted;
// a restart brings everyone back with chat enabled.
func (c *Coordinator) ToggleChat(ctx context.Context, code string, userID, learnerID uuid.UUID, enabled bool) error {
	state, err := c.authorizeSupervisor(ctx, code, userID)
	if err != nil {
		return err
	}
	p, err := c.participant(state, learnerID)
	if err != nil {
		return err
	}

	p.ChatEnabled = enabled
	c.notifyParticipant(p, models.NewEvent(models.EventChatToggled, models.ChatToggledPayload{Enabled: enabled}))

	c.audit.Record(state.Session.ID, models.ActorSupervisor, userID, "toggle_chat", map[string]interface{}{
		"learner_id": learnerID,
		"enabled":    enabled,
	})
	return nil
}

// ApprovePause grants a pending pause request.
func (c *Coordinator) ApprovePause(ctx context.Context, code string, userID, learnerID uuid.UUID) error {
	return c.resolvePauseRequest(ctx, code, userID, learnerID, true, "")
}

// DenyPause rejects a pending pause request; the participant goes back
// into the exam.
func (c *Coordinator) DenyPause(ctx context.Context, code string, userID, learnerID uuid.UUID, reason string) error {
	return c.resolvePauseRequest(ctx, code, userID, learnerID, false, reason)
}

func (c *Coordinator) resolvePauseRequest(ctx context.Context, code string, userID, learnerID uuid.UUID, approved bool, reason string) error {
	state, err := c.authorizeSupervisor(ctx, code, userID)
	if err != nil {
		return err
	}
	p, err := c.participant(state, learnerID)
	if err != nil {
		return err
	}
	if p.Status != models.ParticipantPauseRequested {
		return &InvalidStateError{Message: "Participant has no pending pause request"}
	}

	action := "deny_pause"
	if approved {
		p.Status = models.ParticipantPaused
		action = "approve_pause"
	} else {
		p.Status = models.ParticipantInExam
	}
	if err := c.persistParticipant(ctx, p); err != nil {
		return err
	}

	if approved {
		c.notifyParticipant(p, models.NewEvent(models.EventPauseApproved, nil))
	} else {
		c.notifyParticipant(p, models.NewEvent(models.EventPauseDenied, models.PauseDeniedPayload{Reason: reason}))
	}

	c.audit.Record(state.Session.ID, models.ActorSupervisor, userID, action, map[string]interface{}{
		"learner_id": learnerID,
		"reason":     reason,
	})
	return nil
}

func selectLearners(learnerIDs []uuid.UUID) func(uuid.UUID) bool {
	if learnerIDs == nil {
		return func(uuid.UUID) bool { return true }
	}
	set := make(map[uuid.UUID]struct{}, len(learnerIDs))
	for _, id := range learnerIDs {
		set[id] = struct{}{}
	}
	return func(id uuid.UUID) bool {
		_, ok := set[id]
		return ok
	}
}

func statusIn(status string, set []string) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
