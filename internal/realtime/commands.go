package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"proctora-backend/internal/exam"
	"proctora-backend/internal/models"
)

// Inbound command actions.
const (
	ActionCreateSession   = "create_session"
	ActionJoinSupervisor  = "join_supervisor"
	ActionGetSessionState = "get_session_state"
	ActionStartExam       = "start_exam"
	ActionPauseExam       = "pause_exam"
	ActionResumeExam      = "resume_exam"
	ActionEndExam         = "end_exam"
	ActionAddTime         = "add_time"
	ActionSendMessage     = "send_message"
	ActionToggleChat      = "toggle_chat"
	ActionApprovePause    = "approve_pause"
	ActionDenyPause       = "deny_pause"

	ActionJoinExam        = "join_exam"
	ActionRequestPause    = "request_pause"
	ActionReportProblem   = "report_problem"
	ActionReportIncident  = "report_incident"
	ActionSubmitExam      = "submit_exam"
	ActionSendChatMessage = "send_chat_message"
	ActionHeartbeat       = "heartbeat"
)

var errInvalidFrame = &exam.ValidationError{Fields: map[string]string{"frame": "Malformed command frame"}}

var errUnknownAction = &exam.ValidationError{Fields: map[string]string{"action": "Unknown action"}}

// Dispatcher translates command frames into coordinator calls. It is
// deliberately thin: payload decoding and routing only, no rules.
type Dispatcher struct {
	coord *exam.Coordinator
}

func NewDispatcher(coord *exam.Coordinator) *Dispatcher {
	return &Dispatcher{coord: coord}
}

func (d *Dispatcher) HandleDisconnect(ctx context.Context, connID string) {
	d.coord.Disconnect(ctx, connID)
}

func (d *Dispatcher) HandleCommand(ctx context.Context, sender Sender, action string, payload json.RawMessage) (interface{}, error) {
	switch action {
	case ActionCreateSession:
		var req struct {
			ScheduleID uuid.UUID `json:"schedule_id"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		session, err := d.coord.CreateSession(ctx, sender.ConnID, sender.UserID, req.ScheduleID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"group_code": session.GroupCode, "session_id": session.ID}, nil

	case ActionJoinSupervisor:
		var req struct {
			GroupCode string `json:"group_code"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return d.coord.JoinAsSupervisor(ctx, sender.ConnID, req.GroupCode, sender.UserID)

	case ActionGetSessionState:
		var req struct {
			GroupCode string `json:"group_code"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return d.coord.SessionState(ctx, req.GroupCode, sender.UserID)

	case ActionStartExam:
		var req struct {
			GroupCode       string      `json:"group_code"`
			DurationMinutes int         `json:"duration_minutes"`
			LearnerIDs      []uuid.UUID `json:"learner_ids"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		count, err := d.coord.StartExam(ctx, req.GroupCode, sender.UserID, req.DurationMinutes, req.LearnerIDs)
		if err != nil {
			return nil, err
		}
		return map[string]int{"started": count}, nil

	case ActionPauseExam, ActionResumeExam, ActionEndExam:
		var req struct {
			GroupCode string     `json:"group_code"`
			LearnerID *uuid.UUID `json:"learner_id"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		var count int
		var err error
		switch action {
		case ActionPauseExam:
			count, err = d.coord.PauseExam(ctx, req.GroupCode, sender.UserID, req.LearnerID)
		case ActionResumeExam:
			count, err = d.coord.ResumeExam(ctx, req.GroupCode, sender.UserID, req.LearnerID)
		default:
			count, err = d.coord.EndExam(ctx, req.GroupCode, sender.UserID, req.LearnerID)
		}
		if err != nil {
			return nil, err
		}
		return map[string]int{"changed": count}, nil

	case ActionAddTime:
		var req struct {
			GroupCode string     `json:"group_code"`
			Minutes   int        `json:"minutes"`
			LearnerID *uuid.UUID `json:"learner_id"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		count, err := d.coord.AddTime(ctx, req.GroupCode, sender.UserID, req.Minutes, req.LearnerID)
		if err != nil {
			return nil, err
		}
		return map[string]int{"granted": count}, nil

	case ActionSendMessage:
		var req struct {
			GroupCode string     `json:"group_code"`
			Text      string     `json:"text"`
			LearnerID *uuid.UUID `json:"learner_id"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return d.coord.SendMessage(ctx, req.GroupCode, sender.UserID, req.Text, req.LearnerID)

	case ActionToggleChat:
		var req struct {
			GroupCode string    `json:"group_code"`
			LearnerID uuid.UUID `json:"learner_id"`
			Enabled   bool      `json:"enabled"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return nil, d.coord.ToggleChat(ctx, req.GroupCode, sender.UserID, req.LearnerID, req.Enabled)

	case ActionApprovePause:
		var req struct {
			GroupCode string    `json:"group_code"`
			LearnerID uuid.UUID `json:"learner_id"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return nil, d.coord.ApprovePause(ctx, req.GroupCode, sender.UserID, req.LearnerID)

	case ActionDenyPause:
		var req struct {
			GroupCode string    `json:"group_code"`
			LearnerID uuid.UUID `json:"learner_id"`
			Reason    string    `json:"reason"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return nil, d.coord.DenyPause(ctx, req.GroupCode, sender.UserID, req.LearnerID, req.Reason)

	case ActionJoinExam:
		var req struct {
			GroupCode string `json:"group_code"`
			Name      string `json:"name"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return d.coord.JoinExam(ctx, sender.ConnID, req.GroupCode, sender.UserID, req.Name)

	case ActionRequestPause:
		var req struct {
			GroupCode string `json:"group_code"`
			Reason    string `json:"reason"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return nil, d.coord.RequestPause(ctx, req.GroupCode, sender.UserID, req.Reason)

	case ActionReportProblem, ActionReportIncident:
		var req struct {
			GroupCode   string `json:"group_code"`
			Type        string `json:"type"`
			Description string `json:"description"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return nil, d.coord.ReportIncident(ctx, req.GroupCode, sender.UserID, req.Type, req.Description)

	case ActionSubmitExam:
		var req struct {
			GroupCode string `json:"group_code"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return nil, d.coord.SubmitExam(ctx, req.GroupCode, sender.UserID)

	case ActionSendChatMessage:
		var req struct {
			GroupCode string `json:"group_code"`
			Text      string `json:"text"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return d.coord.SendChatMessage(ctx, req.GroupCode, sender.UserID, req.Text)

	case ActionHeartbeat:
		var req struct {
			GroupCode            string `json:"group_code"`
			RemainingTimeSeconds int    `json:"remaining_time_seconds"`
		}
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return nil, d.coord.Heartbeat(ctx, req.GroupCode, sender.UserID, req.RemainingTimeSeconds)
	}

	return nil, errUnknownAction
}

func decode(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return &exam.ValidationError{Fields: map[string]string{"payload": "Malformed payload"}}
	}
	return nil
}

// commandResult is the reply frame for every inbound command.
type commandResult struct {
	Type   string           `json:"type"`
	Action string           `json:"action"`
	OK     bool             `json:"ok"`
	Data   interface{}      `json:"data,omitempty"`
	Error  *models.APIError `json:"error,omitempty"`
}

func (h *Hub) sendResult(connID, action string, data interface{}, err error) {
	result := commandResult{Type: "result", Action: action, OK: err == nil, Data: data}
	if err != nil {
		result.Error = toAPIError(err)
	}

	payload, merr := json.Marshal(result)
	if merr != nil {
		return
	}

	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		c.send(payload)
	}
}

func toAPIError(err error) *models.APIError {
	var validationErr *exam.ValidationError
	var notFoundErr *exam.NotFoundError
	var unauthorizedErr *exam.UnauthorizedError
	var forbiddenErr *exam.ForbiddenError
	var invalidStateErr *exam.InvalidStateError

	switch {
	case errors.As(err, &validationErr):
		return &models.APIError{Code: "VALIDATION_ERROR", Message: "Validation failed", Fields: validationErr.Fields}
	case errors.As(err, &notFoundErr):
		return &models.APIError{Code: "NOT_FOUND", Message: notFoundErr.Message}
	case errors.As(err, &unauthorizedErr):
		return &models.APIError{Code: "UNAUTHORIZED", Message: unauthorizedErr.Message}
	case errors.As(err, &forbiddenErr):
		return &models.APIError{Code: "FORBIDDEN", Message: forbiddenErr.Message}
	case errors.As(err, &invalidStateErr):
		return &models.APIError{Code: "INVALID_STATE", Message: invalidStateErr.Message}
	default:
		return &models.APIError{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}
	}
}
