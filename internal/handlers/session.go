package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"proctora-backend/internal/exam"
	"proctora-backend/internal/middleware"
	"proctora-backend/internal/models"
	"proctora-backend/internal/repository"
)

// SessionHandler is the REST read surface for the supervisor dashboard.
// All live mutation runs over the websocket; this covers creation before
// the socket opens and the history views.
type SessionHandler struct {
	coord      *exam.Coordinator
	messages   *repository.MessageRepo
	incidents  *repository.IncidentRepo
	actionLogs *repository.ActionLogRepo
}

func NewSessionHandler(coord *exam.Coordinator, messages *repository.MessageRepo, incidents *repository.IncidentRepo, actionLogs *repository.ActionLogRepo) *SessionHandler {
	return &SessionHandler{
		coord:      coord,
		messages:   messages,
		incidents:  incidents,
		actionLogs: actionLogs,
	}
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req struct {
		ScheduleID uuid.UUID `json:"schedule_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	session, err := h.coord.CreateSession(r.Context(), "", userID, req.ScheduleID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": session.ID,
		"group_code": session.GroupCode,
	})
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	code := chi.URLParam(r, "code")

	snapshot, err := h.coord.SessionState(r.Context(), code, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"session": snapshot})
}

// ListMessages returns the session's message thread and marks the
// supervisor-addressed ones as read.
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	code := chi.URLParam(r, "code")

	snapshot, err := h.coord.SessionState(r.Context(), code, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	messages, err := h.messages.ListBySession(r.Context(), snapshot.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load messages", r))
		return
	}
	if err := h.messages.MarkRead(r.Context(), snapshot.ID); err != nil {
		// Read-marking is best effort; the thread itself still loads.
		log.Printf("handlers: failed to mark messages read for session %s: %v", snapshot.ID, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (h *SessionHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	code := chi.URLParam(r, "code")

	snapshot, err := h.coord.SessionState(r.Context(), code, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	incidents, err := h.incidents.ListBySession(r.Context(), snapshot.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load incidents", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"incidents": incidents})
}

func (h *SessionHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	code := chi.URLParam(r, "code")

	snapshot, err := h.coord.SessionState(r.Context(), code, userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	entries, err := h.actionLogs.ListBySession(r.Context(), snapshot.ID, 100)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load action log", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"actions": entries})
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(code, message string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func errorRespWithFields(code, message string, fields map[string]string, r *http.Request) models.ErrorResponse {
	return models.ErrorResponse{
		Error: models.APIError{
			Code:      code,
			Message:   message,
			Fields:    fields,
			RequestID: r.Header.Get("X-Request-ID"),
		},
	}
}

func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *exam.ValidationError
	var notFoundErr *exam.NotFoundError
	var unauthorizedErr *exam.UnauthorizedError
	var forbiddenErr *exam.ForbiddenError
	var invalidStateErr *exam.InvalidStateError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", validationErr.Fields, r))
	case errors.As(err, &notFoundErr):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", notFoundErr.Message, r))
	case errors.As(err, &unauthorizedErr):
		writeJSON(w, http.StatusUnauthorized, errorResp("UNAUTHORIZED", unauthorizedErr.Message, r))
	case errors.As(err, &forbiddenErr):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", forbiddenErr.Message, r))
	case errors.As(err, &invalidStateErr):
		writeJSON(w, http.StatusConflict, errorResp("INVALID_STATE", invalidStateErr.Message, r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
	}
}
