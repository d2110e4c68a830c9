package exam

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"proctora-backend/internal/models"
)

// Store is the persistence gateway the coordinator writes through. The
// coordinator only inserts rows or updates the mutable session and
// participant records; nothing is ever deleted.
type Store interface {
	CreateSession(ctx context.Context, s *models.Session) error
	UpdateSession(ctx context.Context, s *models.Session) error
	SessionByGroupCode(ctx context.Context, code string) (*models.Session, error)
	GroupCodeExists(ctx context.Context, code string) (bool, error)
	CreateParticipant(ctx context.Context, p *models.Participant) error
	UpdateParticipant(ctx context.Context, p *models.Participant) error
	ParticipantsBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
	CreateIncident(ctx context.Context, in *models.Incident) error
	CreateMessage(ctx context.Context, m *models.Message) error
}

// Notifier delivers events to connections. Sends are fire-and-forget:
// the coordinator never waits on them and a lost send does not fail the
// operation.
type Notifier interface {
	SendToConnection(connID string, ev models.Event)
	SendToSession(groupCode string, ev models.Event)
	JoinGroup(groupCode, connID string)
	LeaveGroup(connID string)
}

// Auditor records action-log entries. Implementations queue the write
// off the hot path.
type Auditor interface {
	Record(sessionID uuid.UUID, actorType string, actorID uuid.UUID, action string, details interface{})
}

// Coordinator owns all session and participant business rules. Every
// inbound command, heartbeat and disconnect runs through here; there is
// no per-session serialization, concurrent operations on the same
// participant are last-write-wins.
type Coordinator struct {
	cache    *Cache
	registry *Registry
	store    Store
	notifier Notifier
	audit    Auditor
}

func NewCoordinator(cache *Cache, registry *Registry, store Store, notifier Notifier, audit Auditor) *Coordinator {
	return &Coordinator{
		cache:    cache,
		registry: registry,
		store:    store,
		notifier: notifier,
		audit:    audit,
	}
}

func (c *Coordinator) Registry() *Registry { return c.registry }

// session resolves a group code through the cache, hydrating on first
// touch.
func (c *Coordinator) session(ctx context.Context, code string) (*SessionState, error) {
	state, err := c.cache.Get(ctx, code)
	if err != nil {
		log.Printf("coordinator: session lookup failed for %s: %v", code, err)
		return nil, fmt.Errorf("session lookup failed")
	}
	if state == nil {
		return nil, &NotFoundError{Message: "Session not found"}
	}
	return state, nil
}

// authorizeSupervisor runs the checks every supervisor operation needs:
// authenticated actor, session exists, actor is the recorded supervisor.
func (c *Coordinator) authorizeSupervisor(ctx context.Context, code string, userID uuid.UUID) (*SessionState, error) {
	if userID == uuid.Nil {
		return nil, &UnauthorizedError{Message: "Authentication required"}
	}
	state, err := c.session(ctx, code)
	if err != nil {
		return nil, err
	}
	if state.Session.SupervisorUserID != userID {
		return nil, &ForbiddenError{Message: "Not the supervisor of this session"}
	}
	return state, nil
}

func (c *Coordinator) participant(state *SessionState, learnerID uuid.UUID) (*models.Participant, error) {
	p, ok := state.Participant(learnerID)
	if !ok {
		return nil, &NotFoundError{Message: "Participant not found"}
	}
	return p, nil
}

// persistParticipant writes the mutated record through. On failure the
// cache keeps the mutated state; live-session availability wins over
// strict atomicity.
func (c *Coordinator) persistParticipant(ctx context.Context, p *models.Participant) error {
	if err := c.store.UpdateParticipant(ctx, p); err != nil {
		log.Printf("coordinator: failed to persist participant %s: %v", p.ID, err)
		return fmt.Errorf("failed to persist participant state")
	}
	return nil
}

func (c *Coordinator) persistSession(ctx context.Context, s *models.Session) error {
	if err := c.store.UpdateSession(ctx, s); err != nil {
		log.Printf("coordinator: failed to persist session %s: %v", s.GroupCode, err)
		return fmt.Errorf("failed to persist session state")
	}
	return nil
}

func (c *Coordinator) notifySupervisor(state *SessionState, ev models.Event) {
	connID := state.Session.SupervisorConnectionID
	if connID != nil && *connID != "" {
		c.notifier.SendToConnection(*connID, ev)
	}
}

func (c *Coordinator) notifyParticipant(p *models.Participant, ev models.Event) {
	if p.ConnectionID != nil && *p.ConnectionID != "" {
		c.notifier.SendToConnection(*p.ConnectionID, ev)
	}
}

func (c *Coordinator) broadcastSnapshot(state *SessionState) {
	c.notifier.SendToSession(state.Session.GroupCode, models.NewEvent(models.EventSessionStateChanged, state.Snapshot()))
}

// Disconnect resolves a lost connection to the identity behind it. A
// participant drops to disconnected with an incident row; a supervisor
// loss only clears the live connection, the session keeps running.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) {
	ident, ok := c.registry.Remove(connID)
	c.notifier.LeaveGroup(connID)
	if !ok {
		return
	}

	state, err := c.cache.Get(ctx, ident.GroupCode)
	if err != nil || state == nil {
		return
	}

	switch ident.Kind {
	case IdentitySupervisor:
		cur := state.Session.SupervisorConnectionID
		if cur == nil || *cur != connID {
			// A newer supervisor connection already took over.
			return
		}
		state.Session.SupervisorConnectionID = nil
		if err := c.persistSession(ctx, state.Session); err != nil {
			log.Printf("coordinator: disconnect persist failed for session %s", ident.GroupCode)
		}
		c.notifier.SendToSession(ident.GroupCode, models.NewEvent(models.EventSupervisorDisconnected, nil))
		c.audit.Record(state.Session.ID, models.ActorSupervisor, state.Session.SupervisorUserID, "supervisor_disconnected", map[string]interface{}{
			"connection_id": connID,
		})

	case IdentityParticipant:
		p, ok := state.Participant(ident.LearnerID)
		if !ok {
			return
		}
		if p.ConnectionID != nil && *p.ConnectionID != connID {
			// Already reconnected on another socket.
			return
		}
		prev := p.Status
		p.ConnectionID = nil
		if !models.TerminalParticipantStatus(prev) && prev != models.ParticipantDisconnected {
			p.PriorStatus = prev
			p.Status = models.ParticipantDisconnected
			if err := c.persistParticipant(ctx, p); err == nil {
				c.appendIncident(ctx, p, models.IncidentDisconnect, "connection lost", prev)
			}
			c.notifySupervisor(state, models.NewEvent(models.EventParticipantStatusChanged, models.ParticipantStatusChangedPayload{
				ParticipantID:  p.ID,
				LearnerID:      p.LearnerID,
				NewStatus:      p.Status,
				PreviousStatus: prev,
			}))
			c.audit.Record(state.Session.ID, models.ActorParticipant, p.LearnerID, "participant_disconnected", map[string]interface{}{
				"previous_status": prev,
			})
		} else {
			// Terminal participants keep their status; only the live
			// connection handle goes away.
			_ = c.persistParticipant(ctx, p)
		}
	}
}

func (c *Coordinator) appendIncident(ctx context.Context, p *models.Participant, incidentType, description, previousStatus string) *models.Incident {
	incident := &models.Incident{
		ID:             uuid.New(),
		ParticipantID:  p.ID,
		Type:           incidentType,
		Description:    description,
		PreviousStatus: previousStatus,
		CreatedAt:      time.Now().UTC(),
	}
	if err := c.store.CreateIncident(ctx, incident); err != nil {
		log.Printf("coordinator: failed to persist incident for participant %s: %v", p.ID, err)
		return nil
	}
	return incident
}
