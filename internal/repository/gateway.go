package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"proctora-backend/internal/models"
)

// Gateway bundles the per-entity repos behind the coordinator's Store
// interface.
type Gateway struct {
	Sessions     *SessionRepo
	Participants *ParticipantRepo
	Incidents    *IncidentRepo
	Messages     *MessageRepo
	ActionLogs   *ActionLogRepo
}

func NewGateway(pool *pgxpool.Pool) *Gateway {
	return &Gateway{
		Sessions:     NewSessionRepo(pool),
		Participants: NewParticipantRepo(pool),
		Incidents:    NewIncidentRepo(pool),
		Messages:     NewMessageRepo(pool),
		ActionLogs:   NewActionLogRepo(pool),
	}
}

func (g *Gateway) CreateSession(ctx context.Context, s *models.Session) error {
	return g.Sessions.Create(ctx, s)
}

func (g *Gateway) UpdateSession(ctx context.Context, s *models.Session) error {
	return g.Sessions.Update(ctx, s)
}

func (g *Gateway) SessionByGroupCode(ctx context.Context, code string) (*models.Session, error) {
	return g.Sessions.GetByGroupCode(ctx, code)
}

func (g *Gateway) GroupCodeExists(ctx context.Context, code string) (bool, error) {
	return g.Sessions.GroupCodeExists(ctx, code)
}

func (g *Gateway) CreateParticipant(ctx context.Context, p *models.Participant) error {
	return g.Participants.Create(ctx, p)
}

func (g *Gateway) UpdateParticipant(ctx context.Context, p *models.Participant) error {
	return g.Participants.Update(ctx, p)
}

func (g *Gateway) ParticipantsBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	return g.Participants.ListBySession(ctx, sessionID)
}

func (g *Gateway) CreateIncident(ctx context.Context, in *models.Incident) error {
	return g.Incidents.Create(ctx, in)
}

func (g *Gateway) CreateMessage(ctx context.Context, m *models.Message) error {
	return g.Messages.Create(ctx, m)
}
