package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"proctora-backend/internal/models"
)

type IncidentRepo struct {
	pool *pgxpool.Pool
}

func NewIncidentRepo(pool *pgxpool.Pool) *IncidentRepo {
	return &IncidentRepo{pool: pool}
}

// Create appends a row; incidents are never updated or deleted.
func (r *IncidentRepo) Create(ctx context.Context, in *models.Incident) error {
	query := `
		INSERT INTO incidents (id, participant_id, type, description, previous_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		in.ID, in.ParticipantID, in.Type, in.Description, in.PreviousStatus, in.CreatedAt,
	)
	return err
}

func (r *IncidentRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Incident, error) {
	query := `SELECT i.id, i.participant_id, i.type, i.description, i.previous_status, i.created_at
		FROM incidents i
		JOIN participants p ON p.id = i.participant_id
		WHERE p.session_id = $1
		ORDER BY i.created_at`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		var in models.Incident
		if err := rows.Scan(&in.ID, &in.ParticipantID, &in.Type, &in.Description, &in.PreviousStatus, &in.CreatedAt); err != nil {
			return nil, err
		}
		incidents = append(incidents, in)
	}
	return incidents, rows.Err()
}
