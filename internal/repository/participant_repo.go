package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"proctora-backend/internal/models"
)

type ParticipantRepo struct {
	pool *pgxpool.Pool
}

func NewParticipantRepo(pool *pgxpool.Pool) *ParticipantRepo {
	return &ParticipantRepo{pool: pool}
}

func (r *ParticipantRepo) Create(ctx context.Context, p *models.Participant) error {
	query := `
		INSERT INTO participants (id, session_id, learner_id, name, connection_id, status, prior_status,
			remaining_time_seconds, additional_time_minutes, started_at, submitted_at, last_heartbeat, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.SessionID, p.LearnerID, p.Name, p.ConnectionID, p.Status, p.PriorStatus,
		p.RemainingTimeSeconds, p.AdditionalTimeMinutes, p.StartedAt, p.SubmittedAt, p.LastHeartbeat, p.CreatedAt,
	)
	return err
}

// Update writes every mutable field. chat_enabled has no column on
// purpose; the flag lives in memory only.
func (r *ParticipantRepo) Update(ctx context.Context, p *models.Participant) error {
	query := `
		UPDATE participants
		SET connection_id = $1, status = $2, prior_status = $3, remaining_time_seconds = $4,
			additional_time_minutes = $5, started_at = $6, submitted_at = $7, last_heartbeat = $8
		WHERE id = $9`

	_, err := r.pool.Exec(ctx, query,
		p.ConnectionID, p.Status, p.PriorStatus, p.RemainingTimeSeconds,
		p.AdditionalTimeMinutes, p.StartedAt, p.SubmittedAt, p.LastHeartbeat, p.ID,
	)
	return err
}

func (r *ParticipantRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	query := `SELECT id, session_id, learner_id, name, connection_id, status, prior_status,
			remaining_time_seconds, additional_time_minutes, started_at, submitted_at, last_heartbeat, created_at
		FROM participants WHERE session_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var p models.Participant
		if err := rows.Scan(
			&p.ID, &p.SessionID, &p.LearnerID, &p.Name, &p.ConnectionID, &p.Status, &p.PriorStatus,
			&p.RemainingTimeSeconds, &p.AdditionalTimeMinutes, &p.StartedAt, &p.SubmittedAt, &p.LastHeartbeat, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}
