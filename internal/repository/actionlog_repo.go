package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"proctora-backend/internal/models"
)

type ActionLogRepo struct {
	pool *pgxpool.Pool
}

func NewActionLogRepo(pool *pgxpool.Pool) *ActionLogRepo {
	return &ActionLogRepo{pool: pool}
}

func (r *ActionLogRepo) Create(ctx context.Context, entry *models.ActionLog) error {
	if len(entry.Details) == 0 {
		entry.Details = json.RawMessage("{}")
	}

	query := `
		INSERT INTO action_logs (id, session_id, actor_type, actor_id, action, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		entry.ID, entry.SessionID, entry.ActorType, entry.ActorID, entry.Action, entry.Details, entry.CreatedAt,
	)
	return err
}

func (r *ActionLogRepo) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.ActionLog, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT id, session_id, actor_type, actor_id, action, details, created_at
		FROM action_logs WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ActionLog
	for rows.Next() {
		var e models.ActionLog
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ActorType, &e.ActorID, &e.Action, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
