package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"proctora-backend/internal/models"
)

type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

func (r *SessionRepo) Create(ctx context.Context, s *models.Session) error {
	query := `
		INSERT INTO sessions (id, group_code, schedule_id, supervisor_user_id, supervisor_connection_id, status, started_at, ended_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.GroupCode, s.ScheduleID, s.SupervisorUserID, s.SupervisorConnectionID,
		s.Status, s.StartedAt, s.EndedAt, s.CreatedAt,
	)
	return err
}

func (r *SessionRepo) Update(ctx context.Context, s *models.Session) error {
	query := `
		UPDATE sessions
		SET supervisor_connection_id = $1, status = $2, started_at = $3, ended_at = $4
		WHERE id = $5`

	_, err := r.pool.Exec(ctx, query,
		s.SupervisorConnectionID, s.Status, s.StartedAt, s.EndedAt, s.ID,
	)
	return err
}

// GetByGroupCode returns (nil, nil) when no session holds the code.
func (r *SessionRepo) GetByGroupCode(ctx context.Context, code string) (*models.Session, error) {
	s := &models.Session{}
	query := `SELECT id, group_code, schedule_id, supervisor_user_id, supervisor_connection_id, status, started_at, ended_at, created_at
		FROM sessions WHERE group_code = $1`

	err := r.pool.QueryRow(ctx, query, code).Scan(
		&s.ID, &s.GroupCode, &s.ScheduleID, &s.SupervisorUserID, &s.SupervisorConnectionID,
		&s.Status, &s.StartedAt, &s.EndedAt, &s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GroupCodeExists checks every session ever created, active or
// historical; codes are never reissued.
func (r *SessionRepo) GroupCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM sessions WHERE group_code = $1)", code,
	).Scan(&exists)
	return exists, err
}
