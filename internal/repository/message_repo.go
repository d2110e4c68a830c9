package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"proctora-backend/internal/models"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Create(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (id, session_id, sender_type, sender_id, recipient_type, recipient_id, text, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.SessionID, m.SenderType, m.SenderID, m.RecipientType, m.RecipientID,
		m.Text, m.IsRead, m.CreatedAt,
	)
	return err
}

func (r *MessageRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Message, error) {
	query := `SELECT id, session_id, sender_type, sender_id, recipient_type, recipient_id, text, is_read, created_at
		FROM messages WHERE session_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(
			&m.ID, &m.SessionID, &m.SenderType, &m.SenderID, &m.RecipientType, &m.RecipientID,
			&m.Text, &m.IsRead, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkRead flags every supervisor-addressed message in the session as
// read. Called when the supervisor dashboard fetches the thread.
func (r *MessageRepo) MarkRead(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE messages
		SET is_read = TRUE
		WHERE session_id = $1
		  AND recipient_type = $2
		  AND is_read = FALSE
	`, sessionID, models.ActorSupervisor)
	return err
}
