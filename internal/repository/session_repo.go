package repository

import (
	"context"
	"fmt"

	"github.com/nikhil/saasbase/internal/database"
	"github.com/nikhil/saasbase/internal/models"
)

type SessionRepository struct {
	db *database.DB
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s models.Session) error {
	conn := r.db.Conn(ctx)

	_, err := conn.ExecContext(ctx, `INSERT INTO sessions (session_token, user_id, expires) VALUES (?, ?, ?)`,
		s.Token, s.UserID, s.Expires)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, token string) (*models.Session, error) {
	conn := r.db.Conn(ctx)

	var s models.Session
	err := conn.QueryRowContext(ctx, `SELECT session_token, user_id, expires FROM sessions WHERE session_token = ?`, token).
		Scan(&s.Token, &s.UserID, &s.Expires)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", HandleNoRowsError(err))
	}
	return &s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	conn := r.db.Conn(ctx)

	if _, err := conn.ExecContext(ctx, `DELETE FROM sessions WHERE session_token = ?`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteForUser(ctx context.Context, userID string) error {
	conn := r.db.Conn(ctx)

	if _, err := conn.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}
