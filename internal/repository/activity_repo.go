package repository

import (
	"context"
	"fmt"

	"github.com/nikhil/saasbase/internal/database"
	"github.com/nikhil/saasbase/internal/models"
)

type ActivityRepository struct {
	db *database.DB
}

func NewActivityRepository(db *database.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Insert appends one activity row. Rows are never updated or deleted.
func (r *ActivityRepository) Insert(ctx context.Context, log models.ActivityLog) error {
	conn := r.db.Conn(ctx)

	_, err := conn.ExecContext(ctx, `
		INSERT INTO activity_logs (id, team_id, user_id, action, ip_address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		log.ID, log.TeamID, log.UserID, string(log.Action), log.IPAddress, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert activity log: %w", err)
	}
	return nil
}
