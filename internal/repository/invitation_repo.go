package repository

import (
	"context"
	"fmt"

	"github.com/nikhil/saasbase/internal/database"
	teammodels "github.com/nikhil/saasbase/internal/models/teams"
)

type InvitationRepository struct {
	db *database.DB
}

func NewInvitationRepository(db *database.DB) *InvitationRepository {
	return &InvitationRepository{db: db}
}

func (r *InvitationRepository) Create(ctx context.Context, inv teammodels.Invitation) error {
	conn := r.db.Conn(ctx)

	_, err := conn.ExecContext(ctx, `
		INSERT INTO invitations (id, team_id, email, role, invited_by, invited_at, expires_at, token, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.TeamID, inv.Email, inv.Role, inv.InvitedBy, inv.InvitedAt, inv.ExpiresAt, inv.Token, string(inv.Status))
	if err != nil {
		return fmt.Errorf("failed to insert invitation: %w", handleWriteError(err))
	}
	return nil
}

// GetByToken locks the invitation row so concurrent accepts serialize.
func (r *InvitationRepository) GetByToken(ctx context.Context, token string) (*teammodels.Invitation, error) {
	conn := r.db.Conn(ctx)

	var inv teammodels.Invitation
	err := conn.QueryRowContext(ctx, `
		SELECT id, team_id, email, role, invited_by, invited_at, expires_at, token, status
		FROM invitations WHERE token = ? FOR UPDATE`, token).Scan(
		&inv.ID, &inv.TeamID, &inv.Email, &inv.Role, &inv.InvitedBy, &inv.InvitedAt, &inv.ExpiresAt, &inv.Token, &inv.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", HandleNoRowsError(err))
	}
	return &inv, nil
}

// SetStatus moves a pending invitation to a terminal status.
func (r *InvitationRepository) SetStatus(ctx context.Context, invitationID string, status teammodels.InvitationStatus) error {
	conn := r.db.Conn(ctx)

	res, err := conn.ExecContext(ctx, `UPDATE invitations SET status = ? WHERE id = ? AND status = ?`,
		string(status), invitationID, string(teammodels.InvitationPending))
	if err != nil {
		return fmt.Errorf("failed to update invitation status: %w", err)
	}
	return expectAffected(res)
}
