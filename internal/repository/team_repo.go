package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nikhil/saasbase/internal/database"
	"github.com/nikhil/saasbase/internal/models"
	teammodels "github.com/nikhil/saasbase/internal/models/teams"
	usermodels "github.com/nikhil/saasbase/internal/models/users"
)

const (
	teamColumns = `t.id, t.name, t.created_at, t.updated_at, t.stripe_customer_id, t.stripe_subscription_id,
		t.stripe_product_id, t.plan_name, t.subscription_status`
	memberColumns = `tm.id, tm.user_id, tm.team_id, tm.role, tm.joined_at`

	// ActivityLogLimit caps GetActivityLogs.
	ActivityLogLimit = 50
)

type TeamRepository struct {
	db *database.DB
}

func NewTeamRepository(db *database.DB) *TeamRepository {
	return &TeamRepository{db: db}
}

func scanTeam(row rowScanner, t *teammodels.Team) error {
	return row.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt, &t.StripeCustomerID, &t.StripeSubscriptionID,
		&t.StripeProductID, &t.PlanName, &t.SubscriptionStatus)
}

func scanMember(row rowScanner, m *teammodels.TeamMember) error {
	return row.Scan(&m.ID, &m.UserID, &m.TeamID, &m.Role, &m.JoinedAt)
}

func (r *TeamRepository) CreateTeam(ctx context.Context, team teammodels.Team) error {
	conn := r.db.Conn(ctx)

	_, err := conn.ExecContext(ctx, `INSERT INTO teams (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		team.ID, team.Name, team.CreatedAt, team.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert team: %w", handleWriteError(err))
	}
	return nil
}

// AddMember inserts a membership. A user already in any team yields
// ErrDuplicate through the unique key on team_members.user_id.
func (r *TeamRepository) AddMember(ctx context.Context, member teammodels.TeamMember) error {
	conn := r.db.Conn(ctx)

	_, err := conn.ExecContext(ctx, `INSERT INTO team_members (id, user_id, team_id, role, joined_at) VALUES (?, ?, ?, ?, ?)`,
		member.ID, member.UserID, member.TeamID, member.Role, member.JoinedAt)
	if err != nil {
		return fmt.Errorf("failed to add team member: %w", handleWriteError(err))
	}
	return nil
}

func (r *TeamRepository) GetMember(ctx context.Context, memberID string) (*teammodels.TeamMember, error) {
	conn := r.db.Conn(ctx)

	var member teammodels.TeamMember
	row := conn.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM team_members tm WHERE tm.id = ?`, memberID)
	if err := scanMember(row, &member); err != nil {
		return nil, fmt.Errorf("failed to get team member: %w", HandleNoRowsError(err))
	}
	return &member, nil
}

func (r *TeamRepository) GetMemberByUserID(ctx context.Context, userID string) (*teammodels.TeamMember, error) {
	conn := r.db.Conn(ctx)

	var member teammodels.TeamMember
	row := conn.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM team_members tm WHERE tm.user_id = ?`, userID)
	if err := scanMember(row, &member); err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", HandleNoRowsError(err))
	}
	return &member, nil
}

func (r *TeamRepository) UpdateMemberRole(ctx context.Context, memberID, role string) error {
	conn := r.db.Conn(ctx)

	res, err := conn.ExecContext(ctx, `UPDATE team_members SET role = ? WHERE id = ?`, role, memberID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return expectAffected(res)
}

func (r *TeamRepository) RemoveMember(ctx context.Context, memberID string) error {
	conn := r.db.Conn(ctx)

	res, err := conn.ExecContext(ctx, `DELETE FROM team_members WHERE id = ?`, memberID)
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	return expectAffected(res)
}

// RemoveMemberByUserID deletes the user's membership if there is one.
func (r *TeamRepository) RemoveMemberByUserID(ctx context.Context, userID string) error {
	conn := r.db.Conn(ctx)

	if _, err := conn.ExecContext(ctx, `DELETE FROM team_members WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to remove membership: %w", err)
	}
	return nil
}

// GetUserWithTeam resolves a user with its membership and team. A user
// without a team still resolves, with Team and Member nil.
func (r *TeamRepository) GetUserWithTeam(ctx context.Context, userID string) (*teammodels.UserWithTeam, error) {
	conn := r.db.Conn(ctx)

	query := `
		SELECT ` + userColumns + `,
			t.id, t.name, t.created_at, t.updated_at, t.stripe_customer_id, t.stripe_subscription_id,
			t.stripe_product_id, t.plan_name, t.subscription_status,
			tm.id, tm.user_id, tm.team_id, tm.role, tm.joined_at
		FROM users u
		LEFT JOIN team_members tm ON tm.user_id = u.id
		LEFT JOIN teams t ON t.id = tm.team_id
		WHERE u.id = ?
		LIMIT 1`

	var result teammodels.UserWithTeam
	u := &result.User

	var teamID, teamName, memberID, memberUserID, memberTeamID, role sql.NullString
	var teamCreated, teamUpdated, memberJoined sql.NullTime
	var customerID, subscriptionID, productID, planName, subscriptionStatus *string
	err := conn.QueryRowContext(ctx, query, userID).Scan(
		&u.ID, &u.Email, &u.Name, &u.Image, &u.EmailVerified, &u.Role, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
		&teamID, &teamName, &teamCreated, &teamUpdated, &customerID, &subscriptionID,
		&productID, &planName, &subscriptionStatus,
		&memberID, &memberUserID, &memberTeamID, &role, &memberJoined,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get user with team: %w", HandleNoRowsError(err))
	}

	if teamID.Valid {
		result.Team = &teammodels.Team{
			ID:                   teamID.String,
			Name:                 teamName.String,
			CreatedAt:            teamCreated.Time,
			UpdatedAt:            teamUpdated.Time,
			StripeCustomerID:     customerID,
			StripeSubscriptionID: subscriptionID,
			StripeProductID:      productID,
			PlanName:             planName,
			SubscriptionStatus:   subscriptionStatus,
		}
	}
	if memberID.Valid {
		result.Member = &teammodels.TeamMember{
			ID:       memberID.String,
			UserID:   memberUserID.String,
			TeamID:   memberTeamID.String,
			Role:     role.String,
			JoinedAt: memberJoined.Time,
		}
	}
	return &result, nil
}

func (r *TeamRepository) GetTeamByStripeCustomerID(ctx context.Context, customerID string) (*teammodels.Team, error) {
	conn := r.db.Conn(ctx)

	var team teammodels.Team
	row := conn.QueryRowContext(ctx, `SELECT `+teamColumns+` FROM teams t WHERE t.stripe_customer_id = ? LIMIT 1`, customerID)
	if err := scanTeam(row, &team); err != nil {
		return nil, fmt.Errorf("failed to get team by customer: %w", HandleNoRowsError(err))
	}
	return &team, nil
}

// GetTeamForUser returns the user's team carrying only the user's own
// membership entry.
func (r *TeamRepository) GetTeamForUser(ctx context.Context, userID string) (*teammodels.TeamWithMembers, error) {
	conn := r.db.Conn(ctx)

	query := `
		SELECT ` + teamColumns + `, ` + memberColumns + `, u.id, u.name, u.email
		FROM teams t
		INNER JOIN team_members tm ON tm.team_id = t.id
		INNER JOIN users u ON u.id = tm.user_id
		WHERE tm.user_id = ?
		LIMIT 1`

	var result teammodels.TeamWithMembers
	var member teammodels.MemberWithUser
	t := &result.Team
	m := &member.TeamMember
	err := conn.QueryRowContext(ctx, query, userID).Scan(
		&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt, &t.StripeCustomerID, &t.StripeSubscriptionID,
		&t.StripeProductID, &t.PlanName, &t.SubscriptionStatus,
		&m.ID, &m.UserID, &m.TeamID, &m.Role, &m.JoinedAt,
		&member.User.ID, &member.User.Name, &member.User.Email,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get team for user: %w", HandleNoRowsError(err))
	}
	result.Members = []teammodels.MemberWithUser{member}
	return &result, nil
}

func (r *TeamRepository) ListTeamMembers(ctx context.Context, teamID string) ([]teammodels.MemberWithUser, error) {
	conn := r.db.Conn(ctx)

	rows, err := conn.QueryContext(ctx, `
		SELECT `+memberColumns+`, u.id, u.name, u.email
		FROM team_members tm
		INNER JOIN users u ON u.id = tm.user_id
		WHERE tm.team_id = ?
		ORDER BY tm.joined_at ASC`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query team members: %w", err)
	}
	defer rows.Close()

	var members []teammodels.MemberWithUser
	for rows.Next() {
		var member teammodels.MemberWithUser
		m := &member.TeamMember
		if err := rows.Scan(&m.ID, &m.UserID, &m.TeamID, &m.Role, &m.JoinedAt,
			&member.User.ID, &member.User.Name, &member.User.Email); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating team members: %w", err)
	}
	return members, nil
}

// GetActivityLogs returns the newest activity of one team, at most
// ActivityLogLimit rows.
func (r *TeamRepository) GetActivityLogs(ctx context.Context, teamID string) ([]models.ActivityEntry, error) {
	conn := r.db.Conn(ctx)

	rows, err := conn.QueryContext(ctx, `
		SELECT a.id, a.action, a.ip_address, a.created_at, u.id, u.name, u.email
		FROM activity_logs a
		LEFT JOIN users u ON u.id = a.user_id
		WHERE a.team_id = ?
		ORDER BY a.created_at DESC
		LIMIT ?`, teamID, ActivityLogLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity logs: %w", err)
	}
	defer rows.Close()

	entries := make([]models.ActivityEntry, 0)
	for rows.Next() {
		var entry models.ActivityEntry
		var uid, email sql.NullString
		var name *string
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.IPAddress, &entry.CreatedAt, &uid, &name, &email); err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}
		if uid.Valid {
			entry.User = &usermodels.Summary{ID: uid.String, Name: name, Email: email.String}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activity logs: %w", err)
	}
	return entries, nil
}

// UpdateTeamSubscription changes only the billing columns marked as set.
func (r *TeamRepository) UpdateTeamSubscription(ctx context.Context, teamID string, update teammodels.SubscriptionUpdate) error {
	fields := []struct {
		column string
		field  teammodels.Field
	}{
		{"stripe_customer_id", update.StripeCustomerID},
		{"stripe_subscription_id", update.StripeSubscriptionID},
		{"stripe_product_id", update.StripeProductID},
		{"plan_name", update.PlanName},
		{"subscription_status", update.SubscriptionStatus},
	}

	var (
		sets []string
		args []any
	)
	for _, f := range fields {
		if !f.field.Set {
			continue
		}
		sets = append(sets, f.column+" = ?")
		args = append(args, f.field.Value)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = UTC_TIMESTAMP(3)")
	args = append(args, teamID)

	conn := r.db.Conn(ctx)
	res, err := conn.ExecContext(ctx, `UPDATE teams SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update team subscription: %w", handleWriteError(err))
	}
	return expectAffected(res)
}
