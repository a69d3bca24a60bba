package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/nikhil/saasbase/internal/database"
	"github.com/nikhil/saasbase/internal/models"
	teammodels "github.com/nikhil/saasbase/internal/models/teams"
)

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return database.NewDB(db), mock
}

var userWithTeamColumns = []string{
	"id", "email", "name", "image", "email_verified", "role", "created_at", "updated_at", "deleted_at",
	"id", "name", "created_at", "updated_at", "stripe_customer_id", "stripe_subscription_id",
	"stripe_product_id", "plan_name", "subscription_status",
	"id", "user_id", "team_id", "role", "joined_at",
}

func TestGetUserWithTeam_NoTeam(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN team_members tm ON tm.user_id = u.id")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userWithTeamColumns).AddRow(
			"u1", "a@b.com", "Alice", nil, nil, "member", now, now, nil,
			nil, nil, nil, nil, nil, nil, nil, nil, nil,
			nil, nil, nil, nil, nil,
		))

	got, err := NewTeamRepository(db).GetUserWithTeam(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUserWithTeam: %v", err)
	}
	if got.User.ID != "u1" || got.User.Name == nil || *got.User.Name != "Alice" {
		t.Fatalf("unexpected user: %+v", got.User)
	}
	if got.Team != nil || got.Member != nil {
		t.Fatalf("expected no team, got team=%+v member=%+v", got.Team, got.Member)
	}
	if got.TeamID() != "" {
		t.Fatalf("TeamID = %q", got.TeamID())
	}
}

func TestGetUserWithTeam_WithTeam(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users u")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userWithTeamColumns).AddRow(
			"u1", "a@b.com", nil, nil, nil, "member", now, now, nil,
			"t1", "Acme", now, now, "cus_1", nil, nil, "Base", "active",
			"m1", "u1", "t1", "owner", now,
		))

	got, err := NewTeamRepository(db).GetUserWithTeam(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUserWithTeam: %v", err)
	}
	if got.Team == nil || got.Team.Name != "Acme" || got.Team.StripeSubscriptionID != nil {
		t.Fatalf("unexpected team: %+v", got.Team)
	}
	if *got.Team.StripeCustomerID != "cus_1" || *got.Team.PlanName != "Base" {
		t.Fatalf("unexpected billing fields: %+v", got.Team)
	}
	if got.Member == nil || !got.Member.IsOwner() {
		t.Fatalf("unexpected member: %+v", got.Member)
	}
}

func TestGetTeamForUser_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("INNER JOIN team_members tm ON tm.team_id = t.id")).
		WithArgs("lonely").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := NewTeamRepository(db).GetTeamForUser(context.Background(), "lonely")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetTeamForUser_SingleMembership(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	cols := []string{
		"id", "name", "created_at", "updated_at", "stripe_customer_id", "stripe_subscription_id",
		"stripe_product_id", "plan_name", "subscription_status",
		"id", "user_id", "team_id", "role", "joined_at",
		"id", "name", "email",
	}
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tm.user_id = ?")).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"t1", "Acme", now, now, nil, nil, nil, nil, nil,
			"m1", "u1", "t1", "owner", now,
			"u1", "Alice", "a@b.com",
		))

	got, err := NewTeamRepository(db).GetTeamForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetTeamForUser: %v", err)
	}
	if len(got.Members) != 1 {
		t.Fatalf("members = %d, want 1", len(got.Members))
	}
	m := got.Members[0]
	if m.User.ID != "u1" || m.User.Email != "a@b.com" || m.Role != "owner" {
		t.Fatalf("unexpected member: %+v", m)
	}
}

func TestGetActivityLogs(t *testing.T) {
	db, mock := newMockDB(t)
	newer := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	mock.ExpectQuery(`WHERE a.team_id = \?\s+ORDER BY a.created_at DESC\s+LIMIT \?`).
		WithArgs("t1", ActivityLogLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "ip_address", "created_at", "id", "name", "email"}).
			AddRow("a2", "INVITE_TEAM_MEMBER", "10.0.0.1", newer, "u1", "Alice", "a@b.com").
			AddRow("a1", "CREATE_TEAM", nil, older, nil, nil, nil))

	entries, err := NewTeamRepository(db).GetActivityLogs(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetActivityLogs: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Action != models.ActivityInviteTeamMember || entries[0].User == nil || entries[0].User.ID != "u1" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].User != nil || entries[1].IPAddress != nil {
		t.Fatalf("expected anonymous second entry, got %+v", entries[1])
	}
}

func TestUpdateTeamSubscription_Partial(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE teams SET stripe_subscription_id = ?, plan_name = ?, updated_at = UTC_TIMESTAMP(3) WHERE id = ?")).
		WithArgs(nil, "Plus", "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := NewTeamRepository(db).UpdateTeamSubscription(context.Background(), "t1", teammodels.SubscriptionUpdate{
		StripeSubscriptionID: teammodels.Null(),
		PlanName:             teammodels.Value("Plus"),
	})
	if err != nil {
		t.Fatalf("UpdateTeamSubscription: %v", err)
	}
}

func TestUpdateTeamSubscription_NothingSet(t *testing.T) {
	db, _ := newMockDB(t)

	if err := NewTeamRepository(db).UpdateTeamSubscription(context.Background(), "t1", teammodels.SubscriptionUpdate{}); err != nil {
		t.Fatalf("UpdateTeamSubscription: %v", err)
	}
}

func TestAddMember_DuplicateUser(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO team_members")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'u1' for key 'uq_team_members_user'"})

	err := NewTeamRepository(db).AddMember(context.Background(), teammodels.TeamMember{ID: "m2", UserID: "u1", TeamID: "t2", Role: "owner"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestRemoveMember_Missing(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM team_members WHERE id = ?")).
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewTeamRepository(db).RemoveMember(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
