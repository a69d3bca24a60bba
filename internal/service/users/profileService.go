package profileService

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nikhil/saasbase/internal/action"
	"github.com/nikhil/saasbase/internal/database"
	"github.com/nikhil/saasbase/internal/logger"
	"github.com/nikhil/saasbase/internal/models"
	teammodels "github.com/nikhil/saasbase/internal/models/teams"
	usermodels "github.com/nikhil/saasbase/internal/models/users"
	"github.com/nikhil/saasbase/internal/repository"
	"github.com/nikhil/saasbase/pkg/utils"
)

const (
	msgAccountUpdated  = "Account updated successfully"
	msgEmailInUse      = "Email is already in use"
	msgPasswordUpdated = "Password updated successfully"
	msgWrongPassword   = "Current password is incorrect"
	msgDeleteWrongPass = "Incorrect password. Account deletion failed."
	signedOutLocation  = "/sign-in"
)

type UserStore interface {
	UpdateProfile(ctx context.Context, userID, name, email string, at time.Time) error
	SoftDelete(ctx context.Context, userID string, at time.Time) error
	SetPasswordHash(ctx context.Context, userID, hash string, at time.Time) error
	GetPasswordHash(ctx context.Context, userID string) (string, error)
}

type TeamStore interface {
	GetUserWithTeam(ctx context.Context, userID string) (*teammodels.UserWithTeam, error)
	RemoveMemberByUserID(ctx context.Context, userID string) error
}

type ActivityRecorder interface {
	Append(ctx context.Context, teamID, userID string, activityType models.ActivityType, ip string) (*models.ActivityLog, error)
	Publish(entries ...*models.ActivityLog)
}

type Sessions interface {
	RevokeAll(ctx context.Context, userID string) error
	ClearCookie() *http.Cookie
}

type FeedDisconnector interface {
	DisconnectUser(teamID, userID string)
}

// ProfileService manages the signed-in user's own account.
type ProfileService struct {
	users    UserStore
	teams    TeamStore
	activity ActivityRecorder
	sessions Sessions
	feed     FeedDisconnector
	tx       database.TransactionManagerInterface

	now  func() time.Time
	hash func(password string) (string, error)

	Log *logger.Logger
}

type Deps struct {
	Users    UserStore
	Teams    TeamStore
	Activity ActivityRecorder
	Sessions Sessions
	Feed     FeedDisconnector
	Tx       database.TransactionManagerInterface
	Log      *logger.Logger
}

func NewProfileService(d Deps) *ProfileService {
	return &ProfileService{
		users:    d.Users,
		teams:    d.Teams,
		activity: d.Activity,
		sessions: d.Sessions,
		feed:     d.Feed,
		tx:       d.Tx,
		now:      func() time.Time { return time.Now().UTC() },
		hash:     utils.HashPassword,
		Log:      d.Log.Named("profile-service"),
	}
}

// UpdateAccountInput caps Email like sign up, leaving room for the
// soft-delete suffix.
type UpdateAccountInput struct {
	Name  string `schema:"name" label:"Name" validate:"required,min=1,max=100"`
	Email string `schema:"email" label:"Email" validate:"required,max=210,email"`
}

type UpdatePasswordInput struct {
	CurrentPassword string `schema:"currentPassword" label:"Current password" validate:"required,min=8,max=100"`
	NewPassword     string `schema:"newPassword" label:"New password" validate:"required,min=8,max=100,nefield=CurrentPassword"`
	ConfirmPassword string `schema:"confirmPassword" label:"Confirm password" validate:"required,eqfield=NewPassword"`
}

type DeleteAccountInput struct {
	Password string `schema:"password" label:"Password" validate:"required,min=8,max=100"`
}

// UpdateAccount changes the caller's name and email.
func (p *ProfileService) UpdateAccount(ctx context.Context, in UpdateAccountInput, _ url.Values, user *usermodels.User) (action.Result, error) {
	log := p.Log.WithContext(ctx).WithUser(user.ID)
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	var event *models.ActivityLog
	err := p.tx.Do(ctx, func(ctx context.Context) error {
		if err := p.users.UpdateProfile(ctx, user.ID, name, email, p.now()); err != nil {
			return err
		}
		var err error
		event, err = p.appendForUser(ctx, user.ID, models.ActivityUpdateAccount)
		return err
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return action.Error(msgEmailInUse), nil
	}
	if err != nil {
		log.Error("Failed to update account", "error", err)
		return action.Result{}, fmt.Errorf("update account: %w", err)
	}

	p.activity.Publish(event)
	log.Info("Account updated")
	return action.Success(msgAccountUpdated), nil
}

// UpdatePassword replaces the caller's password after verifying the current
// one.
func (p *ProfileService) UpdatePassword(ctx context.Context, in UpdatePasswordInput, _ url.Values, user *usermodels.User) (action.Result, error) {
	log := p.Log.WithContext(ctx).WithUser(user.ID)

	ok, err := p.verify(ctx, user.ID, in.CurrentPassword)
	if err != nil {
		return action.Result{}, fmt.Errorf("update password: %w", err)
	}
	if !ok {
		log.Info("Password change rejected", "reason", "wrong current password")
		return action.Error(msgWrongPassword), nil
	}

	hashed, err := p.hash(in.NewPassword)
	if err != nil {
		return action.Result{}, fmt.Errorf("hash password: %w", err)
	}

	var event *models.ActivityLog
	err = p.tx.Do(ctx, func(ctx context.Context) error {
		if err := p.users.SetPasswordHash(ctx, user.ID, hashed, p.now()); err != nil {
			return err
		}
		var err error
		event, err = p.appendForUser(ctx, user.ID, models.ActivityUpdatePassword)
		return err
	})
	if err != nil {
		log.Error("Failed to update password", "error", err)
		return action.Result{}, fmt.Errorf("update password: %w", err)
	}

	p.activity.Publish(event)
	log.Audit("Password changed")
	return action.Success(msgPasswordUpdated), nil
}

// DeleteAccount soft deletes the caller, drops their membership and every
// session, and signs them out.
func (p *ProfileService) DeleteAccount(ctx context.Context, in DeleteAccountInput, _ url.Values, user *usermodels.User) (action.Result, error) {
	log := p.Log.WithContext(ctx).WithUser(user.ID)

	ok, err := p.verify(ctx, user.ID, in.Password)
	if err != nil {
		return action.Result{}, fmt.Errorf("delete account: %w", err)
	}
	if !ok {
		log.Info("Account deletion rejected", "reason", "wrong password")
		return action.Error(msgDeleteWrongPass), nil
	}

	var (
		event  *models.ActivityLog
		teamID string
	)
	err = p.tx.Do(ctx, func(ctx context.Context) error {
		uwt, err := p.teams.GetUserWithTeam(ctx, user.ID)
		if err != nil {
			return err
		}
		teamID = uwt.TeamID()

		// The event is written while the membership still names the team.
		event, err = p.activity.Append(ctx, teamID, user.ID, models.ActivityDeleteAccount, action.ClientIP(ctx))
		if err != nil {
			return err
		}
		if err := p.users.SoftDelete(ctx, user.ID, p.now()); err != nil {
			return err
		}
		if err := p.teams.RemoveMemberByUserID(ctx, user.ID); err != nil {
			return err
		}
		return p.sessions.RevokeAll(ctx, user.ID)
	})
	if err != nil {
		log.Error("Failed to delete account", "error", err)
		return action.Result{}, fmt.Errorf("delete account: %w", err)
	}

	p.activity.Publish(event)
	if p.feed != nil && teamID != "" {
		p.feed.DisconnectUser(teamID, user.ID)
	}
	log.Audit("Account deleted", "team_id", teamID)
	return action.Redirect(signedOutLocation).WithCookie(p.sessions.ClearCookie()), nil
}

func (p *ProfileService) verify(ctx context.Context, userID, password string) (bool, error) {
	hash, err := p.users.GetPasswordHash(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load credential: %w", err)
	}
	err = utils.CheckPassword(hash, password)
	if errors.Is(err, utils.ErrPasswordMismatch) {
		return false, nil
	}
	if err != nil {
		p.Log.WithContext(ctx).WithUser(userID).Error("Stored credential is unreadable", "error", err)
		return false, nil
	}
	return true, nil
}

func (p *ProfileService) appendForUser(ctx context.Context, userID string, activityType models.ActivityType) (*models.ActivityLog, error) {
	uwt, err := p.teams.GetUserWithTeam(ctx, userID)
	if err != nil {
		return nil, err
	}
	return p.activity.Append(ctx, uwt.TeamID(), userID, activityType, action.ClientIP(ctx))
}
