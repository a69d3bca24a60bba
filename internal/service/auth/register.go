package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

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
	msgEmailTaken         = "Email already registered"
	msgInvalidCredentials = "Invalid email or password. Please try again."

	// SignInPath is where signed-out users are sent.
	SignInPath = "/sign-in"
	// DefaultLanding is where a fresh session lands without a redirect.
	DefaultLanding = "/dashboard"
)

type UserStore interface {
	Create(ctx context.Context, user usermodels.User) error
	GetActiveByEmail(ctx context.Context, email string) (*usermodels.User, error)
	SetPasswordHash(ctx context.Context, userID, hash string, at time.Time) error
	GetPasswordHash(ctx context.Context, userID string) (string, error)
}

type TeamLookup interface {
	GetUserWithTeam(ctx context.Context, userID string) (*teammodels.UserWithTeam, error)
}

type Sessions interface {
	Establish(ctx context.Context, userID string) (*http.Cookie, error)
	Resolve(ctx context.Context, r *http.Request) (*usermodels.User, error)
	Revoke(ctx context.Context, r *http.Request) error
	ClearCookie() *http.Cookie
}

type ActivityRecorder interface {
	Record(ctx context.Context, teamID, userID string, activityType models.ActivityType, ip string) error
}

type AuthService struct {
	users    UserStore
	teams    TeamLookup
	sessions Sessions
	activity ActivityRecorder
	tx       database.TransactionManagerInterface

	now   func() time.Time
	newID func() string
	hash  func(password string) (string, error)

	Log *logger.Logger
}

// NewAuthService creates a new instance of AuthService
func NewAuthService(users UserStore, teams TeamLookup, sessions Sessions, activity ActivityRecorder, tx database.TransactionManagerInterface, log *logger.Logger) *AuthService {
	return &AuthService{
		users:    users,
		teams:    teams,
		sessions: sessions,
		activity: activity,
		tx:       tx,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		hash:     utils.HashPassword,
		Log:      log.Named("auth-service"),
	}
}

// SignUpInput caps Email at 210 so the soft-delete suffix fits users.email.
type SignUpInput struct {
	Email    string `schema:"email" label:"Email" validate:"required,max=210,email"`
	Password string `schema:"password" label:"Password" validate:"required,min=8,max=100"`
	Name     string `schema:"name" label:"Name" validate:"omitempty,max=100"`
	Redirect string `schema:"redirect" label:"Redirect" validate:"omitempty,startswith=/"`
}

type SignInInput struct {
	Email    string `schema:"email" label:"Email" validate:"required,email,max=255"`
	Password string `schema:"password" label:"Password" validate:"required,min=8,max=100"`
	Redirect string `schema:"redirect" label:"Redirect" validate:"omitempty,startswith=/"`
}

// SignUp handles user registration
func (s *AuthService) SignUp(ctx context.Context, in SignUpInput, _ url.Values) (action.Result, error) {
	log := s.Log.WithContext(ctx)
	email := strings.ToLower(strings.TrimSpace(in.Email))

	hashed, err := s.hash(in.Password)
	if err != nil {
		return action.Result{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := usermodels.User{ID: s.newID(), Email: email, Role: usermodels.RoleMember, CreatedAt: now, UpdatedAt: now}
	if name := strings.TrimSpace(in.Name); name != "" {
		user.Name = &name
	}

	var taken bool
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		_, err := s.users.GetActiveByEmail(ctx, email)
		if err == nil {
			taken = true
			return nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if err := s.users.Create(ctx, user); err != nil {
			return err
		}
		return s.users.SetPasswordHash(ctx, user.ID, hashed, now)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		taken = true
	} else if err != nil {
		log.Error("Failed to register user", "error", err)
		return action.Result{}, fmt.Errorf("sign up: %w", err)
	}
	if taken {
		return action.Error(msgEmailTaken), nil
	}

	cookie, err := s.sessions.Establish(ctx, user.ID)
	if err != nil {
		log.Error("Failed to establish session", "error", err, "user_id", user.ID)
		return action.Result{}, fmt.Errorf("sign up: %w", err)
	}
	// A new user has no team yet, so there is nothing to attribute the
	// event to and Record does not write.
	if err := s.activity.Record(ctx, "", user.ID, models.ActivitySignUp, action.ClientIP(ctx)); err != nil {
		log.Warn("Failed to record sign up", "error", err)
	}

	log.WithUser(user.ID).Audit("User registered")
	return action.Redirect(landing(in.Redirect)).WithCookie(cookie), nil
}

// SignIn authenticates a user with email and password
func (s *AuthService) SignIn(ctx context.Context, in SignInInput, _ url.Values) (action.Result, error) {
	log := s.Log.WithContext(ctx)

	user, err := s.users.GetActiveByEmail(ctx, strings.TrimSpace(in.Email))
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("Sign in rejected", "reason", "unknown email")
		return action.Error(msgInvalidCredentials), nil
	}
	if err != nil {
		return action.Result{}, fmt.Errorf("sign in: %w", err)
	}

	hash, err := s.users.GetPasswordHash(ctx, user.ID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("Sign in rejected", "reason", "no credential", "user_id", user.ID)
		return action.Error(msgInvalidCredentials), nil
	}
	if err != nil {
		return action.Result{}, fmt.Errorf("sign in: %w", err)
	}
	if err := utils.CheckPassword(hash, in.Password); err != nil {
		if !errors.Is(err, utils.ErrPasswordMismatch) {
			log.Error("Stored credential is unreadable", "error", err, "user_id", user.ID)
		}
		log.Info("Sign in rejected", "reason", "wrong password", "user_id", user.ID)
		return action.Error(msgInvalidCredentials), nil
	}

	cookie, err := s.sessions.Establish(ctx, user.ID)
	if err != nil {
		return action.Result{}, fmt.Errorf("sign in: %w", err)
	}
	s.record(ctx, user.ID, models.ActivitySignIn)

	log.WithUser(user.ID).Audit("User signed in")
	return action.Redirect(landing(in.Redirect)).WithCookie(cookie), nil
}

// SignOut ends the caller's session. Without a session it only clears the
// cookie and redirects.
func (s *AuthService) SignOut(ctx context.Context, _ action.Result, r *http.Request) (action.Result, error) {
	log := s.Log.WithContext(ctx)
	done := action.Redirect(SignInPath).WithCookie(s.sessions.ClearCookie())

	user, err := s.sessions.Resolve(ctx, r)
	if err != nil {
		return action.Result{}, fmt.Errorf("sign out: %w", err)
	}
	if user == nil {
		return done, nil
	}

	if err := s.sessions.Revoke(ctx, r); err != nil {
		log.Error("Failed to revoke session", "error", err, "user_id", user.ID)
		return action.Result{}, fmt.Errorf("sign out: %w", err)
	}
	s.record(ctx, user.ID, models.ActivitySignOut)

	log.WithUser(user.ID).Audit("User signed out")
	return done, nil
}

// record logs an identity event against the user's team, if any. Failures
// are logged; the session change has already happened.
func (s *AuthService) record(ctx context.Context, userID string, activityType models.ActivityType) {
	log := s.Log.WithContext(ctx).WithUser(userID)

	uwt, err := s.teams.GetUserWithTeam(ctx, userID)
	if err != nil {
		log.Warn("Failed to look up team for activity", "error", err, "action", activityType)
		return
	}
	if err := s.activity.Record(ctx, uwt.TeamID(), userID, activityType, action.ClientIP(ctx)); err != nil {
		log.Warn("Failed to record activity", "error", err, "action", activityType)
	}
}

func landing(redirect string) string {
	if redirect != "" && action.SafePath(redirect) {
		return redirect
	}
	return DefaultLanding
}
