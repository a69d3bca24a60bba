package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nikhil/saasbase/internal/action"
	"github.com/nikhil/saasbase/internal/logger"
	"github.com/nikhil/saasbase/internal/models"
	teammodels "github.com/nikhil/saasbase/internal/models/teams"
	"github.com/nikhil/saasbase/internal/service/activity"
	"github.com/nikhil/saasbase/internal/service/session"
	"github.com/nikhil/saasbase/internal/testkit"
)

type fixture struct {
	store    *testkit.Store
	clock    *testkit.Clock
	sessions *session.Manager
	svc      *AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testkit.NewStore()
	clock := testkit.NewClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC))
	sessions := session.NewManager(store.Sessions, store.Users, session.Config{
		Secret: []byte("test-secret-test-secret-test-sec"),
		TTL:    30 * 24 * time.Hour,
	}, logger.NewNop(), session.WithClock(clock.Now))
	rec := activity.NewRecorder(store.Activity, nil, logger.NewNop()).WithClock(clock.Now)

	svc := NewAuthService(store.Users, store.Teams, sessions, rec, store.Tx, logger.NewNop())
	svc.now = clock.Now
	svc.hash = func(password string) (string, error) {
		b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		return string(b), err
	}
	return &fixture{store: store, clock: clock, sessions: sessions, svc: svc}
}

func (f *fixture) signUp(t *testing.T, email, password string) action.Result {
	t.Helper()
	res, err := f.svc.SignUp(context.Background(), SignUpInput{Email: email, Password: password}, nil)
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	return res
}

func requestWith(cookies []*http.Cookie) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/auth/sign-out", nil)
	for _, c := range cookies {
		r.AddCookie(c)
	}
	return r
}

func TestSignUp(t *testing.T) {
	f := newFixture(t)

	res := f.signUp(t, "New@Example.com", "password123")
	if res.Kind != action.KindRedirect || res.Location != DefaultLanding || len(res.Cookies) != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	user, err := f.sessions.Resolve(context.Background(), requestWith(res.Cookies))
	if err != nil || user == nil {
		t.Fatalf("session not established: %+v, %v", user, err)
	}
	if user.Email != "new@example.com" {
		t.Fatalf("email = %q", user.Email)
	}
	if len(f.store.ActivityRows()) != 0 {
		t.Fatal("sign up without a team must not write activity")
	}

	res = f.signUp(t, "new@example.com", "password456")
	if res.Kind != action.KindError || res.Message != msgEmailTaken {
		t.Fatalf("duplicate sign up = %+v", res)
	}
}

func TestSignIn(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "a@b.com", "password123")
	ctx := action.WithClientIP(context.Background(), "198.51.100.7")

	tests := []struct {
		name     string
		in       SignInInput
		redirect string
	}{
		{name: "wrong password", in: SignInInput{Email: "a@b.com", Password: "password124"}},
		{name: "unknown email", in: SignInInput{Email: "x@b.com", Password: "password123"}},
		{name: "ok", in: SignInInput{Email: "A@B.com", Password: "password123"}, redirect: DefaultLanding},
		{name: "ok with redirect", in: SignInInput{Email: "a@b.com", Password: "password123", Redirect: "/team"}, redirect: "/team"},
		{name: "unsafe redirect ignored", in: SignInInput{Email: "a@b.com", Password: "password123", Redirect: "//evil.test"}, redirect: DefaultLanding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := f.svc.SignIn(ctx, tt.in, nil)
			if err != nil {
				t.Fatalf("SignIn: %v", err)
			}
			if tt.redirect == "" {
				if res.Kind != action.KindError || res.Message != msgInvalidCredentials || len(res.Cookies) != 0 {
					t.Fatalf("expected rejection, got %+v", res)
				}
				return
			}
			if res.Kind != action.KindRedirect || res.Location != tt.redirect || len(res.Cookies) != 1 {
				t.Fatalf("unexpected result: %+v", res)
			}
		})
	}
}

func TestSignIn_SoftDeletedUser(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "a@b.com", "password123")
	user, _ := f.sessions.Resolve(context.Background(), requestWith(res.Cookies))
	if err := f.store.Users.SoftDelete(context.Background(), user.ID, f.clock.Now()); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.SignIn(context.Background(), SignInInput{Email: "a@b.com", Password: "password123"}, nil)
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if res.Kind != action.KindError || res.Message != msgInvalidCredentials {
		t.Fatalf("deleted user signed in: %+v", res)
	}
}

func joinTeam(t *testing.T, f *fixture, userID string) string {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()
	if err := f.store.Teams.CreateTeam(ctx, teammodels.Team{ID: "t1", Name: "Acme", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := f.store.Teams.AddMember(ctx, teammodels.TeamMember{ID: "m1", UserID: userID, TeamID: "t1", Role: teammodels.RoleOwner, JoinedAt: now}); err != nil {
		t.Fatal(err)
	}
	return "t1"
}

func TestSignInAndOut_RecordActivity(t *testing.T) {
	f := newFixture(t)
	res := f.signUp(t, "a@b.com", "password123")
	user, _ := f.sessions.Resolve(context.Background(), requestWith(res.Cookies))
	teamID := joinTeam(t, f, user.ID)
	ctx := action.WithClientIP(context.Background(), "198.51.100.7")

	res, err := f.svc.SignIn(ctx, SignInInput{Email: "a@b.com", Password: "password123"}, nil)
	if err != nil || res.Kind != action.KindRedirect {
		t.Fatalf("SignIn = %+v, %v", res, err)
	}
	if f.store.SessionCount(user.ID) != 2 {
		t.Fatalf("sessions = %d, want 2", f.store.SessionCount(user.ID))
	}

	out, err := f.svc.SignOut(ctx, action.Result{}, requestWith(res.Cookies))
	if err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if out.Kind != action.KindRedirect || out.Location != SignInPath {
		t.Fatalf("unexpected sign out result: %+v", out)
	}
	if len(out.Cookies) != 1 || out.Cookies[0].MaxAge >= 0 {
		t.Fatalf("cookie not cleared: %+v", out.Cookies)
	}
	if f.store.SessionCount(user.ID) != 1 {
		t.Fatal("only the signed out session should be deleted")
	}
	if u, _ := f.sessions.Resolve(ctx, requestWith(res.Cookies)); u != nil {
		t.Fatal("signed out session still resolves")
	}

	rows := f.store.ActivityRows()
	if len(rows) != 2 {
		t.Fatalf("activity rows = %d, want 2", len(rows))
	}
	for i, want := range []models.ActivityType{models.ActivitySignIn, models.ActivitySignOut} {
		if rows[i].Action != want || rows[i].TeamID != teamID || *rows[i].UserID != user.ID || *rows[i].IPAddress != "198.51.100.7" {
			t.Fatalf("row %d = %+v", i, rows[i])
		}
	}
}

func TestSignOut_Unauthenticated(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.SignOut(context.Background(), action.Result{}, requestWith(nil))
	if err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if res.Kind != action.KindRedirect || res.Location != SignInPath {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(f.store.ActivityRows()) != 0 {
		t.Fatal("anonymous sign out wrote activity")
	}
}

// emailOfLength builds a well-formed address of exactly n characters, n >= 193.
func emailOfLength(n int) string {
	return strings.Repeat("a", 64) + "@" + strings.Repeat("b", 60) + "." + strings.Repeat("c", 60) + "." + strings.Repeat("d", n-192) + ".test"
}

func TestSignUp_EmailLeavesRoomForDeletion(t *testing.T) {
	f := newFixture(t)
	signUp := action.Validated(f.svc.SignUp)

	post := func(email string) action.Result {
		form := url.Values{"email": {email}, "password": {"password123"}}
		r := httptest.NewRequest(http.MethodPost, "/auth/sign-up", strings.NewReader(form.Encode()))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		res, err := signUp(context.Background(), action.Result{}, r)
		if err != nil {
			t.Fatalf("SignUp: %v", err)
		}
		return res
	}

	if res := post(emailOfLength(211)); res.Kind != action.KindError || res.Message != "Email must be at most 210 characters" {
		t.Fatalf("211 character email = %+v", res)
	}

	res := post(emailOfLength(210))
	if res.Kind != action.KindRedirect {
		t.Fatalf("210 character email = %+v", res)
	}
	user, _ := f.sessions.Resolve(context.Background(), requestWith(res.Cookies))
	if err := f.store.Users.SoftDelete(context.Background(), user.ID, f.clock.Now()); err != nil {
		t.Fatal(err)
	}
	deleted, _ := f.store.User(user.ID)
	if len(deleted.Email) > 255 {
		t.Fatalf("deleted email is %d characters, column holds 255", len(deleted.Email))
	}
}
