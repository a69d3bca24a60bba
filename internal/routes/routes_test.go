package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/nikhil/saasbase/internal/handlers"
	"github.com/nikhil/saasbase/internal/logger"
	"github.com/nikhil/saasbase/internal/models"
	teammodels "github.com/nikhil/saasbase/internal/models/teams"
	services "github.com/nikhil/saasbase/internal/service/auth"
	"github.com/nikhil/saasbase/internal/service/activity"
	"github.com/nikhil/saasbase/internal/service/billing"
	"github.com/nikhil/saasbase/internal/service/notify"
	"github.com/nikhil/saasbase/internal/service/session"
	teamService "github.com/nikhil/saasbase/internal/service/team"
	profileService "github.com/nikhil/saasbase/internal/service/users"
	"github.com/nikhil/saasbase/internal/testkit"
)

func newServer(t *testing.T) (http.Handler, *testkit.Store) {
	t.Helper()
	store := testkit.NewStore()
	log := logger.NewNop()
	hub := models.NewHub()

	sessions := session.NewManager(store.Sessions, store.Users, session.Config{
		Secret: []byte("routes-test-secret-routes-test-s"),
		TTL:    time.Hour,
	}, log)
	recorder := activity.NewRecorder(store.Activity, hub, log)
	bill := billing.NewService(nil, store.Teams, billing.Config{BaseURL: "http://app.test"}, log)

	teams := teamService.NewTeamService(teamService.Deps{
		Teams:       store.Teams,
		Users:       store.Users,
		Invitations: store.Invitations,
		Activity:    recorder,
		Tx:          store.Tx,
		Checkout:    bill,
		Notifier:    notify.NewLogNotifier("http://app.test", log),
		Feed:        hub,
		Log:         log,
	})
	profiles := profileService.NewProfileService(profileService.Deps{
		Users:    store.Users,
		Teams:    store.Teams,
		Activity: recorder,
		Sessions: sessions,
		Feed:     hub,
		Tx:       store.Tx,
		Log:      log,
	})
	auth := services.NewAuthService(store.Users, store.Teams, sessions, recorder, store.Tx, log)

	h := &handlers.Handlers{
		Auth:      handlers.NewAuthHandler(auth, log),
		Team:      handlers.NewTeamHandler(teams, sessions, log),
		Account:   handlers.NewAccountHandler(profiles, sessions, log),
		WebSocket: handlers.NewWebSocketHandler(hub, teams, "http://app.test", log),
		Billing:   handlers.NewBillingHandler(bill, log),
		Resolver:  sessions,
		Log:       log,
	}
	return RegisterAllRoutes(h, Options{Timeout: 5 * time.Second}), store
}

func do(h http.Handler, method, path string, form url.Values, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	r := httptest.NewRequest(method, path, body)
	if form != nil {
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectMessage(t *testing.T, rec *httptest.ResponseRecorder, key, want string) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	decode(t, rec, &body)
	if body[key] != want {
		t.Fatalf("%s = %q, want %q (body %s)", key, body[key], want, rec.Body.String())
	}
}

func signUp(t *testing.T, h http.Handler, email string) []*http.Cookie {
	t.Helper()
	rec := do(h, http.MethodPost, "/auth/sign-up", url.Values{"email": {email}, "password": {"password123"}}, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("sign up status = %d, body %s", rec.Code, rec.Body.String())
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != session.CookieName {
		t.Fatalf("unexpected cookies: %+v", cookies)
	}
	return cookies
}

func TestFormActions_ValidationBeforeAuthentication(t *testing.T) {
	h, _ := newServer(t)

	rec := do(h, http.MethodPost, "/team/invite", url.Values{"email": {"not-an-email"}, "role": {"member"}}, nil)
	expectMessage(t, rec, "error", "Invalid email address")

	rec = do(h, http.MethodPost, "/team/invite", url.Values{"email": {"a@b.com"}, "role": {"member"}}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestTeamFlow(t *testing.T) {
	h, store := newServer(t)
	cookies := signUp(t, h, "owner@acme.test")

	expectMessage(t, do(h, http.MethodPost, "/team/create", url.Values{"name": {"Acme"}}, cookies), "success", "Team created successfully")
	expectMessage(t, do(h, http.MethodPost, "/team/create", url.Values{"name": {"Again"}}, cookies), "error", "You already have a team")
	expectMessage(t, do(h, http.MethodPost, "/team/invite", url.Values{"email": {"a@b.com"}, "role": {"member"}}, cookies), "success", "Invitation sent successfully")

	rec := do(h, http.MethodGet, "/api/team", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/team status = %d", rec.Code)
	}
	var team teammodels.TeamWithMembers
	decode(t, rec, &team)
	if team.Name != "Acme" || len(team.Members) != 1 || team.Members[0].Role != teammodels.RoleOwner {
		t.Fatalf("unexpected team: %+v", team)
	}

	rec = do(h, http.MethodGet, "/api/team/activity", nil, cookies)
	var entries []models.ActivityEntry
	decode(t, rec, &entries)
	if len(entries) != 2 {
		t.Fatalf("activity entries = %d, want 2", len(entries))
	}

	rows := store.ActivityRows()
	if rows[0].IPAddress == nil || *rows[0].IPAddress != "192.0.2.1" {
		t.Fatalf("client address not recorded: %+v", rows[0])
	}
}

func TestInvitationAcceptFlow(t *testing.T) {
	h, store := newServer(t)
	owner := signUp(t, h, "owner@acme.test")
	expectMessage(t, do(h, http.MethodPost, "/team/create", url.Values{"name": {"Acme"}}, owner), "success", "Team created successfully")
	expectMessage(t, do(h, http.MethodPost, "/team/invite", url.Values{"email": {"new@acme.test"}, "role": {"member"}}, owner), "success", "Invitation sent successfully")

	token := store.InvitationsFor("new@acme.test")[0].Token
	invitee := signUp(t, h, "new@acme.test")
	expectMessage(t, do(h, http.MethodPost, "/team/accept-invite", url.Values{"token": {token}}, invitee), "success", "Invitation accepted successfully")
	expectMessage(t, do(h, http.MethodPost, "/team/accept-invite", url.Values{"token": {token}}, invitee), "error", "Invitation is no longer valid")

	rec := do(h, http.MethodGet, "/api/team/members", nil, owner)
	var team teammodels.TeamWithMembers
	decode(t, rec, &team)
	if len(team.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(team.Members))
	}
}

func TestReadRoutes_RequireSession(t *testing.T) {
	h, _ := newServer(t)

	for _, path := range []string{"/api/team", "/api/team/members", "/api/team/activity", "/team/activity/ws"} {
		if rec := do(h, http.MethodGet, path, nil, nil); rec.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s status = %d, want 401", path, rec.Code)
		}
	}

	rec := do(h, http.MethodGet, "/api/user", nil, nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "null" {
		t.Fatalf("anonymous /api/user = %d %s", rec.Code, rec.Body.String())
	}
}

func TestSignOut(t *testing.T) {
	h, store := newServer(t)
	cookies := signUp(t, h, "owner@acme.test")

	rec := do(h, http.MethodGet, "/api/user", nil, cookies)
	var user map[string]any
	decode(t, rec, &user)
	if user["email"] != "owner@acme.test" {
		t.Fatalf("unexpected user: %v", user)
	}

	rec = do(h, http.MethodPost, "/auth/sign-out", url.Values{}, cookies)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/sign-in" {
		t.Fatalf("sign out = %d %s", rec.Code, rec.Header().Get("Location"))
	}
	if id, _ := user["id"].(string); store.SessionCount(id) != 0 {
		t.Fatal("session row survived sign out")
	}
	if rec := do(h, http.MethodGet, "/api/team", nil, cookies); rec.Code != http.StatusUnauthorized {
		t.Fatalf("old cookie still accepted: %d", rec.Code)
	}
}

func TestBillingRoutes_NotConfigured(t *testing.T) {
	h, _ := newServer(t)

	if rec := do(h, http.MethodPost, "/api/stripe/webhook", url.Values{}, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("webhook status = %d, want 503", rec.Code)
	}
	rec := do(h, http.MethodGet, "/api/stripe/checkout", nil, nil)
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/pricing" {
		t.Fatalf("checkout callback = %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestRequestIDEchoed(t *testing.T) {
	h, _ := newServer(t)

	rec := do(h, http.MethodGet, "/api/user", nil, nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}
}
