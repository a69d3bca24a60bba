package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nikhil/saasbase/internal/logger"
	"github.com/nikhil/saasbase/internal/models"
	usermodels "github.com/nikhil/saasbase/internal/models/users"
	"github.com/nikhil/saasbase/internal/repository"
)

// CookieName is the cookie carrying the signed session token.
const CookieName = "session"

type Store interface {
	Create(ctx context.Context, s models.Session) error
	Get(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, token string) error
	DeleteForUser(ctx context.Context, userID string) error
}

type UserLookup interface {
	GetActiveByID(ctx context.Context, userID string) (*usermodels.User, error)
}

// Cache memoises session rows. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, sid string) (*models.Session, error)
	Set(ctx context.Context, s models.Session, ttl time.Duration) error
	Delete(ctx context.Context, sid string) error
}

type Config struct {
	Secret        []byte
	TTL           time.Duration
	SecureCookies bool
}

// Manager issues, resolves and revokes sessions. Session rows live in the
// database; the token handed to the client is a JWT naming the row.
type Manager struct {
	store  Store
	users  UserLookup
	cache  Cache
	cfg    Config
	now    func() time.Time
	newSID func() string
	log    *logger.Logger
}

type Option func(*Manager)

// WithCache enables the session cache.
func WithCache(c Cache) Option {
	return func(m *Manager) { m.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store Store, users UserLookup, cfg Config, log *logger.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		users:  users,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		newSID: uuid.NewString,
		log:    log.Named("session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenFromRequest returns the session cookie, falling back to a bearer
// Authorization header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

func (m *Manager) sign(s models.Session) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		SessionID: s.Token,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.UserID,
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(s.Expires),
		},
	})
	return token.SignedString(m.cfg.Secret)
}

func (m *Manager) parse(raw string) (*claims, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (interface{}, error) {
		return m.cfg.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}
	if c.SessionID == "" || c.Subject == "" {
		return nil, errors.New("token is missing session claims")
	}
	return &c, nil
}

// Establish creates a session row for the user and returns the cookie that
// carries it.
func (m *Manager) Establish(ctx context.Context, userID string) (*http.Cookie, error) {
	s := models.Session{
		Token:   m.newSID(),
		UserID:  userID,
		Expires: m.now().Add(m.cfg.TTL),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	signed, err := m.sign(s)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	if m.cache != nil {
		if err := m.cache.Set(ctx, s, s.Expires.Sub(m.now())); err != nil {
			m.log.WithContext(ctx).Warn("Failed to cache session", "error", err)
		}
	}

	return &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  s.Expires,
		HttpOnly: true,
		Secure:   m.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// Resolve returns the signed-in user. A missing, invalid or expired session,
// or a missing or deleted user, resolves to nil without error. Only storage
// failures are returned.
func (m *Manager) Resolve(ctx context.Context, r *http.Request) (*usermodels.User, error) {
	raw := TokenFromRequest(r)
	if raw == "" {
		return nil, nil
	}
	c, err := m.parse(raw)
	if err != nil {
		return nil, nil
	}

	s, err := m.lookup(ctx, c.SessionID)
	if err != nil {
		return nil, err
	}
	if s == nil || !s.Active(m.now()) || s.UserID != c.Subject {
		return nil, nil
	}

	user, err := m.users.GetActiveByID(ctx, s.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (m *Manager) lookup(ctx context.Context, sid string) (*models.Session, error) {
	if m.cache != nil {
		s, err := m.cache.Get(ctx, sid)
		if err != nil {
			m.log.WithContext(ctx).Warn("Session cache read failed", "error", err)
		} else if s != nil {
			return s, nil
		}
	}

	s, err := m.store.Get(ctx, sid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if m.cache != nil && s.Active(m.now()) {
		if err := m.cache.Set(ctx, *s, s.Expires.Sub(m.now())); err != nil {
			m.log.WithContext(ctx).Warn("Failed to cache session", "error", err)
		}
	}
	return s, nil
}

// Revoke deletes the session carried by the request. Requests without a
// valid token are a no-op.
func (m *Manager) Revoke(ctx context.Context, r *http.Request) error {
	raw := TokenFromRequest(r)
	if raw == "" {
		return nil
	}
	c, err := m.parse(raw)
	if err != nil {
		return nil
	}
	if err := m.store.Delete(ctx, c.SessionID); err != nil {
		return err
	}
	m.forget(ctx, c.SessionID)
	return nil
}

// RevokeAll deletes every session row of the user. Cached entries are left
// to expire; Resolve rejects them once the user is deleted.
func (m *Manager) RevokeAll(ctx context.Context, userID string) error {
	return m.store.DeleteForUser(ctx, userID)
}

func (m *Manager) forget(ctx context.Context, sid string) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Delete(ctx, sid); err != nil {
		m.log.WithContext(ctx).Warn("Failed to purge cached session", "error", err)
	}
}

// ClearCookie expires the session cookie on the client.
func (m *Manager) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}
