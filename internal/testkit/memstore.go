// Package testkit provides in-memory stand-ins for the repositories and the
// transaction manager, for service and handler tests.
package testkit

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nikhil/saasbase/internal/models"
	teammodels "github.com/nikhil/saasbase/internal/models/teams"
	usermodels "github.com/nikhil/saasbase/internal/models/users"
	"github.com/nikhil/saasbase/internal/repository"
)

type state struct {
	users       map[string]usermodels.User
	passwords   map[string]string
	teams       map[string]teammodels.Team
	members     map[string]teammodels.TeamMember
	invitations map[string]teammodels.Invitation
	sessions    map[string]models.Session
	activity    []models.ActivityLog
}

func newState() *state {
	return &state{
		users:       map[string]usermodels.User{},
		passwords:   map[string]string{},
		teams:       map[string]teammodels.Team{},
		members:     map[string]teammodels.TeamMember{},
		invitations: map[string]teammodels.Invitation{},
		sessions:    map[string]models.Session{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.passwords {
		c.passwords[k] = v
	}
	for k, v := range s.teams {
		c.teams[k] = v
	}
	for k, v := range s.members {
		c.members[k] = v
	}
	for k, v := range s.invitations {
		c.invitations[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	c.activity = append([]models.ActivityLog(nil), s.activity...)
	return c
}

// Store is one shared in-memory database exposed through per-table views
// with the same method sets as the MySQL repositories.
type Store struct {
	mu sync.Mutex
	st *state

	// ActivityErr, when set, fails every activity insert.
	ActivityErr error

	Users       *Users
	Teams       *Teams
	Invitations *Invitations
	Activity    *Activity
	Sessions    *Sessions
	Tx          *Tx
}

func NewStore() *Store {
	s := &Store{st: newState()}
	s.Users = &Users{s}
	s.Teams = &Teams{s}
	s.Invitations = &Invitations{s}
	s.Activity = &Activity{s}
	s.Sessions = &Sessions{s}
	s.Tx = &Tx{s: s}
	return s
}

func (s *Store) lock() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

// Tx serialises Do calls and restores the pre-call state when fn fails.
type Tx struct {
	s  *Store
	mu sync.Mutex
}

func (t *Tx) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	unlock := t.s.lock()
	snapshot := t.s.st.clone()
	unlock()

	if err := fn(ctx); err != nil {
		unlock := t.s.lock()
		t.s.st = snapshot
		unlock()
		return err
	}
	return nil
}

// Inspection helpers.

func (s *Store) ActivityRows() []models.ActivityLog {
	defer s.lock()()
	return append([]models.ActivityLog(nil), s.st.activity...)
}

func (s *Store) MembersOf(userID string) []teammodels.TeamMember {
	defer s.lock()()
	var out []teammodels.TeamMember
	for _, m := range s.st.members {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out
}

func (s *Store) TeamCount() int {
	defer s.lock()()
	return len(s.st.teams)
}

func (s *Store) InvitationsFor(email string) []teammodels.Invitation {
	defer s.lock()()
	var out []teammodels.Invitation
	for _, inv := range s.st.invitations {
		if inv.Email == email {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvitedAt.Before(out[j].InvitedAt) })
	return out
}

func (s *Store) SessionCount(userID string) int {
	defer s.lock()()
	n := 0
	for _, sess := range s.st.sessions {
		if sess.UserID == userID {
			n++
		}
	}
	return n
}

func (s *Store) User(id string) (usermodels.User, bool) {
	defer s.lock()()
	u, ok := s.st.users[id]
	return u, ok
}

func (s *Store) Team(id string) (teammodels.Team, bool) {
	defer s.lock()()
	t, ok := s.st.teams[id]
	return t, ok
}

type Users struct{ s *Store }

func (r *Users) Create(ctx context.Context, user usermodels.User) error {
	defer r.s.lock()()
	user.Email = strings.ToLower(user.Email)
	for _, u := range r.s.st.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	r.s.st.users[user.ID] = user
	return nil
}

func (r *Users) GetActiveByID(ctx context.Context, userID string) (*usermodels.User, error) {
	defer r.s.lock()()
	u, ok := r.s.st.users[userID]
	if !ok || u.IsDeleted() {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *Users) GetActiveByEmail(ctx context.Context, email string) (*usermodels.User, error) {
	defer r.s.lock()()
	email = strings.ToLower(email)
	for _, u := range r.s.st.users {
		if u.Email == email && !u.IsDeleted() {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Users) UpdateProfile(ctx context.Context, userID, name, email string, at time.Time) error {
	defer r.s.lock()()
	u, ok := r.s.st.users[userID]
	if !ok || u.IsDeleted() {
		return repository.ErrNotFound
	}
	email = strings.ToLower(email)
	for id, other := range r.s.st.users {
		if id != userID && other.Email == email {
			return repository.ErrDuplicate
		}
	}
	u.Name = &name
	u.Email = email
	u.UpdatedAt = at
	r.s.st.users[userID] = u
	return nil
}

func (r *Users) SoftDelete(ctx context.Context, userID string, at time.Time) error {
	defer r.s.lock()()
	u, ok := r.s.st.users[userID]
	if !ok || u.IsDeleted() {
		return repository.ErrNotFound
	}
	u.DeletedAt = &at
	u.UpdatedAt = at
	u.Email = u.Email + "-" + u.ID + "-deleted"
	r.s.st.users[userID] = u
	return nil
}

func (r *Users) SetPasswordHash(ctx context.Context, userID, hash string, at time.Time) error {
	defer r.s.lock()()
	r.s.st.passwords[userID] = hash
	return nil
}

func (r *Users) GetPasswordHash(ctx context.Context, userID string) (string, error) {
	defer r.s.lock()()
	hash, ok := r.s.st.passwords[userID]
	if !ok {
		return "", repository.ErrNotFound
	}
	return hash, nil
}

type Teams struct{ s *Store }

func (r *Teams) CreateTeam(ctx context.Context, team teammodels.Team) error {
	defer r.s.lock()()
	r.s.st.teams[team.ID] = team
	return nil
}

func (r *Teams) AddMember(ctx context.Context, member teammodels.TeamMember) error {
	defer r.s.lock()()
	for _, m := range r.s.st.members {
		if m.UserID == member.UserID {
			return repository.ErrDuplicate
		}
	}
	r.s.st.members[member.ID] = member
	return nil
}

func (r *Teams) GetMember(ctx context.Context, memberID string) (*teammodels.TeamMember, error) {
	defer r.s.lock()()
	m, ok := r.s.st.members[memberID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r *Teams) GetMemberByUserID(ctx context.Context, userID string) (*teammodels.TeamMember, error) {
	defer r.s.lock()()
	for _, m := range r.s.st.members {
		if m.UserID == userID {
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Teams) UpdateMemberRole(ctx context.Context, memberID, role string) error {
	defer r.s.lock()()
	m, ok := r.s.st.members[memberID]
	if !ok {
		return repository.ErrNotFound
	}
	m.Role = role
	r.s.st.members[memberID] = m
	return nil
}

func (r *Teams) RemoveMember(ctx context.Context, memberID string) error {
	defer r.s.lock()()
	if _, ok := r.s.st.members[memberID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.members, memberID)
	return nil
}

func (r *Teams) RemoveMemberByUserID(ctx context.Context, userID string) error {
	defer r.s.lock()()
	for id, m := range r.s.st.members {
		if m.UserID == userID {
			delete(r.s.st.members, id)
		}
	}
	return nil
}

func (r *Teams) GetUserWithTeam(ctx context.Context, userID string) (*teammodels.UserWithTeam, error) {
	defer r.s.lock()()
	u, ok := r.s.st.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	result := &teammodels.UserWithTeam{User: u}
	for _, m := range r.s.st.members {
		if m.UserID != userID {
			continue
		}
		member := m
		result.Member = &member
		if t, ok := r.s.st.teams[m.TeamID]; ok {
			result.Team = &t
		}
	}
	return result, nil
}

func (r *Teams) GetTeamByStripeCustomerID(ctx context.Context, customerID string) (*teammodels.Team, error) {
	defer r.s.lock()()
	for _, t := range r.s.st.teams {
		if t.StripeCustomerID != nil && *t.StripeCustomerID == customerID {
			return &t, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Teams) GetTeamForUser(ctx context.Context, userID string) (*teammodels.TeamWithMembers, error) {
	defer r.s.lock()()
	for _, m := range r.s.st.members {
		if m.UserID != userID {
			continue
		}
		t, ok := r.s.st.teams[m.TeamID]
		u, uok := r.s.st.users[m.UserID]
		if !ok || !uok {
			break
		}
		return &teammodels.TeamWithMembers{
			Team:    t,
			Members: []teammodels.MemberWithUser{{TeamMember: m, User: u.Summary()}},
		}, nil
	}
	return nil, repository.ErrNotFound
}

func (r *Teams) ListTeamMembers(ctx context.Context, teamID string) ([]teammodels.MemberWithUser, error) {
	defer r.s.lock()()
	var out []teammodels.MemberWithUser
	for _, m := range r.s.st.members {
		if m.TeamID != teamID {
			continue
		}
		u := r.s.st.users[m.UserID]
		out = append(out, teammodels.MemberWithUser{TeamMember: m, User: u.Summary()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (r *Teams) GetActivityLogs(ctx context.Context, teamID string) ([]models.ActivityEntry, error) {
	defer r.s.lock()()
	var rows []models.ActivityLog
	for _, a := range r.s.st.activity {
		if a.TeamID == teamID {
			rows = append(rows, a)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.After(rows[j].CreatedAt) })
	if len(rows) > repository.ActivityLogLimit {
		rows = rows[:repository.ActivityLogLimit]
	}

	entries := make([]models.ActivityEntry, 0, len(rows))
	for _, a := range rows {
		entry := models.ActivityEntry{ID: a.ID, Action: a.Action, IPAddress: a.IPAddress, CreatedAt: a.CreatedAt}
		if a.UserID != nil {
			if u, ok := r.s.st.users[*a.UserID]; ok {
				summary := u.Summary()
				entry.User = &summary
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *Teams) UpdateTeamSubscription(ctx context.Context, teamID string, update teammodels.SubscriptionUpdate) error {
	defer r.s.lock()()
	t, ok := r.s.st.teams[teamID]
	if !ok {
		return repository.ErrNotFound
	}
	apply := func(dst **string, f teammodels.Field) {
		if f.Set {
			*dst = f.Value
		}
	}
	apply(&t.StripeCustomerID, update.StripeCustomerID)
	apply(&t.StripeSubscriptionID, update.StripeSubscriptionID)
	apply(&t.StripeProductID, update.StripeProductID)
	apply(&t.PlanName, update.PlanName)
	apply(&t.SubscriptionStatus, update.SubscriptionStatus)
	r.s.st.teams[teamID] = t
	return nil
}

type Invitations struct{ s *Store }

func (r *Invitations) Create(ctx context.Context, inv teammodels.Invitation) error {
	defer r.s.lock()()
	for _, existing := range r.s.st.invitations {
		if existing.Token == inv.Token {
			return repository.ErrDuplicate
		}
	}
	r.s.st.invitations[inv.ID] = inv
	return nil
}

func (r *Invitations) GetByToken(ctx context.Context, token string) (*teammodels.Invitation, error) {
	defer r.s.lock()()
	for _, inv := range r.s.st.invitations {
		if inv.Token == token {
			return &inv, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Invitations) SetStatus(ctx context.Context, invitationID string, status teammodels.InvitationStatus) error {
	defer r.s.lock()()
	inv, ok := r.s.st.invitations[invitationID]
	if !ok || inv.Status != teammodels.InvitationPending {
		return repository.ErrNotFound
	}
	inv.Status = status
	r.s.st.invitations[invitationID] = inv
	return nil
}

type Activity struct{ s *Store }

func (r *Activity) Insert(ctx context.Context, log models.ActivityLog) error {
	defer r.s.lock()()
	if r.s.ActivityErr != nil {
		return r.s.ActivityErr
	}
	r.s.st.activity = append(r.s.st.activity, log)
	return nil
}

type Sessions struct{ s *Store }

func (r *Sessions) Create(ctx context.Context, sess models.Session) error {
	defer r.s.lock()()
	r.s.st.sessions[sess.Token] = sess
	return nil
}

func (r *Sessions) Get(ctx context.Context, token string) (*models.Session, error) {
	defer r.s.lock()()
	sess, ok := r.s.st.sessions[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sess, nil
}

func (r *Sessions) Delete(ctx context.Context, token string) error {
	defer r.s.lock()()
	delete(r.s.st.sessions, token)
	return nil
}

func (r *Sessions) DeleteForUser(ctx context.Context, userID string) error {
	defer r.s.lock()()
	for token, sess := range r.s.st.sessions {
		if sess.UserID == userID {
			delete(r.s.st.sessions, token)
		}
	}
	return nil
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}
