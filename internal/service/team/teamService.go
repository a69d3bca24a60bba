package teamService

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/nikhil/saasbase/internal/service/billing"
	"github.com/nikhil/saasbase/internal/service/notify"
)

const (
	msgAlreadyHaveTeam    = "You already have a team"
	msgNotMember          = "You are not a member of any team"
	msgOwnerOnlyInvite    = "Only team owners can invite members"
	msgOwnerOnlyRemove    = "Only team owners can remove members"
	msgAlreadyMember      = "User is already a member of this team"
	msgInvalidInvitation  = "Invalid invitation"
	msgInvitationUsed     = "Invitation is no longer valid"
	msgInvitationExpired  = "Invitation has expired"
	msgInvitationMismatch = "Invitation was sent to a different email"
	msgMemberNotFound     = "Member not found"
	msgCannotRemoveSelf   = "You cannot remove yourself"
	msgInvalidRedirect    = "Invalid redirect path"
	msgTeamCreated        = "Team created successfully"
	msgInvitationSent     = "Invitation sent successfully"
	msgInvitationAccepted = "Invitation accepted successfully"
	msgMemberRemoved      = "Member removed successfully"
)

type TeamStore interface {
	CreateTeam(ctx context.Context, team teammodels.Team) error
	AddMember(ctx context.Context, member teammodels.TeamMember) error
	GetMember(ctx context.Context, memberID string) (*teammodels.TeamMember, error)
	GetMemberByUserID(ctx context.Context, userID string) (*teammodels.TeamMember, error)
	UpdateMemberRole(ctx context.Context, memberID, role string) error
	RemoveMember(ctx context.Context, memberID string) error
	GetUserWithTeam(ctx context.Context, userID string) (*teammodels.UserWithTeam, error)
	GetTeamForUser(ctx context.Context, userID string) (*teammodels.TeamWithMembers, error)
	ListTeamMembers(ctx context.Context, teamID string) ([]teammodels.MemberWithUser, error)
	GetActivityLogs(ctx context.Context, teamID string) ([]models.ActivityEntry, error)
}

type UserStore interface {
	GetActiveByEmail(ctx context.Context, email string) (*usermodels.User, error)
}

type InvitationStore interface {
	Create(ctx context.Context, inv teammodels.Invitation) error
	GetByToken(ctx context.Context, token string) (*teammodels.Invitation, error)
	SetStatus(ctx context.Context, invitationID string, status teammodels.InvitationStatus) error
}

type ActivityRecorder interface {
	Append(ctx context.Context, teamID, userID string, activityType models.ActivityType, ip string) (*models.ActivityLog, error)
	Publish(entries ...*models.ActivityLog)
}

type Checkout interface {
	CreateCheckoutSession(ctx context.Context, p billing.CheckoutParams) (string, error)
}

// FeedDisconnector drops live feed connections of a removed member.
type FeedDisconnector interface {
	DisconnectUser(teamID, userID string)
}

// TeamService handles team-related operations
type TeamService struct {
	teams       TeamStore
	users       UserStore
	invitations InvitationStore
	activity    ActivityRecorder
	tx          database.TransactionManagerInterface
	checkout    Checkout
	notifier    notify.Notifier
	feed        FeedDisconnector

	now      func() time.Time
	newID    func() string
	newToken func() string

	Log *logger.Logger
}

// Deps lists the collaborators of TeamService. Checkout, Notifier and Feed
// are optional.
type Deps struct {
	Teams       TeamStore
	Users       UserStore
	Invitations InvitationStore
	Activity    ActivityRecorder
	Tx          database.TransactionManagerInterface
	Checkout    Checkout
	Notifier    notify.Notifier
	Feed        FeedDisconnector
	Log         *logger.Logger
}

// NewTeamService initializes a new team service
func NewTeamService(d Deps) *TeamService {
	return &TeamService{
		teams:       d.Teams,
		users:       d.Users,
		invitations: d.Invitations,
		activity:    d.Activity,
		tx:          d.Tx,
		checkout:    d.Checkout,
		notifier:    d.Notifier,
		feed:        d.Feed,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		newToken:    uuid.NewString,
		Log:         d.Log.Named("team-service"),
	}
}

// CreateTeamInput is the create-team form.
type CreateTeamInput struct {
	Name     string `schema:"name" label:"Team name" validate:"required,min=1,max=100"`
	PriceID  string `schema:"priceId"`
	Redirect string `schema:"redirect" label:"Redirect" validate:"omitempty,startswith=/"`
}

type InviteMemberInput struct {
	Email string `schema:"email" label:"Email" validate:"required,email"`
	Role  string `schema:"role" label:"Role" validate:"required,oneof=member owner"`
}

type AcceptInvitationInput struct {
	Token string `schema:"token" label:"Invitation token" validate:"required"`
}

type RemoveMemberInput struct {
	MemberID string `schema:"memberId" label:"Member" validate:"required"`
}

// CreateTeam creates a team owned by the caller. The membership check and
// the inserts share one transaction; the unique user_id key on team_members
// turns a lost race into the same "already have a team" result.
func (ts *TeamService) CreateTeam(ctx context.Context, in CreateTeamInput, _ url.Values, user *usermodels.User) (action.Result, error) {
	log := ts.Log.WithContext(ctx).WithUser(user.ID)

	if in.Redirect != "" && !action.SafePath(in.Redirect) {
		return action.Error(msgInvalidRedirect), nil
	}

	var (
		result  action.Result
		created *teammodels.Team
		event   *models.ActivityLog
	)
	err := ts.tx.Do(ctx, func(ctx context.Context) error {
		existing, err := ts.teams.GetUserWithTeam(ctx, user.ID)
		if err != nil {
			return err
		}
		if existing.Team != nil {
			result = action.Error(msgAlreadyHaveTeam)
			return nil
		}

		now := ts.now()
		team := teammodels.Team{ID: ts.newID(), Name: in.Name, CreatedAt: now, UpdatedAt: now}
		if err := ts.teams.CreateTeam(ctx, team); err != nil {
			return err
		}
		owner := teammodels.TeamMember{ID: ts.newID(), UserID: user.ID, TeamID: team.ID, Role: teammodels.RoleOwner, JoinedAt: now}
		if err := ts.teams.AddMember(ctx, owner); err != nil {
			return err
		}
		event, err = ts.activity.Append(ctx, team.ID, user.ID, models.ActivityCreateTeam, action.ClientIP(ctx))
		if err != nil {
			return err
		}
		created = &team
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		log.Info("Concurrent team creation rejected")
		return action.Error(msgAlreadyHaveTeam), nil
	}
	if err != nil {
		log.Error("Failed to create team", "error", err)
		return action.Result{}, fmt.Errorf("create team: %w", err)
	}
	if created == nil {
		return result, nil
	}

	ts.activity.Publish(event)
	log.Info("Team created", "team_id", created.ID)

	if in.PriceID != "" && ts.checkout != nil {
		checkoutURL, err := ts.checkout.CreateCheckoutSession(ctx, billing.CheckoutParams{
			PriceID:           in.PriceID,
			ClientReferenceID: user.ID,
			CustomerID:        deref(created.StripeCustomerID),
		})
		if err == nil {
			return action.Redirect(checkoutURL), nil
		}
		log.Warn("Checkout session not created", "error", err, "price_id", in.PriceID)
	}
	if in.Redirect != "" {
		return action.Redirect(in.Redirect), nil
	}
	return action.Success(msgTeamCreated), nil
}

// InviteMember creates a pending invitation for an email address. Only team
// owners may invite.
func (ts *TeamService) InviteMember(ctx context.Context, in InviteMemberInput, _ url.Values, user *usermodels.User) (action.Result, error) {
	log := ts.Log.WithContext(ctx).WithUser(user.ID)

	email := strings.ToLower(strings.TrimSpace(in.Email))
	var (
		result action.Result
		invite *teammodels.Invitation
		team   *teammodels.Team
		event  *models.ActivityLog
	)
	err := ts.tx.Do(ctx, func(ctx context.Context) error {
		caller, err := ts.teams.GetUserWithTeam(ctx, user.ID)
		if err != nil {
			return err
		}
		if caller.Team == nil || caller.Member == nil {
			result = action.Error(msgNotMember)
			return nil
		}
		if !caller.Member.IsOwner() {
			result = action.Error(msgOwnerOnlyInvite)
			return nil
		}

		isMember, err := ts.isMemberOf(ctx, email, caller.Team.ID)
		if err != nil {
			return err
		}
		if isMember {
			result = action.Error(msgAlreadyMember)
			return nil
		}

		now := ts.now()
		inv := teammodels.Invitation{
			ID:        ts.newID(),
			TeamID:    caller.Team.ID,
			Email:     email,
			Role:      in.Role,
			InvitedBy: user.ID,
			InvitedAt: now,
			ExpiresAt: now.Add(teammodels.InvitationTTL),
			Token:     ts.newToken(),
			Status:    teammodels.InvitationPending,
		}
		if err := ts.invitations.Create(ctx, inv); err != nil {
			return err
		}
		event, err = ts.activity.Append(ctx, caller.Team.ID, user.ID, models.ActivityInviteTeamMember, action.ClientIP(ctx))
		if err != nil {
			return err
		}
		invite, team = &inv, caller.Team
		return nil
	})
	if err != nil {
		log.Error("Failed to invite member", "error", err)
		return action.Result{}, fmt.Errorf("invite member: %w", err)
	}
	if invite == nil {
		return result, nil
	}

	ts.activity.Publish(event)
	log.Audit("Invitation created", "team_id", team.ID, "invitation_id", invite.ID, "role", invite.Role)

	if ts.notifier != nil {
		err := ts.notifier.SendInvitation(ctx, notify.Invitation{
			Email:       invite.Email,
			Token:       invite.Token,
			TeamID:      team.ID,
			TeamName:    team.Name,
			InviterName: user.DisplayName(),
			Role:        invite.Role,
		})
		if err != nil {
			log.Warn("Invitation delivery failed", "error", err, "invitation_id", invite.ID)
		}
	}
	return action.Success(msgInvitationSent), nil
}

func (ts *TeamService) isMemberOf(ctx context.Context, email, teamID string) (bool, error) {
	existing, err := ts.users.GetActiveByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	member, err := ts.teams.GetMemberByUserID(ctx, existing.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return member.TeamID == teamID, nil
}

// AcceptInvitation joins the caller to the inviting team. A pending
// invitation past its expiry is marked expired and rejected.
func (ts *TeamService) AcceptInvitation(ctx context.Context, in AcceptInvitationInput, _ url.Values, user *usermodels.User) (action.Result, error) {
	log := ts.Log.WithContext(ctx).WithUser(user.ID)

	var (
		result   action.Result
		accepted *teammodels.Invitation
		event    *models.ActivityLog
	)
	err := ts.tx.Do(ctx, func(ctx context.Context) error {
		inv, err := ts.invitations.GetByToken(ctx, in.Token)
		if errors.Is(err, repository.ErrNotFound) {
			result = action.Error(msgInvalidInvitation)
			return nil
		}
		if err != nil {
			return err
		}
		if inv.Status != teammodels.InvitationPending {
			result = action.Error(msgInvitationUsed)
			return nil
		}
		if inv.Expired(ts.now()) {
			if err := ts.invitations.SetStatus(ctx, inv.ID, teammodels.InvitationExpired); err != nil {
				return err
			}
			result = action.Error(msgInvitationExpired)
			return nil
		}
		if !strings.EqualFold(inv.Email, user.Email) {
			result = action.Error(msgInvitationMismatch)
			return nil
		}

		member, err := ts.teams.GetMemberByUserID(ctx, user.ID)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			joined := teammodels.TeamMember{ID: ts.newID(), UserID: user.ID, TeamID: inv.TeamID, Role: inv.Role, JoinedAt: ts.now()}
			if err := ts.teams.AddMember(ctx, joined); err != nil {
				return err
			}
		case err != nil:
			return err
		case member.TeamID != inv.TeamID:
			result = action.Error(msgAlreadyHaveTeam)
			return nil
		case inv.Role == teammodels.RoleOwner && !member.IsOwner():
			if err := ts.teams.UpdateMemberRole(ctx, member.ID, inv.Role); err != nil {
				return err
			}
		}

		if err := ts.invitations.SetStatus(ctx, inv.ID, teammodels.InvitationAccepted); err != nil {
			return err
		}
		event, err = ts.activity.Append(ctx, inv.TeamID, user.ID, models.ActivityAcceptInvitation, action.ClientIP(ctx))
		if err != nil {
			return err
		}
		accepted = inv
		return nil
	})
	if errors.Is(err, repository.ErrDuplicate) {
		return action.Error(msgAlreadyHaveTeam), nil
	}
	if err != nil {
		log.Error("Failed to accept invitation", "error", err)
		return action.Result{}, fmt.Errorf("accept invitation: %w", err)
	}
	if accepted == nil {
		if result.Kind == action.KindError && result.Message == msgInvitationExpired {
			log.Info("Expired invitation rejected")
		}
		return result, nil
	}

	ts.activity.Publish(event)
	log.Audit("Invitation accepted", "team_id", accepted.TeamID, "invitation_id", accepted.ID)
	return action.Success(msgInvitationAccepted), nil
}

// RemoveMember deletes another membership of the caller's team. Only owners
// may remove members and nobody may remove themselves.
func (ts *TeamService) RemoveMember(ctx context.Context, in RemoveMemberInput, _ url.Values, user *usermodels.User) (action.Result, error) {
	log := ts.Log.WithContext(ctx).WithUser(user.ID)

	var (
		result  action.Result
		removed *teammodels.TeamMember
		event   *models.ActivityLog
	)
	err := ts.tx.Do(ctx, func(ctx context.Context) error {
		caller, err := ts.teams.GetUserWithTeam(ctx, user.ID)
		if err != nil {
			return err
		}
		if caller.Team == nil || caller.Member == nil {
			result = action.Error(msgNotMember)
			return nil
		}
		if !caller.Member.IsOwner() {
			result = action.Error(msgOwnerOnlyRemove)
			return nil
		}

		target, err := ts.teams.GetMember(ctx, in.MemberID)
		if errors.Is(err, repository.ErrNotFound) {
			result = action.Error(msgMemberNotFound)
			return nil
		}
		if err != nil {
			return err
		}
		if target.TeamID != caller.Team.ID {
			result = action.Error(msgMemberNotFound)
			return nil
		}
		if target.UserID == user.ID {
			result = action.Error(msgCannotRemoveSelf)
			return nil
		}

		if err := ts.teams.RemoveMember(ctx, target.ID); err != nil {
			return err
		}
		event, err = ts.activity.Append(ctx, caller.Team.ID, user.ID, models.ActivityRemoveTeamMember, action.ClientIP(ctx))
		if err != nil {
			return err
		}
		removed = target
		return nil
	})
	if err != nil {
		log.Error("Failed to remove member", "error", err)
		return action.Result{}, fmt.Errorf("remove member: %w", err)
	}
	if removed == nil {
		return result, nil
	}

	ts.activity.Publish(event)
	if ts.feed != nil {
		ts.feed.DisconnectUser(removed.TeamID, removed.UserID)
	}
	log.Audit("Team member removed", "team_id", removed.TeamID, "member_id", removed.ID, "removed_user_id", removed.UserID)
	return action.Success(msgMemberRemoved), nil
}

// GetTeamForUser returns the caller's team with only the caller's own
// membership, or nil when the caller has no team.
func (ts *TeamService) GetTeamForUser(ctx context.Context, userID string) (*teammodels.TeamWithMembers, error) {
	team, err := ts.teams.GetTeamForUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return team, nil
}

// TeamDetails returns the caller's team with every member, or nil when the
// caller has no team.
func (ts *TeamService) TeamDetails(ctx context.Context, userID string) (*teammodels.TeamWithMembers, error) {
	caller, err := ts.teams.GetUserWithTeam(ctx, userID)
	if err != nil {
		return nil, err
	}
	if caller.Team == nil {
		return nil, nil
	}
	members, err := ts.teams.ListTeamMembers(ctx, caller.Team.ID)
	if err != nil {
		return nil, err
	}
	return &teammodels.TeamWithMembers{Team: *caller.Team, Members: members}, nil
}

// ActivityLogs returns the newest activity of the caller's team. A caller
// without a team gets an empty list.
func (ts *TeamService) ActivityLogs(ctx context.Context, userID string) ([]models.ActivityEntry, error) {
	caller, err := ts.teams.GetUserWithTeam(ctx, userID)
	if err != nil {
		return nil, err
	}
	if caller.Team == nil {
		return []models.ActivityEntry{}, nil
	}
	return ts.teams.GetActivityLogs(ctx, caller.Team.ID)
}

// TeamIDForUser returns the caller's team id, empty when the caller has no
// team.
func (ts *TeamService) TeamIDForUser(ctx context.Context, userID string) (string, error) {
	caller, err := ts.teams.GetUserWithTeam(ctx, userID)
	if err != nil {
		return "", err
	}
	return caller.TeamID(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
