package models

import (
	"time"

	usermodels "github.com/nikhil/saasbase/internal/models/users"
)

type ActivityType string

const (
	ActivitySignUp           ActivityType = "SIGN_UP"
	ActivitySignIn           ActivityType = "SIGN_IN"
	ActivitySignOut          ActivityType = "SIGN_OUT"
	ActivityUpdatePassword   ActivityType = "UPDATE_PASSWORD"
	ActivityDeleteAccount    ActivityType = "DELETE_ACCOUNT"
	ActivityUpdateAccount    ActivityType = "UPDATE_ACCOUNT"
	ActivityCreateTeam       ActivityType = "CREATE_TEAM"
	ActivityRemoveTeamMember ActivityType = "REMOVE_TEAM_MEMBER"
	ActivityInviteTeamMember ActivityType = "INVITE_TEAM_MEMBER"
	ActivityAcceptInvitation ActivityType = "ACCEPT_INVITATION"
)

// ActivityLog is an append-only audit row.
type ActivityLog struct {
	ID        string       `json:"id"`
	TeamID    string       `json:"team_id"`
	UserID    *string      `json:"user_id,omitempty"`
	Action    ActivityType `json:"action"`
	IPAddress *string      `json:"ip_address,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ActivityEntry is an activity row joined to the acting user, if any.
type ActivityEntry struct {
	ID        string              `json:"id"`
	Action    ActivityType        `json:"action"`
	IPAddress *string             `json:"ip_address,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	User      *usermodels.Summary `json:"user"`
}
