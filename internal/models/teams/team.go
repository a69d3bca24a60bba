package teammodels

import (
	"time"

	usermodels "github.com/nikhil/saasbase/internal/models/users"
)

const (
	RoleOwner  = usermodels.RoleOwner
	RoleMember = usermodels.RoleMember

	// InvitationTTL is how long a pending invitation can be accepted.
	InvitationTTL = 24 * time.Hour
)

// Team is a tenant. Billing fields stay nil until a subscription exists.
type Team struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
	StripeCustomerID     *string   `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string   `json:"stripe_subscription_id,omitempty"`
	StripeProductID      *string   `json:"stripe_product_id,omitempty"`
	PlanName             *string   `json:"plan_name,omitempty"`
	SubscriptionStatus   *string   `json:"subscription_status,omitempty"`
}

// TeamMember represents a team membership with role
type TeamMember struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	TeamID   string    `json:"team_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func (m TeamMember) IsOwner() bool {
	return m.Role == RoleOwner
}

type MemberWithUser struct {
	TeamMember
	User usermodels.Summary `json:"user"`
}

type TeamWithMembers struct {
	Team
	Members []MemberWithUser `json:"members"`
}

// UserWithTeam is a user row left-joined to its membership and team.
// Team and Member are nil when the user has not joined a team.
type UserWithTeam struct {
	User   usermodels.User
	Team   *Team
	Member *TeamMember
}

func (u UserWithTeam) TeamID() string {
	if u.Team == nil {
		return ""
	}
	return u.Team.ID
}

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation is a pending request for an email address to join a team.
type Invitation struct {
	ID        string           `json:"id"`
	TeamID    string           `json:"team_id"`
	Email     string           `json:"email"`
	Role      string           `json:"role"`
	InvitedBy string           `json:"invited_by"`
	InvitedAt time.Time        `json:"invited_at"`
	ExpiresAt time.Time        `json:"expires_at"`
	Token     string           `json:"-"`
	Status    InvitationStatus `json:"status"`
}

// Expired reports whether the acceptance window closed at or before now.
func (i Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// Field is one column of a partial update. Unset fields are left untouched;
// a set field with a nil Value writes NULL.
type Field struct {
	Set   bool
	Value *string
}

func Value(s string) Field {
	return Field{Set: true, Value: &s}
}

func Null() Field {
	return Field{Set: true}
}

// SubscriptionUpdate carries the billing columns to change on a team.
type SubscriptionUpdate struct {
	StripeCustomerID     Field
	StripeSubscriptionID Field
	StripeProductID      Field
	PlanName             Field
	SubscriptionStatus   Field
}
