package usermodels

import "time"

const (
	RoleMember = "member"
	RoleOwner  = "owner"
)

// User is an identity record. Users are never hard deleted; DeletedAt marks
// a soft-deleted account.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	Name          *string    `json:"name,omitempty"`
	Image         *string    `json:"image,omitempty"`
	EmailVerified *time.Time `json:"email_verified,omitempty"`
	Role          string     `json:"role"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"-"`
}

func (u User) IsDeleted() bool {
	return u.DeletedAt != nil
}

// DisplayName falls back to the email when the user never set a name.
func (u User) DisplayName() string {
	if u.Name != nil && *u.Name != "" {
		return *u.Name
	}
	return u.Email
}

// Summary is the minimal user projection attached to members and activity.
type Summary struct {
	ID    string  `json:"id"`
	Name  *string `json:"name"`
	Email string  `json:"email"`
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email}
}
