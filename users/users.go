package users

import "time"

// Status is the lifecycle state of an account.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusBanned    Status = "banned"
)

// User is the identity-service view of an account: the fields that feed
// claims assembly and eligibility checks. Profile editing, credentials and
// the membership directory live in other services.
type User struct {
	ID          string `json:"id,omitempty"`           // Local account id
	CanonicalID string `json:"canonical_id,omitempty"` // External identity UUID tied to the verified email

	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Username      string `json:"username,omitempty"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	Locale        string `json:"locale,omitempty"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	PhoneVerified bool   `json:"phone_verified,omitempty"`

	Status      Status `json:"status,omitempty"`
	SystemAdmin bool   `json:"system_admin,omitempty"`

	// PrivacyDenied lists scopes the user has blocked from ever being granted
	// to clients, regardless of what the client requests.
	PrivacyDenied []string `json:"privacy_denied,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Subject returns the stable OIDC subject for this user. The canonical
// identity UUID wins when the account's email is verified; otherwise the
// local id is used. The value must never change for the same human, so a
// CanonicalID is only ever assigned once.
func (u *User) Subject() string {
	if u.CanonicalID != "" && u.EmailVerified {
		return u.CanonicalID
	}
	return u.ID
}

// Suspended reports whether the account is suspended.
func (u *User) Suspended() bool {
	return u.Status == StatusSuspended
}

// Banned reports whether the account is banned.
func (u *User) Banned() bool {
	return u.Status == StatusBanned
}

// Name returns the display name used for the OIDC name claim.
func (u *User) Name() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return u.Username
	}
}

// DeniesScope reports whether the user has privacy-blocked a scope.
func (u *User) DeniesScope(scope string) bool {
	for _, denied := range u.PrivacyDenied {
		if denied == scope {
			return true
		}
	}
	return false
}
