package model

import "time"

// Account is a resource owner. Native accounts own exactly one Credential;
// federated accounts carry the external subject instead.
type Account struct {
	ID              string       `json:"id"`
	Email           string       `json:"email"`
	DisplayName     string       `json:"display_name"`
	EmailVerified   bool         `json:"email_verified"`
	Provider        AuthProvider `json:"provider"`
	ProviderSubject *string      `json:"provider_subject,omitempty"`
	PictureURI      *string      `json:"picture_uri,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Credential holds the password material for a native account. It is mutated
// on every authentication attempt and cascades with its Account.
type Credential struct {
	AccountID      string     `json:"account_id"`
	Username       string     `json:"username"`
	PasswordHash   string     `json:"-"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Locked reports whether the credential is inside a lockout window.
func (c *Credential) Locked(now time.Time) bool {
	return c.LockedUntil != nil && now.Before(*c.LockedUntil)
}
