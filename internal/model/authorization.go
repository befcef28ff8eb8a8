package model

import "time"

// Authorization request states. A denied request stays APPROVED but never
// produces a code; consumption is tracked on the code itself.
const (
	AuthRequestPending  = "pending"
	AuthRequestApproved = "approved"
)

// PKCE challenge methods.
const (
	PKCEMethodS256  = "S256"
	PKCEMethodPlain = "plain"
)

// AuthorizationRequest is one in-flight trip through the authorize →
// authenticate → consent state machine. Short-lived.
type AuthorizationRequest struct {
	ID                  string       `json:"id"`
	ClientID            string       `json:"client_id"`
	RedirectURI         string       `json:"redirect_uri"`
	Scope               string       `json:"scope"`
	State               string       `json:"state"`
	CodeChallenge       string       `json:"code_challenge"`
	CodeChallengeMethod string       `json:"code_challenge_method"`
	Status              string       `json:"status"`
	AccountID           *string      `json:"account_id,omitempty"`
	AuthMethod          AuthProvider `json:"auth_method,omitempty"`
	Denied              bool         `json:"denied"`
	CreatedAt           time.Time    `json:"created_at"`
	ExpiresAt           time.Time    `json:"expires_at"`
}

// Expired reports whether the request's TTL has elapsed.
func (r *AuthorizationRequest) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// AuthorizationCode is the single-use credential minted at consent. PKCE
// parameters are immutable copies of the owning request's.
type AuthorizationCode struct {
	ID                  string       `json:"id"`
	Code                string       `json:"-"`
	RequestID           string       `json:"request_id"`
	AccountID           string       `json:"account_id"`
	ClientID            string       `json:"client_id"`
	RedirectURI         string       `json:"redirect_uri"`
	Scope               string       `json:"scope"`
	CodeChallenge       string       `json:"code_challenge"`
	CodeChallengeMethod string       `json:"code_challenge_method"`
	AuthMethod          AuthProvider `json:"auth_method"`
	Used                bool         `json:"used"`
	TokenID             *string      `json:"token_id,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	ExpiresAt           time.Time    `json:"expires_at"`
}

// Expired reports whether the code's TTL has elapsed.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
