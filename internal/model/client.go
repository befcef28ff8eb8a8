package model

import "time"

// OAuthClient is a registered client application. Only confidential clients
// are supported and PKCE is mandatory for all of them.
type OAuthClient struct {
	ID            string    `json:"id"`
	ClientID      string    `json:"client_id"`
	DisplayName   string    `json:"display_name"`
	Confidential  bool      `json:"confidential"`
	RedirectURIs  []string  `json:"redirect_uris"`
	AllowedScopes []string  `json:"allowed_scopes"`
	RequirePKCE   bool      `json:"require_pkce"`
	CreatedAt     time.Time `json:"created_at"`
}

// AllowsRedirectURI reports whether the URI is in the client's allow-list.
// Exact string match only; no prefix or wildcard matching.
func (c *OAuthClient) AllowsRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AllowsScopes reports whether every requested scope is in the client's
// allowed set. An empty request is always allowed.
func (c *OAuthClient) AllowsScopes(requested []string) bool {
	for _, want := range requested {
		found := false
		for _, have := range c.AllowedScopes {
			if have == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ClientSecret is one rotation entry for a client. Multiple secrets may be
// simultaneously active.
type ClientSecret struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"client_id"`
	SecretHash  string     `json:"-"`
	Description string     `json:"description"`
	Active      bool       `json:"active"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Usable reports whether the secret may satisfy a verification attempt.
func (s *ClientSecret) Usable(now time.Time) bool {
	if !s.Active {
		return false
	}
	if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
		return false
	}
	return true
}
