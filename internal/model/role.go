package model

import "time"

const (
	// RoleUser is granted automatically to every account at creation.
	RoleUser = "user"
	// RoleAdmin on the server's own administrative client marks a server
	// administrator. The server always retains at least one holder.
	RoleAdmin = "admin"
)

// AccountRole binds an account to a role for a specific OAuth client.
// The (account, client, role) triple is unique.
type AccountRole struct {
	AccountID string    `json:"account_id"`
	ClientID  string    `json:"client_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// ServiceAccountRole binds a machine client used in client-credentials
// grants to a role. Independent of AccountRole.
type ServiceAccountRole struct {
	ClientID  string    `json:"client_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Group renders the role as it appears in a token's groups claim.
func (r AccountRole) Group() string { return r.ClientID + "_" + r.Role }

// Group renders the role as it appears in a token's groups claim.
func (r ServiceAccountRole) Group() string { return r.ClientID + "_" + r.Role }
