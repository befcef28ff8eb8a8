package model

import "time"

// RevokedToken is one append-only revocation record. TokenID is either a
// token's jti or a synthetic identifier derived from a compromised
// authorization code.
type RevokedToken struct {
	ID        string    `json:"id"`
	TokenID   string    `json:"token_id"`
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revoked_at"`
	CreatedAt time.Time `json:"created_at"`
}

// CompromisedCodeTokenID derives the synthetic revocation identifier for an
// authorization code whose single-use invariant was violated.
func CompromisedCodeTokenID(codeID string) string {
	return "code:" + codeID
}
