package core

import (
	"context"
	"fmt"

	"github.com/edvin/idp/internal/model"
	"github.com/edvin/idp/internal/platform"
)

// RevocationService is the append-only ledger of revoked token identifiers
// and compromised authorization codes. Records are never cleared.
type RevocationService struct {
	db DB
}

func NewRevocationService(db DB) *RevocationService {
	return &RevocationService{db: db}
}

// Revoke appends a revocation record for a token identifier. Idempotent.
func (s *RevocationService) Revoke(ctx context.Context, tokenID, reason string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO revoked_tokens (id, token_id, reason, revoked_at, created_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (token_id) DO NOTHING`,
		platform.NewID(), tokenID, reason,
	)
	if err != nil {
		return fmt.Errorf("revoke token %s: %w", tokenID, err)
	}
	return nil
}

// IsRevoked reports whether a token identifier has been revoked.
func (s *RevocationService) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE token_id = $1)`, tokenID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check revocation for %s: %w", tokenID, err)
	}
	return exists, nil
}

// RevokeByAuthorizationCode records a synthetic revocation keyed to a
// compromised authorization code. Used when the single-use invariant is
// violated; every token derived from the code is considered compromised.
// Idempotent beyond the audit trail.
func (s *RevocationService) RevokeByAuthorizationCode(ctx context.Context, codeID, reason string) error {
	return s.Revoke(ctx, model.CompromisedCodeTokenID(codeID), reason)
}

// IsCompromised reports whether an authorization code has been flagged as
// compromised.
func (s *RevocationService) IsCompromised(ctx context.Context, codeID string) (bool, error) {
	return s.IsRevoked(ctx, model.CompromisedCodeTokenID(codeID))
}
