package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/edvin/idp/internal/model"
	"github.com/edvin/idp/internal/platform"
)

// ClientSecretService manages the rotating secret set of a confidential
// client. Verification mirrors password checking but without lockout.
type ClientSecretService struct {
	db         DB
	bcryptCost int
}

func NewClientSecretService(db DB, bcryptCost int) *ClientSecretService {
	return &ClientSecretService{db: db, bcryptCost: bcryptCost}
}

// Create mints a new secret for the client and returns it in plaintext
// exactly once. The stored row only carries the hash.
func (s *ClientSecretService) Create(ctx context.Context, clientID, description, createdBy string, expiresAt *time.Time) (*model.ClientSecret, string, error) {
	plaintext := platform.NewToken()

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash client secret: %w", err)
	}

	secret := &model.ClientSecret{
		ID:          platform.NewID(),
		ClientID:    clientID,
		SecretHash:  string(hash),
		Description: description,
		Active:      true,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO client_secrets (id, client_id, secret_hash, description, active, created_by, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		secret.ID, secret.ClientID, secret.SecretHash, secret.Description,
		secret.Active, secret.CreatedBy, secret.CreatedAt, secret.ExpiresAt,
	)
	if err != nil {
		return nil, "", fmt.Errorf("insert client secret: %w", err)
	}

	return secret, plaintext, nil
}

// Matches reports whether the plaintext verifies against any active,
// unexpired secret of the client. First match wins.
func (s *ClientSecretService) Matches(ctx context.Context, clientID, plaintext string) (bool, error) {
	rows, err := s.db.Query(ctx,
		`SELECT secret_hash FROM client_secrets
		 WHERE client_id = $1 AND active = true
		   AND (expires_at IS NULL OR expires_at > now())`,
		clientID,
	)
	if err != nil {
		return false, fmt.Errorf("list active secrets for client %s: %w", clientID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return false, fmt.Errorf("scan client secret: %w", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate client secrets: %w", err)
	}

	return false, nil
}

// Revoke deactivates a secret. Revoking the last active secret of a client
// is refused; the guard and the flip happen in one statement so concurrent
// revocations cannot strand a client without credentials.
func (s *ClientSecretService) Revoke(ctx context.Context, secretID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE client_secrets SET active = false
		 WHERE id = $1 AND active = true
		   AND (SELECT count(*) FROM client_secrets s2
		        WHERE s2.client_id = client_secrets.client_id AND s2.active = true) > 1`,
		secretID,
	)
	if err != nil {
		return fmt.Errorf("revoke client secret %s: %w", secretID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var active bool
	err = s.db.QueryRow(ctx,
		`SELECT active FROM client_secrets WHERE id = $1`, secretID,
	).Scan(&active)
	if err != nil {
		return newError(KindNotFound, OAuthErrInvalidRequest, "client secret not found")
	}
	if active {
		return newError(KindConflict, OAuthErrInvalidRequest,
			"cannot revoke the last active secret of a client")
	}
	return nil
}

// Delete permanently removes a secret. Refused while the secret is active.
func (s *ClientSecretService) Delete(ctx context.Context, secretID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM client_secrets WHERE id = $1 AND active = false`, secretID,
	)
	if err != nil {
		return fmt.Errorf("delete client secret %s: %w", secretID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRow(ctx,
		`SELECT true FROM client_secrets WHERE id = $1`, secretID,
	).Scan(&exists)
	if err != nil {
		return newError(KindNotFound, OAuthErrInvalidRequest, "client secret not found")
	}
	return newError(KindConflict, OAuthErrInvalidRequest,
		"secret must be revoked before it can be deleted")
}

// ListByClient retrieves all secrets of a client, newest first.
func (s *ClientSecretService) ListByClient(ctx context.Context, clientID string) ([]model.ClientSecret, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, client_id, description, active, created_by, created_at, expires_at
		 FROM client_secrets WHERE client_id = $1 ORDER BY created_at DESC`,
		clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list secrets for client %s: %w", clientID, err)
	}
	defer rows.Close()

	var secrets []model.ClientSecret
	for rows.Next() {
		var sec model.ClientSecret
		if err := rows.Scan(&sec.ID, &sec.ClientID, &sec.Description,
			&sec.Active, &sec.CreatedBy, &sec.CreatedAt, &sec.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan client secret: %w", err)
		}
		secrets = append(secrets, sec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client secrets: %w", err)
	}
	return secrets, nil
}
