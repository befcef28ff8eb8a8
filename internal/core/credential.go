package core

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/edvin/idp/internal/model"
)

// CredentialService owns password hashing, verification and the lockout
// counters for native accounts.
type CredentialService struct {
	db               DB
	bcryptCost       int
	lockoutThreshold int
	lockoutDuration  time.Duration
}

func NewCredentialService(db DB, bcryptCost, lockoutThreshold int, lockoutDuration time.Duration) *CredentialService {
	return &CredentialService{
		db:               db,
		bcryptCost:       bcryptCost,
		lockoutThreshold: lockoutThreshold,
		lockoutDuration:  lockoutDuration,
	}
}

// Create hashes the password and inserts the credential row for an account.
func (s *CredentialService) Create(ctx context.Context, accountID, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO credentials (account_id, username, password_hash, failed_attempts, updated_at)
		 VALUES ($1, $2, $3, 0, now())
		 ON CONFLICT (username) DO NOTHING`,
		accountID, username, string(hash),
	)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return newError(KindConflict, OAuthErrInvalidRequest, "username already taken")
	}
	return nil
}

// Authenticate verifies a username/password pair and returns the account id.
// Unknown usernames and wrong passwords are indistinguishable to the caller;
// only the lock state surfaces separately. Each mismatch increments the
// failed-attempt counter in a single atomic update, locking the account when
// the threshold is reached. A success resets the counter and clears the lock.
func (s *CredentialService) Authenticate(ctx context.Context, username, password string) (string, error) {
	var cred model.Credential
	err := s.db.QueryRow(ctx,
		`SELECT account_id, username, password_hash, failed_attempts, locked_until
		 FROM credentials WHERE username = $1`, username,
	).Scan(&cred.AccountID, &cred.Username, &cred.PasswordHash, &cred.FailedAttempts, &cred.LockedUntil)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	if cred.Locked(now) {
		return "", ErrAccountLocked
	}

	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		if err := s.recordFailure(ctx, username, now); err != nil {
			return "", err
		}
		return "", ErrInvalidCredentials
	}

	_, err = s.db.Exec(ctx,
		`UPDATE credentials SET failed_attempts = 0, locked_until = NULL, updated_at = now()
		 WHERE username = $1`, username,
	)
	if err != nil {
		return "", fmt.Errorf("reset failed attempts for %s: %w", username, err)
	}

	return cred.AccountID, nil
}

// recordFailure bumps the counter and sets the lock expiry once the
// threshold is reached, in one statement so concurrent attempts cannot lose
// increments.
func (s *CredentialService) recordFailure(ctx context.Context, username string, now time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE credentials
		 SET failed_attempts = failed_attempts + 1,
		     locked_until = CASE WHEN failed_attempts + 1 >= $2 THEN $3 ELSE locked_until END,
		     updated_at = now()
		 WHERE username = $1`,
		username, s.lockoutThreshold, now.Add(s.lockoutDuration),
	)
	if err != nil {
		return fmt.Errorf("record failed attempt for %s: %w", username, err)
	}
	return nil
}

// GetByAccount retrieves the credential owned by an account.
func (s *CredentialService) GetByAccount(ctx context.Context, accountID string) (*model.Credential, error) {
	var cred model.Credential
	err := s.db.QueryRow(ctx,
		`SELECT account_id, username, password_hash, failed_attempts, locked_until, updated_at
		 FROM credentials WHERE account_id = $1`, accountID,
	).Scan(&cred.AccountID, &cred.Username, &cred.PasswordHash,
		&cred.FailedAttempts, &cred.LockedUntil, &cred.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get credential for account %s: %w", accountID, err)
	}
	return &cred, nil
}
