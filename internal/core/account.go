package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edvin/idp/internal/model"
	"github.com/edvin/idp/internal/platform"
)

// AccountService manages resource-owner accounts: native registration,
// federated linking, visibility listing and deletion with the last-admin
// floor.
type AccountService struct {
	db            DB
	credentials   *CredentialService
	roles         *RoleService
	adminClientID string
}

func NewAccountService(db DB, credentials *CredentialService, roles *RoleService, adminClientID string) *AccountService {
	return &AccountService{
		db:            db,
		credentials:   credentials,
		roles:         roles,
		adminClientID: adminClientID,
	}
}

// Create registers a native account with its credential, grants the default
// user role and, when no server administrator exists yet, the bootstrap
// admin role. The last-admin floor guarantees the admin set never empties
// afterwards, so the bootstrap grant fires exactly for the first account.
func (s *AccountService) Create(ctx context.Context, email, displayName, username, password string) (*model.Account, error) {
	account := &model.Account{
		ID:          platform.NewID(),
		Email:       email,
		DisplayName: displayName,
		Provider:    model.ProviderNative,
		CreatedAt:   time.Now(),
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO accounts (id, email, display_name, email_verified, provider, created_at)
		 VALUES ($1, $2, $3, false, $4, $5)
		 ON CONFLICT (email) DO NOTHING`,
		account.ID, account.Email, account.DisplayName, account.Provider, account.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, newError(KindConflict, OAuthErrInvalidRequest, "email already registered")
	}

	if err := s.credentials.Create(ctx, account.ID, username, password); err != nil {
		// Roll the account back so a taken username does not leave an
		// orphaned account without credentials.
		s.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, account.ID)
		return nil, err
	}

	if err := s.grantInitialRoles(ctx, account.ID); err != nil {
		return nil, err
	}

	return account, nil
}

// GetOrCreateFederated resolves an external identity to an account. An
// existing account with the same email is linked to the provider subject;
// otherwise a federated account is created with the same initial roles as a
// native registration.
func (s *AccountService) GetOrCreateFederated(ctx context.Context, provider model.AuthProvider, identity *ExternalIdentity) (*model.Account, error) {
	existing, err := s.GetByEmail(ctx, identity.Email)
	if err == nil {
		if existing.ProviderSubject == nil {
			_, err := s.db.Exec(ctx,
				`UPDATE accounts SET provider_subject = $2, email_verified = email_verified OR $3
				 WHERE id = $1`,
				existing.ID, identity.Subject, identity.EmailVerified,
			)
			if err != nil {
				return nil, fmt.Errorf("link federated identity: %w", err)
			}
		}
		return existing, nil
	}
	var coreErr *Error
	if !errors.As(err, &coreErr) || coreErr.Kind != KindNotFound {
		return nil, err
	}

	account := &model.Account{
		ID:              platform.NewID(),
		Email:           identity.Email,
		DisplayName:     identity.Name,
		EmailVerified:   identity.EmailVerified,
		Provider:        provider,
		ProviderSubject: &identity.Subject,
		CreatedAt:       time.Now(),
	}
	if identity.Picture != "" {
		account.PictureURI = &identity.Picture
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO accounts (id, email, display_name, email_verified, provider, provider_subject, picture_uri, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.Email, account.DisplayName, account.EmailVerified,
		account.Provider, account.ProviderSubject, account.PictureURI, account.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert federated account: %w", err)
	}

	if err := s.grantInitialRoles(ctx, account.ID); err != nil {
		return nil, err
	}

	return account, nil
}

// grantInitialRoles gives every new account the default user role and
// bootstraps the admin role while no server administrator exists.
func (s *AccountService) grantInitialRoles(ctx context.Context, accountID string) error {
	if err := s.roles.grant(ctx, accountID, s.adminClientID, model.RoleUser); err != nil {
		return err
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO account_roles (account_id, client_id, role, created_at)
		 SELECT $1, $2, $3, now()
		 WHERE NOT EXISTS (SELECT 1 FROM account_roles WHERE client_id = $2 AND role = $3)`,
		accountID, s.adminClientID, model.RoleAdmin,
	)
	if err != nil {
		return fmt.Errorf("bootstrap admin role: %w", err)
	}
	return nil
}

// GetByID retrieves an account by id.
func (s *AccountService) GetByID(ctx context.Context, id string) (*model.Account, error) {
	return s.getBy(ctx, "id", id)
}

// GetByEmail retrieves an account by its unique email.
func (s *AccountService) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	return s.getBy(ctx, "email", email)
}

func (s *AccountService) getBy(ctx context.Context, column, value string) (*model.Account, error) {
	var a model.Account
	err := s.db.QueryRow(ctx,
		`SELECT id, email, display_name, email_verified, provider, provider_subject, picture_uri, created_at
		 FROM accounts WHERE `+column+` = $1`, value,
	).Scan(&a.ID, &a.Email, &a.DisplayName, &a.EmailVerified,
		&a.Provider, &a.ProviderSubject, &a.PictureURI, &a.CreatedAt)
	if err != nil {
		return nil, wrapError(KindNotFound, OAuthErrInvalidRequest, "account not found", err)
	}
	return &a, nil
}

// ListVisible retrieves the accounts the caller may see: an admin sees all,
// a manager (any non-user role) sees accounts sharing a client with it plus
// itself, a plain user sees only itself.
func (s *AccountService) ListVisible(ctx context.Context, callerID string) ([]model.Account, error) {
	isAdmin, err := s.roles.IsAdmin(ctx, callerID)
	if err != nil {
		return nil, err
	}

	var query string
	var args []any
	switch {
	case isAdmin:
		query = `SELECT id, email, display_name, email_verified, provider, provider_subject, picture_uri, created_at
			 FROM accounts ORDER BY created_at`
	default:
		manager, err := s.isManager(ctx, callerID)
		if err != nil {
			return nil, err
		}
		if manager {
			query = `SELECT DISTINCT a.id, a.email, a.display_name, a.email_verified, a.provider, a.provider_subject, a.picture_uri, a.created_at
				 FROM accounts a
				 JOIN account_roles r ON r.account_id = a.id
				 WHERE r.client_id IN (SELECT client_id FROM account_roles WHERE account_id = $1)
				    OR a.id = $1
				 ORDER BY a.created_at`
		} else {
			query = `SELECT id, email, display_name, email_verified, provider, provider_subject, picture_uri, created_at
				 FROM accounts WHERE id = $1`
		}
		args = append(args, callerID)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list visible accounts for %s: %w", callerID, err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.Email, &a.DisplayName, &a.EmailVerified,
			&a.Provider, &a.ProviderSubject, &a.PictureURI, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// isManager reports whether the account holds any role other than the
// default user role.
func (s *AccountService) isManager(ctx context.Context, accountID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM account_roles
		 WHERE account_id = $1 AND role <> $2)`,
		accountID, model.RoleUser,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check manager for account %s: %w", accountID, err)
	}
	return exists, nil
}

// Delete removes an account and cascades its credential, roles and
// federated link. Deleting the sole remaining holder of the server admin
// role is refused; the guard and the delete are one statement.
func (s *AccountService) Delete(ctx context.Context, accountID string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM accounts
		 WHERE id = $1
		   AND NOT (
		     EXISTS (SELECT 1 FROM account_roles r
		             WHERE r.account_id = $1 AND r.client_id = $2 AND r.role = $3)
		     AND (SELECT count(*) FROM account_roles r2
		          WHERE r2.client_id = $2 AND r2.role = $3) = 1
		   )`,
		accountID, s.adminClientID, model.RoleAdmin,
	)
	if err != nil {
		return fmt.Errorf("delete account %s: %w", accountID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check account %s: %w", accountID, err)
	}
	if exists {
		return newError(KindConflict, OAuthErrInvalidRequest,
			"cannot delete the last server administrator")
	}
	return newError(KindNotFound, OAuthErrInvalidRequest, "account not found")
}
