package core

import (
	"context"
	"fmt"

	"github.com/edvin/idp/internal/model"
)

// RoleService maps accounts and service clients to roles and enforces the
// administrative guardrails around the server's own client.
type RoleService struct {
	db            DB
	adminClientID string
}

func NewRoleService(db DB, adminClientID string) *RoleService {
	return &RoleService{db: db, adminClientID: adminClientID}
}

// IsAdmin reports whether the account holds the admin role on the server's
// own administrative client.
func (s *RoleService) IsAdmin(ctx context.Context, accountID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM account_roles
		 WHERE account_id = $1 AND client_id = $2 AND role = $3)`,
		accountID, s.adminClientID, model.RoleAdmin,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check admin for account %s: %w", accountID, err)
	}
	return exists, nil
}

// HasAnyRoleForClient reports whether the account holds at least one role
// bound to the given client.
func (s *RoleService) HasAnyRoleForClient(ctx context.Context, accountID, clientID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM account_roles
		 WHERE account_id = $1 AND client_id = $2)`,
		accountID, clientID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check roles for account %s client %s: %w", accountID, clientID, err)
	}
	return exists, nil
}

// AddRole grants a role to an account for a client on behalf of the actor.
// Granting the admin role requires the actor to be a server admin. A
// non-admin actor may only grant roles for a client the target account is
// already a member of; admins bypass that restriction.
func (s *RoleService) AddRole(ctx context.Context, actorID, accountID, clientID, role string) error {
	actorIsAdmin, err := s.IsAdmin(ctx, actorID)
	if err != nil {
		return err
	}

	if role == model.RoleAdmin && !actorIsAdmin {
		return newError(KindForbidden, OAuthErrAccessDenied,
			"only a server administrator may grant the admin role")
	}

	if !actorIsAdmin {
		member, err := s.HasAnyRoleForClient(ctx, accountID, clientID)
		if err != nil {
			return err
		}
		if !member {
			return newError(KindForbidden, OAuthErrAccessDenied,
				"target account is not a member of this client")
		}
	}

	return s.grant(ctx, accountID, clientID, role)
}

// grant inserts the role triple without guardrails. Used internally by
// account creation (default and bootstrap grants).
func (s *RoleService) grant(ctx context.Context, accountID, clientID, role string) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO account_roles (account_id, client_id, role, created_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (account_id, client_id, role) DO NOTHING`,
		accountID, clientID, role,
	)
	if err != nil {
		return fmt.Errorf("insert role %s/%s for account %s: %w", clientID, role, accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return newError(KindConflict, OAuthErrInvalidRequest, "role already granted")
	}
	return nil
}

// RemoveRole revokes a role triple. Removing the last admin role bound to
// the server's own client is refused; the guard and the delete are one
// statement so concurrent removals cannot empty the admin set.
func (s *RoleService) RemoveRole(ctx context.Context, accountID, clientID, role string) error {
	if role == model.RoleAdmin && clientID == s.adminClientID {
		tag, err := s.db.Exec(ctx,
			`DELETE FROM account_roles
			 WHERE account_id = $1 AND client_id = $2 AND role = $3
			   AND (SELECT count(*) FROM account_roles r2
			        WHERE r2.client_id = $2 AND r2.role = $3) > 1`,
			accountID, clientID, role,
		)
		if err != nil {
			return fmt.Errorf("remove admin role for account %s: %w", accountID, err)
		}
		if tag.RowsAffected() > 0 {
			return nil
		}

		held, err := s.IsAdmin(ctx, accountID)
		if err != nil {
			return err
		}
		if held {
			return newError(KindConflict, OAuthErrInvalidRequest,
				"cannot remove the last server administrator")
		}
		return newError(KindNotFound, OAuthErrInvalidRequest, "role not found")
	}

	tag, err := s.db.Exec(ctx,
		`DELETE FROM account_roles WHERE account_id = $1 AND client_id = $2 AND role = $3`,
		accountID, clientID, role,
	)
	if err != nil {
		return fmt.Errorf("remove role %s/%s for account %s: %w", clientID, role, accountID, err)
	}
	if tag.RowsAffected() == 0 {
		return newError(KindNotFound, OAuthErrInvalidRequest, "role not found")
	}
	return nil
}

// ListForAccount retrieves all role triples held by an account.
func (s *RoleService) ListForAccount(ctx context.Context, accountID string) ([]model.AccountRole, error) {
	rows, err := s.db.Query(ctx,
		`SELECT account_id, client_id, role, created_at
		 FROM account_roles WHERE account_id = $1 ORDER BY client_id, role`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list roles for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var roles []model.AccountRole
	for rows.Next() {
		var r model.AccountRole
		if err := rows.Scan(&r.AccountID, &r.ClientID, &r.Role, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account role: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account roles: %w", err)
	}
	return roles, nil
}

// ListForAccountClient retrieves the roles an account holds for one client.
func (s *RoleService) ListForAccountClient(ctx context.Context, accountID, clientID string) ([]model.AccountRole, error) {
	rows, err := s.db.Query(ctx,
		`SELECT account_id, client_id, role, created_at
		 FROM account_roles WHERE account_id = $1 AND client_id = $2 ORDER BY role`,
		accountID, clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list roles for account %s client %s: %w", accountID, clientID, err)
	}
	defer rows.Close()

	var roles []model.AccountRole
	for rows.Next() {
		var r model.AccountRole
		if err := rows.Scan(&r.AccountID, &r.ClientID, &r.Role, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan account role: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account roles: %w", err)
	}
	return roles, nil
}

// AddServiceRole grants a role to a machine client for client-credentials
// grants.
func (s *RoleService) AddServiceRole(ctx context.Context, clientID, role string) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO service_account_roles (client_id, role, created_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (client_id, role) DO NOTHING`,
		clientID, role,
	)
	if err != nil {
		return fmt.Errorf("insert service role %s for client %s: %w", role, clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return newError(KindConflict, OAuthErrInvalidRequest, "service role already granted")
	}
	return nil
}

// RemoveServiceRole revokes a machine-client role.
func (s *RoleService) RemoveServiceRole(ctx context.Context, clientID, role string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM service_account_roles WHERE client_id = $1 AND role = $2`,
		clientID, role,
	)
	if err != nil {
		return fmt.Errorf("remove service role %s for client %s: %w", role, clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return newError(KindNotFound, OAuthErrInvalidRequest, "service role not found")
	}
	return nil
}

// ListServiceRoles retrieves the roles of a machine client.
func (s *RoleService) ListServiceRoles(ctx context.Context, clientID string) ([]model.ServiceAccountRole, error) {
	rows, err := s.db.Query(ctx,
		`SELECT client_id, role, created_at
		 FROM service_account_roles WHERE client_id = $1 ORDER BY role`,
		clientID,
	)
	if err != nil {
		return nil, fmt.Errorf("list service roles for client %s: %w", clientID, err)
	}
	defer rows.Close()

	var roles []model.ServiceAccountRole
	for rows.Next() {
		var r model.ServiceAccountRole
		if err := rows.Scan(&r.ClientID, &r.Role, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan service role: %w", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service roles: %w", err)
	}
	return roles, nil
}
