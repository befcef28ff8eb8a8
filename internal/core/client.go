package core

import (
	"context"
	"fmt"

	"github.com/edvin/idp/internal/model"
)

// ClientService manages registered OAuth clients. Only confidential clients
// with mandatory PKCE are accepted; the server's own administrative client
// is protected from deletion.
type ClientService struct {
	db            DB
	adminClientID string
}

func NewClientService(db DB, adminClientID string) *ClientService {
	return &ClientService{db: db, adminClientID: adminClientID}
}

// Create registers a new client. Public clients are rejected and the
// PKCE-required flag is forced on.
func (s *ClientService) Create(ctx context.Context, client *model.OAuthClient) error {
	if !client.Confidential {
		return newError(KindValidation, OAuthErrInvalidRequest,
			"public clients are not supported")
	}
	client.RequirePKCE = true

	if len(client.RedirectURIs) == 0 {
		return newError(KindValidation, OAuthErrInvalidRequest,
			"at least one redirect URI is required")
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO oauth_clients (id, client_id, display_name, confidential, redirect_uris, allowed_scopes, require_pkce, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (client_id) DO NOTHING`,
		client.ID, client.ClientID, client.DisplayName, client.Confidential,
		client.RedirectURIs, client.AllowedScopes, client.RequirePKCE, client.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert client %s: %w", client.ClientID, err)
	}
	if tag.RowsAffected() == 0 {
		return newError(KindConflict, OAuthErrInvalidRequest, "client id already registered")
	}
	return nil
}

// GetByClientID retrieves a client by its public client id.
func (s *ClientService) GetByClientID(ctx context.Context, clientID string) (*model.OAuthClient, error) {
	var c model.OAuthClient
	err := s.db.QueryRow(ctx,
		`SELECT id, client_id, display_name, confidential, redirect_uris, allowed_scopes, require_pkce, created_at
		 FROM oauth_clients WHERE client_id = $1`, clientID,
	).Scan(&c.ID, &c.ClientID, &c.DisplayName, &c.Confidential,
		&c.RedirectURIs, &c.AllowedScopes, &c.RequirePKCE, &c.CreatedAt)
	if err != nil {
		return nil, wrapError(KindNotFound, OAuthErrInvalidClient, "unknown client", err)
	}
	return &c, nil
}

// List retrieves all registered clients.
func (s *ClientService) List(ctx context.Context) ([]model.OAuthClient, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, client_id, display_name, confidential, redirect_uris, allowed_scopes, require_pkce, created_at
		 FROM oauth_clients ORDER BY client_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var clients []model.OAuthClient
	for rows.Next() {
		var c model.OAuthClient
		if err := rows.Scan(&c.ID, &c.ClientID, &c.DisplayName, &c.Confidential,
			&c.RedirectURIs, &c.AllowedScopes, &c.RequirePKCE, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return clients, nil
}

// Update replaces the mutable fields of a client. The client id itself is
// immutable.
func (s *ClientService) Update(ctx context.Context, clientID, displayName string, redirectURIs, allowedScopes []string) error {
	if len(redirectURIs) == 0 {
		return newError(KindValidation, OAuthErrInvalidRequest,
			"at least one redirect URI is required")
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE oauth_clients SET display_name = $2, redirect_uris = $3, allowed_scopes = $4
		 WHERE client_id = $1`,
		clientID, displayName, redirectURIs, allowedScopes,
	)
	if err != nil {
		return fmt.Errorf("update client %s: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return newError(KindNotFound, OAuthErrInvalidClient, "unknown client")
	}
	return nil
}

// Delete removes a client. The server's own administrative client is
// protected.
func (s *ClientService) Delete(ctx context.Context, clientID string) error {
	if clientID == s.adminClientID {
		return newError(KindConflict, OAuthErrInvalidRequest,
			"the administrative client cannot be deleted")
	}

	tag, err := s.db.Exec(ctx,
		`DELETE FROM oauth_clients WHERE client_id = $1`, clientID,
	)
	if err != nil {
		return fmt.Errorf("delete client %s: %w", clientID, err)
	}
	if tag.RowsAffected() == 0 {
		return newError(KindNotFound, OAuthErrInvalidClient, "unknown client")
	}
	return nil
}
