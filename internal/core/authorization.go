package core

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/idp/internal/model"
	"github.com/edvin/idp/internal/platform"
)

// AuthorizationService drives the authorize → authenticate → consent state
// machine. Requests and codes expire passively via stored timestamps
// checked on every read.
type AuthorizationService struct {
	db          DB
	clients     *ClientService
	credentials *CredentialService
	roles       *RoleService
	accounts    *AccountService
	idp         IdentityProvider
	requestTTL  time.Duration
	codeTTL     time.Duration
}

func NewAuthorizationService(db DB, clients *ClientService, credentials *CredentialService,
	roles *RoleService, accounts *AccountService, idp IdentityProvider,
	requestTTL, codeTTL time.Duration) *AuthorizationService {
	return &AuthorizationService{
		db:          db,
		clients:     clients,
		credentials: credentials,
		roles:       roles,
		accounts:    accounts,
		idp:         idp,
		requestTTL:  requestTTL,
		codeTTL:     codeTTL,
	}
}

// CreateRequest validates the authorize parameters against the client's
// registration and stores a pending request. PKCE is mandatory for every
// client; the challenge method defaults to plain when omitted.
func (s *AuthorizationService) CreateRequest(ctx context.Context, clientID, redirectURI, scope, state, codeChallenge, codeChallengeMethod string) (*model.AuthorizationRequest, error) {
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if !client.Confidential {
		return nil, newError(KindValidation, OAuthErrInvalidClient,
			"client is not confidential")
	}
	if !client.AllowsRedirectURI(redirectURI) {
		return nil, newError(KindValidation, OAuthErrInvalidRequest,
			"redirect_uri is not registered for this client")
	}

	scope = NormalizeScope(scope)
	if !client.AllowsScopes(SplitScope(scope)) {
		return nil, newError(KindValidation, OAuthErrInvalidScope,
			"requested scope exceeds the client's allowed scopes")
	}

	if codeChallenge == "" {
		return nil, newError(KindValidation, OAuthErrInvalidRequest,
			"code_challenge is required")
	}
	method, err := ValidatePKCEMethod(codeChallengeMethod)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	req := &model.AuthorizationRequest{
		ID:                  platform.NewToken(),
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		Scope:               scope,
		State:               state,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: method,
		Status:              model.AuthRequestPending,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.requestTTL),
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO authorization_requests (id, client_id, redirect_uri, scope, state, code_challenge, code_challenge_method, status, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, req.ClientID, req.RedirectURI, req.Scope, req.State,
		req.CodeChallenge, req.CodeChallengeMethod, req.Status, req.CreatedAt, req.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert authorization request: %w", err)
	}

	return req, nil
}

// GetRequest retrieves a request by id, enforcing expiry.
func (s *AuthorizationService) GetRequest(ctx context.Context, requestID string) (*model.AuthorizationRequest, error) {
	var req model.AuthorizationRequest
	var authMethod *string
	err := s.db.QueryRow(ctx,
		`SELECT id, client_id, redirect_uri, scope, state, code_challenge, code_challenge_method,
		        status, account_id, auth_method, denied, created_at, expires_at
		 FROM authorization_requests WHERE id = $1`, requestID,
	).Scan(&req.ID, &req.ClientID, &req.RedirectURI, &req.Scope, &req.State,
		&req.CodeChallenge, &req.CodeChallengeMethod, &req.Status,
		&req.AccountID, &authMethod, &req.Denied, &req.CreatedAt, &req.ExpiresAt)
	if err != nil {
		return nil, wrapError(KindNotFound, OAuthErrInvalidRequest, "authorization request not found", err)
	}
	if authMethod != nil {
		req.AuthMethod = model.AuthProvider(*authMethod)
	}
	if req.Expired(time.Now()) {
		return nil, newError(KindExpired, OAuthErrInvalidRequest, "authorization request expired")
	}
	return &req, nil
}

// Authenticate verifies resource-owner credentials against a pending
// request and approves it on success. A credential failure leaves the
// request untouched.
func (s *AuthorizationService) Authenticate(ctx context.Context, requestID, username, password string) (*model.AuthorizationRequest, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.AuthRequestPending {
		return nil, newError(KindConflict, OAuthErrInvalidRequest,
			"authorization request is not pending")
	}

	accountID, err := s.credentials.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}

	return s.Approve(ctx, requestID, accountID, model.ProviderNative)
}

// ApproveAuthenticated approves a pending request for a caller that already
// holds a session. The account must hold at least one role for the
// request's client; failing that is an authorization error, not an
// authentication one.
func (s *AuthorizationService) ApproveAuthenticated(ctx context.Context, requestID, accountID string) (*model.AuthorizationRequest, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.AuthRequestPending {
		return nil, newError(KindConflict, OAuthErrInvalidRequest,
			"authorization request is not pending")
	}

	member, err := s.roles.HasAnyRoleForClient(ctx, accountID, req.ClientID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, newError(KindForbidden, OAuthErrAccessDenied,
			"account holds no role for this client")
	}

	return s.Approve(ctx, requestID, accountID, model.ProviderNative)
}

// Approve transitions a pending request to approved, recording the account
// and the authentication method used. Shared by the native and federated
// paths.
func (s *AuthorizationService) Approve(ctx context.Context, requestID, accountID string, method model.AuthProvider) (*model.AuthorizationRequest, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE authorization_requests
		 SET status = $2, account_id = $3, auth_method = $4
		 WHERE id = $1 AND status = $5 AND expires_at > now()`,
		requestID, model.AuthRequestApproved, accountID, method.String(), model.AuthRequestPending,
	)
	if err != nil {
		return nil, fmt.Errorf("approve authorization request %s: %w", requestID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, newError(KindConflict, OAuthErrInvalidRequest,
			"authorization request is not pending")
	}

	return s.GetRequest(ctx, requestID)
}

// CompleteFederatedLogin exchanges an external provider code, resolves the
// asserted identity to an account and approves the request with the
// federated auth method.
func (s *AuthorizationService) CompleteFederatedLogin(ctx context.Context, requestID, externalCode string) (*model.AuthorizationRequest, error) {
	if s.idp == nil {
		return nil, newError(KindValidation, OAuthErrInvalidRequest,
			"federated login is not configured")
	}

	identity, err := s.idp.Exchange(ctx, externalCode)
	if err != nil {
		return nil, wrapError(KindUnauthenticated, OAuthErrAccessDenied,
			"federated login failed", err)
	}

	account, err := s.accounts.GetOrCreateFederated(ctx, model.ProviderGoogle, identity)
	if err != nil {
		return nil, err
	}

	return s.Approve(ctx, requestID, account.ID, model.ProviderGoogle)
}

// ConsentResult carries the outcome of the consent step back to the
// handler, which turns it into the final redirect.
type ConsentResult struct {
	Denied      bool
	RedirectURI string
	State       string
	Code        string
}

// RecordConsent finalizes an approved request. A denial leaves the request
// approved but flags it so it can never produce a code; an approval mints
// the single-use authorization code with the PKCE parameters copied
// verbatim from the request.
func (s *AuthorizationService) RecordConsent(ctx context.Context, requestID string, approved bool) (*ConsentResult, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != model.AuthRequestApproved || req.AccountID == nil {
		return nil, newError(KindConflict, OAuthErrInvalidRequest,
			"authorization request has not been approved")
	}
	if req.Denied {
		return nil, newError(KindConflict, OAuthErrAccessDenied,
			"consent was denied for this request")
	}

	if !approved {
		_, err := s.db.Exec(ctx,
			`UPDATE authorization_requests SET denied = true WHERE id = $1`, requestID,
		)
		if err != nil {
			return nil, fmt.Errorf("record consent denial for %s: %w", requestID, err)
		}
		return &ConsentResult{
			Denied:      true,
			RedirectURI: req.RedirectURI,
			State:       req.State,
		}, nil
	}

	now := time.Now()
	code := &model.AuthorizationCode{
		ID:                  platform.NewID(),
		Code:                platform.NewToken(),
		RequestID:           req.ID,
		AccountID:           *req.AccountID,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		AuthMethod:          req.AuthMethod,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.codeTTL),
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO authorization_codes (id, code, request_id, account_id, client_id, redirect_uri, scope, code_challenge, code_challenge_method, auth_method, used, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, false, $11, $12)`,
		code.ID, code.Code, code.RequestID, code.AccountID, code.ClientID,
		code.RedirectURI, code.Scope, code.CodeChallenge, code.CodeChallengeMethod,
		code.AuthMethod.String(), code.CreatedAt, code.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert authorization code: %w", err)
	}

	return &ConsentResult{
		RedirectURI: req.RedirectURI,
		State:       req.State,
		Code:        code.Code,
	}, nil
}
