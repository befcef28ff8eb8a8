package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edvin/idp/internal/model"
	"github.com/edvin/idp/internal/platform"
)

// TokenService turns approved grants into signed tokens and validates
// tokens against the revocation ledger.
type TokenService struct {
	db           DB
	signer       *Signer
	clients      *ClientService
	secrets      *ClientSecretService
	roles        *RoleService
	accounts     *AccountService
	revocations  *RevocationService
	issuer       string
	tokenTTL     time.Duration
	defaultRoles []DefaultRole
}

func NewTokenService(db DB, signer *Signer, clients *ClientService, secrets *ClientSecretService,
	roles *RoleService, accounts *AccountService, revocations *RevocationService,
	issuer string, tokenTTL time.Duration, defaultRoles []DefaultRole) *TokenService {
	return &TokenService{
		db:           db,
		signer:       signer,
		clients:      clients,
		secrets:      secrets,
		roles:        roles,
		accounts:     accounts,
		revocations:  revocations,
		issuer:       issuer,
		tokenTTL:     tokenTTL,
		defaultRoles: defaultRoles,
	}
}

// TokenResponse is the token endpoint's success payload (RFC 6749 §5.1).
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

var errInvalidGrant = newError(KindValidation, OAuthErrInvalidGrant,
	"authorization code is invalid, expired or already used")

// ExchangeAuthorizationCode redeems a single-use authorization code. The
// token is signed before the code is consumed so a signing failure never
// burns the code; consumption itself is one compare-and-swap, and the loser
// of a concurrent redemption triggers revocation of whatever the winner was
// issued.
func (s *TokenService) ExchangeAuthorizationCode(ctx context.Context, codeValue, clientID, redirectURI, codeVerifier string) (*TokenResponse, error) {
	code, err := s.getCode(ctx, codeValue)
	if err != nil {
		return nil, err
	}

	if code.Used {
		if err := s.flagReplay(ctx, code); err != nil {
			return nil, err
		}
		return nil, errInvalidGrant
	}
	if code.Expired(time.Now()) {
		return nil, errInvalidGrant
	}
	if code.ClientID != clientID || code.RedirectURI != redirectURI {
		return nil, errInvalidGrant
	}

	if code.CodeChallenge != "" {
		if codeVerifier == "" {
			return nil, newError(KindValidation, OAuthErrInvalidRequest,
				"code_verifier is required")
		}
		if !VerifyPKCE(code.CodeChallenge, code.CodeChallengeMethod, codeVerifier) {
			return nil, errInvalidGrant
		}
	}

	account, err := s.accounts.GetByID(ctx, code.AccountID)
	if err != nil {
		// an account deleted between consent and exchange fails the
		// grant; it is not a missing resource to the token endpoint
		if AsError(err).Kind == KindNotFound {
			return nil, errInvalidGrant
		}
		return nil, err
	}

	accountRoles, err := s.roles.ListForAccountClient(ctx, code.AccountID, clientID)
	if err != nil {
		return nil, err
	}
	groups := GroupsFor(s.defaultRoles, clientID)
	for _, r := range accountRoles {
		groups = append(groups, r.Group())
	}

	now := time.Now()
	jti := platform.NewID()
	claims := jwt.MapClaims{
		"iss":         s.issuer,
		"sub":         account.ID,
		"iat":         now.Unix(),
		"exp":         now.Add(s.tokenTTL).Unix(),
		"jti":         jti,
		"scope":       code.Scope,
		"client_id":   clientID,
		"auth_method": code.AuthMethod.String(),
		"groups":      groups,
		"code_id":     code.ID,
	}
	addProfileClaims(claims, code.Scope, account)

	accessToken, err := s.signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	var idToken string
	if HasScope(code.Scope, ScopeOpenID) {
		idClaims := jwt.MapClaims{
			"iss": s.issuer,
			"sub": account.ID,
			"aud": clientID,
			"iat": now.Unix(),
			"exp": now.Add(s.tokenTTL).Unix(),
		}
		addProfileClaims(idClaims, code.Scope, account)
		if idToken, err = s.signer.Sign(idClaims); err != nil {
			return nil, err
		}
	}

	// Consume the code. Exactly one concurrent redemption can win this
	// update; everyone else lands in the replay branch.
	tag, err := s.db.Exec(ctx,
		`UPDATE authorization_codes SET used = true, token_id = $2
		 WHERE id = $1 AND used = false`,
		code.ID, jti,
	)
	if err != nil {
		return nil, fmt.Errorf("mark authorization code used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if err := s.flagReplay(ctx, code); err != nil {
			return nil, err
		}
		return nil, errInvalidGrant
	}

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
		Scope:       code.Scope,
		IDToken:     idToken,
	}, nil
}

// flagReplay records the compromised code and revokes the token the
// original redemption produced. Best effort but irreversible.
func (s *TokenService) flagReplay(ctx context.Context, code *model.AuthorizationCode) error {
	var issuedTokenID *string
	err := s.db.QueryRow(ctx,
		`SELECT token_id FROM authorization_codes WHERE id = $1`, code.ID,
	).Scan(&issuedTokenID)
	if err != nil {
		return fmt.Errorf("look up replayed code %s: %w", code.ID, err)
	}

	if issuedTokenID != nil {
		if err := s.revocations.Revoke(ctx, *issuedTokenID, "authorization code replayed"); err != nil {
			return err
		}
	}
	return s.revocations.RevokeByAuthorizationCode(ctx, code.ID, "authorization code replayed")
}

// ExchangeClientCredentials issues a token for a machine client. The scope
// defaults to the client's full allowed set; no refresh token is issued.
func (s *TokenService) ExchangeClientCredentials(ctx context.Context, clientID, clientSecret, requestedScope string) (*TokenResponse, error) {
	client, err := s.clients.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, newError(KindUnauthenticated, OAuthErrInvalidClient,
			"client authentication failed")
	}

	ok, err := s.secrets.Matches(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newError(KindUnauthenticated, OAuthErrInvalidClient,
			"client authentication failed")
	}

	scope := NormalizeScope(requestedScope)
	if scope == "" {
		scope = strings.Join(client.AllowedScopes, " ")
	} else if !client.AllowsScopes(SplitScope(scope)) {
		return nil, newError(KindValidation, OAuthErrInvalidScope,
			"requested scope exceeds the client's allowed scopes")
	}

	serviceRoles, err := s.roles.ListServiceRoles(ctx, clientID)
	if err != nil {
		return nil, err
	}
	groups := GroupsFor(s.defaultRoles, clientID)
	for _, r := range serviceRoles {
		groups = append(groups, r.Group())
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"iss":         s.issuer,
		"sub":         clientID,
		"iat":         now.Unix(),
		"exp":         now.Add(s.tokenTTL).Unix(),
		"jti":         platform.NewID(),
		"scope":       scope,
		"client_id":   clientID,
		"auth_method": "client_credentials",
		"groups":      groups,
	}

	accessToken, err := s.signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
		Scope:       scope,
	}, nil
}

// addProfileClaims releases identity claims according to the granted scope:
// email/email_verified require the email scope, name requires profile.
func addProfileClaims(claims jwt.MapClaims, scope string, account *model.Account) {
	if HasScope(scope, ScopeEmail) {
		claims["email"] = account.Email
		claims["email_verified"] = account.EmailVerified
	}
	if HasScope(scope, ScopeProfile) {
		claims["name"] = account.DisplayName
	}
}

// TokenInfo is the validated view of a presented token.
type TokenInfo struct {
	TokenID   string
	Subject   string
	ClientID  string
	Scope     string
	Groups    []string
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// Validate verifies a presented token's signature and expiry, then consults
// the revocation ledger for both the token identifier and, when the token
// originated from an authorization code, the code's compromise flag.
func (s *TokenService) Validate(ctx context.Context, tokenStr string) (*TokenInfo, error) {
	claims, err := s.signer.Parse(tokenStr)
	if err != nil {
		return nil, wrapError(KindUnauthenticated, OAuthErrInvalidGrant, "invalid token", err)
	}

	jti, _ := claims["jti"].(string)
	if jti != "" {
		revoked, err := s.revocations.IsRevoked(ctx, jti)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, newError(KindUnauthenticated, OAuthErrInvalidGrant, "token has been revoked")
		}
	}

	if codeID, _ := claims["code_id"].(string); codeID != "" {
		compromised, err := s.revocations.IsCompromised(ctx, codeID)
		if err != nil {
			return nil, err
		}
		if compromised {
			return nil, newError(KindUnauthenticated, OAuthErrInvalidGrant, "token has been revoked")
		}
	}

	info := &TokenInfo{TokenID: jti}
	info.Subject, _ = claims["sub"].(string)
	info.ClientID, _ = claims["client_id"].(string)
	info.Scope, _ = claims["scope"].(string)
	if raw, ok := claims["groups"].([]any); ok {
		for _, g := range raw {
			if str, ok := g.(string); ok {
				info.Groups = append(info.Groups, str)
			}
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}

	return info, nil
}

// Introspection is the RFC 7662 response shape. Inactive tokens carry only
// the active flag.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	Subject   string `json:"sub,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
	IssuedAt  int64  `json:"iat,omitempty"`
	Issuer    string `json:"iss,omitempty"`
	JTI       string `json:"jti,omitempty"`
}

// Introspect reports a token's state. Any validation failure yields
// active=false rather than an error so the endpoint cannot be used as an
// oracle.
func (s *TokenService) Introspect(ctx context.Context, tokenStr string) (*Introspection, error) {
	info, err := s.Validate(ctx, tokenStr)
	if err != nil {
		if AsError(err).Kind == KindInternal {
			return nil, err
		}
		return &Introspection{Active: false}, nil
	}

	return &Introspection{
		Active:    true,
		Scope:     info.Scope,
		ClientID:  info.ClientID,
		Subject:   info.Subject,
		TokenType: "Bearer",
		ExpiresAt: info.ExpiresAt.Unix(),
		IssuedAt:  info.IssuedAt.Unix(),
		Issuer:    s.issuer,
		JTI:       info.TokenID,
	}, nil
}

// RevokeToken handles an RFC 7009 revocation request. Unknown, expired or
// malformed tokens are silently accepted so the endpoint cannot confirm
// token existence.
func (s *TokenService) RevokeToken(ctx context.Context, tokenStr string) error {
	claims, err := s.signer.ParseAllowExpired(tokenStr)
	if err != nil {
		return nil
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return nil
	}
	return s.revocations.Revoke(ctx, jti, "revoked via endpoint")
}

// getCode loads an authorization code row by its opaque value.
func (s *TokenService) getCode(ctx context.Context, codeValue string) (*model.AuthorizationCode, error) {
	var c model.AuthorizationCode
	var authMethod string
	err := s.db.QueryRow(ctx,
		`SELECT id, code, request_id, account_id, client_id, redirect_uri, scope,
		        code_challenge, code_challenge_method, auth_method, used, token_id, created_at, expires_at
		 FROM authorization_codes WHERE code = $1`, codeValue,
	).Scan(&c.ID, &c.Code, &c.RequestID, &c.AccountID, &c.ClientID, &c.RedirectURI,
		&c.Scope, &c.CodeChallenge, &c.CodeChallengeMethod, &authMethod,
		&c.Used, &c.TokenID, &c.CreatedAt, &c.ExpiresAt)
	if err != nil {
		return nil, errInvalidGrant
	}
	c.AuthMethod = model.AuthProvider(authMethod)
	return &c, nil
}
