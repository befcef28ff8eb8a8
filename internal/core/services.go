package core

import (
	"time"
)

// Options carries the configuration the services need, resolved once at
// process start. DefaultRoles is the parsed form of the DEFAULT_ROLES
// config value; IdentityProvider may be nil when federated login is not
// configured.
type Options struct {
	IssuerURL        string
	AdminClientID    string
	DefaultRoles     []DefaultRole
	BcryptCost       int
	LockoutThreshold int
	LockoutDuration  time.Duration
	AccessTokenTTL   time.Duration
	AuthRequestTTL   time.Duration
	AuthCodeTTL      time.Duration
	IdentityProvider IdentityProvider
}

type Services struct {
	Account       *AccountService
	Credential    *CredentialService
	Role          *RoleService
	Client        *ClientService
	ClientSecret  *ClientSecretService
	Authorization *AuthorizationService
	Token         *TokenService
	Revocation    *RevocationService
}

func NewServices(db DB, signer *Signer, opts Options) *Services {
	credential := NewCredentialService(db, opts.BcryptCost, opts.LockoutThreshold, opts.LockoutDuration)
	role := NewRoleService(db, opts.AdminClientID)
	account := NewAccountService(db, credential, role, opts.AdminClientID)
	client := NewClientService(db, opts.AdminClientID)
	clientSecret := NewClientSecretService(db, opts.BcryptCost)
	revocation := NewRevocationService(db)
	authorization := NewAuthorizationService(db, client, credential, role, account,
		opts.IdentityProvider, opts.AuthRequestTTL, opts.AuthCodeTTL)
	token := NewTokenService(db, signer, client, clientSecret, role, account, revocation,
		opts.IssuerURL, opts.AccessTokenTTL, opts.DefaultRoles)

	return &Services{
		Account:       account,
		Credential:    credential,
		Role:          role,
		Client:        client,
		ClientSecret:  clientSecret,
		Authorization: authorization,
		Token:         token,
		Revocation:    revocation,
	}
}
