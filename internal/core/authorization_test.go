package core

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/edvin/idp/internal/model"
)

func newAuthorizationService(db *mockDB, idp IdentityProvider) *AuthorizationService {
	clients := NewClientService(db, "idp-admin")
	credentials := NewCredentialService(db, bcrypt.MinCost, 5, 15*time.Minute)
	roles := NewRoleService(db, "idp-admin")
	accounts := NewAccountService(db, credentials, roles, "idp-admin")
	return NewAuthorizationService(db, clients, credentials, roles, accounts, idp,
		10*time.Minute, time.Minute)
}

func registeredClientRow(clientID string, redirectURIs, allowedScopes []string) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = "client-uuid-1"
		*(dest[1].(*string)) = clientID
		*(dest[2].(*string)) = "Test Client"
		*(dest[3].(*bool)) = true
		*(dest[4].(*[]string)) = redirectURIs
		*(dest[5].(*[]string)) = allowedScopes
		*(dest[6].(*bool)) = true
		*(dest[7].(*time.Time)) = time.Now()
		return nil
	}}
}

func authRequestRow(req *model.AuthorizationRequest) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = req.ID
		*(dest[1].(*string)) = req.ClientID
		*(dest[2].(*string)) = req.RedirectURI
		*(dest[3].(*string)) = req.Scope
		*(dest[4].(*string)) = req.State
		*(dest[5].(*string)) = req.CodeChallenge
		*(dest[6].(*string)) = req.CodeChallengeMethod
		*(dest[7].(*string)) = req.Status
		*(dest[8].(**string)) = req.AccountID
		if req.AuthMethod != "" {
			m := req.AuthMethod.String()
			*(dest[9].(**string)) = &m
		} else {
			*(dest[9].(**string)) = nil
		}
		*(dest[10].(*bool)) = req.Denied
		*(dest[11].(*time.Time)) = req.CreatedAt
		*(dest[12].(*time.Time)) = req.ExpiresAt
		return nil
	}}
}

func pendingRequest() *model.AuthorizationRequest {
	now := time.Now()
	return &model.AuthorizationRequest{
		ID:                  "request-1",
		ClientID:            "billing",
		RedirectURI:         "https://billing.example.com/callback",
		Scope:               "openid email",
		State:               "xyz",
		CodeChallenge:       "challenge-value",
		CodeChallengeMethod: model.PKCEMethodPlain,
		Status:              model.AuthRequestPending,
		CreatedAt:           now,
		ExpiresAt:           now.Add(10 * time.Minute),
	}
}

// ---------- CreateRequest ----------

func TestAuthorizationService_CreateRequest_Success(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(registeredClientRow("billing", []string{"https://billing.example.com/callback"}, []string{"openid", "email"}))
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	req, err := svc.CreateRequest(ctx, "billing", "https://billing.example.com/callback",
		"  openid   email ", "xyz", "challenge-value", "")
	require.NoError(t, err)
	assert.Equal(t, model.AuthRequestPending, req.Status)
	assert.Equal(t, "openid email", req.Scope)
	// method defaults to plain when omitted
	assert.Equal(t, model.PKCEMethodPlain, req.CodeChallengeMethod)
	assert.NotEmpty(t, req.ID)
	db.AssertExpectations(t)
}

func TestAuthorizationService_CreateRequest_UnregisteredRedirect(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(registeredClientRow("billing", []string{"https://billing.example.com/callback"}, nil))

	_, err := svc.CreateRequest(ctx, "billing", "https://evil.example.com/cb", "", "", "ch", "")
	require.Error(t, err)
	assert.Equal(t, KindValidation, AsError(err).Kind)
	db.AssertExpectations(t)
}

func TestAuthorizationService_CreateRequest_ScopeExceedsAllowed(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(registeredClientRow("billing", []string{"https://billing.example.com/callback"}, []string{"openid"}))

	_, err := svc.CreateRequest(ctx, "billing", "https://billing.example.com/callback",
		"openid profile", "", "ch", "")
	require.Error(t, err)
	assert.Equal(t, OAuthErrInvalidScope, AsError(err).Code)
	db.AssertExpectations(t)
}

func TestAuthorizationService_CreateRequest_ChallengeRequired(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(registeredClientRow("billing", []string{"https://billing.example.com/callback"}, []string{"openid"}))

	_, err := svc.CreateRequest(ctx, "billing", "https://billing.example.com/callback",
		"openid", "", "", "")
	require.Error(t, err)
	assert.Equal(t, KindValidation, AsError(err).Kind)
	db.AssertExpectations(t)
}

// ---------- GetRequest ----------

func TestAuthorizationService_GetRequest_Expired(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	req := pendingRequest()
	req.ExpiresAt = time.Now().Add(-time.Minute)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(authRequestRow(req))

	_, err := svc.GetRequest(ctx, "request-1")
	require.Error(t, err)
	assert.Equal(t, KindExpired, AsError(err).Kind)
	db.AssertExpectations(t)
}

// ---------- Authenticate ----------

func TestAuthorizationService_Authenticate_Success(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	// pending request lookup
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(authRequestRow(pendingRequest())).Once()
	// credential lookup
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(credentialRow("account-1", "edvin", "correct horse battery", 0, nil)).Once()
	// failure-counter reset, then the approval update
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil).Twice()
	// re-read of the approved request
	approved := pendingRequest()
	approved.Status = model.AuthRequestApproved
	accountID := "account-1"
	approved.AccountID = &accountID
	approved.AuthMethod = model.ProviderNative
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(authRequestRow(approved)).Once()

	req, err := svc.Authenticate(ctx, "request-1", "edvin", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, model.AuthRequestApproved, req.Status)
	require.NotNil(t, req.AccountID)
	assert.Equal(t, "account-1", *req.AccountID)
	db.AssertExpectations(t)
}

func TestAuthorizationService_Authenticate_BadCredentialsLeaveRequestPending(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(authRequestRow(pendingRequest())).Once()
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(credentialRow("account-1", "edvin", "correct horse battery", 0, nil)).Once()
	// only the failed-attempt counter is written; no approval follows
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil).Once()

	_, err := svc.Authenticate(ctx, "request-1", "edvin", "wrong password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	db.AssertExpectations(t)
}

func TestAuthorizationService_Authenticate_NonPendingRefused(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	req := pendingRequest()
	req.Status = model.AuthRequestApproved
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(authRequestRow(req))

	_, err := svc.Authenticate(ctx, "request-1", "edvin", "correct horse battery")
	require.Error(t, err)
	assert.Equal(t, KindConflict, AsError(err).Kind)
	db.AssertExpectations(t)
}

// ---------- Approve ----------

func TestAuthorizationService_Approve_RaceLoserRefused(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	// the conditional update finds the request no longer pending
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	_, err := svc.Approve(ctx, "request-1", "account-1", model.ProviderNative)
	require.Error(t, err)
	assert.Equal(t, KindConflict, AsError(err).Kind)
	db.AssertExpectations(t)
}

func TestAuthorizationService_ApproveAuthenticated_Member(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(authRequestRow(pendingRequest())).Once()
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(boolRow(true)).Once()
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(authRequestRow(approvedRequest())).Once()

	req, err := svc.ApproveAuthenticated(ctx, "request-1", "account-1")
	require.NoError(t, err)
	assert.Equal(t, model.AuthRequestApproved, req.Status)
	require.NotNil(t, req.AccountID)
	assert.Equal(t, "account-1", *req.AccountID)
	db.AssertExpectations(t)
}

func TestAuthorizationService_ApproveAuthenticated_NonMemberForbidden(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(authRequestRow(pendingRequest())).Once()
	// account holds no role for the requesting client
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(boolRow(false)).Once()

	_, err := svc.ApproveAuthenticated(ctx, "request-1", "outsider-1")
	require.Error(t, err)
	assert.Equal(t, KindForbidden, AsError(err).Kind)
	assert.Equal(t, OAuthErrAccessDenied, AsError(err).Code)
	db.AssertExpectations(t)
}

func TestAuthorizationService_ApproveAuthenticated_NonPendingRefused(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(authRequestRow(approvedRequest())).Once()

	_, err := svc.ApproveAuthenticated(ctx, "request-1", "account-1")
	require.Error(t, err)
	assert.Equal(t, KindConflict, AsError(err).Kind)
	db.AssertExpectations(t)
}

// ---------- RecordConsent ----------

func approvedRequest() *model.AuthorizationRequest {
	req := pendingRequest()
	req.Status = model.AuthRequestApproved
	accountID := "account-1"
	req.AccountID = &accountID
	req.AuthMethod = model.ProviderNative
	return req
}

func TestAuthorizationService_RecordConsent_ApproveMintsCode(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(authRequestRow(approvedRequest()))

	var insertArgs []any
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) {
			insertArgs = args.Get(2).([]any)
		}).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	result, err := svc.RecordConsent(ctx, "request-1", true)
	require.NoError(t, err)
	assert.False(t, result.Denied)
	assert.NotEmpty(t, result.Code)
	assert.Equal(t, "https://billing.example.com/callback", result.RedirectURI)
	assert.Equal(t, "xyz", result.State)

	// the PKCE parameters travel verbatim from the request onto the code
	require.Len(t, insertArgs, 12)
	assert.Equal(t, "challenge-value", insertArgs[7])
	assert.Equal(t, model.PKCEMethodPlain, insertArgs[8])
	db.AssertExpectations(t)
}

func TestAuthorizationService_RecordConsent_DenialProducesNoCode(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(authRequestRow(approvedRequest()))
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	result, err := svc.RecordConsent(ctx, "request-1", false)
	require.NoError(t, err)
	assert.True(t, result.Denied)
	assert.Empty(t, result.Code)
	db.AssertExpectations(t)
}

func TestAuthorizationService_RecordConsent_DeniedRequestStaysDenied(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	req := approvedRequest()
	req.Denied = true
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(authRequestRow(req))

	// a later approval attempt cannot resurrect the request
	_, err := svc.RecordConsent(ctx, "request-1", true)
	require.Error(t, err)
	assert.Equal(t, OAuthErrAccessDenied, AsError(err).Code)
	db.AssertExpectations(t)
}

func TestAuthorizationService_RecordConsent_PendingRefused(t *testing.T) {
	db := &mockDB{}
	svc := newAuthorizationService(db, nil)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(authRequestRow(pendingRequest()))

	_, err := svc.RecordConsent(ctx, "request-1", true)
	require.Error(t, err)
	assert.Equal(t, KindConflict, AsError(err).Kind)
	db.AssertExpectations(t)
}
