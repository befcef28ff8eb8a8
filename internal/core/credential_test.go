package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newCredentialService(db *mockDB) *CredentialService {
	return NewCredentialService(db, bcrypt.MinCost, 5, 15*time.Minute)
}

func credentialRow(accountID, username, password string, failedAttempts int, lockedUntil *time.Time) *mockRow {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*string)) = accountID
		*(dest[1].(*string)) = username
		*(dest[2].(*string)) = string(hash)
		*(dest[3].(*int)) = failedAttempts
		*(dest[4].(**time.Time)) = lockedUntil
		return nil
	}}
}

// ---------- Create ----------

func TestCredentialService_Create_Success(t *testing.T) {
	db := &mockDB{}
	svc := newCredentialService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := svc.Create(ctx, "account-1", "edvin", "correct horse battery")
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestCredentialService_Create_UsernameTaken(t *testing.T) {
	db := &mockDB{}
	svc := newCredentialService(db)
	ctx := context.Background()

	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	err := svc.Create(ctx, "account-1", "edvin", "correct horse battery")
	require.Error(t, err)
	assert.Equal(t, KindConflict, AsError(err).Kind)
	db.AssertExpectations(t)
}

// ---------- Authenticate ----------

func TestCredentialService_Authenticate_Success(t *testing.T) {
	db := &mockDB{}
	svc := newCredentialService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(credentialRow("account-1", "edvin", "correct horse battery", 2, nil))
	// the success path resets the failure counter
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	accountID, err := svc.Authenticate(ctx, "edvin", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, "account-1", accountID)
	db.AssertExpectations(t)
}

func TestCredentialService_Authenticate_UnknownUsername(t *testing.T) {
	db := &mockDB{}
	svc := newCredentialService(db)
	ctx := context.Background()

	row := &mockRow{scanFunc: func(dest ...any) error {
		return errors.New("no rows in result set")
	}}
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).Return(row)

	_, err := svc.Authenticate(ctx, "nobody", "whatever")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	db.AssertExpectations(t)
}

func TestCredentialService_Authenticate_WrongPassword(t *testing.T) {
	db := &mockDB{}
	svc := newCredentialService(db)
	ctx := context.Background()

	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(credentialRow("account-1", "edvin", "correct horse battery", 0, nil))
	// the failure is recorded before the error surfaces
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	_, err := svc.Authenticate(ctx, "edvin", "wrong password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	db.AssertExpectations(t)
}

func TestCredentialService_Authenticate_Locked(t *testing.T) {
	db := &mockDB{}
	svc := newCredentialService(db)
	ctx := context.Background()

	until := time.Now().Add(10 * time.Minute)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(credentialRow("account-1", "edvin", "correct horse battery", 5, &until))

	// the correct password still fails while the lock holds
	_, err := svc.Authenticate(ctx, "edvin", "correct horse battery")
	require.ErrorIs(t, err, ErrAccountLocked)
	db.AssertExpectations(t)
}

func TestCredentialService_Authenticate_ExpiredLockAdmits(t *testing.T) {
	db := &mockDB{}
	svc := newCredentialService(db)
	ctx := context.Background()

	until := time.Now().Add(-time.Minute)
	db.On("QueryRow", ctx, mock.AnythingOfType("string"), mock.Anything).
		Return(credentialRow("account-1", "edvin", "correct horse battery", 5, &until))
	db.On("Exec", ctx, mock.AnythingOfType("string"), mock.Anything).Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	accountID, err := svc.Authenticate(ctx, "edvin", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, "account-1", accountID)
	db.AssertExpectations(t)
}
