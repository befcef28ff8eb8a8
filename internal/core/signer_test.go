package core

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigner(t *testing.T) *Signer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return NewSignerFromKey(key, "test-key-1")
}

func TestSigner_SignParse_RoundTrip(t *testing.T) {
	signer := testSigner(t)

	claims := jwt.MapClaims{
		"iss": "http://localhost:8070",
		"sub": "account-1",
		"exp": time.Now().Add(time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	signed, err := signer.Sign(claims)
	require.NoError(t, err)

	parsed, err := signer.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "account-1", parsed["sub"])
	assert.Equal(t, "http://localhost:8070", parsed["iss"])
}

func TestSigner_Parse_RejectsExpired(t *testing.T) {
	signer := testSigner(t)

	signed, err := signer.Sign(jwt.MapClaims{
		"sub": "account-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	require.NoError(t, err)

	_, err = signer.Parse(signed)
	require.Error(t, err)
}

func TestSigner_ParseAllowExpired(t *testing.T) {
	signer := testSigner(t)

	signed, err := signer.Sign(jwt.MapClaims{
		"sub": "account-1",
		"jti": "token-1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	require.NoError(t, err)

	claims, err := signer.ParseAllowExpired(signed)
	require.NoError(t, err)
	assert.Equal(t, "token-1", claims["jti"])
}

func TestSigner_Parse_RejectsForeignKey(t *testing.T) {
	signer := testSigner(t)
	other := testSigner(t)

	signed, err := other.Sign(jwt.MapClaims{
		"sub": "account-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	_, err = signer.Parse(signed)
	require.Error(t, err)
}

func TestSigner_Parse_RejectsUnsignedToken(t *testing.T) {
	signer := testSigner(t)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub": "account-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	raw, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = signer.Parse(raw)
	require.Error(t, err)
}

func TestSigner_JWKS_PublishesOnlyPublicMaterial(t *testing.T) {
	signer := testSigner(t)

	data, err := signer.JWKS()
	require.NoError(t, err)

	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(data, &jwks))
	require.Len(t, jwks.Keys, 1)

	key := jwks.Keys[0]
	assert.Equal(t, "RSA", key["kty"])
	assert.Equal(t, "RS256", key["alg"])
	assert.Equal(t, "test-key-1", key["kid"])
	assert.NotEmpty(t, key["n"])
	assert.NotEmpty(t, key["e"])
	assert.NotContains(t, key, "d")
	assert.NotContains(t, key, "p")
}
