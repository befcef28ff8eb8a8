package core

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"

	"github.com/golang-jwt/jwt/v5"

	"github.com/edvin/idp/internal/platform"
)

// Signer holds the server's signing key pair. It is constructed once at
// process start and passed explicitly to every component that mints or
// verifies tokens; it is immutable and safe for concurrent use.
type Signer struct {
	key   *rsa.PrivateKey
	keyID string
}

// LoadOrCreateSigner loads the active RSA signing key from the database,
// generating and storing a fresh RSA-2048 pair on first boot.
func LoadOrCreateSigner(ctx context.Context, db DB) (*Signer, error) {
	var id, privPEM string
	err := db.QueryRow(ctx,
		`SELECT id, private_key_pem FROM signing_keys WHERE active = true LIMIT 1`,
	).Scan(&id, &privPEM)
	if err == nil {
		block, _ := pem.Decode([]byte(privPEM))
		if block == nil {
			return nil, fmt.Errorf("invalid PEM in signing key %s", id)
		}
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse signing key %s: %w", id, err)
		}
		return &Signer{key: key, keyID: id}, nil
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}

	privOut := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubOut := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	})

	id = platform.NewID()
	_, err = db.Exec(ctx,
		`INSERT INTO signing_keys (id, algorithm, public_key_pem, private_key_pem, active, created_at)
		 VALUES ($1, $2, $3, $4, true, now())`,
		id, "RS256", string(pubOut), string(privOut),
	)
	if err != nil {
		return nil, fmt.Errorf("store signing key: %w", err)
	}

	return &Signer{key: key, keyID: id}, nil
}

// NewSignerFromKey builds a Signer around an existing key. Used by tests.
func NewSignerFromKey(key *rsa.PrivateKey, keyID string) *Signer {
	return &Signer{key: key, keyID: keyID}
}

// KeyID returns the key identifier published in JWKS and token headers.
func (s *Signer) KeyID() string { return s.keyID }

// Sign produces a compact RS256 JWT over the given claims.
func (s *Signer) Sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a compact JWT against the signer's public key and returns
// its claims. Expiry and issued-at are validated by the parser.
func (s *Signer) Parse(tokenStr string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return &s.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// ParseAllowExpired verifies a token's signature but skips claim
// validation. Used by the revocation endpoint, which must accept expired
// tokens.
func (s *Signer) ParseAllowExpired(tokenStr string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return &s.key.PublicKey, nil
	}, jwt.WithValidMethods([]string{"RS256"}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}

// JWKS returns the public key material in JWK Set form. Only the modulus
// and exponent are published, never the private half.
func (s *Signer) JWKS() (json.RawMessage, error) {
	pub := s.key.PublicKey
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"use": "sig",
				"alg": "RS256",
				"kid": s.keyID,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}

	data, err := json.Marshal(jwks)
	if err != nil {
		return nil, fmt.Errorf("marshal jwks: %w", err)
	}
	return data, nil
}
