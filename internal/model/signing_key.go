package model

import "time"

// SigningKey is the persisted server signing key pair. Exactly one key is
// active per server instance; the private half never leaves the database
// and the process that loaded it.
type SigningKey struct {
	ID            string    `json:"id"`
	Algorithm     string    `json:"algorithm"`
	PublicKeyPEM  string    `json:"public_key_pem"`
	PrivateKeyPEM string    `json:"-"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}
