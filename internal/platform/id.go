package platform

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

func NewID() string {
	return uuid.New().String()
}

// NewToken returns a 256-bit cryptographically random value encoded as
// unpadded URL-safe base64. Used for authorization codes and other opaque
// single-use credentials.
func NewToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
