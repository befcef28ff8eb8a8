package core

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/edvin/idp/internal/model"
)

// ValidatePKCEMethod checks a transported code_challenge_method, applying
// the RFC 7636 default of "plain" when a challenge is supplied without one.
func ValidatePKCEMethod(method string) (string, error) {
	switch method {
	case "":
		return model.PKCEMethodPlain, nil
	case model.PKCEMethodS256, model.PKCEMethodPlain:
		return method, nil
	}
	return "", newError(KindValidation, OAuthErrInvalidRequest,
		"code_challenge_method must be S256 or plain")
}

// VerifyPKCE recomputes the challenge from the verifier and compares it
// against the stored challenge. S256 is base64url-no-pad of SHA-256 of the
// verifier; plain is byte equality.
func VerifyPKCE(challenge, method, verifier string) bool {
	var computed string
	switch method {
	case model.PKCEMethodS256:
		sum := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(sum[:])
	case model.PKCEMethodPlain:
		computed = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
