package core

import (
	"errors"
	"fmt"
)

// OAuth 2.0 error codes from RFC 6749 §5.2 and §4.1.2.1.
const (
	OAuthErrInvalidRequest          = "invalid_request"
	OAuthErrInvalidClient           = "invalid_client"
	OAuthErrInvalidGrant            = "invalid_grant"
	OAuthErrInvalidScope            = "invalid_scope"
	OAuthErrUnsupportedGrantType    = "unsupported_grant_type"
	OAuthErrUnsupportedResponseType = "unsupported_response_type"
	OAuthErrAccessDenied            = "access_denied"
	OAuthErrServerError             = "server_error"
)

// Kind classifies a failure for transport mapping. See the HTTPStatus
// method for the mapping.
type Kind int

const (
	KindValidation Kind = iota
	KindUnauthenticated
	KindForbidden
	KindConflict
	KindNotFound
	KindExpired
	KindInternal
)

// Error is the taxonomy error carried across the core/api boundary. OAuth
// surfaces render Code/Description; internal detail stays in err.
type Error struct {
	Kind        Kind
	Code        string
	Description string
	err         error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Description, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error { return e.err }

// HTTPStatus maps the error kind to the status used by JSON surfaces.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return 400
	case KindUnauthenticated:
		return 401
	case KindForbidden:
		return 403
	case KindConflict:
		return 409
	case KindNotFound:
		return 404
	case KindExpired:
		return 400
	default:
		return 500
	}
}

func newError(kind Kind, code, description string) *Error {
	return &Error{Kind: kind, Code: code, Description: description}
}

func wrapError(kind Kind, code, description string, err error) *Error {
	return &Error{Kind: kind, Code: code, Description: description, err: err}
}

// AsError extracts a taxonomy *Error; internal failures collapse to a
// generic server_error so storage and signing detail never reaches clients.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return wrapError(KindInternal, OAuthErrServerError, "internal server error", err)
}

// Sentinel authentication errors. Unknown-username and wrong-password are
// deliberately indistinguishable to callers.
var (
	ErrInvalidCredentials = newError(KindUnauthenticated, OAuthErrInvalidClient, "invalid credentials")
	ErrAccountLocked      = newError(KindUnauthenticated, OAuthErrInvalidClient, "account temporarily locked")
)
