package model

import "fmt"

// AuthProvider identifies how an account proves its identity. It is a closed
// set; new providers must be added here and handled everywhere the type is
// switched on.
type AuthProvider string

const (
	ProviderNative AuthProvider = "native"
	ProviderGoogle AuthProvider = "google"
)

// ParseAuthProvider validates a stored or transported provider string.
func ParseAuthProvider(s string) (AuthProvider, error) {
	switch AuthProvider(s) {
	case ProviderNative:
		return ProviderNative, nil
	case ProviderGoogle:
		return ProviderGoogle, nil
	}
	return "", fmt.Errorf("unknown auth provider %q", s)
}

func (p AuthProvider) String() string { return string(p) }
