package core

import "strings"

// Well-known OIDC scopes controlling claim release.
const (
	ScopeOpenID  = "openid"
	ScopeEmail   = "email"
	ScopeProfile = "profile"
)

// NormalizeScope collapses the absent / empty / whitespace-only scope forms
// to the single canonical "no scope requested" value: the empty string.
// Interior whitespace runs collapse to one space.
func NormalizeScope(scope string) string {
	return strings.Join(strings.Fields(scope), " ")
}

// SplitScope splits a normalized scope string into its labels. Returns nil
// for the canonical empty scope.
func SplitScope(scope string) []string {
	fields := strings.Fields(scope)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// HasScope reports whether the space-separated scope string contains the
// given label.
func HasScope(scope, label string) bool {
	for _, s := range strings.Fields(scope) {
		if s == label {
			return true
		}
	}
	return false
}
