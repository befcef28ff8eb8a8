package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/edvin/idp/internal/api/response"
	"github.com/edvin/idp/internal/core"
	"github.com/edvin/idp/internal/model"
)

type contextKey string

const identityKey contextKey = "token_identity"

// GetIdentity extracts the validated token identity from the request
// context.
func GetIdentity(ctx context.Context) *core.TokenInfo {
	identity, _ := ctx.Value(identityKey).(*core.TokenInfo)
	return identity
}

// WithIdentity returns a context carrying a validated token identity.
func WithIdentity(ctx context.Context, info *core.TokenInfo) context.Context {
	return context.WithValue(ctx, identityKey, info)
}

// BearerAuth returns a middleware that validates the Authorization bearer
// token against the server's own signing key and the revocation ledger.
func BearerAuth(tokens *core.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			info, err := tokens.Validate(r.Context(), raw)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), info)))
		})
	}
}

// HasGroup checks whether the identity carries the given group claim.
func HasGroup(identity *core.TokenInfo, group string) bool {
	if identity == nil {
		return false
	}
	for _, g := range identity.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// RequireAdmin returns middleware that checks the caller holds the admin
// role on the server's own administrative client.
func RequireAdmin(adminClientID string) func(http.Handler) http.Handler {
	adminGroup := adminClientID + "_" + model.RoleAdmin
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := GetIdentity(r.Context())
			if !HasGroup(identity, adminGroup) {
				response.WriteError(w, http.StatusForbidden, "administrator access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
