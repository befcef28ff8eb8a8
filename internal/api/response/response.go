package response

import (
	"encoding/json"
	"net/http"

	"github.com/edvin/idp/internal/core"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"error": message})
}

// WriteCoreError maps a core taxonomy error onto the admin JSON surface.
// Internal detail is replaced with a generic message.
func WriteCoreError(w http.ResponseWriter, err error) {
	e := core.AsError(err)
	WriteError(w, e.HTTPStatus(), e.Description)
}

// OAuthError is the RFC 6749 §5.2 error payload.
type OAuthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// WriteOAuthError renders a core error in the OAuth error shape used by the
// token, introspection and revocation endpoints.
func WriteOAuthError(w http.ResponseWriter, err error) {
	e := core.AsError(err)
	WriteJSON(w, e.HTTPStatus(), OAuthError{Error: e.Code, Description: e.Description})
}
