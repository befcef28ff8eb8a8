package handler

import (
	"net/http"
	"net/url"

	"github.com/edvin/idp/internal/api/middleware"
	"github.com/edvin/idp/internal/api/request"
	"github.com/edvin/idp/internal/api/response"
	"github.com/edvin/idp/internal/core"
)

// OAuth serves the protocol surface: authorize, login, consent, token,
// introspection, revocation and key discovery.
type OAuth struct {
	authz     *core.AuthorizationService
	tokens    *core.TokenService
	clients   *core.ClientService
	signer    *core.Signer
	signInURL string
}

func NewOAuth(authz *core.AuthorizationService, tokens *core.TokenService,
	clients *core.ClientService, signer *core.Signer, signInURL string) *OAuth {
	return &OAuth{
		authz:     authz,
		tokens:    tokens,
		clients:   clients,
		signer:    signer,
		signInURL: signInURL,
	}
}

// Authorize handles GET /oauth/authorize. Validation failures before the
// redirect URI is trusted produce a 400 page; afterwards the error is
// carried back to the client in redirect query parameters.
func (h *OAuth) Authorize(w http.ResponseWriter, r *http.Request) {
	params := request.ParseAuthorize(r)

	if params.ClientID == "" || params.RedirectURI == "" {
		http.Error(w, "client_id and redirect_uri are required", http.StatusBadRequest)
		return
	}

	client, err := h.clients.GetByClientID(r.Context(), params.ClientID)
	if err != nil {
		http.Error(w, "unknown client", http.StatusBadRequest)
		return
	}
	if !client.AllowsRedirectURI(params.RedirectURI) {
		http.Error(w, "redirect_uri is not registered for this client", http.StatusBadRequest)
		return
	}

	// The redirect URI is trusted from here on.
	if params.ResponseType != "code" {
		redirectError(w, r, params.RedirectURI, core.OAuthErrUnsupportedResponseType,
			"only the authorization code flow is supported", params.State)
		return
	}

	req, err := h.authz.CreateRequest(r.Context(), params.ClientID, params.RedirectURI,
		params.Scope, params.State, params.CodeChallenge, params.CodeChallengeMethod)
	if err != nil {
		e := core.AsError(err)
		redirectError(w, r, params.RedirectURI, e.Code, e.Description, params.State)
		return
	}

	target, err := url.Parse(h.signInURL)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	q := target.Query()
	q.Set("request_id", req.ID)
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

// Login handles POST /oauth/login with form-encoded resource-owner
// credentials against a pending request.
func (h *OAuth) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	requestID := r.PostFormValue("request_id")
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	if requestID == "" || username == "" || password == "" {
		response.WriteError(w, http.StatusBadRequest, "request_id, username and password are required")
		return
	}

	req, err := h.authz.Authenticate(r.Context(), requestID, username, password)
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{
		"request_id": req.ID,
		"status":     req.Status,
	})
}

// Approve handles POST /oauth/approve for callers that already hold a
// bearer session, skipping the password step. The caller must hold a role
// for the requesting client.
func (h *OAuth) Approve(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	requestID := r.PostFormValue("request_id")
	if requestID == "" {
		response.WriteError(w, http.StatusBadRequest, "request_id is required")
		return
	}

	identity := middleware.GetIdentity(r.Context())
	req, err := h.authz.ApproveAuthenticated(r.Context(), requestID, identity.Subject)
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]string{
		"request_id": req.ID,
		"status":     req.Status,
	})
}

// Consent handles POST /oauth/consent. Approval mints the authorization
// code and redirects to the client; anything but "approve" is a denial.
func (h *OAuth) Consent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.WriteError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	requestID := r.PostFormValue("request_id")
	if requestID == "" {
		response.WriteError(w, http.StatusBadRequest, "request_id is required")
		return
	}
	approved := r.PostFormValue("consent") == "approve"

	result, err := h.authz.RecordConsent(r.Context(), requestID, approved)
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}

	if result.Denied {
		redirectError(w, r, result.RedirectURI, core.OAuthErrAccessDenied,
			"the resource owner denied the request", result.State)
		return
	}

	target, err := url.Parse(result.RedirectURI)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, "invalid redirect URI")
		return
	}
	q := target.Query()
	q.Set("code", result.Code)
	if result.State != "" {
		q.Set("state", result.State)
	}
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

// FederatedCallback handles the return leg of a Google login. The external
// code is exchanged and the pending request approved, after which the user
// agent continues to the consent step.
func (h *OAuth) FederatedCallback(w http.ResponseWriter, r *http.Request) {
	requestID := r.URL.Query().Get("request_id")
	code := r.URL.Query().Get("code")
	if requestID == "" || code == "" {
		response.WriteError(w, http.StatusBadRequest, "request_id and code are required")
		return
	}

	req, err := h.authz.CompleteFederatedLogin(r.Context(), requestID, code)
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}

	target, err := url.Parse(h.signInURL)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	q := target.Query()
	q.Set("request_id", req.ID)
	q.Set("step", "consent")
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

// Token handles POST /oauth/token for the authorization-code and
// client-credentials grants. refresh_token is reserved but unimplemented.
func (h *OAuth) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.OAuthError{
			Error:       core.OAuthErrInvalidRequest,
			Description: "invalid form body",
		})
		return
	}
	params := request.ParseToken(r)

	var resp *core.TokenResponse
	var err error
	switch params.GrantType {
	case "authorization_code":
		resp, err = h.tokens.ExchangeAuthorizationCode(r.Context(),
			params.Code, params.ClientID, params.RedirectURI, params.CodeVerifier)
	case "client_credentials":
		resp, err = h.tokens.ExchangeClientCredentials(r.Context(),
			params.ClientID, params.ClientSecret, params.Scope)
	default:
		response.WriteJSON(w, http.StatusBadRequest, response.OAuthError{
			Error:       core.OAuthErrUnsupportedGrantType,
			Description: "grant_type must be authorization_code or client_credentials",
		})
		return
	}
	if err != nil {
		response.WriteOAuthError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	response.WriteJSON(w, http.StatusOK, resp)
}

// Introspect handles POST /oauth/introspect (RFC 7662).
func (h *OAuth) Introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.OAuthError{
			Error:       core.OAuthErrInvalidRequest,
			Description: "invalid form body",
		})
		return
	}
	token := r.PostFormValue("token")
	if token == "" {
		response.WriteJSON(w, http.StatusBadRequest, response.OAuthError{
			Error:       core.OAuthErrInvalidRequest,
			Description: "token is required",
		})
		return
	}

	result, err := h.tokens.Introspect(r.Context(), token)
	if err != nil {
		response.WriteOAuthError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, result)
}

// Revoke handles POST /oauth/revoke (RFC 7009). Well-formed requests
// always answer 200 regardless of whether the token existed, so the
// endpoint cannot be used to probe for live tokens.
func (h *OAuth) Revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		response.WriteJSON(w, http.StatusBadRequest, response.OAuthError{
			Error:       core.OAuthErrInvalidRequest,
			Description: "invalid form body",
		})
		return
	}
	token := r.PostFormValue("token")
	if token == "" {
		response.WriteJSON(w, http.StatusBadRequest, response.OAuthError{
			Error:       core.OAuthErrInvalidRequest,
			Description: "token is required",
		})
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), token); err != nil {
		response.WriteOAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// JWKS handles GET /oauth/jwks, exposing only public key material.
func (h *OAuth) JWKS(w http.ResponseWriter, r *http.Request) {
	data, err := h.signer.JWKS()
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// redirectError sends an OAuth error back to a trusted redirect URI as
// query parameters, carrying the original state when present.
func redirectError(w http.ResponseWriter, r *http.Request, redirectURI, code, description, state string) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		http.Error(w, "invalid redirect URI", http.StatusBadRequest)
		return
	}
	q := target.Query()
	q.Set("error", code)
	q.Set("error_description", description)
	if state != "" {
		q.Set("state", state)
	}
	target.RawQuery = q.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}
