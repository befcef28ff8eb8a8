package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/idp/internal/api/middleware"
	"github.com/edvin/idp/internal/api/request"
	"github.com/edvin/idp/internal/api/response"
	"github.com/edvin/idp/internal/core"
	"github.com/edvin/idp/internal/model"
	"github.com/edvin/idp/internal/platform"
)

type Client struct {
	svc     *core.ClientService
	secrets *core.ClientSecretService
}

func NewClient(svc *core.ClientService, secrets *core.ClientSecretService) *Client {
	return &Client{svc: svc, secrets: secrets}
}

// Create registers a new confidential client.
func (h *Client) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ClientID      string   `json:"client_id" validate:"required,min=3"`
		DisplayName   string   `json:"display_name" validate:"required"`
		RedirectURIs  []string `json:"redirect_uris" validate:"required,min=1,dive,uri"`
		AllowedScopes []string `json:"allowed_scopes"`
	}
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	client := &model.OAuthClient{
		ID:            platform.NewID(),
		ClientID:      req.ClientID,
		DisplayName:   req.DisplayName,
		Confidential:  true,
		RedirectURIs:  req.RedirectURIs,
		AllowedScopes: req.AllowedScopes,
		RequirePKCE:   true,
		CreatedAt:     time.Now(),
	}

	if err := h.svc.Create(r.Context(), client); err != nil {
		response.WriteCoreError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, client)
}

// List returns all registered clients.
func (h *Client) List(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.List(r.Context())
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, clients)
}

// Get retrieves a client by its client id.
func (h *Client) Get(w http.ResponseWriter, r *http.Request) {
	clientID, err := request.RequireID(chi.URLParam(r, "clientID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	client, err := h.svc.GetByClientID(r.Context(), clientID)
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, client)
}

// Update replaces a client's mutable fields.
func (h *Client) Update(w http.ResponseWriter, r *http.Request) {
	clientID, err := request.RequireID(chi.URLParam(r, "clientID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		DisplayName   string   `json:"display_name" validate:"required"`
		RedirectURIs  []string `json:"redirect_uris" validate:"required,min=1,dive,uri"`
		AllowedScopes []string `json:"allowed_scopes"`
	}
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Update(r.Context(), clientID, req.DisplayName, req.RedirectURIs, req.AllowedScopes); err != nil {
		response.WriteCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete removes a client. The administrative client is protected.
func (h *Client) Delete(w http.ResponseWriter, r *http.Request) {
	clientID, err := request.RequireID(chi.URLParam(r, "clientID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), clientID); err != nil {
		response.WriteCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateSecret mints a new secret for a client. The plaintext is returned
// exactly once.
func (h *Client) CreateSecret(w http.ResponseWriter, r *http.Request) {
	clientID, err := request.RequireID(chi.URLParam(r, "clientID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Description string     `json:"description"`
		ExpiresAt   *time.Time `json:"expires_at"`
	}
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity := middleware.GetIdentity(r.Context())
	secret, plaintext, err := h.secrets.Create(r.Context(), clientID, req.Description, identity.Subject, req.ExpiresAt)
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, map[string]any{
		"secret": secret,
		"value":  plaintext,
	})
}

// ListSecrets returns a client's secrets without hash material.
func (h *Client) ListSecrets(w http.ResponseWriter, r *http.Request) {
	clientID, err := request.RequireID(chi.URLParam(r, "clientID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	secrets, err := h.secrets.ListByClient(r.Context(), clientID)
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, secrets)
}

// RevokeSecret deactivates a secret; the last active secret is protected.
func (h *Client) RevokeSecret(w http.ResponseWriter, r *http.Request) {
	secretID, err := request.RequireID(chi.URLParam(r, "secretID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.secrets.Revoke(r.Context(), secretID); err != nil {
		response.WriteCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteSecret permanently removes an already-revoked secret.
func (h *Client) DeleteSecret(w http.ResponseWriter, r *http.Request) {
	secretID, err := request.RequireID(chi.URLParam(r, "secretID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.secrets.Delete(r.Context(), secretID); err != nil {
		response.WriteCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
