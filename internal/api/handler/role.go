package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/idp/internal/api/middleware"
	"github.com/edvin/idp/internal/api/request"
	"github.com/edvin/idp/internal/api/response"
	"github.com/edvin/idp/internal/core"
)

type Role struct {
	svc *core.RoleService
}

func NewRole(svc *core.RoleService) *Role {
	return &Role{svc: svc}
}

// List returns the role triples held by an account.
func (h *Role) List(w http.ResponseWriter, r *http.Request) {
	accountID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	roles, err := h.svc.ListForAccount(r.Context(), accountID)
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, roles)
}

// Add grants a role to an account. The caller is the acting manager; the
// administrative guardrails live in the service.
func (h *Role) Add(w http.ResponseWriter, r *http.Request) {
	accountID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		ClientID string `json:"client_id" validate:"required"`
		Role     string `json:"role" validate:"required"`
	}
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity := middleware.GetIdentity(r.Context())
	if err := h.svc.AddRole(r.Context(), identity.Subject, accountID, req.ClientID, req.Role); err != nil {
		response.WriteCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// Remove revokes a role triple. The last server administrator's admin role
// cannot be removed.
func (h *Role) Remove(w http.ResponseWriter, r *http.Request) {
	accountID, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		ClientID string `json:"client_id" validate:"required"`
		Role     string `json:"role" validate:"required"`
	}
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.RemoveRole(r.Context(), accountID, req.ClientID, req.Role); err != nil {
		response.WriteCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListService returns the roles of a machine client.
func (h *Role) ListService(w http.ResponseWriter, r *http.Request) {
	clientID, err := request.RequireID(chi.URLParam(r, "clientID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	roles, err := h.svc.ListServiceRoles(r.Context(), clientID)
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, roles)
}

// AddService grants a role to a machine client.
func (h *Role) AddService(w http.ResponseWriter, r *http.Request) {
	clientID, err := request.RequireID(chi.URLParam(r, "clientID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Role string `json:"role" validate:"required"`
	}
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.AddServiceRole(r.Context(), clientID, req.Role); err != nil {
		response.WriteCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// RemoveService revokes a machine-client role.
func (h *Role) RemoveService(w http.ResponseWriter, r *http.Request) {
	clientID, err := request.RequireID(chi.URLParam(r, "clientID"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Role string `json:"role" validate:"required"`
	}
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.RemoveServiceRole(r.Context(), clientID, req.Role); err != nil {
		response.WriteCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
