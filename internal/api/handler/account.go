package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/idp/internal/api/middleware"
	"github.com/edvin/idp/internal/api/request"
	"github.com/edvin/idp/internal/api/response"
	"github.com/edvin/idp/internal/core"
)

type Account struct {
	svc *core.AccountService
}

func NewAccount(svc *core.AccountService) *Account {
	return &Account{svc: svc}
}

// Register handles native account registration. Public: no bearer token
// required.
func (h *Account) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email" validate:"required,email"`
		DisplayName string `json:"display_name" validate:"required"`
		Username    string `json:"username" validate:"required,min=3"`
		Password    string `json:"password" validate:"required,min=10"`
	}
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := h.svc.Create(r.Context(), req.Email, req.DisplayName, req.Username, req.Password)
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, account)
}

// List returns the accounts visible to the caller.
func (h *Account) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())

	accounts, err := h.svc.ListVisible(r.Context(), identity.Subject)
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, accounts)
}

// Get retrieves a single account if it is visible to the caller.
func (h *Account) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity := middleware.GetIdentity(r.Context())
	visible, err := h.svc.ListVisible(r.Context(), identity.Subject)
	if err != nil {
		response.WriteCoreError(w, err)
		return
	}
	for _, a := range visible {
		if a.ID == id {
			response.WriteJSON(w, http.StatusOK, a)
			return
		}
	}
	response.WriteError(w, http.StatusNotFound, "account not found")
}

// Delete removes an account. Callers may delete themselves; anything else
// requires the admin role (enforced by route middleware). The last server
// administrator can never be deleted.
func (h *Account) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		response.WriteCoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
