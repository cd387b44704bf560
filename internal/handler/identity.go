package handler

import (
	"net/http"

	"github.com/whodunit/platform/internal/auth"
	"github.com/whodunit/platform/internal/domain"
)

// IdentityHandler issues anonymous identity tokens. There is no signup: the
// first request a client ever makes is for a token, which it persists locally.
type IdentityHandler struct {
	manager *auth.Manager
}

// NewIdentityHandler creates a new IdentityHandler.
func NewIdentityHandler(manager *auth.Manager) *IdentityHandler {
	return &IdentityHandler{manager: manager}
}

type identityRequest struct {
	DisplayName string `json:"display_name"`
}

type identityResponse struct {
	Token       string `json:"token"`
	IdentityID  string `json:"identity_id"`
	DisplayName string `json:"display_name"`
}

// Issue handles POST /identity.
func (h *IdentityHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}

	token, ident, err := h.manager.Issue(req.DisplayName)
	if err != nil {
		RespondError(w, domain.ErrInternal("issue token", err))
		return
	}

	RespondJSON(w, http.StatusCreated, identityResponse{
		Token:       token,
		IdentityID:  ident.ID.String(),
		DisplayName: ident.DisplayName,
	})
}

// Refresh handles POST /identity/refresh: a new token for the authenticated
// identity, keeping its UUID so session membership survives expiry.
func (h *IdentityHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ident := auth.IdentityFromContext(r.Context())

	var req identityRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	name := req.DisplayName
	if name == "" {
		name = ident.DisplayName
	}

	token, refreshed, err := h.manager.IssueFor(ident.ID, name)
	if err != nil {
		RespondError(w, domain.ErrInternal("issue token", err))
		return
	}

	RespondJSON(w, http.StatusOK, identityResponse{
		Token:       token,
		IdentityID:  refreshed.ID.String(),
		DisplayName: refreshed.DisplayName,
	})
}
