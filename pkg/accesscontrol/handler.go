package accesscontrol

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/lifebank/internal/httpserver"
	"github.com/wisbric/lifebank/internal/ledger"
)

// Handler exposes the access-control core over HTTP.
type Handler struct {
	service *Service
	envFn   func(r *http.Request) *ledger.Env
	logger  *slog.Logger
}

// NewHandler creates an access-control Handler. envFn builds the per-request
// ledger.Env (store, clock, events, authenticated caller).
func NewHandler(service *Service, envFn func(r *http.Request) *ledger.Env, logger *slog.Logger) *Handler {
	return &Handler{service: service, envFn: envFn, logger: logger}
}

// Routes returns a chi.Router with the access-control routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/grant", h.handleGrant)
	r.Post("/revoke", h.handleRevoke)
	r.Get("/{address}", h.handleGetRoles)
	r.Get("/{address}/has/{role}", h.handleHasRole)
	r.Post("/{address}/cleanup", h.handleCleanup)
	return r
}

// GrantRequest is the JSON body for POST /grant.
type GrantRequest struct {
	Address   string  `json:"address" validate:"required"`
	Role      string  `json:"role" validate:"required"`
	ExpiresAt *uint64 `json:"expires_at"`
}

// RevokeRequest is the JSON body for POST /revoke.
type RevokeRequest struct {
	Address string `json:"address" validate:"required"`
	Role    string `json:"role" validate:"required"`
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	role, err := ParseRole(req.Role)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	env := h.envFn(r)
	grant, err := h.service.GrantRole(r.Context(), env, ledger.Address(req.Address), role, req.ExpiresAt)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, grant)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req RevokeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	role, err := ParseRole(req.Role)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	env := h.envFn(r)
	if err := h.service.RevokeRole(r.Context(), env, ledger.Address(req.Address), role); err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) handleGetRoles(w http.ResponseWriter, r *http.Request) {
	address := ledger.Address(chi.URLParam(r, "address"))
	env := h.envFn(r)

	roles, err := h.service.GetRoles(r.Context(), env, address)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if roles == nil {
		roles = []RoleGrant{}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) handleHasRole(w http.ResponseWriter, r *http.Request) {
	address := ledger.Address(chi.URLParam(r, "address"))
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	env := h.envFn(r)
	has, err := h.service.HasRole(r.Context(), env, address, role)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]bool{"has_role": has})
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	address := ledger.Address(chi.URLParam(r, "address"))
	env := h.envFn(r)

	removed, err := h.service.CleanupExpiredRoles(r.Context(), env, address)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]uint32{"removed": removed})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ledger.ErrUnauthorized):
		httpserver.RespondError(w, http.StatusForbidden, "unauthorized", err.Error())
	default:
		h.logger.Error("accesscontrol request failed", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
