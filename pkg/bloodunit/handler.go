package bloodunit

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/lifebank/internal/httpserver"
	"github.com/wisbric/lifebank/internal/ledger"
)

// Handler exposes the registry over HTTP.
type Handler struct {
	service *Service
	envFn   func(r *http.Request) *ledger.Env
	logger  *slog.Logger
}

// NewHandler creates a registry Handler. envFn builds the per-request
// ledger.Env (store, clock, events, authenticated caller).
func NewHandler(service *Service, envFn func(r *http.Request) *ledger.Env, logger *slog.Logger) *Handler {
	return &Handler{service: service, envFn: envFn, logger: logger}
}

// Routes returns a chi.Router with the registry routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleRegister)
	r.Get("/", h.handleList)
	r.Post("/expire-batch", h.handleExpireBatch)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/status", h.handleUpdateStatus)
	r.Post("/{id}/expire", h.handleExpire)
	r.Get("/{id}/expired", h.handleIsExpired)
	r.Get("/{id}/history", h.handleHistory)
	return r
}

// RegisterUnitRequest is the JSON body for POST /units.
type RegisterUnitRequest struct {
	BankID              string  `json:"bank_id" validate:"required"`
	BloodType           string  `json:"blood_type" validate:"required"`
	QuantityML          uint32  `json:"quantity_ml" validate:"required"`
	ExpirationTimestamp uint64  `json:"expiration_timestamp" validate:"required"`
	DonorID             *string `json:"donor_id,omitempty"`
}

// UpdateStatusRequest is the JSON body for POST /units/{id}/status.
type UpdateStatusRequest struct {
	NewStatus string `json:"new_status" validate:"required"`
	Actor     string `json:"actor" validate:"required"`
}

// ExpireBatchRequest is the JSON body for POST /units/expire-batch.
type ExpireBatchRequest struct {
	UnitIDs []uint64 `json:"unit_ids" validate:"required"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterUnitRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	bloodType, err := ParseBloodType(req.BloodType)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	env := h.envFn(r)
	unitID, err := h.service.RegisterUnit(r.Context(), env, ledger.Address(req.BankID), bloodType, req.QuantityML, req.ExpirationTimestamp, req.DonorID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, map[string]uint64{"unit_id": unitID})
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	unitID, ok := parseUnitID(w, r)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	newStatus, err := ParseBloodStatus(req.NewStatus)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	env := h.envFn(r)
	if err := h.service.UpdateStatus(r.Context(), env, unitID, newStatus, ledger.Address(req.Actor)); err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) handleExpire(w http.ResponseWriter, r *http.Request) {
	unitID, ok := parseUnitID(w, r)
	if !ok {
		return
	}

	env := h.envFn(r)
	if err := h.service.ExpireUnit(r.Context(), env, unitID); err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "expired"})
}

func (h *Handler) handleExpireBatch(w http.ResponseWriter, r *http.Request) {
	var req ExpireBatchRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	env := h.envFn(r)
	expired, err := h.service.CheckAndExpireBatch(r.Context(), env, req.UnitIDs)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"expired_ids": expired})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	unitID, ok := parseUnitID(w, r)
	if !ok {
		return
	}

	env := h.envFn(r)
	unit, err := h.service.GetUnit(r.Context(), env, unitID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, unit)
}

// handleList serves GET /units?bank=... and GET /units?donor=..., with
// offset pagination over the filtered result.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	bank := r.URL.Query().Get("bank")
	donor := r.URL.Query().Get("donor")
	if (bank == "") == (donor == "") {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "exactly one of ?bank= or ?donor= is required")
		return
	}

	env := h.envFn(r)
	var units []BloodUnit
	if bank != "" {
		units, err = h.service.GetUnitsByBank(r.Context(), env, ledger.Address(bank))
	} else {
		units, err = h.service.GetUnitsByDonor(r.Context(), env, donor)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}

	total := len(units)
	lo := params.Offset
	if lo > total {
		lo = total
	}
	hi := lo + params.PageSize
	if hi > total {
		hi = total
	}
	page := units[lo:hi]
	if page == nil {
		page = []BloodUnit{}
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(page, params, total))
}

func (h *Handler) handleIsExpired(w http.ResponseWriter, r *http.Request) {
	unitID, ok := parseUnitID(w, r)
	if !ok {
		return
	}

	env := h.envFn(r)
	expired, err := h.service.IsExpired(r.Context(), env, unitID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]bool{"expired": expired})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	unitID, ok := parseUnitID(w, r)
	if !ok {
		return
	}

	env := h.envFn(r)
	history, err := h.service.GetStatusHistory(r.Context(), env, unitID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if history == nil {
		history = []StatusChangeEvent{}
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"history": history})
}

func parseUnitID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "unit id must be a non-negative integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var derr Error
	switch {
	case errors.As(err, &derr):
		switch derr {
		case ErrUnitNotFound:
			httpserver.RespondError(w, http.StatusNotFound, "not_found", derr.Error())
		case ErrInvalidQuantity, ErrInvalidExpiration, ErrBatchSizeExceeded:
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", derr.Error())
		default:
			httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
		}
	case errors.Is(err, ledger.ErrUnauthorized):
		httpserver.RespondError(w, http.StatusForbidden, "unauthorized", err.Error())
	default:
		h.logger.Error("bloodunit request failed", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
