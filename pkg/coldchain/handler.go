package coldchain

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/lifebank/internal/httpserver"
	"github.com/wisbric/lifebank/internal/ledger"
)

// Handler exposes the cold-chain monitor over HTTP.
type Handler struct {
	service *Service
	envFn   func(r *http.Request) *ledger.Env
	logger  *slog.Logger
}

// NewHandler creates a cold-chain Handler. envFn builds the per-request
// ledger.Env (store, clock, events, authenticated caller).
func NewHandler(service *Service, envFn func(r *http.Request) *ledger.Env, logger *slog.Logger) *Handler {
	return &Handler{service: service, envFn: envFn, logger: logger}
}

// Routes returns a chi.Router with the cold-chain routes mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/initialize", h.handleInitialize)
	r.Post("/thresholds", h.handleSetThreshold)
	r.Post("/readings", h.handleLogReading)
	r.Get("/units/{id}/readings", h.handleGetReadings)
	r.Get("/units/{id}/violations", h.handleGetViolations)
	r.Get("/units/{id}/summary", h.handleGetSummary)
	r.Get("/units/{id}/streak", h.handleGetStreak)
	r.Get("/units/{id}/compromised", h.handleIsCompromised)
	r.Post("/units/{id}/reset", h.handleReset)
	return r
}

// InitializeRequest is the JSON body for POST /initialize.
type InitializeRequest struct {
	Admin string `json:"admin" validate:"required"`
}

// SetThresholdRequest is the JSON body for POST /thresholds.
type SetThresholdRequest struct {
	Admin          string `json:"admin" validate:"required"`
	UnitID         uint64 `json:"unit_id" validate:"required"`
	MinCelsiusX100 int32  `json:"min_celsius_x100"`
	MaxCelsiusX100 int32  `json:"max_celsius_x100"`
}

// LogReadingRequest is the JSON body for POST /readings.
type LogReadingRequest struct {
	UnitID                 uint64 `json:"unit_id" validate:"required"`
	TemperatureCelsiusX100 int32  `json:"temperature_celsius_x100"`
	Timestamp              uint64 `json:"timestamp" validate:"required"`
}

// ResetRequest is the JSON body for POST /units/{id}/reset.
type ResetRequest struct {
	Admin string `json:"admin" validate:"required"`
}

func (h *Handler) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	env := h.envFn(r)
	if err := h.service.Initialize(r.Context(), env, ledger.Address(req.Admin)); err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, map[string]string{"status": "initialized"})
}

func (h *Handler) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req SetThresholdRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	env := h.envFn(r)
	err := h.service.SetThreshold(r.Context(), env, ledger.Address(req.Admin), req.UnitID, req.MinCelsiusX100, req.MaxCelsiusX100)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "threshold_set"})
}

func (h *Handler) handleLogReading(w http.ResponseWriter, r *http.Request) {
	var req LogReadingRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	env := h.envFn(r)
	if err := h.service.LogReading(r.Context(), env, req.UnitID, req.TemperatureCelsiusX100, req.Timestamp); err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusCreated, map[string]string{"status": "logged"})
}

// readingItem is one reading plus its position in the unit's log, which
// doubles as the pagination cursor sequence.
type readingItem struct {
	Seq uint64 `json:"seq"`
	TemperatureReading
}

func (h *Handler) handleGetReadings(w http.ResponseWriter, r *http.Request) {
	h.serveReadingPage(w, r, (*Service).GetReadings)
}

func (h *Handler) handleGetViolations(w http.ResponseWriter, r *http.Request) {
	h.serveReadingPage(w, r, (*Service).GetViolations)
}

// serveReadingPage serves a keyset-paginated slice of an append-only
// reading list. The log never reorders, so a (timestamp, seq) cursor stays
// stable across appends.
func (h *Handler) serveReadingPage(w http.ResponseWriter, r *http.Request, fetch func(*Service, context.Context, *ledger.Env, uint64) ([]TemperatureReading, error)) {
	unitID, ok := parseUnitID(w, r)
	if !ok {
		return
	}

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	env := h.envFn(r)
	readings, err := fetch(h.service, r.Context(), env, unitID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	items := make([]readingItem, 0, len(readings))
	for i, reading := range readings {
		item := readingItem{Seq: uint64(i), TemperatureReading: reading}
		if params.After != nil && item.Seq <= params.After.Seq {
			continue
		}
		items = append(items, item)
		if len(items) > params.Limit {
			break
		}
	}

	page := httpserver.NewCursorPage(items, params.Limit, func(item readingItem) httpserver.Cursor {
		return httpserver.Cursor{Timestamp: item.Timestamp, Seq: item.Seq}
	})
	httpserver.Respond(w, http.StatusOK, page)
}

func (h *Handler) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	unitID, ok := parseUnitID(w, r)
	if !ok {
		return
	}

	env := h.envFn(r)
	summary, err := h.service.GetTemperatureSummary(r.Context(), env, unitID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, summary)
}

func (h *Handler) handleGetStreak(w http.ResponseWriter, r *http.Request) {
	unitID, ok := parseUnitID(w, r)
	if !ok {
		return
	}

	env := h.envFn(r)
	streak, err := h.service.GetConsecutiveViolationStreak(r.Context(), env, unitID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]uint32{"streak": streak})
}

func (h *Handler) handleIsCompromised(w http.ResponseWriter, r *http.Request) {
	unitID, ok := parseUnitID(w, r)
	if !ok {
		return
	}

	env := h.envFn(r)
	compromised, err := h.service.IsCompromised(r.Context(), env, unitID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]bool{"compromised": compromised})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	unitID, ok := parseUnitID(w, r)
	if !ok {
		return
	}

	var req ResetRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	env := h.envFn(r)
	if err := h.service.ResetCompromisedStatus(r.Context(), env, ledger.Address(req.Admin), unitID); err != nil {
		h.respondError(w, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "reset"})
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
		case ErrUnitNotFound, ErrThresholdNotFound:
			httpserver.RespondError(w, http.StatusNotFound, "not_found", derr.Error())
		case ErrInvalidThreshold:
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", derr.Error())
		case ErrUnauthorized:
			httpserver.RespondError(w, http.StatusForbidden, "unauthorized", derr.Error())
		case ErrAlreadyInitialized:
			httpserver.RespondError(w, http.StatusConflict, "conflict", derr.Error())
		default:
			httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
		}
	case errors.Is(err, ledger.ErrUnauthorized):
		httpserver.RespondError(w, http.StatusForbidden, "unauthorized", err.Error())
	default:
		h.logger.Error("coldchain request failed", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
