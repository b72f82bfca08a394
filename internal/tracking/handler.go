package tracking

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/polyfab/polyfab/internal/platform/httpx"
)

// Handler wires HTTP endpoints for QR scanning.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the tracking handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers scan endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/scans", h.handleScan)
	r.Get("/rolls/{rollID}/scans", h.handleHistory)
	r.Post("/rolls/{rollID}/label", h.handleLabel)
}

type scanRequest struct {
	Token   string `json:"token" validate:"required"`
	Station string `json:"station" validate:"required,oneof=printing cutting receiving"`
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actorID, _ := strconv.ParseInt(r.Header.Get("X-Operator-ID"), 10, 64)
	event, err := h.service.VerifyScan(r.Context(), req.Token, req.Station, actorID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, event)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	rollID, err := strconv.ParseInt(chi.URLParam(r, "rollID"), 10, 64)
	if err != nil || rollID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rollID must be a positive integer")
		return
	}
	events, err := h.service.ScanHistory(r.Context(), rollID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": events})
}

func (h *Handler) handleLabel(w http.ResponseWriter, r *http.Request) {
	rollID, err := strconv.ParseInt(chi.URLParam(r, "rollID"), 10, 64)
	if err != nil || rollID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "rollID must be a positive integer")
		return
	}
	actorID, _ := strconv.ParseInt(r.Header.Get("X-Operator-ID"), 10, 64)
	label, err := h.service.IssueLabel(r.Context(), rollID, actorID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, label)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrExpiredToken):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Token", err.Error())
	case errors.Is(err, ErrRefMismatch):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrRollNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("tracking request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
