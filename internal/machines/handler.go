package machines

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/polyfab/polyfab/internal/platform/httpx"
	"github.com/polyfab/polyfab/internal/shared"
)

// Handler wires HTTP endpoints for the machine registry.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the machines handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers machine endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/machines", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{machineID}", h.handleGet)
		r.Put("/{machineID}", h.handleUpdate)
	})
}

type machineRequest struct {
	Code          string  `json:"code" validate:"required,max=40"`
	Name          string  `json:"name" validate:"required,max=120"`
	Type          string  `json:"type" validate:"required,oneof=extruder printer cutter mixer"`
	Status        string  `json:"status" validate:"omitempty,oneof=active maintenance retired"`
	CapacityKgDay float64 `json:"capacity_kg_day" validate:"gte=0"`
	Notes         *string `json:"notes,omitempty"`
}

type machineUpdateRequest struct {
	Name          string  `json:"name" validate:"omitempty,max=120"`
	Type          string  `json:"type" validate:"omitempty,oneof=extruder printer cutter mixer"`
	Status        string  `json:"status" validate:"omitempty,oneof=active maintenance retired"`
	CapacityKgDay float64 `json:"capacity_kg_day" validate:"gte=0"`
	Notes         *string `json:"notes,omitempty"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{}
	if s := q.Get("type"); s != "" {
		machineType := MachineType(s)
		filter.Type = &machineType
	}
	if s := q.Get("status"); s != "" {
		status := MachineStatus(s)
		filter.Status = &status
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}

	machines, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       machines,
		"pagination": shared.NewPagination(filter.Offset/filter.Limit+1, filter.Limit, total),
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req machineRequest
	if !h.decode(w, r, &req) {
		return
	}
	machine, err := h.service.Create(r.Context(), Machine{
		Code:          req.Code,
		Name:          req.Name,
		Type:          MachineType(req.Type),
		Status:        MachineStatus(req.Status),
		CapacityKgDay: req.CapacityKgDay,
		Notes:         req.Notes,
	}, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, machine)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	machine, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, machine)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req machineUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	machine, err := h.service.Update(r.Context(), id, Machine{
		Name:          req.Name,
		Type:          MachineType(req.Type),
		Status:        MachineStatus(req.Status),
		CapacityKgDay: req.CapacityKgDay,
		Notes:         req.Notes,
	}, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, machine)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "machineID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "machineID must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateCode), errors.Is(err, ErrRetired):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("machines request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Operator-ID"), 10, 64)
	return id
}
