package mixing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/polyfab/polyfab/internal/inventory"
	"github.com/polyfab/polyfab/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the mixing module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the mixing handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers formula and batch endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/formulas", func(r chi.Router) {
		r.Get("/", h.handleListFormulas)
		r.Post("/", h.handleCreateFormula)
		r.Get("/{formulaID}", h.handleGetFormula)
		r.Put("/{formulaID}", h.handleUpdateFormula)
	})
	r.Route("/batches", func(r chi.Router) {
		r.Get("/", h.handleListBatches)
		r.Post("/", h.handleMixBatch)
		r.Get("/{batchID}", h.handleGetBatch)
	})
}

type formulaLineRequest struct {
	MaterialID int64   `json:"material_id" validate:"required,gt=0"`
	Percent    float64 `json:"percent" validate:"required,gt=0,lte=100"`
}

type formulaRequest struct {
	Code   string               `json:"code" validate:"required,max=40"`
	Name   string               `json:"name" validate:"required,max=120"`
	Active *bool                `json:"active,omitempty"`
	Lines  []formulaLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type mixBatchRequest struct {
	FormulaID  int64   `json:"formula_id" validate:"required,gt=0"`
	JobOrderID *int64  `json:"job_order_id,omitempty" validate:"omitempty,gt=0"`
	TotalKg    float64 `json:"total_kg" validate:"required,gt=0"`
}

func (h *Handler) handleListFormulas(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	formulas, err := h.service.ListFormulas(r.Context(), activeOnly)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": formulas})
}

func (h *Handler) handleCreateFormula(w http.ResponseWriter, r *http.Request) {
	var req formulaRequest
	if !h.decode(w, r, &req) {
		return
	}
	formula, err := h.service.CreateFormula(r.Context(), Formula{
		Code:  req.Code,
		Name:  req.Name,
		Lines: toLines(req.Lines),
	}, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, formula)
}

func (h *Handler) handleGetFormula(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "formulaID")
	if !ok {
		return
	}
	formula, err := h.service.GetFormula(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, formula)
}

func (h *Handler) handleUpdateFormula(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "formulaID")
	if !ok {
		return
	}
	var req formulaRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	formula, err := h.service.UpdateFormula(r.Context(), id, req.Name, active, toLines(req.Lines), actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, formula)
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var jobOrderID *int64
	if s := q.Get("job_order_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "job_order_id must be an integer")
			return
		}
		jobOrderID = &id
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	batches, total, err := h.service.ListBatches(r.Context(), jobOrderID, limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": batches, "total": total})
}

func (h *Handler) handleMixBatch(w http.ResponseWriter, r *http.Request) {
	var req mixBatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	batch, err := h.service.MixBatch(r.Context(), req.FormulaID, req.JobOrderID, req.TotalKg, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, batch)
}

func (h *Handler) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "batchID")
	if !ok {
		return
	}
	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func toLines(reqs []formulaLineRequest) []FormulaLine {
	lines := make([]FormulaLine, 0, len(reqs))
	for _, req := range reqs {
		lines = append(lines, FormulaLine{MaterialID: req.MaterialID, Percent: req.Percent})
	}
	return lines
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

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", param+" must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrPercentSum), errors.Is(err, ErrNoLines),
		errors.Is(err, ErrInvalidWeight), errors.Is(err, ErrDuplicateMaterial):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrInactiveFormula), errors.Is(err, inventory.ErrNegativeStock):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error("mixing request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Operator-ID"), 10, 64)
	return id
}
