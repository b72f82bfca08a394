package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/polyfab/polyfab/internal/platform/httpx"
	"github.com/polyfab/polyfab/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers material and movement endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/materials", func(r chi.Router) {
		r.Get("/", h.handleListMaterials)
		r.Post("/", h.handleCreateMaterial)
		r.Get("/low-stock", h.handleLowStock)
		r.Route("/{materialID}", func(r chi.Router) {
			r.Get("/", h.handleGetMaterial)
			r.Put("/", h.handleUpdateMaterial)
			r.Get("/stock-card", h.handleStockCard)
			r.Post("/receive", h.handleReceive)
			r.Post("/issue", h.handleIssue)
			r.Post("/adjust", h.handleAdjust)
		})
	})
}

type materialRequest struct {
	Code         string  `json:"code" validate:"required,max=40"`
	Name         string  `json:"name" validate:"required,max=120"`
	Category     string  `json:"category" validate:"omitempty,oneof=resin masterbatch ink solvent other"`
	Unit         string  `json:"unit" validate:"omitempty,max=10"`
	ReorderLevel float64 `json:"reorder_level" validate:"gte=0"`
}

type movementRequest struct {
	Code     string  `json:"code" validate:"omitempty,max=40"`
	Qty      float64 `json:"qty" validate:"required"`
	UnitCost float64 `json:"unit_cost" validate:"gte=0"`
	Note     string  `json:"note" validate:"omitempty,max=240"`
	RefID    string  `json:"ref_id" validate:"omitempty,uuid"`
}

func (h *Handler) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	materials, total, err := h.service.ListMaterials(r.Context(), limit, offset)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       materials,
		"pagination": shared.NewPagination(offset/limit+1, limit, total),
	})
}

func (h *Handler) handleCreateMaterial(w http.ResponseWriter, r *http.Request) {
	var req materialRequest
	if !h.decode(w, r, &req) {
		return
	}
	material, err := h.service.CreateMaterial(r.Context(), Material{
		Code:         req.Code,
		Name:         req.Name,
		Category:     MaterialCategory(req.Category),
		Unit:         req.Unit,
		ReorderLevel: req.ReorderLevel,
	}, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, material)
}

func (h *Handler) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	material, balance, err := h.service.GetMaterial(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"material": material, "balance": balance})
}

func (h *Handler) handleUpdateMaterial(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req materialRequest
	if !h.decode(w, r, &req) {
		return
	}
	material, err := h.service.UpdateMaterial(r.Context(), Material{
		ID:           id,
		Name:         req.Name,
		Category:     MaterialCategory(req.Category),
		Unit:         req.Unit,
		ReorderLevel: req.ReorderLevel,
	}, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, material)
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	filter := StockCardFilter{MaterialID: id}
	q := r.URL.Query()
	if s := q.Get("from"); s != "" {
		from, err := time.Parse("2006-01-02", s)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "from must be YYYY-MM-DD")
			return
		}
		filter.From = from
	}
	if s := q.Get("to"); s != "" {
		to, err := time.Parse("2006-01-02", s)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to must be YYYY-MM-DD")
			return
		}
		filter.To = to.Add(24*time.Hour - time.Nanosecond)
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	entries, err := h.service.GetStockCard(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListLowStock(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.Receive(r.Context(), ReceiveInput{
		Code:       req.Code,
		MaterialID: id,
		Qty:        req.Qty,
		UnitCost:   req.UnitCost,
		Note:       req.Note,
		ActorID:    actorID(r),
		RefID:      req.RefID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.Issue(r.Context(), IssueInput{
		Code:       req.Code,
		MaterialID: id,
		Qty:        req.Qty,
		Note:       req.Note,
		ActorID:    actorID(r),
		RefID:      req.RefID,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.service.Adjust(r.Context(), AdjustInput{
		Code:       req.Code,
		MaterialID: id,
		Qty:        req.Qty,
		UnitCost:   req.UnitCost,
		Note:       req.Note,
		ActorID:    actorID(r),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
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
	id, err := strconv.ParseInt(chi.URLParam(r, "materialID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "materialID must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrMaterialNotFound), errors.Is(err, ErrBalanceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNegativeStock), errors.Is(err, ErrDuplicateCode), errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("inventory request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Operator-ID"), 10, 64)
	return id
}
