package production

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/polyfab/polyfab/internal/platform/httpx"
	"github.com/polyfab/polyfab/internal/shared"
)

// Handler wires HTTP endpoints for the production module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{}
	if s := q.Get("status"); s != "" {
		status := OrderStatus(s)
		filter.Status = &status
	}
	if s := q.Get("production_status"); s != "" {
		status := ProductionStatus(s)
		filter.ProductionStatus = &status
	}
	if s := q.Get("machine_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "machine_id must be an integer")
			return
		}
		filter.MachineID = &id
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	orders, total, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	page := filter.Offset/filter.Limit + 1
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       orders,
		"pagination": shared.NewPagination(page, filter.Limit, total),
	})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateJobOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.CreateOrder(r.Context(), req, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleUpdateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req UpdateJobOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	order, err := h.service.UpdateOrder(r.Context(), id, req, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req UpdateOrderStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.UpdateOrderStatus(r.Context(), id, req.Status, actorID(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}

func (h *Handler) handleDeleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	if err := h.service.DeleteOrder(r.Context(), id, actorID(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCreateRoll(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "orderID")
	if !ok {
		return
	}
	var req CreateRollRequest
	if !h.decode(w, r, &req) {
		return
	}
	roll, err := h.service.CreateRoll(r.Context(), id, req, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, roll)
}

func (h *Handler) handleRecordPrinting(w http.ResponseWriter, r *http.Request) {
	h.stageHandler(w, r, h.service.RecordPrinting)
}

func (h *Handler) handleRecordCutting(w http.ResponseWriter, r *http.Request) {
	h.stageHandler(w, r, h.service.RecordCutting)
}

func (h *Handler) handleReceiveRoll(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "rollID")
	if !ok {
		return
	}
	roll, err := h.service.ReceiveRoll(r.Context(), id, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roll)
}

func (h *Handler) handleUpdateRoll(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "rollID")
	if !ok {
		return
	}
	var req UpdateRollRequest
	if !h.decode(w, r, &req) {
		return
	}
	roll, err := h.service.UpdateRoll(r.Context(), id, req, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roll)
}

func (h *Handler) handleDeleteRoll(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "rollID")
	if !ok {
		return
	}
	if err := h.service.DeleteRoll(r.Context(), id, actorID(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) stageHandler(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, rollID int64, req StageQtyRequest, actorID int64) (Roll, error)) {
	id, ok := h.pathID(w, r, "rollID")
	if !ok {
		return
	}
	var req StageQtyRequest
	if !h.decode(w, r, &req) {
		return
	}
	roll, err := fn(r.Context(), id, req, actorID(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roll)
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
	case errors.Is(err, ErrStageOrder), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrTerminalStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("production request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// actorID resolves the acting operator from the X-Operator-ID header. The
// proxy in front of the API authenticates operators and injects it.
func actorID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.Header.Get("X-Operator-ID"), 10, 64)
	return id
}
