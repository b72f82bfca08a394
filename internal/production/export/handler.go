package export

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/polyfab/polyfab/internal/platform/httpx"
	"github.com/polyfab/polyfab/internal/production"
)

// LedgerSource supplies reconciled job orders for export.
type LedgerSource interface {
	ListOrders(ctx context.Context, filter production.ListFilter) ([]production.JobOrderWithMetrics, int, error)
}

// Handler serves ledger downloads. Exports walk the full roll ledger, so
// the routes are rate limited per client.
type Handler struct {
	logger *slog.Logger
	source LedgerSource
	pdf    PDFRenderer
	now    func() time.Time
}

// NewHandler constructs the export handler.
func NewHandler(logger *slog.Logger, source LedgerSource, pdf PDFRenderer) *Handler {
	return &Handler{logger: logger, source: source, pdf: pdf, now: time.Now}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// MountRoutes registers the export endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(10, time.Minute))
		r.Get("/job-orders/export", h.handleExport)
	})
}

// exportLimit caps how many rows a single download walks.
const exportLimit = 200

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := production.ListFilter{Limit: exportLimit}
	if s := q.Get("status"); s != "" {
		status := production.OrderStatus(s)
		filter.Status = &status
	}

	orders, _, err := h.source.ListOrders(r.Context(), filter)
	if err != nil {
		h.logger.Error("ledger export failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	stamp := h.now().Format("20060102-1504")
	switch q.Get("format") {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		legacy := q.Get("encoding") == "windows-1252"
		if legacy {
			w.Header().Set("Content-Type", "text/csv; charset=windows-1252")
		}
		w.Header().Set("Content-Disposition", `attachment; filename="job-orders-`+stamp+`.csv"`)
		if err := WriteLedgerCSV(w, orders, legacy); err != nil {
			h.logger.Error("csv export failed", slog.Any("error", err))
		}
	case "xlsx":
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="job-orders-`+stamp+`.xlsx"`)
		if err := WriteLedgerXLSX(w, orders); err != nil {
			h.logger.Error("xlsx export failed", slog.Any("error", err))
		}
	case "pdf":
		if h.pdf == nil {
			httpx.Problem(w, http.StatusServiceUnavailable, "PDF Unavailable", "PDF rendering is not configured")
			return
		}
		data, err := RenderLedgerPDF(r.Context(), h.pdf, orders, h.now())
		if err != nil {
			h.logger.Error("pdf export failed", slog.Any("error", err))
			httpx.Problem(w, http.StatusBadGateway, "PDF Render Failed", "")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="job-orders-`+stamp+`.pdf"`)
		_, _ = w.Write(data)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "format must be csv, xlsx or pdf")
	}
}
