package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/polyfab/polyfab/internal/dashboard"
	"github.com/polyfab/polyfab/internal/inventory"
	"github.com/polyfab/polyfab/internal/live"
	"github.com/polyfab/polyfab/internal/machines"
	"github.com/polyfab/polyfab/internal/mixing"
	"github.com/polyfab/polyfab/internal/observability"
	"github.com/polyfab/polyfab/internal/production"
	"github.com/polyfab/polyfab/internal/production/export"
	"github.com/polyfab/polyfab/internal/tracking"
	"github.com/polyfab/polyfab/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	ProductionHandler *production.Handler
	ExportHandler     *export.Handler
	InventoryHandler  *inventory.Handler
	MixingHandler     *mixing.Handler
	MachinesHandler   *machines.Handler
	TrackingHandler   *tracking.Handler
	DashboardHandler  *dashboard.Handler
	LiveHub           *live.Hub
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/production", params.ProductionHandler.MountRoutes)
	if params.ExportHandler != nil {
		r.Route("/reports", params.ExportHandler.MountRoutes)
	}
	r.Route("/inventory", params.InventoryHandler.MountRoutes)
	r.Route("/mixing", params.MixingHandler.MountRoutes)
	params.MachinesHandler.MountRoutes(r)
	if params.TrackingHandler != nil {
		r.Route("/tracking", params.TrackingHandler.MountRoutes)
	}
	if params.DashboardHandler != nil {
		params.DashboardHandler.MountRoutes(r)
	}
	if params.LiveHub != nil {
		r.Method(http.MethodGet, "/ws", params.LiveHub)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
