package production

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the job order and roll endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/job-orders", func(r chi.Router) {
		r.Get("/", h.handleListOrders)
		r.Post("/", h.handleCreateOrder)
		r.Route("/{orderID}", func(r chi.Router) {
			r.Get("/", h.handleGetOrder)
			r.Put("/", h.handleUpdateOrder)
			r.Patch("/status", h.handleUpdateOrderStatus)
			r.Delete("/", h.handleDeleteOrder)
			r.Post("/rolls", h.handleCreateRoll)
		})
	})
	r.Route("/rolls/{rollID}", func(r chi.Router) {
		r.Post("/printing", h.handleRecordPrinting)
		r.Post("/cutting", h.handleRecordCutting)
		r.Post("/receive", h.handleReceiveRoll)
		r.Put("/", h.handleUpdateRoll)
		r.Delete("/", h.handleDeleteRoll)
	})
}
