package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stratocard/stratocard/internal/reconcile"
)

// RegisterReconcileRoutes wires on-demand reconciliation endpoints.
func RegisterReconcileRoutes(r fiber.Router, h *reconcile.Handler) {
	r.Post("/reconcile/cards/:cardId", h.Card)
	r.Post("/reconcile/batch", h.Batch)
}
