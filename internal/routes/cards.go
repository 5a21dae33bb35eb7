package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stratocard/stratocard/internal/saga"
)

// RegisterCardRoutes wires the card lifecycle and funds-movement endpoints.
func RegisterCardRoutes(r fiber.Router, h *saga.Handler) {
	r.Post("/cards", h.Issue)
	r.Get("/cards/:cardId", h.Get)
	r.Post("/cards/:cardId/fund", h.Fund)
	r.Post("/cards/:cardId/withdraw", h.Withdraw)
	r.Put("/cards/:cardId/freeze", h.Freeze)
	r.Put("/cards/:cardId/unfreeze", h.Unfreeze)
	r.Put("/cards/:cardId/terminate", h.Terminate)
}
