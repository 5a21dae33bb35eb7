package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stratocard/stratocard/internal/fees"
)

// RegisterFeeRoutes wires fee collection and debt endpoints.
func RegisterFeeRoutes(r fiber.Router, h *fees.Handler) {
	r.Post("/fees/collect", h.Collect)
	r.Get("/debts/:debtId", h.GetDebt)
	r.Post("/debts/:debtId/pay", h.PayDebt)
	r.Get("/customers/:customerId/debts", h.ListDebts)
}
