package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stratocard/stratocard/internal/wallet"
)

// RegisterWalletRoutes wires tenant wallet endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/wallets/:walletId", h.Get)
}
