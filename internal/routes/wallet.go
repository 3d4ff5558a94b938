package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hlpay/paystream/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets", h.Create)
	r.Get("/wallets/:walletId/balance", h.Balance)
	r.Post("/wallets/:walletId/approve", h.Approve)
	r.Get("/wallets/:walletId/allowance", h.Allowance)
}
