package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hlpay/paystream/internal/treasury"
)

// RegisterTreasuryRoutes wires bank funding/payout endpoints.
func RegisterTreasuryRoutes(r fiber.Router, h *treasury.Handler) {
	r.Post("/wallets/:walletId/fund/bank", h.Deposit)
	r.Post("/wallets/:walletId/payout/bank", h.Payout)
}
