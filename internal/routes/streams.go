package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/hlpay/paystream/internal/stream"
)

// RegisterStreamRoutes wires payroll stream endpoints. Creation, pause and
// resume are HR actions; withdrawal belongs to the recipient; cancellation is
// open to either party and authorized inside the service.
func RegisterStreamRoutes(r fiber.Router, h *stream.Handler, hrOnly fiber.Handler) {
	r.Post("/streams", hrOnly, h.Create)
	r.Get("/streams", h.List)
	r.Get("/streams/:streamId", h.Get)
	r.Get("/streams/:streamId/vested", h.Vested)
	r.Get("/streams/:streamId/events", h.Events)
	r.Post("/streams/:streamId/pause", hrOnly, h.Pause)
	r.Post("/streams/:streamId/resume", hrOnly, h.Resume)
	r.Post("/streams/:streamId/withdrawals", h.Withdraw)
	r.Post("/streams/:streamId/cancel", h.Cancel)
}
