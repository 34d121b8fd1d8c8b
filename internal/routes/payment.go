package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lumopay/lumopay/internal/payment"
)

// RegisterPaymentRoutes wires merchant payment endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payment.Handler, limit fiber.Handler) {
	r.Post("/payments", limit, h.Pay)
	r.Post("/payments/:entryId/settlement", h.Settle)
}
