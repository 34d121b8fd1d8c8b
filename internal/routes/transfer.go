package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lumopay/lumopay/internal/transfer"
)

// RegisterTransferRoutes wires P2P send and money-request endpoints.
func RegisterTransferRoutes(r fiber.Router, h *transfer.Handler, limit fiber.Handler) {
	r.Post("/transfers", limit, h.Send)
	r.Post("/transfers/requests", h.Request)
	r.Post("/transfers/requests/:requestId/respond", limit, h.Respond)
}

// RegisterOpsRoutes wires the operator reconciliation feed.
func RegisterOpsRoutes(r fiber.Router, h *transfer.Handler) {
	r.Get("/ops/transfers/partially-settled", h.PartiallySettled)
}
