package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lumopay/lumopay/internal/rewards"
)

// RegisterRewardsRoutes wires reward point endpoints.
func RegisterRewardsRoutes(r fiber.Router, h *rewards.Handler) {
	r.Get("/rewards/balance", h.Balance)
	r.Get("/rewards/expiring", h.Expiring)
	r.Post("/rewards/redeem", h.Redeem)
}
