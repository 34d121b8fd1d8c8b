package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lumopay/lumopay/internal/wallet"
)

// RegisterWalletRoutes wires wallet balance and history endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallets/:walletId/balance", h.Balance)
	r.Get("/wallets/:walletId/transactions", h.Transactions)
}
