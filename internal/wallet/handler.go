package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lumopay/lumopay/internal/ledger"
	"github.com/lumopay/lumopay/internal/middleware"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type balanceResponse struct {
	WalletID string    `json:"wallet_id"`
	Balance  int64     `json:"balance"`
	Currency string    `json:"currency"`
	AsOf     time.Time `json:"as_of"`
}

type entryResponse struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Amount    int64             `json:"amount"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Balance returns the wallet's current balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	if err := h.authorize(c, walletID); err != nil {
		return err
	}

	balance, err := h.service.Balance(c.UserContext(), walletID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return err
	}
	return c.Status(http.StatusOK).JSON(balanceResponse{
		WalletID: balance.WalletID,
		Balance:  balance.Amount,
		Currency: balance.Currency,
		AsOf:     balance.AsOf,
	})
}

// Transactions returns the wallet's ledger history, newest first.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	if err := h.authorize(c, walletID); err != nil {
		return err
	}

	filter := ledger.Filter{
		Kind:   c.Query("kind"),
		Limit:  c.QueryInt("limit"),
		Offset: c.QueryInt("offset"),
	}
	var err error
	if filter.From, err = parseTimeQuery(c.Query("from")); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid from timestamp")
	}
	if filter.To, err = parseTimeQuery(c.Query("to")); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid to timestamp")
	}

	entries, err := h.service.Transactions(c.UserContext(), walletID, filter)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return err
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:        e.ID,
			Kind:      e.Kind,
			Amount:    e.Amount,
			Status:    e.Status,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":    walletID,
		"transactions": out,
	})
}

// authorize refuses access to wallets the authenticated user does not own.
func (h *Handler) authorize(c *fiber.Ctx, walletID string) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	w, err := h.service.Get(c.UserContext(), walletID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return err
	}
	if userID != "" && w.OwnerID != userID {
		return fiber.NewError(http.StatusForbidden, "wallet belongs to another user")
	}
	return nil
}

func parseTimeQuery(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
