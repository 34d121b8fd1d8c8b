package payment

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/lumopay/lumopay/internal/ledger"
	"github.com/lumopay/lumopay/internal/middleware"
	"github.com/lumopay/lumopay/internal/wallet"
)

// Handler exposes merchant payment HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a payment HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type payRequest struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Nonce      string `json:"nonce"`
	Channel    string `json:"channel"`
}

type settleRequest struct {
	Approved bool `json:"approved"`
}

type payResponse struct {
	PaymentID  string `json:"payment_id"`
	Status     string `json:"status"`
	NewBalance int64  `json:"new_balance"`
}

// Pay charges the authenticated user's wallet against a merchant. A declined
// or timed-out charge is reported as a failed payment, not a transport error.
func (h *Handler) Pay(c *fiber.Ctx) error {
	var req payRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	userID, _ := c.Locals(middleware.UserIDKey).(string)

	result, err := h.service.Pay(c.UserContext(), PayInput{
		UserID:     userID,
		MerchantID: req.MerchantID,
		Amount:     req.Amount,
		Nonce:      req.Nonce,
		Channel:    req.Channel,
	})
	if err != nil {
		return mapPaymentError(err)
	}
	return c.Status(http.StatusOK).JSON(payResponse{
		PaymentID:  result.PaymentID,
		Status:     result.Status,
		NewBalance: result.NewBalance,
	})
}

// Settle resolves a pending payment entry. Repeated settlements of the same
// entry are no-ops returning the recorded outcome.
func (h *Handler) Settle(c *fiber.Ctx) error {
	var req settleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Settle(c.UserContext(), c.Params("entryId"), req.Approved)
	if err != nil {
		return mapPaymentError(err)
	}
	return c.Status(http.StatusOK).JSON(payResponse{
		PaymentID:  result.PaymentID,
		Status:     result.Status,
		NewBalance: result.NewBalance,
	})
}

func mapPaymentError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidPayment), errors.Is(err, ErrNotPayment),
		errors.Is(err, wallet.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, wallet.ErrNotFound), errors.Is(err, ledger.ErrEntryNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBalanceChanged):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return err
	}
}
