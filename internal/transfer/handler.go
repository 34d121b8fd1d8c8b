package transfer

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lumopay/lumopay/internal/middleware"
	"github.com/lumopay/lumopay/internal/wallet"
)

// Handler exposes P2P transfer HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a transfer HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type sendRequest struct {
	RecipientContact string `json:"recipient_contact"`
	Amount           int64  `json:"amount"`
}

type requestRequest struct {
	PayerContact string `json:"payer_contact"`
	Amount       int64  `json:"amount"`
}

type respondRequest struct {
	Decision string `json:"decision"`
}

type recordResponse struct {
	ID          string     `json:"id"`
	LedgerTxID  string     `json:"ledger_tx_id,omitempty"`
	SenderID    string     `json:"sender_id"`
	RecipientID string     `json:"recipient_id"`
	Amount      int64      `json:"amount"`
	Status      string     `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func toRecordResponse(rec Record) recordResponse {
	out := recordResponse{
		ID:          rec.ID,
		LedgerTxID:  rec.LedgerTxID,
		SenderID:    rec.SenderID,
		RecipientID: rec.RecipientID,
		Amount:      rec.Amount,
		Status:      rec.Status,
		CreatedAt:   rec.CreatedAt,
	}
	if !rec.ExpiresAt.IsZero() {
		expires := rec.ExpiresAt
		out.ExpiresAt = &expires
	}
	return out
}

// Send moves funds from the authenticated user to a resolved contact.
func (h *Handler) Send(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	senderID, _ := c.Locals(middleware.UserIDKey).(string)

	result, err := h.service.Send(c.UserContext(), SendInput{
		SenderID:         senderID,
		RecipientContact: req.RecipientContact,
		Amount:           req.Amount,
	})
	if err != nil {
		return mapTransferError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transfer_id":  result.TransferID,
		"ledger_tx_id": result.LedgerTxID,
		"new_balance":  result.NewSenderBalance,
	})
}

// Request records a money request against another user.
func (h *Handler) Request(c *fiber.Ctx) error {
	var req requestRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	requesterID, _ := c.Locals(middleware.UserIDKey).(string)

	rec, err := h.service.Request(c.UserContext(), RequestInput{
		RequesterID:  requesterID,
		PayerContact: req.PayerContact,
		Amount:       req.Amount,
	})
	if err != nil {
		return mapTransferError(err)
	}
	return c.Status(http.StatusCreated).JSON(toRecordResponse(rec))
}

// Respond resolves a pending money request with ACCEPT or DECLINE.
func (h *Handler) Respond(c *fiber.Ctx) error {
	var req respondRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	responderID, _ := c.Locals(middleware.UserIDKey).(string)

	rec, err := h.service.Respond(c.UserContext(), c.Params("requestId"), responderID, req.Decision)
	if err != nil {
		return mapTransferError(err)
	}
	return c.Status(http.StatusOK).JSON(toRecordResponse(rec))
}

// PartiallySettled lists transfers parked for operator reconciliation.
func (h *Handler) PartiallySettled(c *fiber.Ctx) error {
	records, err := h.service.PartiallySettled(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]recordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"transfers": out})
}

func mapTransferError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrSelfTransfer),
		errors.Is(err, ErrInvalidDecision), errors.Is(err, ErrRequestExpired):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotAuthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrRecipientNotFound), errors.Is(err, ErrRecordNotFound),
		errors.Is(err, ErrRequestAlreadyResolved), errors.Is(err, wallet.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrBalanceChanged), errors.Is(err, ErrPartiallySettled):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return err
	}
}
