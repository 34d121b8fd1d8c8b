package rewards

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/lumopay/lumopay/internal/middleware"
)

// Handler exposes reward point HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a rewards HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type redeemRequest struct {
	Points int64 `json:"points"`
}

type grantResponse struct {
	ID        string    `json:"id"`
	Points    int64     `json:"points"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Balance reports the authenticated user's live point total.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	points, err := h.service.Balance(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"points": points})
}

// Expiring lists grants whose points lapse within the warning window.
func (h *Handler) Expiring(c *fiber.Ctx) error {
	userID, _ := c.Locals(middleware.UserIDKey).(string)
	grants, err := h.service.ExpiringSoon(c.UserContext(), userID)
	if err != nil {
		return err
	}
	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, grantResponse{ID: g.ID, Points: g.Points, ExpiresAt: g.ExpiresAt})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"expiring": out})
}

// Redeem converts points into a discount, oldest grants first.
func (h *Handler) Redeem(c *fiber.Ctx) error {
	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	userID, _ := c.Locals(middleware.UserIDKey).(string)

	result, err := h.service.Redeem(c.UserContext(), userID, req.Points)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRedemption), errors.Is(err, ErrInsufficientPoints):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrPointsChanged):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return err
		}
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"remaining_points":     result.RemainingPoints,
		"discount_minor_units": result.DiscountMinorUnits,
	})
}
