package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/lumopay/lumopay/internal/wallet"
)

// TokenSigner mints an access token for a registered user.
type TokenSigner func(subject string) (string, error)

// Handler exposes registration and sign-in endpoints.
type Handler struct {
	service *Service
	wallets *wallet.Service
	sign    TokenSigner
}

// NewHandler builds an identity HTTP handler.
func NewHandler(service *Service, wallets *wallet.Service, sign TokenSigner) *Handler {
	return &Handler{service: service, wallets: wallets, sign: sign}
}

type registerRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
}

type registerResponse struct {
	UserID      string `json:"user_id"`
	Phone       string `json:"phone"`
	WalletID    string `json:"wallet_id"`
	AccessToken string `json:"access_token"`
}

// Register creates a user, provisions their wallet and returns an access
// token. Registering an existing phone fails.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	user, err := h.service.Register(c.UserContext(), Credentials{Phone: req.Phone, PIN: req.PIN})
	if err != nil {
		if errors.Is(err, ErrPhoneTaken) {
			return fiber.NewError(http.StatusConflict, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	w, err := h.wallets.Create(c.UserContext(), user.ID, "")
	if err != nil {
		return err
	}

	token, err := h.sign(user.ID)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(registerResponse{
		UserID:      user.ID,
		Phone:       user.Phone,
		WalletID:    w.ID,
		AccessToken: token,
	})
}
