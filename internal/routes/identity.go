package routes

import (
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/hlpay/paystream/internal/identity"
	"github.com/hlpay/paystream/internal/wallet"
)

// RegisterIdentityRoutes wires identity endpoints and auto-provisions a wallet
// on registration so every HR and employee account can hold funds immediately.
func RegisterIdentityRoutes(r fiber.Router, ids *identity.Service, wallets *wallet.Service, logger *slog.Logger) {
	r.Post("/identity/register", func(c *fiber.Ctx) error {
		var req struct {
			Email    string `json:"email"`
			Name     string `json:"name"`
			Role     string `json:"role"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		user, err := ids.Register(c.UserContext(), identity.RegisterInput{
			Email:    req.Email,
			Name:     req.Name,
			Role:     req.Role,
			Password: req.Password,
		})
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		var walletID string
		if wallets != nil {
			w, _ := wallets.Create(c.UserContext(), wallet.CreateInput{OwnerID: user.ID})
			walletID = w.ID
		}
		if logger != nil {
			logger.Info("identity.register completed",
				slog.String("user_id", user.ID),
				slog.String("email", user.Email),
				slog.String("role", user.Role),
				slog.String("wallet_id", walletID),
				slog.Int("status", http.StatusCreated),
			)
		}
		return c.Status(http.StatusCreated).JSON(fiber.Map{
			"user_id":   user.ID,
			"email":     user.Email,
			"name":      user.Name,
			"role":      user.Role,
			"wallet_id": walletID,
		})
	})
}
