package treasury

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/hlpay/paystream/internal/ledger"
)

// Handler exposes HTTP endpoints for treasury funding flows.
type Handler struct {
	service *Service
}

// NewHandler constructs a treasury handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Deposit processes wallet top-ups funded from bank accounts.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Deposit(c.UserContext(), DepositInput{
		WalletID:    walletID,
		Amount:      req.Amount,
		ClientTxID:  req.ClientTxID,
		BankAccount: req.BankAccount,
		BankCode:    req.BankCode,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			return c.Status(http.StatusOK).JSON(toResponse(result))
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

// Payout processes wallet withdrawals to bank accounts.
func (h *Handler) Payout(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	var req PayoutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Payout(c.UserContext(), PayoutInput{
		WalletID:    walletID,
		Amount:      req.Amount,
		ClientTxID:  req.ClientTxID,
		BankAccount: req.BankAccount,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			return c.Status(http.StatusOK).JSON(toResponse(result))
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(toResponse(result))
}

func toResponse(result FundingResult) FundingResponse {
	return FundingResponse{
		TransactionID: result.TransactionID,
		Status:        result.Status,
		WalletBalance: result.WalletBalance,
		BankReference: result.BankReference,
	}
}
