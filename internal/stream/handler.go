package stream

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/hlpay/paystream/internal/ledger"
)

// Handler exposes stream HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a stream HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	StreamID          *uint64 `json:"stream_id,omitempty"`
	SenderWalletID    string  `json:"sender_wallet_id"`
	RecipientWalletID string  `json:"recipient_wallet_id"`
	RatePerSecond     int64   `json:"rate_per_second"`
	Deposit           int64   `json:"deposit"`
	StartTime         int64   `json:"start_time,omitempty"`
}

type streamResponse struct {
	ID                uint64 `json:"id"`
	SenderWalletID    string `json:"sender_wallet_id"`
	RecipientWalletID string `json:"recipient_wallet_id"`
	RatePerSecond     int64  `json:"rate_per_second"`
	Deposit           int64  `json:"deposit"`
	Withdrawn         int64  `json:"withdrawn"`
	StartTime         int64  `json:"start_time"`
	StopTime          int64  `json:"stop_time"`
	PausedSeconds     int64  `json:"paused_seconds"`
	Status            string `json:"status"`
}

func toResponse(s Stream) streamResponse {
	return streamResponse{
		ID:                s.ID,
		SenderWalletID:    s.SenderWalletID,
		RecipientWalletID: s.RecipientWalletID,
		RatePerSecond:     s.RatePerSecond,
		Deposit:           s.Deposit,
		Withdrawn:         s.Withdrawn,
		StartTime:         s.StartTime,
		StopTime:          s.StopTime,
		PausedSeconds:     s.PausedSeconds,
		Status:            s.Status,
	}
}

// Create opens a payroll stream funded by the caller's wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	created, err := h.service.Create(c.UserContext(), CreateInput{
		StreamID:          req.StreamID,
		SenderWalletID:    req.SenderWalletID,
		RecipientWalletID: req.RecipientWalletID,
		RatePerSecond:     req.RatePerSecond,
		Deposit:           req.Deposit,
		StartTime:         req.StartTime,
		CallerUserID:      uid,
	})
	if err != nil {
		return errorToHTTP(err)
	}
	return c.Status(http.StatusCreated).JSON(toResponse(created))
}

// Get returns a stream snapshot.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := parseStreamID(c)
	if err != nil {
		return err
	}
	st, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return errorToHTTP(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(st))
}

// Vested answers a read-only vesting query, optionally at a caller-supplied time.
func (h *Handler) Vested(c *fiber.Ctx) error {
	id, err := parseStreamID(c)
	if err != nil {
		return err
	}
	var at int64
	if v := c.Query("at"); v != "" {
		at, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid at timestamp")
		}
	}
	res, err := h.service.VestedAmount(c.UserContext(), id, at)
	if err != nil {
		return errorToHTTP(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"stream_id":    res.StreamID,
		"at":           res.At,
		"vested":       res.Vested,
		"withdrawn":    res.Withdrawn,
		"withdrawable": res.Withdrawable,
	})
}

// List returns the caller's streams for the requested role.
func (h *Handler) List(c *fiber.Ctx) error {
	walletID := c.Query("wallet_id")
	if walletID == "" {
		return fiber.NewError(http.StatusBadRequest, "wallet_id is required")
	}
	var (
		streams []Stream
		err     error
	)
	switch c.Query("role", "sender") {
	case "sender":
		streams, err = h.service.ListBySenderWallet(c.UserContext(), walletID)
	case "recipient":
		streams, err = h.service.ListByRecipientWallet(c.UserContext(), walletID)
	default:
		return fiber.NewError(http.StatusBadRequest, "role must be sender or recipient")
	}
	if err != nil {
		return errorToHTTP(err)
	}
	out := make([]streamResponse, 0, len(streams))
	for _, s := range streams {
		out = append(out, toResponse(s))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"streams": out})
}

// Pause freezes the stream's accrual clock.
func (h *Handler) Pause(c *fiber.Ctx) error {
	id, err := parseStreamID(c)
	if err != nil {
		return err
	}
	uid, _ := c.Locals("user_id").(string)
	st, err := h.service.Pause(c.UserContext(), id, uid)
	if err != nil {
		return errorToHTTP(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(st))
}

// Resume unfreezes the stream's accrual clock.
func (h *Handler) Resume(c *fiber.Ctx) error {
	id, err := parseStreamID(c)
	if err != nil {
		return err
	}
	uid, _ := c.Locals("user_id").(string)
	st, err := h.service.Resume(c.UserContext(), id, uid)
	if err != nil {
		return errorToHTTP(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(st))
}

type withdrawRequest struct {
	Amount int64 `json:"amount"`
}

// Withdraw settles vested pay to the recipient.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	id, err := parseStreamID(c)
	if err != nil {
		return err
	}
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	uid, _ := c.Locals("user_id").(string)

	res, err := h.service.Withdraw(c.UserContext(), WithdrawInput{
		StreamID:     id,
		CallerUserID: uid,
		Amount:       req.Amount,
	})
	if err != nil {
		return errorToHTTP(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"stream_id":  res.StreamID,
		"gross":      res.Gross,
		"net":        res.Net,
		"tax":        res.Tax,
		"withdrawn":  res.Withdrawn,
		"completed":  res.Completed,
		"settled_at": res.SettledAt,
	})
}

// Cancel terminates the stream and settles both parties.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	id, err := parseStreamID(c)
	if err != nil {
		return err
	}
	uid, _ := c.Locals("user_id").(string)
	res, err := h.service.Cancel(c.UserContext(), id, uid)
	if err != nil {
		return errorToHTTP(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"stream_id":  res.StreamID,
		"vested":     res.Vested,
		"net":        res.Net,
		"tax":        res.Tax,
		"refund":     res.Refund,
		"settled_at": res.SettledAt,
	})
}

// Events returns a stream's audit trail.
func (h *Handler) Events(c *fiber.Ctx) error {
	id, err := parseStreamID(c)
	if err != nil {
		return err
	}
	events, err := h.service.Events(c.UserContext(), id)
	if err != nil {
		return errorToHTTP(err)
	}
	out := make([]fiber.Map, 0, len(events))
	for _, e := range events {
		out = append(out, fiber.Map{
			"stream_id":           e.StreamID,
			"kind":                e.Kind,
			"at":                  e.At,
			"sender_wallet_id":    e.SenderWalletID,
			"recipient_wallet_id": e.RecipientWalletID,
			"rate_per_second":     e.RatePerSecond,
			"deposit":             e.Deposit,
			"gross":               e.Gross,
			"net":                 e.Net,
			"tax":                 e.Tax,
			"refund":              e.Refund,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"events": out})
}

func parseStreamID(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("streamId"), 10, 64)
	if err != nil {
		return 0, fiber.NewError(http.StatusBadRequest, "invalid stream id")
	}
	return id, nil
}

// errorToHTTP maps the engine's error taxonomy onto HTTP statuses. Callers
// always see the error kind; nothing is swallowed.
func errorToHTTP(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrDuplicateStream),
		errors.Is(err, ErrNotActive),
		errors.Is(err, ErrAlreadyPaused),
		errors.Is(err, ErrNotPaused),
		errors.Is(err, ledger.ErrDuplicateTransaction):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidRate),
		errors.Is(err, ErrInvalidDeposit),
		errors.Is(err, ErrInvalidRecipient),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrNothingToWithdraw),
		errors.Is(err, ErrExceedsAvailable),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientAllowance):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrTransferFailed):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
