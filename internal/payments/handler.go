package payments

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/carewallet/carewallet/internal/ledger"
	"github.com/carewallet/carewallet/internal/wallet"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	FromUserID string         `json:"from_user_id"`
	ToUserID   string         `json:"to_user_id"`
	Asset      string         `json:"asset"`
	Amount     string         `json:"amount"`
	Meta       map[string]any `json:"meta"`
}

// Transfer processes a wallet-to-wallet transfer.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		FromUserID: req.FromUserID,
		ToUserID:   req.ToUserID,
		Asset:      req.Asset,
		Amount:     req.Amount,
		Meta:       req.Meta,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrDuplicateTxHash):
			return fiber.NewError(http.StatusConflict, err.Error())
		case errors.Is(err, wallet.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transfer_id": res.TransferID,
		"debit": fiber.Map{
			"transaction_id": res.Debit.TransactionID,
			"new_balance":    res.Debit.NewBalance,
		},
		"credit": fiber.Map{
			"transaction_id": res.Credit.TransactionID,
			"new_balance":    res.Credit.NewBalance,
		},
		"fee_charged":  res.FeeCharged,
		"completed_at": res.CompletedAt,
	})
}
