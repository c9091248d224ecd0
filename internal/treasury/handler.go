package treasury

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/carewallet/carewallet/internal/ledger"
)

// Handler exposes the admin treasury endpoints.
type Handler struct {
	store Store
}

// NewHandler builds a treasury HTTP handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

type postRequest struct {
	Label  string         `json:"label"`
	Asset  string         `json:"asset"`
	Amount string         `json:"amount"`
	Type   string         `json:"type"`
	TxHash string         `json:"tx_hash"`
	Meta   map[string]any `json:"meta"`
}

type postResponse struct {
	TransactionID   string `json:"transaction_id"`
	PreviousBalance string `json:"previous_balance"`
	NewBalance      string `json:"new_balance"`
}

// Credit posts a credit to a treasury account.
func (h *Handler) Credit(c *fiber.Ctx) error {
	return h.post(c, h.store.Credit)
}

// Debit posts a debit to a treasury account.
func (h *Handler) Debit(c *fiber.Ctx) error {
	return h.post(c, h.store.Debit)
}

// Balance returns a treasury account balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	label := c.Params("label")
	asset := c.Query("asset")
	balance, err := h.store.Balance(c.UserContext(), label, asset)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"label": label, "asset": asset, "balance": balance})
}

// Entries lists recent treasury ledger entries for a label.
func (h *Handler) Entries(c *fiber.Ctx) error {
	label := c.Params("label")
	entries, err := h.store.Entries(c.UserContext(), label, 50)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"label": label, "entries": entries})
}

func (h *Handler) post(c *fiber.Ctx, op func(ctx context.Context, args PostArgs) (PostResult, error)) error {
	var req postRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := op(c.UserContext(), PostArgs{
		Label:  req.Label,
		Asset:  req.Asset,
		Amount: req.Amount,
		Type:   ledger.TxType(req.Type),
		TxHash: req.TxHash,
		Meta:   req.Meta,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientBalance):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		case errors.Is(err, ledger.ErrDuplicateTxHash):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(postResponse{
		TransactionID:   res.TransactionID,
		PreviousBalance: res.PreviousBalance,
		NewBalance:      res.NewBalance,
	})
}
