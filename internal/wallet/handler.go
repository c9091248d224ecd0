package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/carewallet/carewallet/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	UserID              string `json:"user_id"`
	Asset               string `json:"asset"`
	SmartAccountAddress string `json:"smart_account_address"`
}

type walletResponse struct {
	ID                  string `json:"id"`
	UserID              string `json:"user_id"`
	SmartAccountAddress string `json:"smart_account_address"`
	ChainID             int64  `json:"chain_id"`
	PrimaryBalance      string `json:"primary_balance"`
}

// Create idempotently registers a wallet for the user.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	w, err := h.service.Create(c.UserContext(), CreateInput{
		UserID:              req.UserID,
		Asset:               req.Asset,
		SmartAccountAddress: req.SmartAccountAddress,
	})
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(walletResponse{
		ID:                  w.ID,
		UserID:              w.UserID,
		SmartAccountAddress: w.SmartAccountAddress,
		ChainID:             w.ChainID,
		PrimaryBalance:      w.PrimaryBalance,
	})
}

// Balance returns the stored balance for the requested asset.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID := c.Params("userId")
	asset := c.Query("asset")
	balance, err := h.service.Balance(c.UserContext(), userID, asset)
	if err != nil {
		if errors.Is(err, ledger.ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user_id":   balance.UserID,
		"asset":     balance.Asset,
		"balance":   balance.Amount,
		"timestamp": balance.AsOf,
	})
}

// Transactions lists the user's ledger entries.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	userID := c.Params("userId")
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	txs, err := h.service.Transactions(c.UserContext(), userID, limit)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(txs))
	for _, tx := range txs {
		out = append(out, fiber.Map{
			"id":         tx.ID,
			"type":       tx.Type,
			"direction":  tx.Direction,
			"asset":      tx.Asset,
			"amount":     tx.Amount,
			"status":     tx.Status,
			"chain_id":   tx.ChainID,
			"from":       tx.From,
			"to":         tx.To,
			"tx_hash":    tx.TxHash,
			"meta":       tx.Meta,
			"created_at": tx.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user_id": userID, "transactions": out})
}
