package onramp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

const signatureHeader = "X-Onramp-Signature"

// Handler exposes the on-ramp boundary endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an on-ramp handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Webhook applies a settled-purchase webhook. The raw body is verified
// against the signature header before decoding.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get(signatureHeader)

	var event PurchaseEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.HandlePurchase(c.UserContext(), payload, signature, event)
	if err != nil {
		if errors.Is(err, ErrBadSignature) {
			return fiber.NewError(http.StatusUnauthorized, err.Error())
		}
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if res.AlreadyApplied {
		return c.Status(http.StatusOK).JSON(fiber.Map{"status": "already_applied"})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"status":         "applied",
		"transaction_id": res.TransactionID,
		"new_balance":    res.NewBalance,
	})
}

// Widget returns the hosted purchase widget URL for a user.
func (h *Handler) Widget(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	asset := c.Query("asset")
	url, err := h.service.WidgetURL(userID, asset)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"widget_url": url})
}
