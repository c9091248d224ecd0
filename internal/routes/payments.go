package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/carewallet/carewallet/internal/payments"
)

// RegisterPaymentRoutes wires payment endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, rateLimiter fiber.Handler) {
	r.Post("/payments/transfer", rateLimiter, h.Transfer)
}
