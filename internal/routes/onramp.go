package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/carewallet/carewallet/internal/onramp"
)

// RegisterOnrampRoutes wires the on-ramp boundary endpoints.
func RegisterOnrampRoutes(r fiber.Router, h *onramp.Handler) {
	r.Post("/webhooks/onramp", h.Webhook)
	r.Get("/onramp/widget", h.Widget)
}
