package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/carewallet/carewallet/internal/treasury"
)

// RegisterTreasuryRoutes wires the admin treasury endpoints.
func RegisterTreasuryRoutes(r fiber.Router, h *treasury.Handler) {
	admin := r.Group("/admin/treasury")
	admin.Post("/credit", h.Credit)
	admin.Post("/debit", h.Debit)
	admin.Get("/:label/balance", h.Balance)
	admin.Get("/:label/entries", h.Entries)
}
