package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/paylink/offramp/internal/selection"
)

// RegisterSelectionRoutes wires per-account token selection endpoints.
func RegisterSelectionRoutes(r fiber.Router, h *selection.Handler) {
	r.Get("/selection/:account", h.Get)
	r.Put("/selection/:account", h.Put)
	r.Post("/selection/:account/reset", h.Reset)
}
