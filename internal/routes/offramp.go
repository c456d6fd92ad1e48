package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/paylink/offramp/internal/offramp"
)

// RegisterReferenceRoutes wires unauthenticated lookups.
func RegisterReferenceRoutes(r fiber.Router, h *offramp.Handler) {
	r.Get("/chains", h.Chains)
	r.Get("/iban/:iban/country", h.IBANCountry)
}

// RegisterOfframpRoutes wires the onboarding workflow. Creating endpoints are guarded by
// idempotency when a cache is available.
func RegisterOfframpRoutes(r fiber.Router, h *offramp.Handler, idempotency, validateLimit fiber.Handler) {
	g := r.Group("/offramp")

	create := func(path string, handler fiber.Handler) {
		if idempotency != nil {
			g.Post(path, idempotency, handler)
			return
		}
		g.Post(path, handler)
	}

	g.Post("/validate", validateLimit, h.Validate)
	g.Post("/approval/await", h.AwaitApproval)
	g.Post("/persona-url", h.PersonaURL)
	g.Get("/users/:account", h.FetchUser)
	g.Get("/customers/:customerId/external-accounts", h.ListExternalAccounts)
	g.Get("/customers/:customerId/liquidation-addresses", h.ListLiquidationAddresses)
	g.Get("/customers/:customerId/journal", h.Journal)

	create("/users", h.CreateUser)
	create("/accounts", h.CreateAccount)
	create("/external-accounts", h.CreateExternalAccount)
	create("/liquidation-addresses", h.CreateLiquidationAddress)
	create("/provision", h.Provision)
	create("/onboard", h.Onboard)
}
