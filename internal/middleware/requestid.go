package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/paylink/offramp/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestID ensures each request carries an identifier, echoed in the response and attached to
// the request context so workflow logs can be correlated with the access log.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		c.Set(requestIDHeader, reqID)
		c.Locals(requestIDHeader, reqID)

		ctx := c.UserContext()
		if ctx == nil {
			ctx = context.Background()
		}
		c.SetUserContext(logging.WithRequestID(ctx, reqID))

		return c.Next()
	}
}
