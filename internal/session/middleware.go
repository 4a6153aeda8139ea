package session

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/apperr"
)

// RequireSession rejects requests to the local API while no live credential
// is stored, expiring whatever is left of the session.
func RequireSession(g *Guard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		if _, ok := g.Current(ctx); !ok {
			g.expire(ctx, CauseExpired)
			return fmt.Errorf("%w: login required", apperr.ErrSessionExpired)
		}
		return c.Next()
	}
}
