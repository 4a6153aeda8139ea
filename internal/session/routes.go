package session

import (
	"github.com/gofiber/fiber/v2"

	"storefront/internal/apperr"
)

type RouteHandler struct {
	guard *Guard
}

func NewRouteHandler(guard *Guard) *RouteHandler {
	return &RouteHandler{guard: guard}
}

type loginRequest struct {
	Token string   `json:"token"`
	User  *Profile `json:"user"`
}

type sessionResponse struct {
	Authenticated bool     `json:"authenticated"`
	ExpiresAt     *int64   `json:"expires_at,omitempty"`
	User          *Profile `json:"user,omitempty"`
}

func (h *RouteHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}

	if err := h.guard.Login(c.UserContext(), req.Token, req.User); err != nil {
		return err
	}

	return h.Get(c)
}

func (h *RouteHandler) Get(c *fiber.Ctx) error {
	ctx := c.UserContext()

	cred, ok := h.guard.Current(ctx)
	if !ok {
		return c.JSON(sessionResponse{})
	}

	resp := sessionResponse{Authenticated: true}
	if !cred.Expiry.IsZero() {
		exp := cred.Expiry.Unix()
		resp.ExpiresAt = &exp
	}
	if p, ok := h.guard.Profile(ctx); ok {
		resp.User = &p
	}
	return c.JSON(resp)
}

func (h *RouteHandler) Logout(c *fiber.Ctx) error {
	if err := h.guard.ExpireSession(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *RouteHandler) RefreshProfile(c *fiber.Ctx) error {
	p, err := h.guard.RefreshProfile(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": p})
}
