package checkout

import (
	"github.com/gofiber/fiber/v2"

	"storefront/internal/apperr"
)

type RouteHandler struct {
	orchestrator *Orchestrator
}

func NewRouteHandler(orchestrator *Orchestrator) *RouteHandler {
	return &RouteHandler{orchestrator: orchestrator}
}

func (h *RouteHandler) Submit(c *fiber.Ctx) error {
	var req Request
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperr.Validation("invalid request body")
		}
	}

	conf, err := h.orchestrator.Submit(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(conf)
}

func (h *RouteHandler) Status(c *fiber.Ctx) error {
	return c.JSON(h.orchestrator.Status())
}
