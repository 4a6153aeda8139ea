package pricing

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"storefront/internal/apperr"
	"storefront/internal/cart"
)

type RouteHandler struct {
	calculator *Calculator
}

func NewRouteHandler(calculator *Calculator) *RouteHandler {
	return &RouteHandler{calculator: calculator}
}

type lineRequest struct {
	Product cart.Product    `json:"product"`
	Amount  decimal.Decimal `json:"amount"`
}

func (h *RouteHandler) LineTotal(c *fiber.Ctx) error {
	var req lineRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if !req.Amount.IsPositive() {
		return apperr.Fields("invalid amount", map[string]string{"amount": "must be greater than zero"})
	}

	return c.JSON(h.calculator.LineTotal(c.UserContext(), req.Product, req.Amount))
}
