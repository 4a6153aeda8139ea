package delivery

import (
	"github.com/gofiber/fiber/v2"

	"storefront/internal/address"
	"storefront/internal/apperr"
	"storefront/internal/cart"
)

type RouteHandler struct {
	estimator *Estimator
	basket    *cart.Store
	book      *address.Book
}

func NewRouteHandler(estimator *Estimator, basket *cart.Store, book *address.Book) *RouteHandler {
	return &RouteHandler{
		estimator: estimator,
		basket:    basket,
		book:      book,
	}
}

type quoteRouteRequest struct {
	AddressID int64 `json:"address_id"`
}

// Quote prices delivery of the current basket to address_id, or to the
// selected saved address when the body names none.
func (h *RouteHandler) Quote(c *fiber.Ctx) error {
	var req quoteRouteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperr.Validation("invalid request body")
		}
	}
	if req.AddressID == 0 {
		if selected, ok := h.book.Selected(); ok {
			req.AddressID = selected.ID
		}
	}

	q, err := h.estimator.Quote(c.UserContext(), req.AddressID, h.basket.Entries())
	if err != nil {
		return err
	}
	return c.JSON(q)
}

func (h *RouteHandler) Current(c *fiber.Ctx) error {
	q, ok := h.estimator.Current()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "no current delivery quote"})
	}
	return c.JSON(q)
}
