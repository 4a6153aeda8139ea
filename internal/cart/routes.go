package cart

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"storefront/internal/apperr"
)

type RouteHandler struct {
	store *Store
	step  decimal.Decimal
}

func NewRouteHandler(store *Store, step decimal.Decimal) *RouteHandler {
	return &RouteHandler{
		store: store,
		step:  step,
	}
}

type basketResponse struct {
	Items     []Entry         `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

type addItemRequest struct {
	Product Product         `json:"product"`
	Amount  decimal.Decimal `json:"amount"`
}

type setQuantityRequest struct {
	Quantity *decimal.Decimal `json:"quantity"`
}

func (h *RouteHandler) GetCart(c *fiber.Ctx) error {
	entries := h.store.Entries()
	return c.JSON(basketResponse{
		Items:     entries,
		Total:     Total(entries),
		ItemCount: len(entries),
	})
}

func (h *RouteHandler) GetCount(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"count": h.store.ItemCount()})
}

func (h *RouteHandler) AddItem(c *fiber.Ctx) error {
	var req addItemRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.Product.ID == 0 {
		return apperr.Fields("invalid product", map[string]string{"product.id": "is required"})
	}
	if err := ValidateAmount(req.Product.Unit, req.Amount, h.step); err != nil {
		return err
	}

	if err := h.store.Add(c.UserContext(), req.Product, req.Amount); err != nil {
		return err
	}
	return h.GetCart(c)
}

func (h *RouteHandler) SetQuantity(c *fiber.Ctx) error {
	productID, err := c.ParamsInt("productID")
	if err != nil {
		return apperr.Validation("invalid product id")
	}

	var req setQuantityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.Quantity == nil {
		return apperr.Fields("invalid quantity", map[string]string{"quantity": "is required"})
	}

	if err := h.store.SetQuantity(c.UserContext(), int64(productID), *req.Quantity); err != nil {
		return err
	}
	return h.GetCart(c)
}

func (h *RouteHandler) RemoveItem(c *fiber.Ctx) error {
	productID, err := c.ParamsInt("productID")
	if err != nil {
		return apperr.Validation("invalid product id")
	}

	if err := h.store.Remove(c.UserContext(), int64(productID)); err != nil {
		return err
	}
	return h.GetCart(c)
}
