package address

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"storefront/internal/apperr"
)

type RouteHandler struct {
	registry *Registry
	book     *Book
}

func NewRouteHandler(registry *Registry, book *Book) *RouteHandler {
	return &RouteHandler{
		registry: registry,
		book:     book,
	}
}

type selectionResponse struct {
	Selection Selection   `json:"selection"`
	MapCenter Coordinates `json:"map_center"`
	Locatable bool        `json:"locatable"`
}

type selectionRequest struct {
	AddressLine *string `json:"address_line"`
	Province    *string `json:"province"`
	District    *string `json:"district"`
	SubDistrict *string `json:"sub_district"`
}

type pinRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type selectSavedRequest struct {
	ID int64 `json:"id"`
}

func (h *RouteHandler) Provinces(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"provinces": h.registry.Table().Provinces()})
}

func (h *RouteHandler) Districts(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"districts": h.registry.Table().Districts(c.Query("province"))})
}

func (h *RouteHandler) SubDistricts(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"sub_districts": h.registry.Table().SubDistricts(c.Query("province"), c.Query("district")),
	})
}

func (h *RouteHandler) GetSelection(c *fiber.Ctx) error {
	sel := h.registry.Selection()
	return c.JSON(selectionResponse{
		Selection: sel,
		MapCenter: h.registry.MapCenter(),
		Locatable: sel.Locatable(),
	})
}

// UpdateSelection applies the levels present in the body from the top down.
// When the triad ends up complete and changed, a geocode lookup is started
// in the background; its result only lands if the triad is still the same.
func (h *RouteHandler) UpdateSelection(c *fiber.Ctx) error {
	var req selectionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}

	before := triadFingerprint(h.registry.Selection())

	if req.Province != nil {
		if err := h.registry.SelectProvince(*req.Province); err != nil {
			return err
		}
	}
	if req.District != nil {
		if err := h.registry.SelectDistrict(*req.District); err != nil {
			return err
		}
	}
	if req.SubDistrict != nil {
		if err := h.registry.SelectSubDistrict(*req.SubDistrict); err != nil {
			return err
		}
	}
	if req.AddressLine != nil {
		h.registry.SetAddressLine(*req.AddressLine)
	}

	if sel := h.registry.Selection(); sel.Complete() && triadFingerprint(sel) != before {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			h.registry.Geocode(ctx)
		}()
	}

	return h.GetSelection(c)
}

func (h *RouteHandler) SetPin(c *fiber.Ctx) error {
	var req pinRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	if req.Latitude == nil || req.Longitude == nil {
		return apperr.Fields("invalid location", map[string]string{"map": "latitude and longitude are required"})
	}

	if err := h.registry.SetManualPin(*req.Latitude, *req.Longitude); err != nil {
		return err
	}
	return h.GetSelection(c)
}

// Geocode runs the lookup in the request. It never fails; the response shows
// whatever location the selection ended up with.
func (h *RouteHandler) Geocode(c *fiber.Ctx) error {
	h.registry.Geocode(c.UserContext())
	return h.GetSelection(c)
}

func (h *RouteHandler) ListSaved(c *fiber.Ctx) error {
	addresses, err := h.book.List(c.UserContext())
	if err != nil {
		return err
	}

	resp := fiber.Map{"addresses": addresses}
	if selected, ok := h.book.Selected(); ok {
		resp["selected_id"] = selected.ID
	}
	return c.JSON(resp)
}

// CreateSaved stores the address being edited once it validates.
func (h *RouteHandler) CreateSaved(c *fiber.Ctx) error {
	if err := h.registry.Validate(); err != nil {
		return err
	}

	created, err := h.book.Create(c.UserContext(), h.registry.Selection())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"address": created})
}

func (h *RouteHandler) SelectSaved(c *fiber.Ctx) error {
	var req selectSavedRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Validation("invalid request body")
	}

	if err := h.book.Select(req.ID); err != nil {
		return err
	}
	selected, _ := h.book.Selected()
	return c.JSON(fiber.Map{"address": selected})
}
