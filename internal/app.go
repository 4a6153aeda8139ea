package internal

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storefront/internal/address"
	"storefront/internal/api"
	"storefront/internal/apperr"
	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/config"
	"storefront/internal/delivery"
	"storefront/internal/pricing"
	"storefront/internal/session"
	"storefront/internal/storage"
)

// Components is the commerce core for one device.
type Components struct {
	Guard        *session.Guard
	Basket       *cart.Store
	Calculator   *pricing.Calculator
	Registry     *address.Registry
	Book         *address.Book
	Estimator    *delivery.Estimator
	Orchestrator *checkout.Orchestrator

	WeightStep decimal.Decimal
}

// NewComponents builds the core on top of repo. Calls that need the shopper's
// credential go through the guard; pricing, delivery and geocoding do not.
func NewComponents(ctx context.Context, cfg *config.Config, repo storage.Repository, geocoder address.Geocoder, logger *zap.Logger) (*Components, error) {
	table, err := address.LoadReferenceFile(cfg.AddressTable)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	public := api.NewClient(cfg.APIBackend, httpClient)

	guard := session.NewGuard(repo, cfg.APIBackend,
		session.WithLogger(logger.Named("session")),
		session.WithHTTPClient(httpClient),
	)
	basket := cart.New(ctx, repo, cart.WithLogger(logger.Named("cart")))
	book := address.NewBook(guard.API())
	estimator := delivery.NewEstimator(public,
		delivery.WithLogger(logger.Named("delivery")),
		delivery.WithFreeShippingThreshold(cfg.FreeShipping()),
	)

	c := &Components{
		Guard:  guard,
		Basket: basket,
		Calculator: pricing.NewCalculator(
			pricing.NewRemoteStrategy(public, logger.Named("pricing")),
			pricing.WithLogger(logger.Named("pricing")),
		),
		Registry: address.NewRegistry(table, geocoder,
			address.WithLogger(logger.Named("address")),
			address.WithCountry(cfg.Country),
		),
		Book:      book,
		Estimator: estimator,
		Orchestrator: checkout.NewOrchestrator(basket, book, guard, guard.API(),
			checkout.WithLogger(logger.Named("checkout")),
			checkout.WithCountry(cfg.Country),
			checkout.WithPaymentMethod(cfg.PaymentMethod),
			checkout.WithQuotes(estimator),
		),
		WeightStep: cfg.Step(),
	}

	// The delivery quote follows both of its inputs.
	basket.Subscribe(func(entries []cart.Entry) {
		if selected, ok := book.Selected(); ok {
			estimator.Refire(selected.ID, entries)
		}
	})
	book.Subscribe(func(selected address.SavedAddress) {
		estimator.Refire(selected.ID, basket.Entries())
	})

	return c, nil
}

func NewApi(c *Components, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(log),
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessProbe: func(c *fiber.Ctx) bool {
			return true
		},
		LivenessEndpoint: "/livez",
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return true
		},
		ReadinessEndpoint: "/readyz",
	}))
	app.Use(logger.New())

	authMW := session.RequireSession(c.Guard)

	sessionHandlers := session.NewRouteHandler(c.Guard)
	sessionApi := app.Group("/session")
	sessionApi.Post("/", sessionHandlers.Login)
	sessionApi.Get("/", sessionHandlers.Get)
	sessionApi.Delete("/", sessionHandlers.Logout)
	sessionApi.Post("/profile/refresh", authMW, sessionHandlers.RefreshProfile)

	cartHandlers := cart.NewRouteHandler(c.Basket, c.WeightStep)
	cartApi := app.Group("/cart")
	cartApi.Get("/", cartHandlers.GetCart)
	cartApi.Get("/count", cartHandlers.GetCount)
	cartApi.Post("/items", cartHandlers.AddItem)
	cartApi.Put("/items/:productID", cartHandlers.SetQuantity)
	cartApi.Delete("/items/:productID", cartHandlers.RemoveItem)

	priceHandlers := pricing.NewRouteHandler(c.Calculator)
	app.Post("/price", priceHandlers.LineTotal)

	addressHandlers := address.NewRouteHandler(c.Registry, c.Book)
	addressApi := app.Group("/address")
	addressApi.Get("/provinces", addressHandlers.Provinces)
	addressApi.Get("/districts", addressHandlers.Districts)
	addressApi.Get("/subdistricts", addressHandlers.SubDistricts)
	addressApi.Get("/selection", addressHandlers.GetSelection)
	addressApi.Put("/selection", addressHandlers.UpdateSelection)
	addressApi.Put("/pin", addressHandlers.SetPin)
	addressApi.Post("/geocode", addressHandlers.Geocode)

	bookApi := app.Group("/addresses", authMW)
	bookApi.Get("/", addressHandlers.ListSaved)
	bookApi.Post("/", addressHandlers.CreateSaved)
	bookApi.Put("/selected", addressHandlers.SelectSaved)

	deliveryHandlers := delivery.NewRouteHandler(c.Estimator, c.Basket, c.Book)
	deliveryApi := app.Group("/delivery")
	deliveryApi.Post("/quote", deliveryHandlers.Quote)
	deliveryApi.Get("/quote", deliveryHandlers.Current)

	checkoutHandlers := checkout.NewRouteHandler(c.Orchestrator)
	checkoutApi := app.Group("/checkout", authMW)
	checkoutApi.Post("/", checkoutHandlers.Submit)
	checkoutApi.Get("/", checkoutHandlers.Status)

	return app
}

// errorHandler maps the core's failure taxonomy onto status codes.
func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var (
			fe      *fiber.Error
			invalid *apperr.ValidationError
			remote  *apperr.RemoteError
		)

		switch {
		case errors.As(err, &fe):
			return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
		case errors.As(err, &invalid):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": invalid.Message,
				"fields":  invalid.Fields,
			})
		case errors.Is(err, apperr.ErrValidation):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": err.Error()})
		case errors.Is(err, apperr.ErrSessionExpired):
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": apperr.UserMessage(apperr.ErrSessionExpired, ""),
			})
		case errors.Is(err, checkout.ErrInProgress), errors.Is(err, delivery.ErrStale):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": err.Error()})
		case errors.As(err, &remote) && remote.Status < http.StatusInternalServerError:
			return c.Status(remote.Status).JSON(fiber.Map{"message": apperr.UserMessage(err, remote.Error())})
		case errors.Is(err, apperr.ErrRemoteUnavailable):
			log.Warn("remote service unavailable", zap.String("path", c.Path()), zap.Error(err))
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"message": "The storefront service is unavailable. Please try again."})
		}

		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "internal error"})
	}
}
