// Package httpapi exposes the order, product and user operations over HTTP.
package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/safar/shop-orders/internal/auth"
	"github.com/safar/shop-orders/internal/catalog"
	"github.com/safar/shop-orders/internal/fulfillment"
	"github.com/safar/shop-orders/internal/models"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

type Deps struct {
	Orders  *fulfillment.Service
	Catalog *catalog.Service
	Auth    *auth.Service
	Logger  *zap.Logger
	Tracer  trace.Tracer

	// AuthEnabled turns on HTTP Basic authentication and role checks.
	AuthEnabled  bool
	BodyLimit    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type handler struct {
	Deps
}

func New(deps Deps) *fiber.App {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("")
	}

	app := fiber.New(fiber.Config{
		AppName:               "shop-orders",
		BodyLimit:             deps.BodyLimit,
		ReadTimeout:           deps.ReadTimeout,
		WriteTimeout:          deps.WriteTimeout,
		ErrorHandler:          errorHandler(deps.Logger),
		DisableStartupMessage: true,
	})

	app.Use(requestid.New())
	app.Use(accessLog(deps.Logger))
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(traceRequests(deps.Tracer))

	h := &handler{Deps: deps}
	authn := h.authenticate()
	anyRole := h.requireRole(models.RoleAdmin, models.RoleWrite, models.RoleRead)
	writer := h.requireRole(models.RoleAdmin, models.RoleWrite)
	admin := h.requireRole(models.RoleAdmin)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/orders", authn, anyRole, h.listOrders)
	app.Post("/orders", authn, writer, h.placeOrder)
	app.Get("/orders/:id", authn, anyRole, h.findOrder)
	app.Put("/orders/:id/complete", authn, writer, h.completeOrder)
	app.Delete("/orders/:id/cancel", authn, writer, h.cancelOrder)
	app.Put("/orders/:id/cancel", authn, writer, h.cancelOrder)
	app.Delete("/orders/:id", authn, writer, h.deleteOrder)

	app.Get("/products", authn, anyRole, h.listProducts)
	app.Post("/products", authn, writer, h.addProduct)
	app.Get("/products/:id", authn, anyRole, h.findProduct)
	app.Put("/products/:id", authn, writer, h.updateProduct)
	app.Put("/products/:id/name", authn, writer, h.updateProductName)
	app.Put("/products/:id/price", authn, writer, h.updateProductPrice)
	app.Put("/products/:id/stock", authn, writer, h.updateProductStock)
	app.Delete("/products/:id", authn, admin, h.deleteProduct)

	app.Post("/users", authn, admin, h.createUser)

	return app
}
