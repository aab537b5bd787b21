package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/launchkit/launchkit/app/controllers"
	apiv1 "github.com/launchkit/launchkit/internal/api/v1"
	"github.com/launchkit/launchkit/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// Billing actions for JSON clients (forms post to /billing/* instead)
	api.Post("/billing/checkout", middleware.RequireAPISessionAuth, controllers.HandleCheckout)
	api.Post("/billing/portal", middleware.RequireAPISessionAuth, controllers.HandleBillingPortal)

	// API v1 routes, session-authenticated except ping
	v1 := api.Group("/v1")
	apiServer := apiv1.NewAPIServer()
	apiv1.RegisterHandlers(v1, apiServer, middleware.RequireAPISessionAuth)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
