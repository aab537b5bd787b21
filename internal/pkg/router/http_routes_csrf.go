package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/csrf"

	"github.com/launchkit/launchkit/app/controllers"
	"github.com/launchkit/launchkit/internal/pkg/env"
	"github.com/launchkit/launchkit/internal/pkg/middleware"
)

func (h HttpRouter) registerCSRFProtectedRoutes(app *fiber.App) {
	csrfConf := csrf.Config{
		KeyLookup:      "form:_csrf",
		ContextKey:     "csrf",
		CookieName:     "csrf_",
		CookieSameSite: "Lax",
		Expiration:     1 * time.Hour,
		CookieSecure:   !env.IsDev(),
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/api/")
		},
	}

	group := app.Group("", cors.New(), csrf.New(csrfConf))
	group.Get("/", loggedInMiddleware, controllers.HandleIndex)
	group.Get("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Post("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	group.Get("/register", loggedInMiddleware, controllers.HandleAuthRegister)
	group.Post("/register", loggedInMiddleware, controllers.HandleAuthRegister)

	// User pages
	group.Get("/dashboard", middleware.RequireAuth, controllers.HandleUserDashboard)
	group.Get("/account", middleware.RequireAuth, controllers.HandleUserAccount)

	// Billing actions
	group.Post("/billing/checkout", middleware.RequireAuth, controllers.HandleCheckout)
	group.Post("/billing/portal", middleware.RequireAuth, controllers.HandleBillingPortal)
}
