package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/launchkit/launchkit/internal/pkg/billing"
	"github.com/launchkit/launchkit/internal/pkg/database"
	"github.com/launchkit/launchkit/internal/pkg/entitlements"
	"github.com/launchkit/launchkit/internal/pkg/usercontext"
)

// snapshotForSession loads the aggregated billing state for the session user.
func snapshotForSession(c *fiber.Ctx) (*entitlements.BillingState, error) {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn {
		return nil, billing.ErrUserNotFound
	}

	user, err := billing.NewRepository(database.GetDB()).GetUserByID(uc.UserID)
	if err != nil {
		return nil, err
	}

	return entitlements.NewServiceFromDB(database.GetDB()).Snapshot(c.Context(), user.AuthUserID)
}

func HandleUserDashboard(c *fiber.Ctx) error {
	state, err := snapshotForSession(c)
	if err != nil {
		if errors.Is(err, billing.ErrUserNotFound) {
			return c.Redirect("/login", fiber.StatusSeeOther)
		}
		flash.WithError(c, fiber.Map{"type": "error", "message": "Could not load your billing state"})
		return c.Redirect("/")
	}

	return renderPage(c, "user/dashboard", fiber.Map{
		"Title":   "Dashboard",
		"State":   state,
		"Credits": state.Credits,
	})
}

func HandleUserAccount(c *fiber.Ctx) error {
	state, err := snapshotForSession(c)
	if err != nil {
		if errors.Is(err, billing.ErrUserNotFound) {
			return c.Redirect("/login", fiber.StatusSeeOther)
		}
		flash.WithError(c, fiber.Map{"type": "error", "message": "Could not load your account"})
		return c.Redirect("/")
	}

	return renderPage(c, "user/account", fiber.Map{
		"Title":     "Account",
		"State":     state,
		"AvatarURL": state.AvatarURL,
	})
}
