package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"

	"github.com/launchkit/launchkit/internal/pkg/usercontext"
)

const FROM_PROTECTED string = "from_protected"

func isLoggedIn(c *fiber.Ctx) bool {
	var fromProtected bool
	if protectedValue := c.Locals(FROM_PROTECTED); protectedValue != nil {
		fromProtected = protectedValue.(bool)
	}

	return fromProtected
}

// ExtractUsername gets the username from Locals (set by middleware)
func ExtractUsername(c *fiber.Ctx) string {
	// Get from Locals (set by authentication middleware)
	if userNameValue := c.Locals(USER_NAME); userNameValue != nil {
		if userName, ok := userNameValue.(string); ok {
			return userName
		}
	}

	return ""
}

// renderPage merges the common layout bindings (session user, csrf token,
// flash message) into the view data and renders the named template.
func renderPage(c *fiber.Ctx, name string, data fiber.Map) error {
	if data == nil {
		data = fiber.Map{}
	}

	uc := usercontext.GetUserContext(c)
	data["IsLoggedIn"] = uc.IsLoggedIn
	data["IsAdmin"] = uc.IsAdmin
	data["Username"] = uc.Username
	data["Plan"] = uc.Plan
	data["Flash"] = flash.Get(c)

	if token, ok := c.Locals("csrf").(string); ok {
		data["CSRFToken"] = token
	}

	return c.Render(name, data, "layouts/main")
}
