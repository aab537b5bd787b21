package apiv1

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/launchkit/launchkit/app/models"
	"github.com/launchkit/launchkit/internal/pkg/billing"
	"github.com/launchkit/launchkit/internal/pkg/database"
	"github.com/launchkit/launchkit/internal/pkg/entitlements"
	"github.com/launchkit/launchkit/internal/pkg/metrics/counter"
	"github.com/launchkit/launchkit/internal/pkg/usercontext"
)

// Pong is the health check response body
type Pong struct {
	Ping string `json:"ping"`
}

// UsageRequest is the POST /usage body
type UsageRequest struct {
	Description string `json:"description"`
	CreditsUsed int    `json:"credits_used"`
	UsageType   string `json:"usage_type"`
}

// UsageStatsResponse combines the derived credit figures with a per-day series
type UsageStatsResponse struct {
	Credits entitlements.CreditSummary `json:"credits"`
	Daily   []models.DailyUsage        `json:"daily"`
}

// APIServer implements the v1 API handlers
type APIServer struct{}

// NewAPIServer creates a new API server instance
func NewAPIServer() *APIServer {
	return &APIServer{}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// GetBillingState returns the aggregated billing view for the session user.
// Security is enforced via session middleware attached in the router.
func (s *APIServer) GetBillingState(c *fiber.Ctx) error {
	user, err := sessionUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	state, err := entitlements.NewServiceFromDB(database.GetDB()).Snapshot(c.Context(), user.AuthUserID)
	if err != nil {
		if errors.Is(err, billing.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user_not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(state)
}

// PostUsageLog appends a usage log entry for the session user and bumps the
// pending credits-used counter.
func (s *APIServer) PostUsageLog(c *fiber.Ctx) error {
	user, err := sessionUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req UsageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	if req.CreditsUsed <= 0 {
		req.CreditsUsed = 1
	}

	entry := &models.UsageLog{
		UserID:      user.ID,
		AuthUserID:  user.AuthUserID,
		Description: req.Description,
		CreditsUsed: req.CreditsUsed,
		UsageType:   req.UsageType,
	}
	if err := billing.NewRepository(database.GetDB()).CreateUsageLog(entry); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	_ = counter.AddCreditsUsed(user.ID, req.CreditsUsed)

	return c.Status(fiber.StatusCreated).JSON(entry)
}

// GetUsageStats returns credit figures plus a 30-day usage series for charts.
func (s *APIServer) GetUsageStats(c *fiber.Ctx) error {
	user, err := sessionUser(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	state, err := entitlements.NewServiceFromDB(database.GetDB()).Snapshot(c.Context(), user.AuthUserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	since := time.Now().AddDate(0, 0, -30)
	daily, err := billing.NewRepository(database.GetDB()).DailyUsage(user.ID, since)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.JSON(UsageStatsResponse{
		Credits: state.Credits,
		Daily:   daily,
	})
}

func sessionUser(c *fiber.Ctx) (*models.User, error) {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn || uc.UserID == 0 {
		return nil, errors.New("no session user")
	}
	return billing.NewRepository(database.GetDB()).GetUserByID(uc.UserID)
}

// RegisterHandlers wires the v1 routes onto the given router group. All
// routes except ping require an authenticated session.
func RegisterHandlers(r fiber.Router, s *APIServer, authMiddleware fiber.Handler) {
	r.Get("/ping", s.GetPing)
	r.Get("/billing/state", authMiddleware, s.GetBillingState)
	r.Post("/usage", authMiddleware, s.PostUsageLog)
	r.Get("/usage/stats", authMiddleware, s.GetUsageStats)
}
