package controllers

import (
	"context"
	"crypto/subtle"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/launchkit/launchkit/app/models"
	"github.com/launchkit/launchkit/internal/pkg/billing"
	"github.com/launchkit/launchkit/internal/pkg/database"
	"github.com/launchkit/launchkit/internal/pkg/env"
	"github.com/launchkit/launchkit/internal/pkg/mail"
	"github.com/launchkit/launchkit/internal/pkg/metrics/counter"
	"github.com/launchkit/launchkit/internal/pkg/usercontext"
)

const webhookProcessingTimeout = 15 * time.Second

// CheckoutRequest is the checkout request body, accepted as JSON or form data
type CheckoutRequest struct {
	PriceID string `json:"price_id" form:"price_id"`
	Type    string `json:"type" form:"type"`
}

func billingService() *billing.Service {
	return billing.NewServiceFromDB(database.GetDB(), billing.NewStripeProcessorFromEnv(), mail.NewBillingMailer())
}

// HandleStripeWebhook receives Stripe events. Signature failures answer 400
// before any processing; permanent reference failures answer 400 so Stripe
// stops redelivering; everything else answers 500 to trigger redelivery.
func HandleStripeWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get("Stripe-Signature")

	processor := billing.NewStripeProcessorFromEnv()
	event, err := processor.VerifyEvent(payload, signature)
	if err != nil {
		log.Printf("[Webhook] signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), webhookProcessingTimeout)
	defer cancel()

	svc := billing.NewServiceFromDB(database.GetDB(), processor, mail.NewBillingMailer())
	if err := svc.ProcessEvent(ctx, event); err != nil {
		log.Printf("[Webhook] event %s (%s) failed: %v", event.ID, event.Type, err)
		if billing.IsRetryable(err) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	_ = counter.AddWebhookEvent(string(event.Type))

	return c.JSON(fiber.Map{"received": true})
}

// HandleCheckout creates a hosted checkout session for the logged-in user,
// creating the Stripe customer on first purchase.
func HandleCheckout(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "invalid JSON body"})
	}
	if req.PriceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "price_id is required"})
	}
	if req.Type != billing.PurchaseTypeSubscription && req.Type != billing.PurchaseTypeCredit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "type must be subscription or credit"})
	}

	repo := billing.NewRepository(database.GetDB())
	user, err := repo.GetUserByID(uc.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	// The offer must exist locally, otherwise the webhook can never apply it.
	planType := models.PlanTypeSubscription
	if req.Type == billing.PurchaseTypeCredit {
		planType = models.PlanTypeCredit
	}
	if _, err := repo.FindOfferByPriceID(req.PriceID, planType); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "unknown price"})
	}

	processor := billing.NewStripeProcessorFromEnv()
	ctx := c.Context()

	if user.StripeCustomerID == "" {
		cust, err := processor.CreateCustomer(ctx, user.Email, user.AuthUserID)
		if err != nil {
			log.Printf("[Billing] create customer for user %d failed: %v", user.ID, err)
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "stripe_unavailable"})
		}
		if err := repo.SetUserStripeCustomerID(user.ID, cust.ID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
		user.StripeCustomerID = cust.ID
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	url, err := processor.CreateCheckoutSession(ctx, billing.CheckoutParams{
		CustomerID:   user.StripeCustomerID,
		PriceID:      req.PriceID,
		PurchaseType: req.Type,
		UserRef:      user.AuthUserID,
		SuccessURL:   base + "/dashboard?checkout=success",
		CancelURL:    base + "/pricing?checkout=cancelled",
	})
	if err != nil {
		log.Printf("[Billing] create checkout session failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "stripe_unavailable"})
	}

	return c.JSON(fiber.Map{"url": url})
}

// HandleBillingPortal returns a hosted billing-portal URL. Users without a
// Stripe customer have nothing to manage yet.
func HandleBillingPortal(c *fiber.Ctx) error {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	user, err := billing.NewRepository(database.GetDB()).GetUserByID(uc.UserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if user.StripeCustomerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "no billing account yet"})
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	url, err := billing.NewStripeProcessorFromEnv().CreatePortalSession(c.Context(), user.StripeCustomerID, base+"/account")
	if err != nil {
		log.Printf("[Billing] create portal session failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "stripe_unavailable"})
	}

	return c.JSON(fiber.Map{"url": url})
}

// HandleBillingSync runs the nightly reconciliation against Stripe. Guarded
// by the CRON_SECRET bearer token, not by a user session.
func HandleBillingSync(c *fiber.Ctx) error {
	secret := env.GetEnv("CRON_SECRET", "")
	auth := c.Get("Authorization")
	if secret == "" || subtle.ConstantTimeCompare([]byte(auth), []byte("Bearer "+secret)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}

	report, err := billingService().SyncFromProcessor(c.Context())
	if err != nil {
		log.Printf("[Billing] sync failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "sync_failed"})
	}

	// Drain pending usage counters into the users table while we are at it.
	if err := counter.FlushAll(); err != nil {
		log.Printf("[Billing] counter flush failed: %v", err)
	}

	return c.JSON(report)
}
