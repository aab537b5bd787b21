package controllers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/launchkit/launchkit/app/models"
	"github.com/launchkit/launchkit/app/repository"
	"github.com/launchkit/launchkit/internal/pkg/statistics"
)

func HandleIndex(c *fiber.Ctx) error {
	stats := statistics.GetStatisticsData()

	return renderPage(c, "index", fiber.Map{
		"Title":               "Launch your SaaS in days",
		"TotalUsers":          stats.TotalUsers,
		"ActiveSubscriptions": stats.ActiveSubscriptions,
		"CreditsUsedToday":    stats.CreditsUsedToday,
	})
}

// pricingOffer is the view shape for one catalog entry
type pricingOffer struct {
	models.ProductOffer
	Features []string
}

func HandlePricing(c *fiber.Ctx) error {
	offers := repository.GetGlobalFactory().GetOfferRepository()

	plans, err := offers.ListActive(models.PlanTypeSubscription)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("could not load plans")
	}
	packs, err := offers.ListActive(models.PlanTypeCredit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("could not load credit packs")
	}

	return renderPage(c, "pricing", fiber.Map{
		"Title": "Pricing",
		"Plans": decorateOffers(plans),
		"Packs": decorateOffers(packs),
	})
}

func decorateOffers(offers []models.ProductOffer) []pricingOffer {
	out := make([]pricingOffer, 0, len(offers))
	for _, o := range offers {
		po := pricingOffer{ProductOffer: o}
		if o.FeaturesJSON != "" {
			// Malformed feature lists degrade to an empty bullet list
			_ = json.Unmarshal([]byte(o.FeaturesJSON), &po.Features)
		}
		out = append(out, po)
	}
	return out
}

func HandleFAQ(c *fiber.Ctx) error {
	return renderPage(c, "faq", fiber.Map{
		"Title": "FAQ",
	})
}

func HandleContact(c *fiber.Ctx) error {
	return renderPage(c, "contact", fiber.Map{
		"Title": "Contact",
	})
}
