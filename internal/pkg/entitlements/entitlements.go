package entitlements

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/launchkit/launchkit/app/models"
	"github.com/launchkit/launchkit/internal/pkg/billing"
	"github.com/launchkit/launchkit/internal/pkg/utils"
)

// CreditSummary holds the derived credit figures for one user.
type CreditSummary struct {
	AvailableCredits        int `json:"available_credits"`
	UsedThisPeriod          int `json:"used_this_period"`
	SubscriptionCreditsLeft int `json:"subscription_credits_left"`
	PurchasedCredits        int `json:"purchased_credits"`
}

// BillingState is the full aggregated billing view for one user, assembled
// in one shot for dashboards and the API. It is all-or-nothing; a failing
// lookup fails the snapshot instead of returning partial figures.
type BillingState struct {
	User               *models.User           `json:"user"`
	ActiveSubscription *models.Subscription   `json:"active_subscription,omitempty"`
	SubscriptionPlan   *models.ProductOffer   `json:"subscription_plan,omitempty"`
	CreditDetails      *models.UserCredit     `json:"credit_details,omitempty"`
	Credits            CreditSummary          `json:"credits"`
	CreditPurchases    []models.CreditPurchase `json:"credit_purchases"`
	UsageLogs          []models.UsageLog      `json:"usage_logs"`
	AvatarURL          string                 `json:"avatar_url"`
}

// Service aggregates billing state out of the rows the reconciler maintains.
type Service struct {
	repo billing.Repository
}

// NewService creates an entitlements service from an injected repository.
func NewService(repo billing.Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates an entitlements service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(billing.NewRepository(db))
}

// Snapshot builds the aggregated billing state for a user. A missing
// subscription, plan or credit row degrades to zeroed figures; a missing user
// is billing.ErrUserNotFound.
func (s *Service) Snapshot(ctx context.Context, authUserID string) (*BillingState, error) {
	_ = ctx

	user, err := s.repo.GetUserByAuthID(authUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billing.ErrUserNotFound
		}
		return nil, err
	}

	sub, err := s.repo.LatestActiveSubscription(user.ID)
	if err != nil {
		return nil, err
	}

	var plan *models.ProductOffer
	if sub != nil {
		plan, err = s.repo.FindOfferByPriceID(sub.StripePriceID, models.PlanTypeSubscription)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	creditDetails, err := s.repo.GetUserCredit(user.ID)
	if err != nil {
		return nil, err
	}

	purchases, err := s.repo.ListCreditPurchases(user.ID)
	if err != nil {
		return nil, err
	}

	logs, err := s.repo.ListUsageLogsSince(user.ID, nil)
	if err != nil {
		return nil, err
	}

	// OAuth avatars win over the Gravatar fallback
	avatar := user.AvatarURL
	if avatar == "" {
		avatar = utils.GetGravatarURL(user.Email, 200)
	}

	return &BillingState{
		User:               user,
		ActiveSubscription: sub,
		SubscriptionPlan:   plan,
		CreditDetails:      creditDetails,
		Credits:            ComputeCredits(plan, sub, creditDetails, logs),
		CreditPurchases:    purchases,
		UsageLogs:          logs,
		AvatarURL:          avatar,
	}, nil
}

// ComputeCredits derives the credit figures. Usage only counts from the
// current period start; the subscription component floors at zero, purchased
// credits are added on top and never expire with the period.
func ComputeCredits(plan *models.ProductOffer, sub *models.Subscription, credit *models.UserCredit, logs []models.UsageLog) CreditSummary {
	summary := CreditSummary{}
	if credit != nil {
		summary.PurchasedCredits = credit.PurchasedCredits
	}
	summary.AvailableCredits = summary.PurchasedCredits

	if plan == nil || sub == nil || sub.CurrentPeriodStart == nil {
		return summary
	}

	used := 0
	for _, l := range logs {
		if !l.CreatedAt.Before(*sub.CurrentPeriodStart) {
			used += l.CreditsUsed
		}
	}

	left := plan.Credits - used
	if left < 0 {
		left = 0
	}

	summary.UsedThisPeriod = used
	summary.SubscriptionCreditsLeft = left
	summary.AvailableCredits = left + summary.PurchasedCredits
	return summary
}
