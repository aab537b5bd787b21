package entitlements

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/launchkit/launchkit/app/models"
	"github.com/launchkit/launchkit/internal/pkg/billing"
)

func periodStart(t time.Time) *time.Time { return &t }

// snapshotRepo covers the slice of billing.Repository that Snapshot touches.
// The embedded interface stays nil; anything else would be a test bug.
type snapshotRepo struct {
	billing.Repository

	user      *models.User
	sub       *models.Subscription
	offers    map[string]*models.ProductOffer
	credit    *models.UserCredit
	purchases []models.CreditPurchase
	usage     []models.UsageLog
}

func (r *snapshotRepo) GetUserByAuthID(authUserID string) (*models.User, error) {
	if r.user == nil || r.user.AuthUserID != authUserID {
		return nil, gorm.ErrRecordNotFound
	}
	return r.user, nil
}

func (r *snapshotRepo) LatestActiveSubscription(userID uint) (*models.Subscription, error) {
	return r.sub, nil
}

func (r *snapshotRepo) FindOfferByPriceID(priceID, planType string) (*models.ProductOffer, error) {
	if o, ok := r.offers[priceID]; ok {
		return o, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *snapshotRepo) GetUserCredit(userID uint) (*models.UserCredit, error) {
	return r.credit, nil
}

func (r *snapshotRepo) ListCreditPurchases(userID uint) ([]models.CreditPurchase, error) {
	return r.purchases, nil
}

func (r *snapshotRepo) ListUsageLogsSince(userID uint, since *time.Time) ([]models.UsageLog, error) {
	return r.usage, nil
}

func TestSnapshotUnknownUser(t *testing.T) {
	svc := NewService(&snapshotRepo{})

	_, err := svc.Snapshot(context.Background(), "u-missing")
	if !errors.Is(err, billing.ErrUserNotFound) {
		t.Fatalf("err = %v, want billing.ErrUserNotFound", err)
	}
}

func TestSnapshotAggregatesActiveSubscription(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	repo := &snapshotRepo{
		user: &models.User{ID: 1, AuthUserID: "u-1", Email: "a@b.test"},
		sub:  &models.Subscription{ID: 2, UserID: 1, StripePriceID: "price_pro", IsActive: true, CurrentPeriodStart: periodStart(t0)},
		offers: map[string]*models.ProductOffer{
			"price_pro": {Credits: 30, PlanType: models.PlanTypeSubscription, StripePriceID: "price_pro"},
		},
		credit: &models.UserCredit{UserID: 1, PurchasedCredits: 5},
		usage: []models.UsageLog{
			{UserID: 1, CreditsUsed: 10, CreatedAt: t0.Add(time.Hour)},
		},
	}

	state, err := NewService(repo).Snapshot(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if state.SubscriptionPlan == nil || state.SubscriptionPlan.StripePriceID != "price_pro" {
		t.Fatalf("plan not resolved: %+v", state.SubscriptionPlan)
	}
	if state.Credits.AvailableCredits != 25 {
		t.Fatalf("AvailableCredits = %d, want 25", state.Credits.AvailableCredits)
	}
	if state.AvatarURL == "" {
		t.Fatal("expected a gravatar fallback avatar")
	}
}

func TestSnapshotDegradesOnMissingPlan(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	repo := &snapshotRepo{
		user:   &models.User{ID: 1, AuthUserID: "u-1", Email: "a@b.test"},
		sub:    &models.Subscription{ID: 2, UserID: 1, StripePriceID: "price_gone", IsActive: true, CurrentPeriodStart: periodStart(t0)},
		credit: &models.UserCredit{UserID: 1, PurchasedCredits: 5},
	}

	state, err := NewService(repo).Snapshot(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("a deleted offer must not fail the snapshot: %v", err)
	}
	if state.SubscriptionPlan != nil {
		t.Fatalf("plan should be nil, got %+v", state.SubscriptionPlan)
	}
	// Without a plan only purchased credits count.
	if state.Credits.AvailableCredits != 5 || state.Credits.SubscriptionCreditsLeft != 0 {
		t.Fatalf("unexpected credit figures: %+v", state.Credits)
	}
}

func TestComputeCreditsCountsOnlyCurrentPeriod(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	plan := &models.ProductOffer{Credits: 30, PlanType: models.PlanTypeSubscription}
	sub := &models.Subscription{CurrentPeriodStart: periodStart(t0)}
	credit := &models.UserCredit{PurchasedCredits: 5}
	logs := []models.UsageLog{
		{CreditsUsed: 50, CreatedAt: t0.Add(-48 * time.Hour)}, // previous period
		{CreditsUsed: 4, CreatedAt: t0},                       // boundary counts
		{CreditsUsed: 6, CreatedAt: t0.Add(12 * time.Hour)},
	}

	got := ComputeCredits(plan, sub, credit, logs)
	if got.UsedThisPeriod != 10 {
		t.Fatalf("UsedThisPeriod = %d, want 10", got.UsedThisPeriod)
	}
	if got.SubscriptionCreditsLeft != 20 {
		t.Fatalf("SubscriptionCreditsLeft = %d, want 20", got.SubscriptionCreditsLeft)
	}
	if got.AvailableCredits != 25 {
		t.Fatalf("AvailableCredits = %d, want 25", got.AvailableCredits)
	}
}

func TestComputeCreditsFloorsSubscriptionComponent(t *testing.T) {
	t0 := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	plan := &models.ProductOffer{Credits: 10}
	sub := &models.Subscription{CurrentPeriodStart: periodStart(t0)}
	credit := &models.UserCredit{PurchasedCredits: 7}
	logs := []models.UsageLog{
		{CreditsUsed: 25, CreatedAt: t0.Add(time.Hour)},
	}

	got := ComputeCredits(plan, sub, credit, logs)
	if got.SubscriptionCreditsLeft != 0 {
		t.Fatalf("SubscriptionCreditsLeft = %d, want 0", got.SubscriptionCreditsLeft)
	}
	// Overuse must not eat into purchased credits.
	if got.AvailableCredits != 7 {
		t.Fatalf("AvailableCredits = %d, want 7", got.AvailableCredits)
	}
	if got.UsedThisPeriod != 25 {
		t.Fatalf("UsedThisPeriod = %d, want 25", got.UsedThisPeriod)
	}
}

func TestComputeCreditsWithoutSubscription(t *testing.T) {
	credit := &models.UserCredit{PurchasedCredits: 40}
	logs := []models.UsageLog{
		{CreditsUsed: 3, CreatedAt: time.Now()},
	}

	got := ComputeCredits(nil, nil, credit, logs)
	if got.AvailableCredits != 40 {
		t.Fatalf("AvailableCredits = %d, want 40", got.AvailableCredits)
	}
	if got.UsedThisPeriod != 0 || got.SubscriptionCreditsLeft != 0 {
		t.Fatalf("subscription figures must stay zero without a plan: %+v", got)
	}
}

func TestComputeCreditsAllZero(t *testing.T) {
	got := ComputeCredits(nil, nil, nil, nil)
	if got.AvailableCredits != 0 || got.UsedThisPeriod != 0 || got.SubscriptionCreditsLeft != 0 || got.PurchasedCredits != 0 {
		t.Fatalf("expected zeroed summary, got %+v", got)
	}
}
