package billing

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v82"
)

const (
	PurchaseTypeSubscription = "subscription"
	PurchaseTypeCredit       = "credit"
)

// Metadata keys written onto Stripe customers and checkout sessions so that
// webhook payloads can be tied back to a local user.
const (
	MetadataUserRef      = "user_ref"
	MetadataPurchaseType = "type"
)

// Customer is the processor-neutral view of a billing customer.
type Customer struct {
	ID      string
	Email   string
	UserRef string
}

// SubscriptionSnapshot is the processor-neutral view of a subscription at a
// point in time, as fetched from the billing API (not trusted from payloads).
type SubscriptionSnapshot struct {
	ID                 string
	CustomerID         string
	PriceID            string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEnd           *time.Time
}

// CheckoutParams describes a hosted checkout session to create.
type CheckoutParams struct {
	CustomerID   string
	PriceID      string
	PurchaseType string
	UserRef      string
	SuccessURL   string
	CancelURL    string
}

// Processor is the narrow payment-provider surface the billing service needs.
// The Stripe adapter implements it; tests run against an in-memory fake.
type Processor interface {
	VerifyEvent(payload []byte, signatureHeader string) (*stripe.Event, error)
	CreateCustomer(ctx context.Context, email, userRef string) (*Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error)
	ListSubscriptions(ctx context.Context) ([]SubscriptionSnapshot, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	SessionPriceID(ctx context.Context, sessionID string) (string, error)
}

// Mailer is the transactional-mail surface billing needs. Failures are logged
// by the caller, never propagated into webhook handling.
type Mailer interface {
	SendPurchaseSuccessful(toEmail, name string, creditsAdded int) error
	SendSubscriptionCancelled(toEmail, name string, accessUntil *time.Time) error
	SendTrialEnding(toEmail, name string, trialEnd *time.Time) error
}

// SyncReport summarizes one run of the nightly processor sync.
type SyncReport struct {
	Scanned       int `json:"scanned"`
	Updated       int `json:"updated"`
	SkippedNoUser int `json:"skipped_no_user"`
	CreditsReset  int `json:"credits_reset"`
	Deactivated   int `json:"deactivated"`
}
