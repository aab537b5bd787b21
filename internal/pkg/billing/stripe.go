package billing

import (
	"context"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/launchkit/launchkit/internal/pkg/env"
)

// StripeProcessor implements Processor against the Stripe API.
type StripeProcessor struct {
	webhookSecret string
}

// NewStripeProcessorFromEnv configures the global Stripe client from
// STRIPE_SECRET_KEY and returns a processor bound to STRIPE_WEBHOOK_SECRET.
func NewStripeProcessorFromEnv() *StripeProcessor {
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")
	return &StripeProcessor{
		webhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
	}
}

// VerifyEvent checks the Stripe-Signature header against the raw payload.
// API version mismatches are tolerated; the reconciler re-fetches objects
// from the API instead of trusting versioned payload shapes.
func (p *StripeProcessor) VerifyEvent(payload []byte, signatureHeader string) (*stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (p *StripeProcessor) CreateCustomer(ctx context.Context, email, userRef string) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserRef, userRef)

	c, err := customer.New(params)
	if err != nil {
		return nil, err
	}
	return customerFromStripe(c), nil
}

func (p *StripeProcessor) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	c, err := customer.Get(customerID, params)
	if err != nil {
		return nil, err
	}
	return customerFromStripe(c), nil
}

func (p *StripeProcessor) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, err
	}
	return snapshotFromStripe(sub), nil
}

func (p *StripeProcessor) ListSubscriptions(ctx context.Context) ([]SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionListParams{
		Status: stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(100)

	var snapshots []SubscriptionSnapshot
	iter := subscription.List(params)
	for iter.Next() {
		snapshots = append(snapshots, *snapshotFromStripe(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (p *StripeProcessor) CreateCheckoutSession(ctx context.Context, cp CheckoutParams) (string, error) {
	mode := stripe.CheckoutSessionModePayment
	if cp.PurchaseType == PurchaseTypeSubscription {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(cp.CustomerID),
		Mode:       stripe.String(string(mode)),
		SuccessURL: stripe.String(cp.SuccessURL),
		CancelURL:  stripe.String(cp.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(cp.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserRef, cp.UserRef)
	params.AddMetadata(MetadataPurchaseType, cp.PurchaseType)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

func (p *StripeProcessor) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// SessionPriceID returns the price behind the first line item of a completed
// checkout session. One-time credit packs always have exactly one line item.
func (p *StripeProcessor) SessionPriceID(ctx context.Context, sessionID string) (string, error) {
	params := &stripe.CheckoutSessionListLineItemsParams{
		Session: stripe.String(sessionID),
	}
	params.Context = ctx

	iter := checkoutsession.ListLineItems(params)
	for iter.Next() {
		li := iter.LineItem()
		if li.Price != nil && li.Price.ID != "" {
			return li.Price.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", err
	}
	return "", errors.New("billing: checkout session has no priced line items")
}

func customerFromStripe(c *stripe.Customer) *Customer {
	out := &Customer{
		ID:    c.ID,
		Email: c.Email,
	}
	if c.Metadata != nil {
		out.UserRef = c.Metadata[MetadataUserRef]
	}
	return out
}

// snapshotFromStripe flattens the Stripe subscription shape. Period bounds
// live on the subscription items since the 2025 API; the billing cycle anchor
// is the fallback for period start when no item carries them.
func snapshotFromStripe(sub *stripe.Subscription) *SubscriptionSnapshot {
	snap := &SubscriptionSnapshot{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		TrialEnd:          unixToTime(sub.TrialEnd),
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil {
				continue
			}
			if snap.PriceID == "" && item.Price != nil {
				snap.PriceID = item.Price.ID
			}
			if snap.CurrentPeriodStart == nil {
				snap.CurrentPeriodStart = unixToTime(item.CurrentPeriodStart)
			}
			if snap.CurrentPeriodEnd == nil {
				snap.CurrentPeriodEnd = unixToTime(item.CurrentPeriodEnd)
			}
		}
	}
	if snap.CurrentPeriodStart == nil {
		snap.CurrentPeriodStart = unixToTime(sub.BillingCycleAnchor)
	}
	return snap
}

func unixToTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
