package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/app/models"
)

// Service reconciles Stripe webhook events into local billing state. Every
// event passes the idempotency ledger first; the actual mutations for one
// event run inside a single DB transaction.
type Service struct {
	repo      Repository
	processor Processor
	mailer    Mailer
}

// NewService creates a billing service from injected dependencies. The mailer
// may be nil; notification failures never affect event processing either way.
func NewService(repo Repository, processor Processor, mailer Mailer) *Service {
	return &Service{repo: repo, processor: processor, mailer: mailer}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, processor Processor, mailer Mailer) *Service {
	return NewService(NewRepository(db), processor, mailer)
}

// ProcessEvent runs one verified Stripe event through the ledger and the
// type-specific handler. Redelivery of an already-applied event returns nil
// without touching billing state. A handler failure is recorded on the ledger
// row but leaves the event retryable.
func (s *Service) ProcessEvent(ctx context.Context, event *stripe.Event) error {
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		sum := sha256.Sum256(event.Data.Raw)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	record := &models.WebhookEvent{
		StripeEventID:  eventID,
		EventType:      string(event.Type),
		PayloadJSON:    string(event.Data.Raw),
		SignatureValid: true,
	}
	created, stored, err := s.repo.CreateWebhookEventIfNotExists(record)
	if err != nil {
		return err
	}
	if !created && stored.Processed() {
		log.Printf("[Billing] duplicate event %s (%s), skipping", eventID, event.Type)
		return nil
	}

	if err := s.applyEvent(ctx, event); err != nil {
		if markErr := s.repo.MarkWebhookProcessed(stored.ID, err.Error()); markErr != nil {
			log.Printf("[Billing] failed to record processing error for %s: %v", eventID, markErr)
		}
		return err
	}
	return s.repo.MarkWebhookProcessed(stored.ID, "")
}

func (s *Service) applyEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return s.applySubscriptionEvent(ctx, event)
	case "checkout.session.completed":
		return s.applyCheckoutCompleted(ctx, event)
	case "customer.subscription.trial_will_end":
		return s.applyTrialWillEnd(ctx, event)
	default:
		log.Printf("[Billing] ignoring event type %s", event.Type)
		return nil
	}
}

// applySubscriptionEvent mirrors the authoritative subscription object into
// the local row and refreshes the user's cached flags. The payload is only
// used for the subscription id; the object itself is re-fetched.
func (s *Service) applySubscriptionEvent(ctx context.Context, event *stripe.Event) error {
	var payload stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return fmt.Errorf("parse subscription payload: %w", err)
	}
	if payload.ID == "" {
		return errors.New("subscription payload has no id")
	}

	snap, err := s.processor.GetSubscription(ctx, payload.ID)
	if err != nil {
		return fmt.Errorf("fetch subscription %s: %w", payload.ID, err)
	}

	user, err := s.resolveUserByCustomer(ctx, snap.CustomerID)
	if err != nil {
		return err
	}

	if _, err := s.repo.FindOfferByPriceID(snap.PriceID, models.PlanTypeSubscription); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: price %s", ErrPlanNotFound, snap.PriceID)
		}
		return err
	}

	prior, err := s.repo.GetSubscriptionByStripeID(snap.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	sub := subscriptionRow(user, snap)
	if err := s.repo.Transaction(func(tx Repository) error {
		if user.StripeCustomerID == "" {
			if err := tx.SetUserStripeCustomerID(user.ID, snap.CustomerID); err != nil {
				return err
			}
		}
		if err := tx.UpsertSubscription(sub); err != nil {
			return err
		}
		return tx.UpdateUserSubscriptionState(user.ID, activeSubscriptionRef(sub), sub.IsActive, snap.CancelAtPeriodEnd)
	}); err != nil {
		return err
	}

	if sub.Status == models.SubscriptionStatusCanceled && (prior == nil || prior.Status != models.SubscriptionStatusCanceled) {
		s.notifySubscriptionCancelled(user, snap.CurrentPeriodEnd)
	}
	return nil
}

// applyCheckoutCompleted branches on the purchase type the checkout endpoint
// wrote into the session metadata. Subscription checkouts reduce to the same
// mirror logic as subscription events; credit checkouts grant the pack once,
// keyed on the payment intent id.
func (s *Service) applyCheckoutCompleted(ctx context.Context, event *stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("parse checkout session payload: %w", err)
	}

	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}

	userRef := sess.Metadata[MetadataUserRef]
	var user *models.User
	var err error
	if userRef != "" {
		user, err = s.repo.GetUserByAuthID(userRef)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user ref %s", ErrUserNotFound, userRef)
			}
			return err
		}
	} else {
		user, err = s.resolveUserByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
	}

	switch sess.Metadata[MetadataPurchaseType] {
	case PurchaseTypeSubscription:
		if sess.Subscription == nil || sess.Subscription.ID == "" {
			return errors.New("subscription checkout session has no subscription")
		}
		snap, err := s.processor.GetSubscription(ctx, sess.Subscription.ID)
		if err != nil {
			return fmt.Errorf("fetch subscription %s: %w", sess.Subscription.ID, err)
		}
		if _, err := s.repo.FindOfferByPriceID(snap.PriceID, models.PlanTypeSubscription); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: price %s", ErrPlanNotFound, snap.PriceID)
			}
			return err
		}
		sub := subscriptionRow(user, snap)
		return s.repo.Transaction(func(tx Repository) error {
			if user.StripeCustomerID == "" && customerID != "" {
				if err := tx.SetUserStripeCustomerID(user.ID, customerID); err != nil {
					return err
				}
			}
			if err := tx.UpsertSubscription(sub); err != nil {
				return err
			}
			return tx.UpdateUserSubscriptionState(user.ID, activeSubscriptionRef(sub), sub.IsActive, snap.CancelAtPeriodEnd)
		})
	case PurchaseTypeCredit:
		if sess.PaymentIntent == nil || sess.PaymentIntent.ID == "" {
			return errors.New("credit checkout session has no payment intent")
		}
		priceID, err := s.processor.SessionPriceID(ctx, sess.ID)
		if err != nil {
			return fmt.Errorf("resolve session line items: %w", err)
		}
		offer, err := s.repo.FindOfferByPriceID(priceID, models.PlanTypeCredit)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: price %s", ErrPlanNotFound, priceID)
			}
			return err
		}

		applied := false
		if err := s.repo.Transaction(func(tx Repository) error {
			if user.StripeCustomerID == "" && customerID != "" {
				if err := tx.SetUserStripeCustomerID(user.ID, customerID); err != nil {
					return err
				}
			}
			created, err := tx.CreateCreditPurchaseIfNotExists(&models.CreditPurchase{
				UserID:                user.ID,
				AuthUserID:            user.AuthUserID,
				StripePriceID:         priceID,
				StripePaymentIntentID: sess.PaymentIntent.ID,
				CreditsAdded:          offer.Credits,
				PurchaseAmount:        offer.Price,
				Status:                models.CreditPurchaseStatusSucceeded,
			})
			if err != nil {
				return err
			}
			if !created {
				// Another event already granted this payment intent.
				return nil
			}
			applied = true
			return tx.AddPurchasedCredits(user.ID, user.AuthUserID, offer.Credits)
		}); err != nil {
			return err
		}

		if applied {
			s.notifyPurchaseSuccessful(user, offer.Credits)
		}
		return nil
	default:
		log.Printf("[Billing] checkout session %s without purchase type, ignoring", sess.ID)
		return nil
	}
}

// applyTrialWillEnd refreshes the subscription row to trialing and sends the
// user a heads-up mail. Stripe fires this three days before the trial ends,
// while the subscription is still in its trial state.
func (s *Service) applyTrialWillEnd(ctx context.Context, event *stripe.Event) error {
	var payload stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &payload); err != nil {
		return fmt.Errorf("parse subscription payload: %w", err)
	}
	if payload.ID == "" {
		return errors.New("subscription payload has no id")
	}

	customerID := ""
	if payload.Customer != nil {
		customerID = payload.Customer.ID
	}
	user, err := s.resolveUserByCustomer(ctx, customerID)
	if err != nil {
		return err
	}

	// A missing local row is fine; the created/updated events own the upsert.
	if err := s.repo.MarkSubscriptionStatus(payload.ID, models.SubscriptionStatusTrialing, true); err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	var trialEnd *time.Time
	if payload.TrialEnd > 0 {
		t := time.Unix(payload.TrialEnd, 0).UTC()
		trialEnd = &t
	}
	if s.mailer != nil {
		if err := s.mailer.SendTrialEnding(user.Email, user.Name, trialEnd); err != nil {
			log.Printf("[Billing] trial-ending mail to %s failed: %v", user.Email, err)
		}
	}
	return nil
}

// resolveUserByCustomer ties a Stripe customer to a local user, first by the
// stored customer id, then by the user ref stamped into customer metadata.
func (s *Service) resolveUserByCustomer(ctx context.Context, customerID string) (*models.User, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: event has no customer", ErrUserNotFound)
	}

	user, err := s.repo.GetUserByStripeCustomerID(customerID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cust, err := s.processor.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("fetch customer %s: %w", customerID, err)
	}
	if cust.UserRef == "" {
		return nil, fmt.Errorf("%w: customer %s has no user ref", ErrUserNotFound, customerID)
	}
	user, err = s.repo.GetUserByAuthID(cust.UserRef)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user ref %s", ErrUserNotFound, cust.UserRef)
		}
		return nil, err
	}
	return user, nil
}

// SyncFromProcessor walks all Stripe subscriptions and re-aligns local state,
// covering anything a missed webhook left stale. It also rolls the per-period
// usage counter forward when a billing period has renewed.
func (s *Service) SyncFromProcessor(ctx context.Context) (*SyncReport, error) {
	snapshots, err := s.processor.ListSubscriptions(ctx)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{Scanned: len(snapshots)}
	for i := range snapshots {
		snap := &snapshots[i]
		user, err := s.resolveUserByCustomer(ctx, snap.CustomerID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				report.SkippedNoUser++
				continue
			}
			return report, err
		}

		wasActive := user.IsSubscriptionActive

		sub := subscriptionRow(user, snap)
		if err := s.repo.Transaction(func(tx Repository) error {
			if err := tx.UpsertSubscription(sub); err != nil {
				return err
			}
			return tx.UpdateUserSubscriptionState(user.ID, activeSubscriptionRef(sub), sub.IsActive, snap.CancelAtPeriodEnd)
		}); err != nil {
			return report, err
		}
		report.Updated++

		if !sub.IsActive && wasActive {
			report.Deactivated++
		}
		if sub.IsActive && snap.CurrentPeriodStart != nil {
			if user.LastCreditReset == nil || user.LastCreditReset.Before(*snap.CurrentPeriodStart) {
				if err := s.repo.ResetUserPeriodUsage(user.ID, time.Now()); err != nil {
					return report, err
				}
				report.CreditsReset++
			}
		}
	}
	return report, nil
}

func subscriptionRow(user *models.User, snap *SubscriptionSnapshot) *models.Subscription {
	return &models.Subscription{
		UserID:               user.ID,
		AuthUserID:           user.AuthUserID,
		StripeSubscriptionID: snap.ID,
		StripePriceID:        snap.PriceID,
		Status:               snap.Status,
		CancelAtPeriodEnd:    snap.CancelAtPeriodEnd,
		CurrentPeriodStart:   snap.CurrentPeriodStart,
		CurrentPeriodEnd:     snap.CurrentPeriodEnd,
		TrialEnd:             snap.TrialEnd,
		IsActive:             models.IsEntitlingSubscriptionStatus(snap.Status),
	}
}

// activeSubscriptionRef returns the cached pointer value for users: the row id
// while the subscription exists in any non-canceled state, nil once canceled.
func activeSubscriptionRef(sub *models.Subscription) *uint {
	if sub.Status == models.SubscriptionStatusCanceled {
		return nil
	}
	id := sub.ID
	return &id
}

func (s *Service) notifySubscriptionCancelled(user *models.User, accessUntil *time.Time) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendSubscriptionCancelled(user.Email, user.Name, accessUntil); err != nil {
		log.Printf("[Billing] cancellation mail to %s failed: %v", user.Email, err)
	}
}

func (s *Service) notifyPurchaseSuccessful(user *models.User, creditsAdded int) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.SendPurchaseSuccessful(user.Email, user.Name, creditsAdded); err != nil {
		log.Printf("[Billing] purchase mail to %s failed: %v", user.Email, err)
	}
}
