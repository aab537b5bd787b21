package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/app/models"
)

type fakeRepo struct {
	users     map[uint]*models.User
	offers    map[string]*models.ProductOffer
	subs      map[string]*models.Subscription
	purchases map[string]*models.CreditPurchase
	credits   map[uint]*models.UserCredit
	usage     []models.UsageLog
	events    map[string]*models.WebhookEvent
	nextID    uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:     map[uint]*models.User{},
		offers:    map[string]*models.ProductOffer{},
		subs:      map[string]*models.Subscription{},
		purchases: map[string]*models.CreditPurchase{},
		credits:   map[uint]*models.UserCredit{},
		events:    map[string]*models.WebhookEvent{},
		nextID:    1,
	}
}

func (r *fakeRepo) id() uint {
	v := r.nextID
	r.nextID++
	return v
}

func (r *fakeRepo) addUser(u *models.User) *models.User {
	if u.ID == 0 {
		u.ID = r.id()
	}
	r.users[u.ID] = u
	return u
}

func (r *fakeRepo) addOffer(o *models.ProductOffer) *models.ProductOffer {
	if o.ID == 0 {
		o.ID = r.id()
	}
	r.offers[o.StripePriceID] = o
	return o
}

func (r *fakeRepo) Transaction(fn func(Repository) error) error { return fn(r) }

func (r *fakeRepo) GetUserByID(id uint) (*models.User, error) {
	if u, ok := r.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetUserByAuthID(authUserID string) (*models.User, error) {
	for _, u := range r.users {
		if u.AuthUserID == authUserID {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) GetUserByStripeCustomerID(customerID string) (*models.User, error) {
	for _, u := range r.users {
		if u.StripeCustomerID == customerID {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) SetUserStripeCustomerID(userID uint, customerID string) error {
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.StripeCustomerID = customerID
	return nil
}

func (r *fakeRepo) UpdateUserSubscriptionState(userID uint, activeSubscriptionID *uint, isActive, onGracePeriod bool) error {
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.ActiveSubscriptionID = activeSubscriptionID
	u.IsSubscriptionActive = isActive
	u.IsOnGracePeriod = onGracePeriod
	return nil
}

func (r *fakeRepo) ResetUserPeriodUsage(userID uint, at time.Time) error {
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.CreditsUsage = 0
	u.LastCreditReset = &at
	return nil
}

func (r *fakeRepo) FindOfferByPriceID(priceID, planType string) (*models.ProductOffer, error) {
	o, ok := r.offers[priceID]
	if !ok || (planType != "" && o.PlanType != planType) {
		return nil, gorm.ErrRecordNotFound
	}
	return o, nil
}

func (r *fakeRepo) GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error) {
	if s, ok := r.subs[stripeSubscriptionID]; ok {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepo) UpsertSubscription(sub *models.Subscription) error {
	if existing, ok := r.subs[sub.StripeSubscriptionID]; ok {
		sub.ID = existing.ID
		sub.CreatedAt = existing.CreatedAt
	} else {
		sub.ID = r.id()
		sub.CreatedAt = time.Now()
	}
	copied := *sub
	r.subs[sub.StripeSubscriptionID] = &copied
	return nil
}

func (r *fakeRepo) MarkSubscriptionStatus(stripeSubscriptionID, status string, isActive bool) error {
	s, ok := r.subs[stripeSubscriptionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.Status = status
	s.IsActive = isActive
	return nil
}

func (r *fakeRepo) LatestActiveSubscription(userID uint) (*models.Subscription, error) {
	var latest *models.Subscription
	for _, s := range r.subs {
		if s.UserID != userID || !s.IsActive {
			continue
		}
		if latest == nil || s.CreatedAt.After(latest.CreatedAt) {
			latest = s
		}
	}
	return latest, nil
}

func (r *fakeRepo) CreateCreditPurchaseIfNotExists(p *models.CreditPurchase) (bool, error) {
	if _, ok := r.purchases[p.StripePaymentIntentID]; ok {
		return false, nil
	}
	p.ID = r.id()
	p.CreatedAt = time.Now()
	r.purchases[p.StripePaymentIntentID] = p
	return true, nil
}

func (r *fakeRepo) AddPurchasedCredits(userID uint, authUserID string, delta int) error {
	if uc, ok := r.credits[userID]; ok {
		uc.PurchasedCredits += delta
		return nil
	}
	r.credits[userID] = &models.UserCredit{ID: r.id(), UserID: userID, AuthUserID: authUserID, PurchasedCredits: delta}
	return nil
}

func (r *fakeRepo) GetUserCredit(userID uint) (*models.UserCredit, error) {
	return r.credits[userID], nil
}

func (r *fakeRepo) ListCreditPurchases(userID uint) ([]models.CreditPurchase, error) {
	var out []models.CreditPurchase
	for _, p := range r.purchases {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepo) CreateUsageLog(entry *models.UsageLog) error {
	entry.ID = r.id()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.usage = append(r.usage, *entry)
	return nil
}

func (r *fakeRepo) ListUsageLogsSince(userID uint, since *time.Time) ([]models.UsageLog, error) {
	var out []models.UsageLog
	for _, l := range r.usage {
		if l.UserID != userID {
			continue
		}
		if since != nil && l.CreatedAt.Before(*since) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (r *fakeRepo) DailyUsage(userID uint, since time.Time) ([]models.DailyUsage, error) {
	totals := map[string]int{}
	for _, l := range r.usage {
		if l.UserID == userID && !l.CreatedAt.Before(since) {
			totals[l.CreatedAt.Format("2006-01-02")] += l.CreditsUsed
		}
	}
	var out []models.DailyUsage
	for day, n := range totals {
		out = append(out, models.DailyUsage{Day: day, CreditsUsed: n})
	}
	return out, nil
}

func (r *fakeRepo) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	if stored, ok := r.events[event.StripeEventID]; ok {
		return false, stored, nil
	}
	event.ID = r.id()
	r.events[event.StripeEventID] = event
	return true, event, nil
}

func (r *fakeRepo) MarkWebhookProcessed(id uint, processingError string) error {
	for _, e := range r.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeProcessor struct {
	customers        map[string]*Customer
	subscriptions    map[string]*SubscriptionSnapshot
	sessionPrices    map[string]string
	subFetchCount    int
	subFetchFailures int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		customers:     map[string]*Customer{},
		subscriptions: map[string]*SubscriptionSnapshot{},
		sessionPrices: map[string]string{},
	}
}

func (p *fakeProcessor) VerifyEvent(payload []byte, signatureHeader string) (*stripe.Event, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func (p *fakeProcessor) CreateCustomer(_ context.Context, email, userRef string) (*Customer, error) {
	c := &Customer{ID: "cus_" + userRef, Email: email, UserRef: userRef}
	p.customers[c.ID] = c
	return c, nil
}

func (p *fakeProcessor) GetCustomer(_ context.Context, customerID string) (*Customer, error) {
	if c, ok := p.customers[customerID]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("no such customer: %s", customerID)
}

func (p *fakeProcessor) GetSubscription(_ context.Context, subscriptionID string) (*SubscriptionSnapshot, error) {
	p.subFetchCount++
	if p.subFetchFailures > 0 {
		p.subFetchFailures--
		return nil, errors.New("stripe unavailable")
	}
	if s, ok := p.subscriptions[subscriptionID]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no such subscription: %s", subscriptionID)
}

func (p *fakeProcessor) ListSubscriptions(_ context.Context) ([]SubscriptionSnapshot, error) {
	var out []SubscriptionSnapshot
	for _, s := range p.subscriptions {
		out = append(out, *s)
	}
	return out, nil
}

func (p *fakeProcessor) CreateCheckoutSession(_ context.Context, cp CheckoutParams) (string, error) {
	return "https://checkout.test/" + cp.PriceID, nil
}

func (p *fakeProcessor) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	return "https://portal.test/" + customerID, nil
}

func (p *fakeProcessor) SessionPriceID(_ context.Context, sessionID string) (string, error) {
	if price, ok := p.sessionPrices[sessionID]; ok {
		return price, nil
	}
	return "", fmt.Errorf("no line items for session %s", sessionID)
}

type fakeMailer struct {
	purchaseMails  int
	cancelledMails int
	trialMails     int
}

func (m *fakeMailer) SendPurchaseSuccessful(toEmail, name string, creditsAdded int) error {
	m.purchaseMails++
	return nil
}

func (m *fakeMailer) SendSubscriptionCancelled(toEmail, name string, accessUntil *time.Time) error {
	m.cancelledMails++
	return nil
}

func (m *fakeMailer) SendTrialEnding(toEmail, name string, trialEnd *time.Time) error {
	m.trialMails++
	return nil
}

func subscriptionEvent(eventID, eventType, subID string) *stripe.Event {
	raw, _ := json.Marshal(map[string]interface{}{"id": subID})
	return &stripe.Event{
		ID:   eventID,
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: raw},
	}
}

func creditCheckoutEvent(eventID, sessionID, customerID, paymentIntentID, userRef string) *stripe.Event {
	raw, _ := json.Marshal(map[string]interface{}{
		"id":             sessionID,
		"customer":       map[string]interface{}{"id": customerID},
		"payment_intent": map[string]interface{}{"id": paymentIntentID},
		"metadata":       map[string]string{MetadataPurchaseType: PurchaseTypeCredit, MetadataUserRef: userRef},
	})
	return &stripe.Event{
		ID:   eventID,
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}
}

func testSnapshot(subID, customerID, priceID, status string, cancelAtPeriodEnd bool) *SubscriptionSnapshot {
	start := time.Now().Add(-24 * time.Hour).UTC()
	end := start.Add(30 * 24 * time.Hour)
	return &SubscriptionSnapshot{
		ID:                 subID,
		CustomerID:         customerID,
		PriceID:            priceID,
		Status:             status,
		CancelAtPeriodEnd:  cancelAtPeriodEnd,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}
}

func TestProcessEventSubscriptionCreated(t *testing.T) {
	repo := newFakeRepo()
	proc := newFakeProcessor()
	user := repo.addUser(&models.User{AuthUserID: "u-1", Email: "a@b.test", StripeCustomerID: "cus_1"})
	repo.addOffer(&models.ProductOffer{StripePriceID: "price_pro", PlanType: models.PlanTypeSubscription, Credits: 30})
	proc.subscriptions["sub_1"] = testSnapshot("sub_1", "cus_1", "price_pro", models.SubscriptionStatusActive, false)

	svc := NewService(repo, proc, nil)
	if err := svc.ProcessEvent(context.Background(), subscriptionEvent("evt_1", "customer.subscription.created", "sub_1")); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	sub, ok := repo.subs["sub_1"]
	if !ok {
		t.Fatal("expected subscription row")
	}
	if !sub.IsActive || sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("unexpected subscription state: %+v", sub)
	}
	if user.ActiveSubscriptionID == nil || *user.ActiveSubscriptionID != sub.ID {
		t.Fatalf("active_subscription_id not set: %+v", user.ActiveSubscriptionID)
	}
	if !user.IsSubscriptionActive || user.IsOnGracePeriod {
		t.Fatalf("unexpected user flags: active=%v grace=%v", user.IsSubscriptionActive, user.IsOnGracePeriod)
	}
	if !repo.events["evt_1"].Processed() {
		t.Fatal("event not marked processed")
	}
}

func TestProcessEventDuplicateDeliveryIsNoop(t *testing.T) {
	repo := newFakeRepo()
	proc := newFakeProcessor()
	repo.addUser(&models.User{AuthUserID: "u-1", Email: "a@b.test", StripeCustomerID: "cus_1"})
	repo.addOffer(&models.ProductOffer{StripePriceID: "price_pro", PlanType: models.PlanTypeSubscription})
	proc.subscriptions["sub_1"] = testSnapshot("sub_1", "cus_1", "price_pro", models.SubscriptionStatusActive, false)

	svc := NewService(repo, proc, nil)
	evt := subscriptionEvent("evt_1", "customer.subscription.updated", "sub_1")
	if err := svc.ProcessEvent(context.Background(), evt); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	fetches := proc.subFetchCount
	if err := svc.ProcessEvent(context.Background(), evt); err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if proc.subFetchCount != fetches {
		t.Fatal("duplicate delivery ran the handler again")
	}
}

func TestProcessEventFailedDeliveryIsRetryable(t *testing.T) {
	repo := newFakeRepo()
	proc := newFakeProcessor()
	repo.addUser(&models.User{AuthUserID: "u-1", Email: "a@b.test", StripeCustomerID: "cus_1"})
	repo.addOffer(&models.ProductOffer{StripePriceID: "price_pro", PlanType: models.PlanTypeSubscription})
	proc.subscriptions["sub_1"] = testSnapshot("sub_1", "cus_1", "price_pro", models.SubscriptionStatusActive, false)
	proc.subFetchFailures = 1

	svc := NewService(repo, proc, nil)
	evt := subscriptionEvent("evt_1", "customer.subscription.created", "sub_1")

	err := svc.ProcessEvent(context.Background(), evt)
	if err == nil {
		t.Fatal("expected first delivery to fail")
	}
	if !IsRetryable(err) {
		t.Fatalf("stripe outage should be retryable: %v", err)
	}
	if repo.events["evt_1"].Processed() {
		t.Fatal("failed event must not count as processed")
	}

	if err := svc.ProcessEvent(context.Background(), evt); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if _, ok := repo.subs["sub_1"]; !ok {
		t.Fatal("redelivery did not apply the event")
	}
	if !repo.events["evt_1"].Processed() {
		t.Fatal("redelivered event not marked processed")
	}
}

func TestProcessEventCanceledClearsUserFlags(t *testing.T) {
	repo := newFakeRepo()
	proc := newFakeProcessor()
	user := repo.addUser(&models.User{AuthUserID: "u-1", Email: "a@b.test", StripeCustomerID: "cus_1"})
	repo.addOffer(&models.ProductOffer{StripePriceID: "price_pro", PlanType: models.PlanTypeSubscription})
	proc.subscriptions["sub_1"] = testSnapshot("sub_1", "cus_1", "price_pro", models.SubscriptionStatusActive, false)

	svc := NewService(repo, proc, nil)
	if err := svc.ProcessEvent(context.Background(), subscriptionEvent("evt_1", "customer.subscription.created", "sub_1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	proc.subscriptions["sub_1"] = testSnapshot("sub_1", "cus_1", "price_pro", models.SubscriptionStatusCanceled, false)
	if err := svc.ProcessEvent(context.Background(), subscriptionEvent("evt_2", "customer.subscription.deleted", "sub_1")); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if user.ActiveSubscriptionID != nil {
		t.Fatal("canceled subscription must clear active_subscription_id")
	}
	if user.IsSubscriptionActive {
		t.Fatal("canceled subscription must clear is_subscription_active")
	}
	if sub := repo.subs["sub_1"]; sub.IsActive || sub.Status != models.SubscriptionStatusCanceled {
		t.Fatalf("unexpected subscription state: %+v", sub)
	}
}

func TestProcessEventGracePeriodMirrorsCancelAtPeriodEnd(t *testing.T) {
	repo := newFakeRepo()
	proc := newFakeProcessor()
	user := repo.addUser(&models.User{AuthUserID: "u-1", Email: "a@b.test", StripeCustomerID: "cus_1"})
	repo.addOffer(&models.ProductOffer{StripePriceID: "price_pro", PlanType: models.PlanTypeSubscription})
	proc.subscriptions["sub_1"] = testSnapshot("sub_1", "cus_1", "price_pro", models.SubscriptionStatusActive, true)

	svc := NewService(repo, proc, nil)
	if err := svc.ProcessEvent(context.Background(), subscriptionEvent("evt_1", "customer.subscription.updated", "sub_1")); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if !user.IsOnGracePeriod || !user.IsSubscriptionActive {
		t.Fatalf("grace-period cancel must stay active: active=%v grace=%v", user.IsSubscriptionActive, user.IsOnGracePeriod)
	}

	proc.subscriptions["sub_1"] = testSnapshot("sub_1", "cus_1", "price_pro", models.SubscriptionStatusActive, false)
	if err := svc.ProcessEvent(context.Background(), subscriptionEvent("evt_2", "customer.subscription.updated", "sub_1")); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}
	if user.IsOnGracePeriod {
		t.Fatal("reverted cancellation must clear is_on_grace_period")
	}
}

func TestCreditCheckoutGrantsPackExactlyOnce(t *testing.T) {
	repo := newFakeRepo()
	proc := newFakeProcessor()
	user := repo.addUser(&models.User{AuthUserID: "u-1", Email: "a@b.test"})
	repo.addOffer(&models.ProductOffer{StripePriceID: "price_pack", PlanType: models.PlanTypeCredit, Credits: 100, Price: 1500})
	proc.sessionPrices["cs_1"] = "price_pack"

	svc := NewService(repo, proc, nil)
	if err := svc.ProcessEvent(context.Background(), creditCheckoutEvent("evt_1", "cs_1", "cus_1", "pi_123", "u-1")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	// Stripe may deliver the same completion under a fresh event id.
	if err := svc.ProcessEvent(context.Background(), creditCheckoutEvent("evt_2", "cs_1", "cus_1", "pi_123", "u-1")); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	uc := repo.credits[user.ID]
	if uc == nil || uc.PurchasedCredits != 100 {
		t.Fatalf("expected exactly one 100-credit grant, got %+v", uc)
	}
	if len(repo.purchases) != 1 {
		t.Fatalf("expected one purchase row, got %d", len(repo.purchases))
	}
	if user.StripeCustomerID != "cus_1" {
		t.Fatalf("customer id not backfilled: %q", user.StripeCustomerID)
	}
}

func TestCreditCheckoutUnknownPriceIsPermanent(t *testing.T) {
	repo := newFakeRepo()
	proc := newFakeProcessor()
	repo.addUser(&models.User{AuthUserID: "u-1", Email: "a@b.test"})
	proc.sessionPrices["cs_1"] = "price_missing"

	svc := NewService(repo, proc, nil)
	err := svc.ProcessEvent(context.Background(), creditCheckoutEvent("evt_1", "cs_1", "cus_1", "pi_123", "u-1"))
	if !errors.Is(err, ErrPlanNotFound) {
		t.Fatalf("expected ErrPlanNotFound, got %v", err)
	}
	if IsRetryable(err) {
		t.Fatal("unknown price must be a permanent failure")
	}
	if len(repo.credits) != 0 {
		t.Fatal("no credits may be granted for an unknown price")
	}
}

func TestTrialWillEndRefreshesSubscriptionRow(t *testing.T) {
	repo := newFakeRepo()
	proc := newFakeProcessor()
	mailer := &fakeMailer{}
	user := repo.addUser(&models.User{AuthUserID: "u-1", Email: "a@b.test", StripeCustomerID: "cus_1"})
	repo.subs["sub_1"] = &models.Subscription{
		ID:                   repo.id(),
		UserID:               user.ID,
		StripeSubscriptionID: "sub_1",
		Status:               models.SubscriptionStatusPastDue,
		IsActive:             false,
	}

	raw, _ := json.Marshal(map[string]interface{}{
		"id":        "sub_1",
		"customer":  map[string]interface{}{"id": "cus_1"},
		"trial_end": time.Now().Add(72 * time.Hour).Unix(),
	})
	evt := &stripe.Event{ID: "evt_1", Type: "customer.subscription.trial_will_end", Data: &stripe.EventData{Raw: raw}}

	svc := NewService(repo, proc, mailer)
	if err := svc.ProcessEvent(context.Background(), evt); err != nil {
		t.Fatalf("ProcessEvent: %v", err)
	}

	sub := repo.subs["sub_1"]
	if sub.Status != models.SubscriptionStatusTrialing || !sub.IsActive {
		t.Fatalf("expected trialing/active row, got status=%q active=%v", sub.Status, sub.IsActive)
	}
	if mailer.trialMails != 1 {
		t.Fatalf("expected one trial-ending mail, got %d", mailer.trialMails)
	}
}

func TestTrialWillEndWithoutLocalRow(t *testing.T) {
	repo := newFakeRepo()
	proc := newFakeProcessor()
	repo.addUser(&models.User{AuthUserID: "u-1", Email: "a@b.test", StripeCustomerID: "cus_1"})

	raw, _ := json.Marshal(map[string]interface{}{
		"id":       "sub_unknown",
		"customer": map[string]interface{}{"id": "cus_1"},
	})
	evt := &stripe.Event{ID: "evt_1", Type: "customer.subscription.trial_will_end", Data: &stripe.EventData{Raw: raw}}

	svc := NewService(repo, proc, nil)
	if err := svc.ProcessEvent(context.Background(), evt); err != nil {
		t.Fatalf("missing local row must not fail the event: %v", err)
	}
	if !repo.events["evt_1"].Processed() {
		t.Fatal("event not marked processed")
	}
}

func TestTrialWillEndUnknownCustomer(t *testing.T) {
	repo := newFakeRepo()
	proc := newFakeProcessor()

	raw, _ := json.Marshal(map[string]interface{}{
		"id":        "sub_1",
		"customer":  map[string]interface{}{"id": "cus_ghost"},
		"trial_end": time.Now().Add(72 * time.Hour).Unix(),
	})
	evt := &stripe.Event{ID: "evt_1", Type: "customer.subscription.trial_will_end", Data: &stripe.EventData{Raw: raw}}

	svc := NewService(repo, proc, nil)
	err := svc.ProcessEvent(context.Background(), evt)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if IsRetryable(err) {
		t.Fatal("unknown customer must be a permanent failure")
	}
}

func TestProcessEventIgnoresUnhandledTypes(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, newFakeProcessor(), nil)

	evt := &stripe.Event{ID: "evt_1", Type: "invoice.paid", Data: &stripe.EventData{Raw: json.RawMessage(`{}`)}}
	if err := svc.ProcessEvent(context.Background(), evt); err != nil {
		t.Fatalf("unhandled type must be acknowledged: %v", err)
	}
	if !repo.events["evt_1"].Processed() {
		t.Fatal("ignored event should still be marked processed")
	}
}

func TestSyncFromProcessorResetsPeriodUsage(t *testing.T) {
	repo := newFakeRepo()
	proc := newFakeProcessor()
	user := repo.addUser(&models.User{AuthUserID: "u-1", Email: "a@b.test", StripeCustomerID: "cus_1", CreditsUsage: 12})
	repo.addOffer(&models.ProductOffer{StripePriceID: "price_pro", PlanType: models.PlanTypeSubscription})
	proc.subscriptions["sub_1"] = testSnapshot("sub_1", "cus_1", "price_pro", models.SubscriptionStatusActive, false)

	reset := time.Now().Add(-40 * 24 * time.Hour)
	user.LastCreditReset = &reset

	svc := NewService(repo, proc, nil)
	report, err := svc.SyncFromProcessor(context.Background())
	if err != nil {
		t.Fatalf("SyncFromProcessor: %v", err)
	}
	if report.Scanned != 1 || report.Updated != 1 || report.CreditsReset != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if user.CreditsUsage != 0 {
		t.Fatalf("period usage not reset: %d", user.CreditsUsage)
	}
}

func TestSyncFromProcessorCountsDeactivated(t *testing.T) {
	repo := newFakeRepo()
	proc := newFakeProcessor()
	user := repo.addUser(&models.User{AuthUserID: "u-1", Email: "a@b.test", StripeCustomerID: "cus_1", IsSubscriptionActive: true})
	proc.subscriptions["sub_1"] = testSnapshot("sub_1", "cus_1", "price_pro", models.SubscriptionStatusCanceled, false)

	svc := NewService(repo, proc, nil)
	report, err := svc.SyncFromProcessor(context.Background())
	if err != nil {
		t.Fatalf("SyncFromProcessor: %v", err)
	}
	if report.Deactivated != 1 {
		t.Fatalf("expected one deactivation, got %+v", report)
	}
	if user.IsSubscriptionActive {
		t.Fatal("user flag not cleared")
	}
}
