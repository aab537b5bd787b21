package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/launchkit/launchkit/app/models"
)

// Repository provides DB operations used by the billing and entitlements
// services. Transaction returns a Repository bound to the tx so a whole
// event's mutations commit or roll back together.
type Repository interface {
	Transaction(fn func(Repository) error) error

	GetUserByID(id uint) (*models.User, error)
	GetUserByAuthID(authUserID string) (*models.User, error)
	GetUserByStripeCustomerID(customerID string) (*models.User, error)
	SetUserStripeCustomerID(userID uint, customerID string) error
	UpdateUserSubscriptionState(userID uint, activeSubscriptionID *uint, isActive, onGracePeriod bool) error
	ResetUserPeriodUsage(userID uint, at time.Time) error

	FindOfferByPriceID(priceID, planType string) (*models.ProductOffer, error)

	GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error)
	UpsertSubscription(sub *models.Subscription) error
	MarkSubscriptionStatus(stripeSubscriptionID, status string, isActive bool) error
	LatestActiveSubscription(userID uint) (*models.Subscription, error)

	CreateCreditPurchaseIfNotExists(p *models.CreditPurchase) (bool, error)
	AddPurchasedCredits(userID uint, authUserID string, delta int) error
	GetUserCredit(userID uint) (*models.UserCredit, error)
	ListCreditPurchases(userID uint) ([]models.CreditPurchase, error)

	CreateUsageLog(entry *models.UsageLog) error
	ListUsageLogsSince(userID uint, since *time.Time) ([]models.UsageLog, error)
	DailyUsage(userID uint, since time.Time) ([]models.DailyUsage, error)

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) GetUserByAuthID(authUserID string) (*models.User, error) {
	var u models.User
	if err := r.db.Where("auth_user_id = ?", authUserID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) GetUserByStripeCustomerID(customerID string) (*models.User, error) {
	var u models.User
	if err := r.db.Where("stripe_customer_id = ?", customerID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) SetUserStripeCustomerID(userID uint, customerID string) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("stripe_customer_id", customerID).Error
}

func (r *gormRepository) UpdateUserSubscriptionState(userID uint, activeSubscriptionID *uint, isActive, onGracePeriod bool) error {
	updates := map[string]interface{}{
		"active_subscription_id": activeSubscriptionID,
		"is_subscription_active": isActive,
		"is_on_grace_period":     onGracePeriod,
	}
	return r.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
}

func (r *gormRepository) ResetUserPeriodUsage(userID uint, at time.Time) error {
	updates := map[string]interface{}{
		"credits_usage":     0,
		"last_credit_reset": at,
	}
	return r.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error
}

func (r *gormRepository) FindOfferByPriceID(priceID, planType string) (*models.ProductOffer, error) {
	var offer models.ProductOffer
	q := r.db.Where("stripe_price_id = ?", priceID)
	if planType != "" {
		q = q.Where("plan_type = ?", planType)
	}
	if err := q.First(&offer).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *gormRepository) GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"auth_user_id",
			"stripe_price_id",
			"status",
			"cancel_at_period_end",
			"current_period_start",
			"current_period_end",
			"trial_end",
			"is_active",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).
		First(sub).Error
}

func (r *gormRepository) MarkSubscriptionStatus(stripeSubscriptionID, status string, isActive bool) error {
	updates := map[string]interface{}{
		"status":    status,
		"is_active": isActive,
	}
	return r.db.Model(&models.Subscription{}).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Updates(updates).Error
}

func (r *gormRepository) LatestActiveSubscription(userID uint) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC").First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) CreateCreditPurchaseIfNotExists(p *models.CreditPurchase) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_payment_intent_id"},
		},
		DoNothing: true,
	}).Create(p)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) AddPurchasedCredits(userID uint, authUserID string, delta int) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"purchased_credits": gorm.Expr("purchased_credits + ?", delta),
		}),
	}).Create(&models.UserCredit{
		UserID:           userID,
		AuthUserID:       authUserID,
		PurchasedCredits: delta,
	}).Error
}

func (r *gormRepository) GetUserCredit(userID uint) (*models.UserCredit, error) {
	var uc models.UserCredit
	err := r.db.Where("user_id = ?", userID).First(&uc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &uc, nil
}

func (r *gormRepository) ListCreditPurchases(userID uint) ([]models.CreditPurchase, error) {
	var purchases []models.CreditPurchase
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&purchases).Error
	return purchases, err
}

func (r *gormRepository) CreateUsageLog(entry *models.UsageLog) error {
	return r.db.Create(entry).Error
}

func (r *gormRepository) ListUsageLogsSince(userID uint, since *time.Time) ([]models.UsageLog, error) {
	var logs []models.UsageLog
	q := r.db.Where("user_id = ?", userID)
	if since != nil {
		q = q.Where("created_at >= ?", *since)
	}
	err := q.Order("created_at DESC").Find(&logs).Error
	return logs, err
}

func (r *gormRepository) DailyUsage(userID uint, since time.Time) ([]models.DailyUsage, error) {
	var rows []models.DailyUsage
	err := r.db.Model(&models.UsageLog{}).
		Select("DATE(created_at) AS day, SUM(credits_used) AS credits_used").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group("DATE(created_at)").
		Order("day ASC").
		Scan(&rows).Error
	return rows, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("stripe_event_id = ?", event.StripeEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
