package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	SubscriptionStatusIncomplete = "incomplete"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusActive     = "active"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusUnpaid     = "unpaid"
	SubscriptionStatusPaused     = "paused"
)

// Subscription mirrors a Stripe subscription for one user. One row per
// Stripe subscription id; webhook processing upserts against that key.
type Subscription struct {
	ID                   uint           `gorm:"primaryKey" json:"id"`
	UserID               uint           `gorm:"not null;index" json:"user_id"`
	AuthUserID           string         `gorm:"type:varchar(64);not null;index" json:"auth_user_id"`
	StripeSubscriptionID string         `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_stripe_sub_id" json:"stripe_subscription_id"`
	StripePriceID        string         `gorm:"type:varchar(191);not null;index" json:"stripe_price_id"`
	Status               string         `gorm:"type:varchar(32);not null;default:'incomplete';index" json:"status"`
	CancelAtPeriodEnd    bool           `gorm:"default:false" json:"cancel_at_period_end"`
	CurrentPeriodStart   *time.Time     `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time     `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	TrialEnd             *time.Time     `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	IsActive             bool           `gorm:"default:false;index" json:"is_active"`
	CreatedAt            time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsEntitlingSubscriptionStatus reports whether a Stripe status grants access.
// Only active and trialing do; past_due keeps the row but drops entitlement.
func IsEntitlingSubscriptionStatus(status string) bool {
	return status == SubscriptionStatusActive || status == SubscriptionStatusTrialing
}
