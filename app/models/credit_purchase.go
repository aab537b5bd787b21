package models

import (
	"time"

	"gorm.io/gorm"
)

const CreditPurchaseStatusSucceeded = "succeeded"

// CreditPurchase records one paid credit pack. The unique payment intent id is
// what keeps a redelivered checkout webhook from granting credits twice.
type CreditPurchase struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	UserID                uint           `gorm:"not null;index" json:"user_id"`
	AuthUserID            string         `gorm:"type:varchar(64);not null;index" json:"auth_user_id"`
	StripePriceID         string         `gorm:"type:varchar(191);not null;index" json:"stripe_price_id"`
	StripePaymentIntentID string         `gorm:"type:varchar(191);not null;uniqueIndex:ux_credit_purchases_payment_intent" json:"stripe_payment_intent_id"`
	CreditsAdded          int            `gorm:"not null" json:"credits_added"`
	PurchaseAmount        int64          `gorm:"not null" json:"purchase_amount"` // cents
	Status                string         `gorm:"type:varchar(32);not null;default:'succeeded'" json:"status"`
	CreatedAt             time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`
}
