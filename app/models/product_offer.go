package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	PlanTypeSubscription = "subscription"
	PlanTypeCredit       = "credit"
)

// ProductOffer is one purchasable catalog entry, either a recurring plan or a
// one-time credit pack. Stripe price ids are the join key to everything billing.
type ProductOffer struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	StripePriceID string         `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_price_id"`
	Name          string         `gorm:"type:varchar(150);not null" json:"name"`
	Description   string         `gorm:"type:text" json:"description"`
	PlanType      string         `gorm:"type:varchar(20);not null;index" json:"plan_type"`
	Price         int64          `gorm:"not null" json:"price"` // cents
	AnnualPrice   *int64         `gorm:"default:null" json:"annual_price,omitempty"`
	Credits       int            `gorm:"default:0" json:"credits"`
	ButtonText    string         `gorm:"type:varchar(100)" json:"button_text"`
	Popular       bool           `gorm:"default:false" json:"popular"`
	FeaturesJSON  string         `gorm:"type:longtext" json:"features_json"`
	IsActive      bool           `gorm:"default:true;index" json:"is_active"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
