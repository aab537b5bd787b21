package models

import "time"

// UserCredit holds the additive purchased-credit balance, one row per user.
// Webhook processing increments PurchasedCredits when a credit pack clears.
type UserCredit struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	AuthUserID       string    `gorm:"type:varchar(64);not null;index" json:"auth_user_id"`
	PurchasedCredits int       `gorm:"not null;default:0" json:"purchased_credits"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
