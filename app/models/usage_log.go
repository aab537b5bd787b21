package models

import (
	"time"

	"gorm.io/gorm"
)

// UsageLog is one credit-consuming action. Aggregation over these rows
// (scoped to the current billing period) drives the available-credit math.
type UsageLog struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	AuthUserID  string         `gorm:"type:varchar(64);not null;index" json:"auth_user_id"`
	Description string         `gorm:"type:varchar(255)" json:"description"`
	CreditsUsed int            `gorm:"not null;default:1" json:"credits_used"`
	UsageType   string         `gorm:"type:varchar(50);index" json:"usage_type"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// DailyUsage is a scan target for per-day usage aggregation.
type DailyUsage struct {
	Day         string `json:"day"`
	CreditsUsed int    `json:"credits_used"`
}
