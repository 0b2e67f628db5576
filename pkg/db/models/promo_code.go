package models

import (
	"time"

	"github.com/google/uuid"
)

// PromoCode is a percentage discount applied to the marked-up sell price.
// UsedCount increments only after an order reaches a paid state.
type PromoCode struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	Code            string     `gorm:"column:code;not null;unique"`
	DiscountPercent int        `gorm:"column:discount_percent;not null"`
	Active          bool       `gorm:"column:active;not null"`
	ValidUntil      *time.Time `gorm:"column:valid_until"`
	MaxUses         *int       `gorm:"column:max_uses"`
	UsedCount       int        `gorm:"column:used_count;not null;default:0"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
