package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultSettingsID is the single row holding storefront configuration.
const DefaultSettingsID = "default"

// StoreSettings carries the pricing configuration read once per quote.
// MarkupPercent is validated into [0,200] at write time, RegionalMarkup maps
// country codes to override percentages.
type StoreSettings struct {
	ID              string          `gorm:"column:id;primaryKey"`
	MarkupPercent   int             `gorm:"column:markup_percent;not null"`
	RegionalMarkup  json.RawMessage `gorm:"column:regional_markup;type:jsonb"`
	MinTopupCents   int64           `gorm:"column:min_topup_cents;not null"`
	MaxTopupCents   int64           `gorm:"column:max_topup_cents;not null"`
	UpdatedBy       *uuid.UUID      `gorm:"column:updated_by;type:uuid"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
