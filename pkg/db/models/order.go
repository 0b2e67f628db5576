package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/simvoyage/esim-backend/pkg/enums"
)

// Order is one purchase attempt. TotalCents never decreases after creation;
// refunds are compensating ledger entries, not order mutations.
type Order struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	AccountID     uuid.UUID         `gorm:"column:account_id;type:uuid;not null;index"`
	Status        enums.OrderStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	TotalCents    int64             `gorm:"column:total_cents;not null"`
	DiscountCents int64             `gorm:"column:discount_cents;not null;default:0"`
	Currency      string            `gorm:"column:currency;not null;default:'USD'"`
	PromoCode     *string           `gorm:"column:promo_code"`
	Country       string            `gorm:"column:country;not null"`
	CountryName   string            `gorm:"column:country_name;not null"`
	PlanName      string            `gorm:"column:plan_name;not null"`
	DataAmount    string            `gorm:"column:data_amount;not null"`
	ValidityDays  int               `gorm:"column:validity_days;not null"`
	PackageCode   string            `gorm:"column:package_code;not null"`
	Reference     string            `gorm:"column:reference;not null;unique"`
	Profile       *EsimProfile      `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
