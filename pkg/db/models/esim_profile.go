package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/simvoyage/esim-backend/pkg/enums"
)

// EsimProfile is the provisioned data profile issued by the supplier.
// Immutable once attached to an order.
type EsimProfile struct {
	ID             uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID        `gorm:"column:order_id;type:uuid;not null;unique"`
	AccountID      uuid.UUID        `gorm:"column:account_id;type:uuid;not null;index"`
	ICCID          string           `gorm:"column:iccid;not null"`
	QRCodeURL      string           `gorm:"column:qr_code_url;not null"`
	ActivationCode string           `gorm:"column:activation_code;not null;default:''"`
	DataLimitBytes int64            `gorm:"column:data_limit_bytes;not null"`
	ExpiresAt      time.Time        `gorm:"column:expires_at;not null"`
	Country        string           `gorm:"column:country;not null"`
	PlanName       string           `gorm:"column:plan_name;not null"`
	Status         enums.EsimStatus `gorm:"column:status;type:text;not null;default:'INACTIVE'"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
}
