package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/simvoyage/esim-backend/pkg/enums"
)

// Account is a registered customer with a prepaid wallet balance in cents.
// BalanceCents is mutated only through the wallet ledger's atomic apply path.
type Account struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Email        string            `gorm:"column:email;not null;unique"`
	Name         string            `gorm:"column:name;not null"`
	PasswordHash string            `gorm:"column:password_hash;not null"`
	Role         enums.AccountRole `gorm:"column:role;type:text;not null;default:'customer'"`
	BalanceCents int64             `gorm:"column:balance_cents;not null;default:0"`
	Frozen       bool              `gorm:"column:frozen;not null;default:false"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
