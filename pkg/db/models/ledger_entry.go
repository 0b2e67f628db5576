package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/simvoyage/esim-backend/pkg/enums"
)

// LedgerEntry records one immutable balance-affecting event. AmountCents is
// signed (positive credit, negative debit) and BalanceCents snapshots the
// account balance at completion time.
type LedgerEntry struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	AccountID    uuid.UUID               `gorm:"column:account_id;type:uuid;not null;index"`
	Type         enums.LedgerEntryType   `gorm:"column:type;type:text;not null"`
	Status       enums.LedgerEntryStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	AmountCents  int64                   `gorm:"column:amount_cents;not null"`
	BalanceCents int64                   `gorm:"column:balance_cents;not null;default:0"`
	Reference    string                  `gorm:"column:reference;not null;unique"`
	Provider     enums.PaymentProvider   `gorm:"column:provider;type:text;not null;default:'wallet'"`
	Description  string                  `gorm:"column:description;not null;default:''"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
