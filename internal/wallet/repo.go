package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/enums"
	"github.com/simvoyage/esim-backend/pkg/pagination"
)

// Repository manages persistence for accounts and their ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error)
	UpdateBalance(ctx context.Context, accountID uuid.UUID, balanceCents int64) error
	Freeze(ctx context.Context, accountID uuid.UUID) error
	CreateEntry(ctx context.Context, entry *models.LedgerEntry) error
	UpdateEntry(ctx context.Context, entry *models.LedgerEntry) error
	LockEntryByReference(ctx context.Context, reference string) (*models.LedgerEntry, error)
	FindEntryByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	FindEntryByReference(ctx context.Context, reference string) (*models.LedgerEntry, error)
	LatestCompletedEntry(ctx context.Context, accountID uuid.UUID) (*models.LedgerEntry, error)
	ListStalePendingEntries(ctx context.Context, entryType enums.LedgerEntryType, before time.Time) ([]models.LedgerEntry, error)
	ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockAccount loads the account under a row lock. Callers must be inside a
// transaction; balance mutations against concurrent requests serialize here.
func (r *repository) LockAccount(ctx context.Context, accountID uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", accountID).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *repository) UpdateBalance(ctx context.Context, accountID uuid.UUID, balanceCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", accountID).
		UpdateColumn("balance_cents", balanceCents).Error
}

func (r *repository) Freeze(ctx context.Context, accountID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", accountID).
		UpdateColumn("frozen", true).Error
}

func (r *repository) CreateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) UpdateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *repository) LockEntryByReference(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("reference = ?", reference).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindEntryByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindEntryByReference(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) LatestCompletedEntry(ctx context.Context, accountID uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status = ?", accountID, enums.LedgerEntryStatusCompleted).
		Order("created_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListEntries(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	limit = pagination.NormalizeLimit(limit)
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListStalePendingEntries(ctx context.Context, entryType enums.LedgerEntryType, before time.Time) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("type = ? AND status = ? AND created_at < ?", entryType, enums.LedgerEntryStatusPending, before).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}
