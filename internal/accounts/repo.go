package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/pagination"
)

// Repository exposes account persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an accounts repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new account.
func (r *Repository) Create(ctx context.Context, account *models.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// FindByEmail retrieves the account matching the provided email, nil when
// no account exists.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByID loads an account by its UUID, nil when missing.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).First(&account, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// List returns accounts ordered by creation time, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.Account, error) {
	limit = pagination.NormalizeLimit(limit)
	var accounts []models.Account
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}
