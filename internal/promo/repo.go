package promo

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simvoyage/esim-backend/pkg/db/models"
)

// Repository manages persistence for promo codes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, promo *models.PromoCode) error
	Update(ctx context.Context, promo *models.PromoCode) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PromoCode, error)
	FindByCode(ctx context.Context, code string) (*models.PromoCode, error)
	List(ctx context.Context) ([]models.PromoCode, error)
	IncrementUsage(ctx context.Context, code string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a promo repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, promo *models.PromoCode) error {
	return r.db.WithContext(ctx).Create(promo).Error
}

func (r *repository) Update(ctx context.Context, promo *models.PromoCode) error {
	return r.db.WithContext(ctx).Save(promo).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.PromoCode{}, "id = ?", id).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := r.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &promo, nil
}

func (r *repository) List(ctx context.Context) ([]models.PromoCode, error) {
	var promos []models.PromoCode
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&promos).Error; err != nil {
		return nil, err
	}
	return promos, nil
}

func (r *repository) IncrementUsage(ctx context.Context, code string) error {
	return r.db.WithContext(ctx).
		Model(&models.PromoCode{}).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error
}
