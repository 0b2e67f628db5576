package orders

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

// Repository manages persistence for orders and their attached profiles.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	Update(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByReference(ctx context.Context, reference string) (*models.Order, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Order, error)
	ListPaidWithoutProfile(ctx context.Context, before time.Time) ([]models.Order, error)
	CreateProfile(ctx context.Context, profile *models.EsimProfile) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) Update(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Profile").Save(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]models.Order, error) {
	limit = pagination.NormalizeLimit(limit)
	var list []models.Order
	if err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *repository) ListPaidWithoutProfile(ctx context.Context, before time.Time) ([]models.Order, error) {
	var list []models.Order
	err := r.db.WithContext(ctx).
		Joins("LEFT JOIN esim_profiles ON esim_profiles.order_id = orders.id").
		Where("orders.status = ? AND orders.created_at < ? AND esim_profiles.id IS NULL", enums.OrderStatusPaid, before).
		Order("orders.created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *repository) CreateProfile(ctx context.Context, profile *models.EsimProfile) error {
	return r.db.WithContext(ctx).Create(profile).Error
}
