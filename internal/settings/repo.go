package settings

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/simvoyage/esim-backend/pkg/db/models"
)

// Repository manages persistence for the storefront settings row.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context) (*models.StoreSettings, error)
	Upsert(ctx context.Context, settings *models.StoreSettings) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settings repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context) (*models.StoreSettings, error) {
	var settings models.StoreSettings
	err := r.db.WithContext(ctx).
		Where("id = ?", models.DefaultSettingsID).
		First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *repository) Upsert(ctx context.Context, settings *models.StoreSettings) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(settings).Error
}
