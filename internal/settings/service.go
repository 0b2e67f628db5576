package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/simvoyage/esim-backend/pkg/db/models"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
)

const (
	defaultMarkupPercent = 30
	minMarkupPercent     = 0
	maxMarkupPercent     = 200
	defaultMinTopupCents = 100
	defaultMaxTopupCents = 200000
)

// Service reads and updates storefront pricing configuration.
type Service interface {
	Get(ctx context.Context) (*models.StoreSettings, error)
	Update(ctx context.Context, input UpdateSettingsInput) (*models.StoreSettings, error)
	MarkupForRegion(ctx context.Context, countryCode string) (int, error)
}

// UpdateSettingsInput carries the admin-supplied settings values.
type UpdateSettingsInput struct {
	MarkupPercent  int            `json:"markup_percent" validate:"min=0,max=200"`
	RegionalMarkup map[string]int `json:"regional_markup"`
	MinTopupCents  int64          `json:"min_topup_cents" validate:"min=0"`
	MaxTopupCents  int64          `json:"max_topup_cents" validate:"min=0"`
	UpdatedBy      uuid.UUID      `json:"-"`
}

type service struct {
	repo Repository
}

// NewService wires the settings service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("settings repository required")
	}
	return &service{repo: repo}, nil
}

// Get returns the stored settings, falling back to defaults when the row
// has never been written.
func (s *service) Get(ctx context.Context) (*models.StoreSettings, error) {
	stored, err := s.repo.Get(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settings")
	}
	if stored == nil {
		return defaultSettings(), nil
	}
	return stored, nil
}

func (s *service) Update(ctx context.Context, input UpdateSettingsInput) (*models.StoreSettings, error) {
	if input.MarkupPercent < minMarkupPercent || input.MarkupPercent > maxMarkupPercent {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("markup percent must be between %d and %d", minMarkupPercent, maxMarkupPercent))
	}
	for region, markup := range input.RegionalMarkup {
		if markup < minMarkupPercent || markup > maxMarkupPercent {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("regional markup for %q must be between %d and %d", region, minMarkupPercent, maxMarkupPercent))
		}
	}
	if input.MinTopupCents < 0 || input.MaxTopupCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "top-up bounds must be non-negative")
	}
	if input.MaxTopupCents > 0 && input.MinTopupCents > input.MaxTopupCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "minimum top-up cannot exceed maximum top-up")
	}

	regional, err := json.Marshal(input.RegionalMarkup)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode regional markup")
	}

	settings := &models.StoreSettings{
		ID:             models.DefaultSettingsID,
		MarkupPercent:  input.MarkupPercent,
		RegionalMarkup: regional,
		MinTopupCents:  input.MinTopupCents,
		MaxTopupCents:  input.MaxTopupCents,
	}
	if input.UpdatedBy != uuid.Nil {
		settings.UpdatedBy = &input.UpdatedBy
	}
	if settings.MinTopupCents == 0 {
		settings.MinTopupCents = defaultMinTopupCents
	}
	if settings.MaxTopupCents == 0 {
		settings.MaxTopupCents = defaultMaxTopupCents
	}

	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store settings")
	}
	return settings, nil
}

// MarkupForRegion resolves the effective markup percent for a country,
// preferring a regional override when one exists.
func (s *service) MarkupForRegion(ctx context.Context, countryCode string) (int, error) {
	settings, err := s.Get(ctx)
	if err != nil {
		return 0, err
	}

	if len(settings.RegionalMarkup) > 0 && countryCode != "" {
		var regional map[string]int
		if err := json.Unmarshal(settings.RegionalMarkup, &regional); err == nil {
			if markup, ok := regional[countryCode]; ok {
				return markup, nil
			}
		}
	}
	return settings.MarkupPercent, nil
}

func defaultSettings() *models.StoreSettings {
	return &models.StoreSettings{
		ID:            models.DefaultSettingsID,
		MarkupPercent: defaultMarkupPercent,
		MinTopupCents: defaultMinTopupCents,
		MaxTopupCents: defaultMaxTopupCents,
	}
}
