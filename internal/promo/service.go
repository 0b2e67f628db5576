package promo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/simvoyage/esim-backend/pkg/db/models"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
)

// Service resolves promo discounts at checkout and manages codes for admins.
type Service interface {
	ResolveDiscount(ctx context.Context, code string) (int, error)
	Create(ctx context.Context, input UpsertPromoInput) (*models.PromoCode, error)
	Update(ctx context.Context, id uuid.UUID, input UpsertPromoInput) (*models.PromoCode, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]models.PromoCode, error)
}

// UpsertPromoInput carries admin-supplied promo fields.
type UpsertPromoInput struct {
	Code            string     `json:"code" validate:"required,min=2,max=32"`
	DiscountPercent int        `json:"discount_percent" validate:"min=0,max=100"`
	Active          bool       `json:"active"`
	ValidUntil      *time.Time `json:"valid_until"`
	MaxUses         *int       `json:"max_uses"`
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires the promo service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("promo repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

// ResolveDiscount returns the discount percent for a code. Unknown, inactive,
// expired, or exhausted codes resolve to zero rather than failing checkout.
func (s *service) ResolveDiscount(ctx context.Context, code string) (int, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return 0, nil
	}

	promo, err := s.repo.FindByCode(ctx, trimmed)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up promo code")
	}
	if promo == nil || !promo.Active {
		return 0, nil
	}
	if promo.ValidUntil != nil && !promo.ValidUntil.After(s.now()) {
		return 0, nil
	}
	if promo.MaxUses != nil && promo.UsedCount >= *promo.MaxUses {
		return 0, nil
	}
	return promo.DiscountPercent, nil
}

func (s *service) Create(ctx context.Context, input UpsertPromoInput) (*models.PromoCode, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	promo := &models.PromoCode{
		Code:            strings.ToUpper(strings.TrimSpace(input.Code)),
		DiscountPercent: input.DiscountPercent,
		Active:          input.Active,
		ValidUntil:      input.ValidUntil,
		MaxUses:         input.MaxUses,
	}
	if err := s.repo.Create(ctx, promo); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create promo code")
	}
	return promo, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpsertPromoInput) (*models.PromoCode, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promo id is required")
	}
	if err := validateInput(input); err != nil {
		return nil, err
	}

	promo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up promo code")
	}
	if promo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "promo code not found")
	}

	promo.Code = strings.ToUpper(strings.TrimSpace(input.Code))
	promo.DiscountPercent = input.DiscountPercent
	promo.Active = input.Active
	promo.ValidUntil = input.ValidUntil
	promo.MaxUses = input.MaxUses

	if err := s.repo.Update(ctx, promo); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update promo code")
	}
	return promo, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "promo id is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete promo code")
	}
	return nil
}

func (s *service) List(ctx context.Context) ([]models.PromoCode, error) {
	promos, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list promo codes")
	}
	return promos, nil
}

func validateInput(input UpsertPromoInput) error {
	if strings.TrimSpace(input.Code) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "promo code is required")
	}
	if input.DiscountPercent < 0 || input.DiscountPercent > 100 {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount percent must be between 0 and 100")
	}
	if input.MaxUses != nil && *input.MaxUses < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "max uses cannot be negative")
	}
	return nil
}
