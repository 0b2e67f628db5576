package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simvoyage/esim-backend/internal/notifications"
	"github.com/simvoyage/esim-backend/internal/orders"
	"github.com/simvoyage/esim-backend/internal/pricing"
	"github.com/simvoyage/esim-backend/internal/promo"
	"github.com/simvoyage/esim-backend/internal/provisioning"
	"github.com/simvoyage/esim-backend/internal/wallet"
	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/enums"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/esimaccess"
	"github.com/simvoyage/esim-backend/pkg/logger"
	"github.com/simvoyage/esim-backend/pkg/metrics"
	"github.com/simvoyage/esim-backend/pkg/reference"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type catalog interface {
	ListPackages(ctx context.Context, filter esimaccess.PackageFilter) ([]esimaccess.Package, error)
}

type promoResolver interface {
	ResolveDiscount(ctx context.Context, code string) (int, error)
}

type markupResolver interface {
	MarkupForRegion(ctx context.Context, countryCode string) (int, error)
}

type accountLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// Input is one wallet-funded purchase request.
type Input struct {
	AccountID   uuid.UUID
	PackageCode string
	Slug        string
	PromoCode   string
}

// Result reports the purchase outcome. Pending means payment settled but the
// profile is still being provisioned; the order stays paid.
type Result struct {
	Order           *models.Order
	NewBalanceCents int64
	Pending         bool
}

// Service executes the wallet checkout end to end: price, debit, order,
// provision.
type Service interface {
	Execute(ctx context.Context, input Input) (*Result, error)
	Reprovision(ctx context.Context, orderID uuid.UUID) (*Result, error)
}

type service struct {
	tx          txRunner
	catalog     catalog
	settings    markupResolver
	promos      promoResolver
	promoCount  promo.Repository
	wallet      wallet.Service
	orders      orders.Service
	ordersRepo  orders.Repository
	provisioner provisioning.Service
	accounts    accountLoader
	notifier    notifications.Notifier
	payments    *metrics.PaymentMetrics
	logg        *logger.Logger
	refPrefix   string
}

// Config collects the checkout service dependencies.
type Config struct {
	Tx              txRunner
	Catalog         catalog
	Settings        markupResolver
	Promos          promoResolver
	PromoCounter    promo.Repository
	Wallet          wallet.Service
	Orders          orders.Service
	OrdersRepo      orders.Repository
	Provisioner     provisioning.Service
	Accounts        accountLoader
	Notifier        notifications.Notifier
	Payments        *metrics.PaymentMetrics
	Logger          *logger.Logger
	ReferencePrefix string
}

// NewService wires the checkout orchestrator.
func NewService(cfg Config) (Service, error) {
	if cfg.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings service required")
	}
	if cfg.Promos == nil {
		return nil, fmt.Errorf("promo resolver required")
	}
	if cfg.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if cfg.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if cfg.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if cfg.Provisioner == nil {
		return nil, fmt.Errorf("provisioning service required")
	}

	prefix := strings.TrimSpace(cfg.ReferencePrefix)
	if prefix == "" {
		prefix = "SIMV"
	}

	return &service{
		tx:          cfg.Tx,
		catalog:     cfg.Catalog,
		settings:    cfg.Settings,
		promos:      cfg.Promos,
		promoCount:  cfg.PromoCounter,
		wallet:      cfg.Wallet,
		orders:      cfg.Orders,
		ordersRepo:  cfg.OrdersRepo,
		provisioner: cfg.Provisioner,
		accounts:    cfg.Accounts,
		notifier:    cfg.Notifier,
		payments:    cfg.Payments,
		logg:        cfg.Logger,
		refPrefix:   prefix,
	}, nil
}

func (s *service) Execute(ctx context.Context, input Input) (*Result, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if strings.TrimSpace(input.PackageCode) == "" && strings.TrimSpace(input.Slug) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "package code or slug is required")
	}

	pkg, err := s.findPackage(ctx, input.PackageCode, input.Slug)
	if err != nil {
		s.countCheckout("package_not_found")
		return nil, err
	}

	locationCode := primaryLocation(pkg.Location)
	markup, err := s.settings.MarkupForRegion(ctx, locationCode)
	if err != nil {
		s.countCheckout("settings_error")
		return nil, err
	}

	discount, err := s.promos.ResolveDiscount(ctx, input.PromoCode)
	if err != nil {
		s.countCheckout("promo_error")
		return nil, err
	}

	quote, err := pricing.Price(esimaccess.PriceToCents(pkg.Price), markup, discount)
	if err != nil {
		s.countCheckout("pricing_error")
		return nil, err
	}

	ref := reference.New(s.refPrefix)
	dataAmount := formatDataAmount(pkg.VolumeBytes)
	planName := fmt.Sprintf("%s / %d days", dataAmount, pkg.DurationDays)

	var (
		order      *models.Order
		newBalance int64
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		entry, err := s.wallet.ApplyTx(ctx, tx, wallet.ApplyInput{
			AccountID:   input.AccountID,
			Type:        enums.LedgerEntryTypePurchase,
			AmountCents: -quote.TotalCents,
			Reference:   ref,
			Provider:    enums.PaymentProviderWallet,
			Description: fmt.Sprintf("eSIM purchase: %s - %s", countryName(locationCode), dataAmount),
		})
		if err != nil {
			return err
		}
		newBalance = entry.BalanceCents

		order = &models.Order{
			AccountID:     input.AccountID,
			Status:        enums.OrderStatusPaid,
			TotalCents:    quote.TotalCents,
			DiscountCents: quote.DiscountCents,
			Currency:      "USD",
			Country:       locationCode,
			CountryName:   countryName(locationCode),
			PlanName:      planName,
			DataAmount:    dataAmount,
			ValidityDays:  pkg.DurationDays,
			PackageCode:   pkg.PackageCode,
			Reference:     ref,
		}
		if promoCode := strings.ToUpper(strings.TrimSpace(input.PromoCode)); promoCode != "" {
			order.PromoCode = &promoCode
		}
		if err := s.ordersRepo.WithTx(tx).Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		if discount > 0 && s.promoCount != nil {
			if err := s.promoCount.WithTx(tx).IncrementUsage(ctx, input.PromoCode); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count promo use")
			}
		}
		return nil
	})
	if err != nil {
		s.wallet.FreezeOnMismatch(ctx, err)
		s.countCheckout(outcomeFor(err))
		return nil, err
	}

	result := &Result{Order: order, NewBalanceCents: newBalance}
	s.provision(ctx, order, pkg, result)
	s.notifyPurchase(ctx, result)
	return result, nil
}

// Reprovision retries profile allocation for a paid order, support tooling
// for purchases whose first provisioning attempt timed out.
func (s *service) Reprovision(ctx context.Context, orderID uuid.UUID) (*Result, error) {
	order, err := s.orders.GetAny(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order in status %s cannot be reprovisioned", order.Status))
	}
	if order.PackageCode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no package code")
	}

	pkg, err := s.findPackage(ctx, order.PackageCode, "")
	if err != nil {
		return nil, err
	}

	result := &Result{Order: order}
	s.provision(ctx, order, pkg, result)
	return result, nil
}

// provision runs outside the payment transaction. Whatever happens here the
// debit stands: a pending or failed allocation leaves the order paid for a
// later retry.
func (s *service) provision(ctx context.Context, order *models.Order, pkg *esimaccess.Package, result *Result) {
	provisioned, err := s.provisioner.Provision(ctx, provisioning.Request{
		TransactionID: order.Reference,
		PackageCode:   pkg.PackageCode,
		PriceUnits:    pkg.Price,
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, fmt.Sprintf("provisioning failed for order %s, order stays paid", order.ID), err)
		}
		s.countCheckout("provisioning_failed")
		result.Pending = true
		return
	}
	if provisioned.Pending {
		s.countCheckout("provisioning_pending")
		result.Pending = true
		return
	}

	profile := provisioned.Profile
	completed, err := s.orders.AttachProfile(ctx, order.ID, &models.EsimProfile{
		ICCID:          profile.ICCID,
		QRCodeURL:      profile.QRCodeURL,
		ActivationCode: profile.ActivationCode,
		DataLimitBytes: profile.TotalVolume,
		ExpiresAt:      parseExpiry(profile.ExpiredTime, order.ValidityDays),
		Country:        order.Country,
		PlanName:       order.PlanName,
		Status:         enums.EsimStatusInactive,
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, fmt.Sprintf("profile attach failed for order %s, order stays paid", order.ID), err)
		}
		s.countCheckout("attach_failed")
		result.Pending = true
		return
	}

	s.countCheckout("completed")
	result.Order = completed
}

func (s *service) findPackage(ctx context.Context, packageCode, slug string) (*esimaccess.Package, error) {
	packages, err := s.catalog.ListPackages(ctx, esimaccess.PackageFilter{
		PackageCode: strings.TrimSpace(packageCode),
		Slug:        strings.TrimSpace(slug),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load package catalog")
	}
	for i := range packages {
		pkg := &packages[i]
		if pkg.PackageCode == packageCode || (slug != "" && pkg.Slug == slug) {
			return pkg, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "package not found")
}

func (s *service) notifyPurchase(ctx context.Context, result *Result) {
	if s.notifier == nil || result.Order == nil {
		return
	}

	email := ""
	if s.accounts != nil {
		if account, err := s.accounts.FindByID(ctx, result.Order.AccountID); err == nil && account != nil {
			email = account.Email
		}
	}

	s.notifier.NotifyPurchase(ctx, notifications.PurchaseNotification{
		OrderID:     result.Order.ID.String(),
		Email:       email,
		CountryName: result.Order.CountryName,
		PlanName:    result.Order.PlanName,
		TotalCents:  result.Order.TotalCents,
		Status:      result.Order.Status.String(),
	})
}

func (s *service) countCheckout(outcome string) {
	if s.payments != nil {
		s.payments.IncCheckout(outcome)
	}
}

func outcomeFor(err error) string {
	typed := pkgerrors.As(err)
	if typed == nil {
		return "error"
	}
	switch typed.Code() {
	case pkgerrors.CodePaymentRequired:
		return "insufficient_balance"
	case pkgerrors.CodeIntegrity:
		return "integrity_halt"
	default:
		return "error"
	}
}

func primaryLocation(location string) string {
	first := strings.SplitN(location, ",", 2)[0]
	return strings.TrimSpace(first)
}

func formatDataAmount(volumeBytes int64) string {
	const gb = int64(1) << 30
	if volumeBytes >= gb {
		whole := volumeBytes / gb
		if volumeBytes%gb == 0 {
			return fmt.Sprintf("%dGB", whole)
		}
		return fmt.Sprintf("%.1fGB", float64(volumeBytes)/float64(gb))
	}
	return fmt.Sprintf("%dMB", volumeBytes/(1<<20))
}

func parseExpiry(raw string, validityDays int) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Now().AddDate(0, 0, validityDays)
}
