package topup

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/simvoyage/esim-backend/internal/notifications"
	"github.com/simvoyage/esim-backend/internal/wallet"
	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/enums"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/logger"
	"github.com/simvoyage/esim-backend/pkg/metrics"
	"github.com/simvoyage/esim-backend/pkg/reference"
	pkgstripe "github.com/simvoyage/esim-backend/pkg/stripe"
)

// Hard bounds regardless of store settings.
const (
	floorTopupCents   = 100
	ceilingTopupCents = 200000
)

type stripeSessions interface {
	CreateTopupSession(ctx context.Context, input pkgstripe.TopupSessionInput) (string, string, error)
	SessionPaid(ctx context.Context, sessionID string) (bool, error)
}

type boundsProvider interface {
	Get(ctx context.Context) (*models.StoreSettings, error)
}

type accountLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// StartResult is handed back to the storefront to redirect into Stripe.
type StartResult struct {
	EntryID     uuid.UUID
	Reference   string
	SessionID   string
	RedirectURL string
	AmountCents int64
}

// CallbackResult reports what the redirect callback found after querying the
// session status back from Stripe.
type CallbackResult struct {
	Completed   bool
	AmountCents int64
	Reference   string
}

// Service owns the top-up lifecycle: pending entry, hosted checkout session,
// and idempotent reconciliation from webhooks and redirect callbacks.
type Service interface {
	Start(ctx context.Context, accountID uuid.UUID, amountCents int64) (*StartResult, error)
	Complete(ctx context.Context, ref string, provider enums.PaymentProvider) (*models.LedgerEntry, bool, error)
	Fail(ctx context.Context, ref string, provider enums.PaymentProvider) (*models.LedgerEntry, bool, error)
	Callback(ctx context.Context, entryID uuid.UUID, sessionID string) (*CallbackResult, error)
}

type service struct {
	wallet     wallet.Service
	walletRepo wallet.Repository
	stripe     stripeSessions
	bounds     boundsProvider
	accounts   accountLoader
	notifier   notifications.Notifier
	payments   *metrics.PaymentMetrics
	logg       *logger.Logger
	refPrefix  string
}

// Config collects the top-up service dependencies.
type Config struct {
	Wallet          wallet.Service
	WalletRepo      wallet.Repository
	Stripe          stripeSessions
	Bounds          boundsProvider
	Accounts        accountLoader
	Notifier        notifications.Notifier
	Payments        *metrics.PaymentMetrics
	Logger          *logger.Logger
	ReferencePrefix string
}

// NewService wires the top-up reconciler.
func NewService(cfg Config) (Service, error) {
	if cfg.Wallet == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if cfg.WalletRepo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if cfg.Stripe == nil {
		return nil, fmt.Errorf("stripe client required")
	}

	prefix := strings.TrimSpace(cfg.ReferencePrefix)
	if prefix == "" {
		prefix = "SIMV"
	}

	return &service{
		wallet:     cfg.Wallet,
		walletRepo: cfg.WalletRepo,
		stripe:     cfg.Stripe,
		bounds:     cfg.Bounds,
		accounts:   cfg.Accounts,
		notifier:   cfg.Notifier,
		payments:   cfg.Payments,
		logg:       cfg.Logger,
		refPrefix:  prefix,
	}, nil
}

func (s *service) Start(ctx context.Context, accountID uuid.UUID, amountCents int64) (*StartResult, error) {
	if accountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}

	minCents, maxCents := s.topupBounds(ctx)
	if amountCents < minCents || amountCents > maxCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("top-up amount must be between %s and %s", formatCents(minCents), formatCents(maxCents)))
	}

	ref := reference.New(s.refPrefix)
	entry, err := s.wallet.CreatePending(ctx, wallet.PendingInput{
		AccountID:   accountID,
		Type:        enums.LedgerEntryTypeTopup,
		AmountCents: amountCents,
		Reference:   ref,
		Provider:    enums.PaymentProviderStripe,
		Description: fmt.Sprintf("Wallet top-up %s", formatCents(amountCents)),
	})
	if err != nil {
		return nil, err
	}

	sessionID, redirectURL, err := s.stripe.CreateTopupSession(ctx, pkgstripe.TopupSessionInput{
		AmountCents: amountCents,
		Reference:   ref,
		EntryID:     entry.ID.String(),
		AccountID:   accountID.String(),
	})
	if err != nil {
		// The pending entry stays behind as FAILED so the reference is
		// never reused for a session that was never created.
		if _, _, failErr := s.wallet.FailByReference(ctx, ref); failErr != nil && s.logg != nil {
			s.logg.Error(ctx, fmt.Sprintf("orphaned pending entry %s", ref), failErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	return &StartResult{
		EntryID:     entry.ID,
		Reference:   ref,
		SessionID:   sessionID,
		RedirectURL: redirectURL,
		AmountCents: amountCents,
	}, nil
}

// Complete settles a pending top-up exactly once. Gateways retry webhooks;
// the bool reports whether this call performed the credit.
func (s *service) Complete(ctx context.Context, ref string, provider enums.PaymentProvider) (*models.LedgerEntry, bool, error) {
	entry, credited, err := s.wallet.CompleteByReference(ctx, ref)
	if err != nil {
		s.countTopup(provider, "error")
		return nil, false, err
	}
	if !credited {
		s.countTopup(provider, "duplicate")
		return entry, false, nil
	}

	s.countTopup(provider, "completed")
	s.notify(ctx, entry, provider, "completed")
	return entry, true, nil
}

// Fail marks a pending top-up declined. Settled entries stay settled.
func (s *service) Fail(ctx context.Context, ref string, provider enums.PaymentProvider) (*models.LedgerEntry, bool, error) {
	entry, marked, err := s.wallet.FailByReference(ctx, ref)
	if err != nil {
		s.countTopup(provider, "error")
		return nil, false, err
	}
	if marked {
		s.countTopup(provider, "declined")
		s.notify(ctx, entry, provider, "declined")
	}
	return entry, marked, nil
}

// Callback reconciles the browser redirect. The session status is queried
// back from Stripe; query parameters alone never credit the wallet.
func (s *service) Callback(ctx context.Context, entryID uuid.UUID, sessionID string) (*CallbackResult, error) {
	if entryID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "entry id is required")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	entry, err := s.walletRepo.FindEntryByID(ctx, entryID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load ledger entry")
	}
	if entry == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
	}
	if entry.Status == enums.LedgerEntryStatusCompleted {
		return &CallbackResult{Completed: true, AmountCents: entry.AmountCents, Reference: entry.Reference}, nil
	}

	paid, err := s.stripe.SessionPaid(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query session status")
	}
	if !paid {
		return &CallbackResult{Completed: false, AmountCents: entry.AmountCents, Reference: entry.Reference}, nil
	}

	settled, _, err := s.Complete(ctx, entry.Reference, enums.PaymentProviderStripe)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{Completed: true, AmountCents: settled.AmountCents, Reference: settled.Reference}, nil
}

func (s *service) topupBounds(ctx context.Context) (int64, int64) {
	minCents, maxCents := int64(floorTopupCents), int64(ceilingTopupCents)
	if s.bounds == nil {
		return minCents, maxCents
	}
	settings, err := s.bounds.Get(ctx)
	if err != nil || settings == nil {
		return minCents, maxCents
	}
	if settings.MinTopupCents > minCents {
		minCents = settings.MinTopupCents
	}
	if settings.MaxTopupCents > 0 && settings.MaxTopupCents < maxCents {
		maxCents = settings.MaxTopupCents
	}
	return minCents, maxCents
}

func (s *service) notify(ctx context.Context, entry *models.LedgerEntry, provider enums.PaymentProvider, outcome string) {
	if s.notifier == nil || entry == nil {
		return
	}

	email := ""
	if s.accounts != nil {
		if account, err := s.accounts.FindByID(ctx, entry.AccountID); err == nil && account != nil {
			email = account.Email
		}
	}

	s.notifier.NotifyTopup(ctx, notifications.TopupNotification{
		Email:       email,
		AmountCents: entry.AmountCents,
		Provider:    string(provider),
		Reference:   entry.Reference,
		Outcome:     outcome,
	})
}

func (s *service) countTopup(provider enums.PaymentProvider, outcome string) {
	if s.payments != nil {
		s.payments.IncTopup(string(provider), outcome)
	}
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
