package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/enums"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only write path to account balances. Every mutation happens
// inside a transaction holding the account row lock and leaves behind a
// ledger entry whose BalanceCents snapshots the post-mutation balance.
type Service interface {
	Apply(ctx context.Context, input ApplyInput) (*models.LedgerEntry, error)
	ApplyTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.LedgerEntry, error)
	CreatePending(ctx context.Context, input PendingInput) (*models.LedgerEntry, error)
	CompleteByReference(ctx context.Context, reference string) (*models.LedgerEntry, bool, error)
	FailByReference(ctx context.Context, reference string) (*models.LedgerEntry, bool, error)
	Balance(ctx context.Context, accountID uuid.UUID) (*models.Account, []models.LedgerEntry, error)
	FreezeOnMismatch(ctx context.Context, err error)
}

// ApplyInput describes an immediate balance mutation. AmountCents is signed:
// negative debits, positive credits.
type ApplyInput struct {
	AccountID   uuid.UUID
	Type        enums.LedgerEntryType
	AmountCents int64
	Reference   string
	Provider    enums.PaymentProvider
	Description string
}

// PendingInput describes a credit awaiting provider confirmation. The balance
// is untouched until CompleteByReference.
type PendingInput struct {
	AccountID   uuid.UUID
	Type        enums.LedgerEntryType
	AmountCents int64
	Reference   string
	Provider    enums.PaymentProvider
	Description string
}

// InsufficientBalanceDetails is attached to insufficient-balance errors so
// the storefront can prompt an exact top-up.
type InsufficientBalanceDetails struct {
	RequiredCents  int64  `json:"required_cents"`
	AvailableCents int64  `json:"available_cents"`
	ShortfallCents int64  `json:"shortfall_cents"`
	Shortfall      string `json:"shortfall"`
}

type service struct {
	tx   txRunner
	repo Repository
}

// NewService wires the wallet service.
func NewService(tx txRunner, repo Repository) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	return &service{tx: tx, repo: repo}, nil
}

func (s *service) Apply(ctx context.Context, input ApplyInput) (*models.LedgerEntry, error) {
	var entry *models.LedgerEntry
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.apply(ctx, s.repo.WithTx(tx), input)
		if err != nil {
			return err
		}
		entry = applied
		return nil
	})
	if err != nil {
		s.FreezeOnMismatch(ctx, err)
		return nil, err
	}
	return entry, nil
}

// ApplyTx applies a mutation inside a caller-owned transaction so checkout
// can commit the debit together with its order row.
func (s *service) ApplyTx(ctx context.Context, tx *gorm.DB, input ApplyInput) (*models.LedgerEntry, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	return s.apply(ctx, s.repo.WithTx(tx), input)
}

func (s *service) apply(ctx context.Context, repo Repository, input ApplyInput) (*models.LedgerEntry, error) {
	if err := validateMutation(input.AccountID, input.Type, input.AmountCents, input.Reference); err != nil {
		return nil, err
	}

	account, err := s.lockHealthyAccount(ctx, repo, input.AccountID)
	if err != nil {
		return nil, err
	}

	newBalance := account.BalanceCents + input.AmountCents
	if newBalance < 0 {
		shortfall := -newBalance
		return nil, pkgerrors.New(pkgerrors.CodePaymentRequired, "insufficient wallet balance").
			WithDetails(InsufficientBalanceDetails{
				RequiredCents:  -input.AmountCents,
				AvailableCents: account.BalanceCents,
				ShortfallCents: shortfall,
				Shortfall:      formatCents(shortfall),
			})
	}

	if err := repo.UpdateBalance(ctx, account.ID, newBalance); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance")
	}

	entry := &models.LedgerEntry{
		AccountID:    account.ID,
		Type:         input.Type,
		Status:       enums.LedgerEntryStatusCompleted,
		AmountCents:  input.AmountCents,
		BalanceCents: newBalance,
		Reference:    input.Reference,
		Provider:     providerOrDefault(input.Provider),
		Description:  input.Description,
	}
	if err := repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record ledger entry")
	}
	return entry, nil
}

func (s *service) CreatePending(ctx context.Context, input PendingInput) (*models.LedgerEntry, error) {
	if err := validateMutation(input.AccountID, input.Type, input.AmountCents, input.Reference); err != nil {
		return nil, err
	}
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "pending entries must credit a positive amount")
	}

	entry := &models.LedgerEntry{
		AccountID:   input.AccountID,
		Type:        input.Type,
		Status:      enums.LedgerEntryStatusPending,
		AmountCents: input.AmountCents,
		Reference:   input.Reference,
		Provider:    providerOrDefault(input.Provider),
		Description: input.Description,
	}
	if err := s.repo.CreateEntry(ctx, entry); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record pending entry")
	}
	return entry, nil
}

// CompleteByReference credits a pending entry exactly once. The bool reports
// whether this call performed the credit; replays of already-settled
// references are successful no-ops.
func (s *service) CompleteByReference(ctx context.Context, reference string) (*models.LedgerEntry, bool, error) {
	var (
		entry    *models.LedgerEntry
		credited bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.LockEntryByReference(ctx, reference)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up ledger entry")
		}
		if locked == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
		}
		if locked.Status != enums.LedgerEntryStatusPending {
			entry = locked
			return nil
		}

		account, err := s.lockHealthyAccount(ctx, repo, locked.AccountID)
		if err != nil {
			return err
		}

		newBalance := account.BalanceCents + locked.AmountCents
		if err := repo.UpdateBalance(ctx, account.ID, newBalance); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update balance")
		}

		locked.Status = enums.LedgerEntryStatusCompleted
		locked.BalanceCents = newBalance
		if err := repo.UpdateEntry(ctx, locked); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle ledger entry")
		}

		entry = locked
		credited = true
		return nil
	})
	if err != nil {
		s.FreezeOnMismatch(ctx, err)
		return nil, false, err
	}
	return entry, credited, nil
}

// FailByReference marks a pending entry FAILED. Settled entries are left
// untouched; a decline after completion never claws the credit back here.
func (s *service) FailByReference(ctx context.Context, reference string) (*models.LedgerEntry, bool, error) {
	var (
		entry  *models.LedgerEntry
		marked bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		locked, err := repo.LockEntryByReference(ctx, reference)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up ledger entry")
		}
		if locked == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
		}
		if locked.Status != enums.LedgerEntryStatusPending {
			entry = locked
			return nil
		}

		locked.Status = enums.LedgerEntryStatusFailed
		if err := repo.UpdateEntry(ctx, locked); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark entry failed")
		}

		entry = locked
		marked = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entry, marked, nil
}

func (s *service) Balance(ctx context.Context, accountID uuid.UUID) (*models.Account, []models.LedgerEntry, error) {
	if accountID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}

	var (
		account *models.Account
		entries []models.LedgerEntry
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		locked, err := repo.LockAccount(ctx, accountID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load account")
		}
		if locked == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
		}
		account = locked

		entries, err = repo.ListEntries(ctx, accountID, 20)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger entries")
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return account, entries, nil
}

// lockHealthyAccount locks the account row and verifies the ledger agrees
// with the stored balance. A mismatch halts the write; the caller freezes the
// account once the failed transaction has released the row lock.
func (s *service) lockHealthyAccount(ctx context.Context, repo Repository, accountID uuid.UUID) (*models.Account, error) {
	account, err := repo.LockAccount(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock account")
	}
	if account == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "account not found")
	}
	if account.Frozen {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrity, "account is frozen pending ledger review")
	}

	latest, err := repo.LatestCompletedEntry(ctx, accountID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest entry")
	}
	if latest != nil && latest.BalanceCents != account.BalanceCents {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIntegrity,
			&snapshotMismatchError{accountID: accountID},
			"ledger snapshot does not match account balance")
	}
	return account, nil
}

type snapshotMismatchError struct {
	accountID uuid.UUID
}

func (e *snapshotMismatchError) Error() string {
	return fmt.Sprintf("ledger snapshot mismatch for account %s", e.accountID)
}

// FreezeOnMismatch persists the frozen flag outside the rolled-back
// transaction. Every later mutation re-detects the mismatch regardless, so a
// failed freeze only loses the marker, not the halt.
func (s *service) FreezeOnMismatch(ctx context.Context, err error) {
	var mismatch *snapshotMismatchError
	if !errors.As(err, &mismatch) {
		return
	}
	_ = s.repo.Freeze(ctx, mismatch.accountID)
}

func validateMutation(accountID uuid.UUID, entryType enums.LedgerEntryType, amountCents int64, reference string) error {
	if accountID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	if !entryType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid ledger entry type %q", entryType))
	}
	// A fully discounted purchase still records a zero-amount entry so the
	// ledger keeps one row per order. Every other mutation must move money.
	if amountCents == 0 && entryType != enums.LedgerEntryTypePurchase {
		return pkgerrors.New(pkgerrors.CodeValidation, "amount cannot be zero")
	}
	if strings.TrimSpace(reference) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reference is required")
	}
	return nil
}

func providerOrDefault(provider enums.PaymentProvider) enums.PaymentProvider {
	if provider.IsValid() {
		return provider
	}
	return enums.PaymentProviderWallet
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
