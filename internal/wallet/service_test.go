package wallet

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/enums"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
)

type testTxRunner struct {
	db *gorm.DB
}

func (r *testTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newWalletTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:wallet_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Account{}, &models.LedgerEntry{}); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

func newWalletService(t *testing.T, db *gorm.DB) Service {
	t.Helper()

	svc, err := NewService(&testTxRunner{db: db}, NewRepository(db))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedAccount(t *testing.T, db *gorm.DB, balanceCents int64) *models.Account {
	t.Helper()

	account := &models.Account{
		Email:        fmt.Sprintf("%s@example.com", uuid.NewString()),
		PasswordHash: "x",
		Role:         enums.AccountRoleCustomer,
		BalanceCents: balanceCents,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account
}

func TestApplyDebitWritesEntryAndBalance(t *testing.T) {
	db := newWalletTestDB(t)
	svc := newWalletService(t, db)
	account := seedAccount(t, db, 2000)

	entry, err := svc.Apply(context.Background(), ApplyInput{
		AccountID:   account.ID,
		Type:        enums.LedgerEntryTypePurchase,
		AmountCents: -1170,
		Reference:   "SIMV-1-AAAAAA",
		Description: "eSIM purchase: France 1GB",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if entry.Status != enums.LedgerEntryStatusCompleted {
		t.Fatalf("expected COMPLETED entry, got %s", entry.Status)
	}
	if entry.BalanceCents != 830 {
		t.Fatalf("expected snapshot 830, got %d", entry.BalanceCents)
	}

	var stored models.Account
	if err := db.First(&stored, "id = ?", account.ID).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if stored.BalanceCents != 830 {
		t.Fatalf("expected balance 830, got %d", stored.BalanceCents)
	}
}

func TestApplyZeroAmountPurchaseRecordsEntry(t *testing.T) {
	db := newWalletTestDB(t)
	svc := newWalletService(t, db)
	account := seedAccount(t, db, 2000)

	entry, err := svc.Apply(context.Background(), ApplyInput{
		AccountID:   account.ID,
		Type:        enums.LedgerEntryTypePurchase,
		AmountCents: 0,
		Reference:   "SIMV-7-FREEBIE",
		Description: "eSIM purchase: France 1GB",
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if entry.Status != enums.LedgerEntryStatusCompleted || entry.AmountCents != 0 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if entry.BalanceCents != 2000 {
		t.Fatalf("expected untouched snapshot 2000, got %d", entry.BalanceCents)
	}

	_, err = svc.Apply(context.Background(), ApplyInput{
		AccountID:   account.ID,
		Type:        enums.LedgerEntryTypeTopup,
		AmountCents: 0,
		Reference:   "SIMV-8-NOTHING",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected zero topup rejected, got %v", err)
	}
}

func TestApplyInsufficientBalanceKeepsState(t *testing.T) {
	db := newWalletTestDB(t)
	svc := newWalletService(t, db)
	account := seedAccount(t, db, 500)

	_, err := svc.Apply(context.Background(), ApplyInput{
		AccountID:   account.ID,
		Type:        enums.LedgerEntryTypePurchase,
		AmountCents: -1170,
		Reference:   "SIMV-2-BBBBBB",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodePaymentRequired {
		t.Fatalf("expected insufficient balance error, got %v", err)
	}
	details, ok := typed.Details().(InsufficientBalanceDetails)
	if !ok {
		t.Fatalf("expected shortfall details, got %T", typed.Details())
	}
	if details.ShortfallCents != 670 || details.Shortfall != "$6.70" {
		t.Fatalf("unexpected shortfall %+v", details)
	}

	var stored models.Account
	if err := db.First(&stored, "id = ?", account.ID).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if stored.BalanceCents != 500 {
		t.Fatalf("balance mutated on rejected debit: %d", stored.BalanceCents)
	}
	var count int64
	if err := db.Model(&models.LedgerEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no ledger entries, got %d", count)
	}
}

func TestCompleteByReferenceCreditsExactlyOnce(t *testing.T) {
	db := newWalletTestDB(t)
	svc := newWalletService(t, db)
	account := seedAccount(t, db, 100)

	if _, err := svc.CreatePending(context.Background(), PendingInput{
		AccountID:   account.ID,
		Type:        enums.LedgerEntryTypeTopup,
		AmountCents: 1000,
		Reference:   "SIMV-3-CCCCCC",
		Provider:    enums.PaymentProviderStripe,
	}); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	entry, credited, err := svc.CompleteByReference(context.Background(), "SIMV-3-CCCCCC")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !credited {
		t.Fatal("expected first completion to credit")
	}
	if entry.BalanceCents != 1100 {
		t.Fatalf("expected snapshot 1100, got %d", entry.BalanceCents)
	}

	// Replayed webhook for the same reference must not credit twice.
	_, credited, err = svc.CompleteByReference(context.Background(), "SIMV-3-CCCCCC")
	if err != nil {
		t.Fatalf("replay complete: %v", err)
	}
	if credited {
		t.Fatal("expected replay to be a no-op")
	}

	var stored models.Account
	if err := db.First(&stored, "id = ?", account.ID).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if stored.BalanceCents != 1100 {
		t.Fatalf("expected balance 1100 after replay, got %d", stored.BalanceCents)
	}
}

func TestFailByReferenceNeverCredits(t *testing.T) {
	db := newWalletTestDB(t)
	svc := newWalletService(t, db)
	account := seedAccount(t, db, 0)

	if _, err := svc.CreatePending(context.Background(), PendingInput{
		AccountID:   account.ID,
		Type:        enums.LedgerEntryTypeTopup,
		AmountCents: 500,
		Reference:   "SIMV-4-DDDDDD",
		Provider:    enums.PaymentProviderPayLane,
	}); err != nil {
		t.Fatalf("create pending: %v", err)
	}

	entry, marked, err := svc.FailByReference(context.Background(), "SIMV-4-DDDDDD")
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if !marked || entry.Status != enums.LedgerEntryStatusFailed {
		t.Fatalf("expected entry marked failed, got %+v", entry)
	}

	var stored models.Account
	if err := db.First(&stored, "id = ?", account.ID).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if stored.BalanceCents != 0 {
		t.Fatalf("declined top-up credited balance: %d", stored.BalanceCents)
	}
}

func TestFailAfterCompleteIsNoOp(t *testing.T) {
	db := newWalletTestDB(t)
	svc := newWalletService(t, db)
	account := seedAccount(t, db, 0)

	if _, err := svc.CreatePending(context.Background(), PendingInput{
		AccountID:   account.ID,
		Type:        enums.LedgerEntryTypeTopup,
		AmountCents: 500,
		Reference:   "SIMV-5-EEEEEE",
		Provider:    enums.PaymentProviderStripe,
	}); err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if _, _, err := svc.CompleteByReference(context.Background(), "SIMV-5-EEEEEE"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	entry, marked, err := svc.FailByReference(context.Background(), "SIMV-5-EEEEEE")
	if err != nil {
		t.Fatalf("fail after complete: %v", err)
	}
	if marked {
		t.Fatal("expected no-op on settled entry")
	}
	if entry.Status != enums.LedgerEntryStatusCompleted {
		t.Fatalf("settled entry status changed to %s", entry.Status)
	}
}

func TestApplyRejectsFrozenAccount(t *testing.T) {
	db := newWalletTestDB(t)
	svc := newWalletService(t, db)
	account := seedAccount(t, db, 1000)
	if err := db.Model(&models.Account{}).Where("id = ?", account.ID).UpdateColumn("frozen", true).Error; err != nil {
		t.Fatalf("freeze account: %v", err)
	}

	_, err := svc.Apply(context.Background(), ApplyInput{
		AccountID:   account.ID,
		Type:        enums.LedgerEntryTypeBonus,
		AmountCents: 100,
		Reference:   "SIMV-6-FFFFFF",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeIntegrity {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestSnapshotMismatchFreezesAccount(t *testing.T) {
	db := newWalletTestDB(t)
	svc := newWalletService(t, db)
	account := seedAccount(t, db, 1000)

	// Ledger says the balance should be 700; someone wrote 1000 directly.
	entry := &models.LedgerEntry{
		AccountID:    account.ID,
		Type:         enums.LedgerEntryTypePurchase,
		Status:       enums.LedgerEntryStatusCompleted,
		AmountCents:  -300,
		BalanceCents: 700,
		Reference:    "SIMV-7-GGGGGG",
	}
	if err := db.Create(entry).Error; err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	_, err := svc.Apply(context.Background(), ApplyInput{
		AccountID:   account.ID,
		Type:        enums.LedgerEntryTypePurchase,
		AmountCents: -100,
		Reference:   "SIMV-8-HHHHHH",
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeIntegrity {
		t.Fatalf("expected integrity error, got %v", err)
	}

	var stored models.Account
	if err := db.First(&stored, "id = ?", account.ID).Error; err != nil {
		t.Fatalf("reload account: %v", err)
	}
	if !stored.Frozen {
		t.Fatal("expected account frozen after snapshot mismatch")
	}
}

// serialTxRunner stands in for the database row lock: each transaction owns
// the mutex from first account read to commit, exactly how LockAccount
// serializes concurrent mutations in Postgres.
type serialTxRunner struct {
	mu sync.Mutex
}

func (r *serialTxRunner) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(nil)
}

type memoryWalletRepo struct {
	Repository

	account models.Account
	entries []models.LedgerEntry
}

func (r *memoryWalletRepo) WithTx(*gorm.DB) Repository { return r }

func (r *memoryWalletRepo) LockAccount(_ context.Context, accountID uuid.UUID) (*models.Account, error) {
	if accountID != r.account.ID {
		return nil, nil
	}
	account := r.account
	return &account, nil
}

func (r *memoryWalletRepo) UpdateBalance(_ context.Context, accountID uuid.UUID, balanceCents int64) error {
	if accountID == r.account.ID {
		r.account.BalanceCents = balanceCents
	}
	return nil
}

func (r *memoryWalletRepo) CreateEntry(_ context.Context, entry *models.LedgerEntry) error {
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *memoryWalletRepo) LatestCompletedEntry(_ context.Context, accountID uuid.UUID) (*models.LedgerEntry, error) {
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if e.AccountID == accountID && e.Status == enums.LedgerEntryStatusCompleted {
			return &e, nil
		}
	}
	return nil, nil
}

func TestApplyConcurrentDebitsSpendOnce(t *testing.T) {
	repo := &memoryWalletRepo{account: models.Account{ID: uuid.New(), BalanceCents: 1000}}
	svc, err := NewService(&serialTxRunner{}, repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Apply(context.Background(), ApplyInput{
				AccountID:   repo.account.ID,
				Type:        enums.LedgerEntryTypePurchase,
				AmountCents: -800,
				Reference:   fmt.Sprintf("SIMV-9-RACE%d", i),
			})
		}(i)
	}
	wg.Wait()

	var succeeded, rejected int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodePaymentRequired {
			t.Fatalf("unexpected error: %v", err)
		}
		rejected++
	}
	if succeeded != 1 || rejected != 1 {
		t.Fatalf("expected exactly one debit to win, got %d wins %d rejections", succeeded, rejected)
	}
	if repo.account.BalanceCents != 200 {
		t.Fatalf("expected balance 200, got %d", repo.account.BalanceCents)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(repo.entries))
	}
}
