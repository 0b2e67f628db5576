package admin

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/simvoyage/esim-backend/internal/orders"
	"github.com/simvoyage/esim-backend/internal/wallet"
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

type fixture struct {
	db      *gorm.DB
	svc     Service
	account *models.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:admin_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: glogger.Default.LogMode(glogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Account{}, &models.LedgerEntry{}, &models.Order{}, &models.EsimProfile{}))

	account := &models.Account{Email: "admin-test@example.com", PasswordHash: "x", BalanceCents: 1000}
	require.NoError(t, db.Create(account).Error)

	runner := &testTxRunner{db: db}
	walletSvc, err := wallet.NewService(runner, wallet.NewRepository(db))
	require.NoError(t, err)
	ordersSvc, err := orders.NewService(runner, orders.NewRepository(db))
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{Tx: runner, Wallet: walletSvc, Orders: ordersSvc})
	require.NoError(t, err)

	return &fixture{db: db, svc: svc, account: account}
}

func TestAdjustCreditsBonus(t *testing.T) {
	f := newFixture(t)

	entry, err := f.svc.Adjust(context.Background(), AdjustInput{
		AccountID:   f.account.ID,
		AmountCents: 500,
		Reason:      "goodwill credit",
		AdjustedBy:  uuid.New(),
	})
	require.NoError(t, err)
	assert.Equal(t, enums.LedgerEntryTypeBonus, entry.Type)
	assert.Equal(t, int64(1500), entry.BalanceCents)

	var account models.Account
	require.NoError(t, f.db.First(&account, "id = ?", f.account.ID).Error)
	assert.Equal(t, int64(1500), account.BalanceCents)
}

func TestAdjustDebitGuardsBalance(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Adjust(context.Background(), AdjustInput{
		AccountID:   f.account.ID,
		AmountCents: -2000,
		Reason:      "clawback",
		AdjustedBy:  uuid.New(),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodePaymentRequired, pkgerrors.As(err).Code())
}

func TestAdjustRequiresReasonAndAmount(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Adjust(context.Background(), AdjustInput{AccountID: f.account.ID, AmountCents: 0, Reason: "x"})
	require.Error(t, err)

	_, err = f.svc.Adjust(context.Background(), AdjustInput{AccountID: f.account.ID, AmountCents: 100, Reason: "  "})
	require.Error(t, err)
}

func TestRefundCreditsWalletAndMovesOrder(t *testing.T) {
	f := newFixture(t)

	order := &models.Order{
		AccountID:   f.account.ID,
		PackageCode: "PKG-1",
		Reference:   "SIMV-1-REFUND",
		Status:      enums.OrderStatusCompleted,
		TotalCents:  1170,
	}
	require.NoError(t, f.db.Create(order).Error)

	res, err := f.svc.Refund(context.Background(), order.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusRefunded, res.Order.Status)
	assert.Equal(t, enums.LedgerEntryTypeRefund, res.Entry.Type)
	assert.Equal(t, int64(1170), res.Entry.AmountCents)

	var account models.Account
	require.NoError(t, f.db.First(&account, "id = ?", f.account.ID).Error)
	assert.Equal(t, int64(2170), account.BalanceCents)
}

func TestRefundReplayCreditsExactlyOnce(t *testing.T) {
	f := newFixture(t)

	order := &models.Order{
		AccountID:   f.account.ID,
		PackageCode: "PKG-1",
		Reference:   "SIMV-3-CCCCCC",
		Status:      enums.OrderStatusCompleted,
		TotalCents:  1170,
	}
	require.NoError(t, f.db.Create(order).Error)

	res, err := f.svc.Refund(context.Background(), order.ID, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "SIMV-3-CCCCCC-REFUND", res.Entry.Reference)

	_, err = f.svc.Refund(context.Background(), order.ID, uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	var account models.Account
	require.NoError(t, f.db.First(&account, "id = ?", f.account.ID).Error)
	assert.Equal(t, int64(2170), account.BalanceCents)

	var refunds int64
	require.NoError(t, f.db.Model(&models.LedgerEntry{}).
		Where("type = ?", enums.LedgerEntryTypeRefund).
		Count(&refunds).Error)
	assert.Equal(t, int64(1), refunds)
}

func TestRefundRejectsUnsettledOrders(t *testing.T) {
	f := newFixture(t)

	for _, status := range []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusFailed, enums.OrderStatusRefunded} {
		order := &models.Order{
			AccountID:   f.account.ID,
			PackageCode: "PKG-1",
			Reference:   fmt.Sprintf("SIMV-2-%s", status),
			Status:      status,
			TotalCents:  1170,
		}
		require.NoError(t, f.db.Create(order).Error)

		_, err := f.svc.Refund(context.Background(), order.ID, uuid.New())
		require.Error(t, err, status)
		assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code(), status)
	}

	var account models.Account
	require.NoError(t, f.db.First(&account, "id = ?", f.account.ID).Error)
	assert.Equal(t, int64(1000), account.BalanceCents)
}
