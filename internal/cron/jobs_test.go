package cron

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	checkoutsvc "github.com/simvoyage/esim-backend/internal/checkout"
	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/enums"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

type stubEntries struct {
	entries []models.LedgerEntry
	cutoff  time.Time
	err     error
}

func (s *stubEntries) ListStalePendingEntries(_ context.Context, _ enums.LedgerEntryType, before time.Time) ([]models.LedgerEntry, error) {
	s.cutoff = before
	return s.entries, s.err
}

type stubTopups struct {
	failed []string
	err    error
}

func (s *stubTopups) Fail(_ context.Context, ref string, _ enums.PaymentProvider) (*models.LedgerEntry, bool, error) {
	if s.err != nil {
		return nil, false, s.err
	}
	s.failed = append(s.failed, ref)
	return &models.LedgerEntry{Reference: ref}, true, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test"})
}

func TestTopupExpirySweepsStaleEntries(t *testing.T) {
	entries := &stubEntries{entries: []models.LedgerEntry{
		{Reference: "SIMV-1-AAAAAA", Provider: enums.PaymentProviderStripe},
		{Reference: "SIMV-2-BBBBBB", Provider: enums.PaymentProviderPayLane},
	}}
	topups := &stubTopups{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	job, err := NewTopupExpiryJob(TopupExpiryJobParams{
		Logger:  testLogger(),
		Entries: entries,
		Topups:  topups,
		MaxAge:  time.Hour,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"SIMV-1-AAAAAA", "SIMV-2-BBBBBB"}, topups.failed)
	assert.Equal(t, now.Add(-time.Hour), entries.cutoff)
}

func TestTopupExpiryCollectsPerEntryErrors(t *testing.T) {
	entries := &stubEntries{entries: []models.LedgerEntry{{Reference: "SIMV-3-CCCCCC"}}}
	topups := &stubTopups{err: fmt.Errorf("db down")}

	job, err := NewTopupExpiryJob(TopupExpiryJobParams{
		Logger:  testLogger(),
		Entries: entries,
		Topups:  topups,
	})
	require.NoError(t, err)
	require.Error(t, job.Run(context.Background()))
}

type stubUnprovisioned struct {
	orders []models.Order
}

func (s *stubUnprovisioned) ListPaidWithoutProfile(context.Context, time.Time) ([]models.Order, error) {
	return s.orders, nil
}

type stubReprovisioner struct {
	calls   []uuid.UUID
	pending bool
	err     error
}

func (s *stubReprovisioner) Reprovision(_ context.Context, orderID uuid.UUID) (*checkoutsvc.Result, error) {
	s.calls = append(s.calls, orderID)
	if s.err != nil {
		return nil, s.err
	}
	return &checkoutsvc.Result{Pending: s.pending}, nil
}

func TestProvisioningSweepRetriesStuckOrders(t *testing.T) {
	orders := []models.Order{
		{ID: uuid.New(), Reference: "SIMV-4-DDDDDD"},
		{ID: uuid.New(), Reference: "SIMV-5-EEEEEE"},
	}
	reader := &stubUnprovisioned{orders: orders}
	checkout := &stubReprovisioner{}

	job, err := NewProvisioningSweepJob(ProvisioningSweepJobParams{
		Logger:   testLogger(),
		Orders:   reader,
		Checkout: checkout,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, checkout.calls, 2)
	assert.Equal(t, orders[0].ID, checkout.calls[0])
}

func TestProvisioningSweepCapsBatchSize(t *testing.T) {
	var list []models.Order
	for i := 0; i < 5; i++ {
		list = append(list, models.Order{ID: uuid.New()})
	}
	reader := &stubUnprovisioned{orders: list}
	checkout := &stubReprovisioner{}

	job, err := NewProvisioningSweepJob(ProvisioningSweepJobParams{
		Logger:   testLogger(),
		Orders:   reader,
		Checkout: checkout,
		MaxBatch: 3,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Len(t, checkout.calls, 3)
}

func TestProvisioningSweepReportsFailures(t *testing.T) {
	reader := &stubUnprovisioned{orders: []models.Order{{ID: uuid.New()}}}
	checkout := &stubReprovisioner{err: fmt.Errorf("supplier down")}

	job, err := NewProvisioningSweepJob(ProvisioningSweepJobParams{
		Logger:   testLogger(),
		Orders:   reader,
		Checkout: checkout,
	})
	require.NoError(t, err)
	require.Error(t, job.Run(context.Background()))
}
