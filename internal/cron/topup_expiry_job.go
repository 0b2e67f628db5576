package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/enums"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

const defaultTopupMaxAge = 30 * time.Minute

type stalePendingReader interface {
	ListStalePendingEntries(ctx context.Context, entryType enums.LedgerEntryType, before time.Time) ([]models.LedgerEntry, error)
}

type topupFailer interface {
	Fail(ctx context.Context, ref string, provider enums.PaymentProvider) (*models.LedgerEntry, bool, error)
}

// TopupExpiryJobParams configure the stale top-up sweeper.
type TopupExpiryJobParams struct {
	Logger  *logger.Logger
	Entries stalePendingReader
	Topups  topupFailer
	MaxAge  time.Duration
	Now     func() time.Time
}

type topupExpiryJob struct {
	logg    *logger.Logger
	entries stalePendingReader
	topups  topupFailer
	maxAge  time.Duration
	now     func() time.Time
}

// NewTopupExpiryJob builds the job that fails pending top-ups whose
// checkout session has long expired. A webhook that still arrives later is
// a no-op because the entry is already settled as FAILED.
func NewTopupExpiryJob(params TopupExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Entries == nil {
		return nil, fmt.Errorf("entries reader required")
	}
	if params.Topups == nil {
		return nil, fmt.Errorf("topup service required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultTopupMaxAge
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &topupExpiryJob{
		logg:    params.Logger,
		entries: params.Entries,
		topups:  params.Topups,
		maxAge:  maxAge,
		now:     now,
	}, nil
}

func (j *topupExpiryJob) Name() string { return "topup-expiry" }

func (j *topupExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.maxAge)
	stale, err := j.entries.ListStalePendingEntries(ctx, enums.LedgerEntryTypeTopup, cutoff)
	if err != nil {
		return fmt.Errorf("list stale top-ups: %w", err)
	}

	var errs error
	expired := 0
	for _, entry := range stale {
		if _, marked, err := j.topups.Fail(ctx, entry.Reference, entry.Provider); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", entry.Reference, err))
		} else if marked {
			expired++
		}
	}

	if expired > 0 {
		j.logg.Info(ctx, fmt.Sprintf("expired %d stale pending top-ups", expired))
	}
	return errs
}
