package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	checkoutsvc "github.com/simvoyage/esim-backend/internal/checkout"
	"github.com/simvoyage/esim-backend/pkg/db/models"
	"github.com/simvoyage/esim-backend/pkg/logger"
)

const (
	defaultSweepMinAge   = 2 * time.Minute
	defaultSweepMaxBatch = 20
)

type unprovisionedReader interface {
	ListPaidWithoutProfile(ctx context.Context, before time.Time) ([]models.Order, error)
}

type reprovisioner interface {
	Reprovision(ctx context.Context, orderID uuid.UUID) (*checkoutsvc.Result, error)
}

// ProvisioningSweepJobParams configure the paid-order sweeper.
type ProvisioningSweepJobParams struct {
	Logger   *logger.Logger
	Orders   unprovisionedReader
	Checkout reprovisioner
	MinAge   time.Duration
	MaxBatch int
	Now      func() time.Time
}

type provisioningSweepJob struct {
	logg     *logger.Logger
	orders   unprovisionedReader
	checkout reprovisioner
	minAge   time.Duration
	maxBatch int
	now      func() time.Time
}

// NewProvisioningSweepJob builds the job that retries supplier provisioning
// for paid orders that never received a profile. The customer was already
// debited; the sweep keeps retrying until the supplier delivers or support
// refunds the order.
func NewProvisioningSweepJob(params ProvisioningSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultSweepMinAge
	}
	maxBatch := params.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultSweepMaxBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &provisioningSweepJob{
		logg:     params.Logger,
		orders:   params.Orders,
		checkout: params.Checkout,
		minAge:   minAge,
		maxBatch: maxBatch,
		now:      now,
	}, nil
}

func (j *provisioningSweepJob) Name() string { return "provisioning-sweep" }

func (j *provisioningSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.minAge)
	stuck, err := j.orders.ListPaidWithoutProfile(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("list unprovisioned orders: %w", err)
	}
	if len(stuck) > j.maxBatch {
		stuck = stuck[:j.maxBatch]
	}

	var errs error
	recovered := 0
	for _, order := range stuck {
		result, err := j.checkout.Reprovision(ctx, order.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reprovision %s: %w", order.Reference, err))
			continue
		}
		if !result.Pending {
			recovered++
		}
	}

	if recovered > 0 {
		j.logg.Info(ctx, fmt.Sprintf("recovered %d stuck orders", recovered))
	}
	return errs
}
