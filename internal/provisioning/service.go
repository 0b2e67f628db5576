package provisioning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/simvoyage/esim-backend/pkg/config"
	"github.com/simvoyage/esim-backend/pkg/esimaccess"
	pkgerrors "github.com/simvoyage/esim-backend/pkg/errors"
	"github.com/simvoyage/esim-backend/pkg/logger"
	"github.com/simvoyage/esim-backend/pkg/metrics"
)

// Supplier is the slice of the eSIM Access API the poller needs.
type Supplier interface {
	OrderProfiles(ctx context.Context, req esimaccess.OrderRequest) (string, error)
	QueryProfiles(ctx context.Context, orderNo string, pager esimaccess.Pager) ([]esimaccess.Profile, error)
}

// Request identifies what to provision. TransactionID is the caller-supplied
// idempotency key; retrying with the same id never double-orders upstream.
type Request struct {
	TransactionID string
	PackageCode   string
	PriceUnits    int64
	Count         int
}

// Result is either an allocated profile or a pending marker. Pending means
// payment stands and a later retry may still succeed.
type Result struct {
	Profile *esimaccess.Profile
	OrderNo string
	Pending bool
}

// Service places supplier orders and polls for the allocated profile under
// a bounded attempt count and a wall-clock deadline.
type Service interface {
	Provision(ctx context.Context, req Request) (*Result, error)
}

type service struct {
	supplier Supplier
	logg     *logger.Logger
	payments *metrics.PaymentMetrics

	pollInterval time.Duration
	maxAttempts  int
	deadline     time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// Option overrides poller behavior, used by tests to inject time.
type Option func(*service)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleep replaces the inter-poll sleep.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *service) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// NewService wires the provisioning poller.
func NewService(supplier Supplier, cfg config.ProvisioningConfig, logg *logger.Logger, payments *metrics.PaymentMetrics, opts ...Option) (Service, error) {
	if supplier == nil {
		return nil, fmt.Errorf("supplier client required")
	}

	s := &service{
		supplier:     supplier,
		logg:         logg,
		payments:     payments,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		deadline:     cfg.Deadline,
		now:          time.Now,
		sleep:        sleepContext,
	}
	if s.pollInterval <= 0 {
		s.pollInterval = 3 * time.Second
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 10
	}
	if s.deadline <= 0 {
		s.deadline = 45 * time.Second
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Provision orders a profile and polls until it is allocated, the attempts
// run out, or the deadline passes. Poll failures are swallowed; the
// supplier often 404s while the order is still being fulfilled. A Pending
// result is not an error: the caller keeps the order paid.
func (s *service) Provision(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	if strings.TrimSpace(req.PackageCode) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "package code is required")
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}

	started := s.now()

	orderNo, err := s.supplier.OrderProfiles(ctx, esimaccess.OrderRequest{
		TransactionID: req.TransactionID,
		Amount:        req.PriceUnits * int64(count),
		PackageInfoList: []esimaccess.PackageOrderItem{
			{PackageCode: req.PackageCode, Count: count, Price: req.PriceUnits},
		},
	})
	if err != nil {
		s.observe("supplier_error", started)
		return nil, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			s.observe("canceled", started)
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "provisioning interrupted")
		}
		if s.now().Sub(started) >= s.deadline {
			break
		}

		if s.payments != nil {
			s.payments.IncPoll()
		}

		profiles, err := s.supplier.QueryProfiles(ctx, orderNo, esimaccess.Pager{PageNum: 1, PageSize: 10})
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(ctx, fmt.Sprintf("profile poll %d/%d failed: %v", attempt, s.maxAttempts, err))
			}
			continue
		}
		if len(profiles) > 0 {
			s.observe("allocated", started)
			profile := profiles[0]
			return &Result{Profile: &profile, OrderNo: orderNo}, nil
		}
	}

	s.observe("pending", started)
	return &Result{OrderNo: orderNo, Pending: true}, nil
}

func (s *service) observe(outcome string, started time.Time) {
	if s.payments == nil {
		return
	}
	s.payments.ObserveProvisioning(outcome, s.now().Sub(started))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
