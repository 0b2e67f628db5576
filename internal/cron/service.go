package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/simvoyage/esim-backend/pkg/logger"
	"github.com/simvoyage/esim-backend/pkg/metrics"
)

const defaultInterval = 5 * time.Minute

// ServiceParams configure the maintenance service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.JobMetrics
	Interval time.Duration
}

// Service executes registered jobs on a fixed cadence. Only one instance
// runs a cycle at a time; the rest skip when the lock is held.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.JobMetrics
	interval time.Duration
}

// NewService builds a maintenance service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run starts the loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "maintenance service context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another maintenance instance is running; skipping this cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release maintenance lock", relErr)
		}
	}()

	s.logg.Info(ctx, "scheduled run starting")
	for _, job := range s.registry.Jobs() {
		s.runJob(ctx, job)
	}
	s.logg.Info(ctx, "scheduled run complete")
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) {
	jobCtx := s.logg.WithField(ctx, "job", job.Name())
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveDuration(job.Name(), duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		s.metrics.IncFailure(job.Name())
		return
	}
	s.logg.Info(jobCtx, "job completed")
	s.metrics.IncSuccess(job.Name())
}
