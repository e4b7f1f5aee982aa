package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/tillstock/tillstock-backend/pkg/logger"
	"github.com/tillstock/tillstock-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// ErrLockHeld is returned by RunOnce when another instance holds the cycle lock.
var ErrLockHeld = errors.New("cron lock held by another instance")

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.JobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval on whichever instance
// wins the lock. A failing job never stops the ones after it.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.JobMetrics
	interval time.Duration
}

type jobResult struct {
	name string
	took time.Duration
	err  error
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
	}
	if s.registry == nil {
		s.registry = &Registry{}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.cycle(ctx, s.registry.Jobs()); err != nil && !errors.Is(err, ErrLockHeld) {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs the named jobs (all of them when none are named) in a single
// locked cycle and returns their combined failures.
func (s *Service) RunOnce(ctx context.Context, names ...string) error {
	jobs, err := s.registry.Select(names...)
	if err != nil {
		return err
	}
	results, err := s.cycle(ctx, jobs)
	if err != nil {
		return err
	}
	var failed error
	for _, r := range results {
		if r.err != nil {
			failed = multierr.Append(failed, fmt.Errorf("%s: %w", r.name, r.err))
		}
	}
	return failed
}

func (s *Service) cycle(ctx context.Context, jobs []Job) ([]jobResult, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		return nil, ErrLockHeld
	}
	defer func() {
		// release even when shutdown canceled ctx mid-cycle
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	started := time.Now()
	results := make([]jobResult, 0, len(jobs))
	failures := 0
	for _, job := range jobs {
		res := s.runJob(ctx, job)
		if res.err != nil {
			failures++
		}
		results = append(results, res)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        len(results),
		"failed":      failures,
		"duration_ms": time.Since(started).Milliseconds(),
	}), "cron cycle complete")
	return results, nil
}

func (s *Service) runJob(ctx context.Context, job Job) jobResult {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	start := time.Now()
	err := job.Run(jobCtx)
	s.metrics.Track(job.Name(), start, err)

	res := jobResult{name: job.Name(), took: time.Since(start), err: err}
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", res.took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
	} else {
		s.logg.Info(jobCtx, "job completed")
	}
	return res
}
