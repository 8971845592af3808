// Package scheduler runs tenant cycles one at a time on a single goroutine,
// picking the first due tenant in configuration order.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/secpoll/internal/config"
	"github.com/gyaneshwarpardhi/secpoll/internal/engine"
	"github.com/gyaneshwarpardhi/secpoll/internal/metrics"
	"github.com/gyaneshwarpardhi/secpoll/internal/sink"
	"github.com/gyaneshwarpardhi/secpoll/internal/source"
)

const (
	DefaultMinPoll     = 100 * time.Millisecond
	DefaultMaxPoll     = time.Second
	DefaultConfigRetry = 5 * time.Second
)

// ConfigSource is satisfied by *config.Provider.
type ConfigSource interface {
	Refresh() (config.Snapshot, error)
	Wake() <-chan struct{}
}

// CycleRunner is satisfied by *engine.Engine.
type CycleRunner interface {
	RunCycle(ctx context.Context, req engine.CycleRequest) engine.CycleResult
}

// Options tune the loop. Zero values take the package defaults.
type Options struct {
	MinPoll     time.Duration
	MaxPoll     time.Duration
	ConfigRetry time.Duration
	Clock       Clock
	Logger      *slog.Logger
	// Ensurer prepares a tenant's output when the tenant first appears.
	Ensurer sink.Ensurer
}

// Scheduler owns every tenant runtime. Nothing but Run touches them; readers
// use Status.
type Scheduler struct {
	cfg      ConfigSource
	runner   CycleRunner
	registry *Registry
	opts     Options
	logger   *slog.Logger

	generation uint64
	cfgErr     error
	status     atomic.Pointer[Status]
}

// New creates a Scheduler.
func New(cfg ConfigSource, runner CycleRunner, factory source.Factory, opts Options) *Scheduler {
	if opts.MinPoll <= 0 {
		opts.MinPoll = DefaultMinPoll
	}
	if opts.MaxPoll < opts.MinPoll {
		opts.MaxPoll = DefaultMaxPoll
		if opts.MaxPoll < opts.MinPoll {
			opts.MaxPoll = opts.MinPoll
		}
	}
	if opts.ConfigRetry <= 0 {
		opts.ConfigRetry = DefaultConfigRetry
	}
	if opts.Clock == nil {
		opts.Clock = RealClock
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		registry: NewRegistry(factory),
		opts:     opts,
		logger:   opts.Logger,
	}
}

// Status returns the latest published view, or nil before the first iteration.
func (s *Scheduler) Status() *Status {
	return s.status.Load()
}

// Run loops until ctx is cancelled. Cancellation is observed only between
// iterations; a cycle in progress always runs to completion and persists its
// state.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "min_poll", s.opts.MinPoll, "max_poll", s.opts.MaxPoll)
	defer s.logger.Info("scheduler stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		if d := s.step(ctx); d > 0 {
			s.sleep(ctx, d)
		}
	}
}

// step performs one iteration: refresh the configuration, then run or skip
// the first due tenant. It returns how long to sleep, zero when another
// tenant may already be due.
func (s *Scheduler) step(ctx context.Context) time.Duration {
	defer s.publish()

	snap, err := s.cfg.Refresh()
	switch {
	case err != nil:
		s.noteConfigError(err)
	case snap.Generation != s.generation || errors.Is(s.cfgErr, config.ErrUnreadable):
		s.noteConfigError(nil)
	}
	if snap.Config == nil {
		return s.opts.ConfigRetry
	}
	if snap.Generation != s.generation {
		s.apply(snap)
	}

	now := s.opts.Clock.Now()
	rt := s.registry.Due(now)
	if rt == nil {
		return s.pollDelay(now)
	}
	if now.Before(rt.RateLimitUntil) {
		rt.NextRunAt = rt.RateLimitUntil
		metrics.RateLimitSkips.WithLabelValues(rt.Tenant.Name).Inc()
		s.logger.Debug("tenant rate limited, skipping", "tenant", rt.Tenant.Name, "until", rt.RateLimitUntil)
		return 0
	}
	s.runCycle(ctx, rt)
	return 0
}

func (s *Scheduler) runCycle(ctx context.Context, rt *Runtime) {
	start := s.opts.Clock.Now()
	res := s.runner.RunCycle(context.WithoutCancel(ctx), engine.CycleRequest{
		Tenant:       rt.Tenant,
		Fetcher:      rt.Fetcher,
		ResolveStart: !rt.StartInitialized,
	})
	// A failed start-point load leaves nothing resolved; try again next turn.
	if res.Watermark.LastTimestamp != "" {
		rt.StartInitialized = true
	}
	rt.LastResult = &res

	interval := rt.Tenant.Interval.Std()
	rt.NextRunAt = start.Add(interval)
	if res.Outcome == engine.OutcomeRateLimited {
		rt.RateLimitUntil = start.Add(interval)
	}
}

func (s *Scheduler) apply(snap config.Snapshot) {
	rep := s.registry.Merge(snap.Config)
	s.generation = snap.Generation

	for _, name := range rep.Added {
		if s.opts.Ensurer != nil {
			if err := s.opts.Ensurer.Ensure(name); err != nil {
				s.logger.Warn("failed to prepare tenant output", "tenant", name, "err", err)
			}
		}
	}
	for _, name := range rep.Removed {
		metrics.WatermarkTimestamp.DeleteLabelValues(name)
	}
	s.logger.Info("tenant set updated",
		"generation", snap.Generation,
		"tenants", s.registry.Len(),
		"added", rep.Added,
		"removed", rep.Removed,
		"rebuilt", rep.Rebuilt,
	)
}

// pollDelay is the time until the next due tenant, clamped to
// [MinPoll, MaxPoll] so config changes are noticed promptly.
func (s *Scheduler) pollDelay(now time.Time) time.Duration {
	d := s.opts.MaxPoll
	if next, ok := s.registry.NextWake(); ok {
		d = next.Sub(now)
	}
	if d < s.opts.MinPoll {
		d = s.opts.MinPoll
	}
	if d > s.opts.MaxPoll {
		d = s.opts.MaxPoll
	}
	return d
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-s.cfg.Wake():
	case <-s.opts.Clock.After(d):
	}
}

// noteConfigError logs each distinct configuration failure once.
func (s *Scheduler) noteConfigError(err error) {
	if err == nil {
		s.cfgErr = nil
		return
	}
	if s.cfgErr != nil && s.cfgErr.Error() == err.Error() {
		return
	}
	s.cfgErr = err
	if s.generation == 0 {
		s.logger.Error("tenant config unavailable, retrying", "err", err, "retry", s.opts.ConfigRetry)
		return
	}
	s.logger.Error("tenant config rejected, keeping last good config", "err", err, "generation", s.generation)
}

func (s *Scheduler) publish() {
	now := s.opts.Clock.Now()
	st := &Status{
		Generation: s.generation,
		UpdatedAt:  now,
		Tenants:    s.registry.status(now),
	}
	if s.cfgErr != nil {
		st.ConfigError = s.cfgErr.Error()
	}
	s.status.Store(st)
}
