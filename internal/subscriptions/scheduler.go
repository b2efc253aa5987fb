package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/gym-subscriptions/internal/pkg/ctxlog"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Locker hands out a lease shared by every replica of the service.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// SchedulerConfig contains sweep scheduling settings.
type SchedulerConfig struct {
	Interval time.Duration
	// Timeout bounds a single pass. Zero means Interval.
	Timeout time.Duration
	LockKey string
	LockTTL time.Duration
}

// DefaultSchedulerConfig returns default scheduling configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval: time.Minute,
		LockKey:  "subscriptions:sweep",
		LockTTL:  5 * time.Minute,
	}
}

// Scheduler runs the expiration sweep on a fixed interval. Passes never
// overlap: cron skips a tick while the previous pass runs, the sweeper
// refuses concurrent passes, and an optional Locker extends the guarantee
// across replicas.
type Scheduler struct {
	cfg     SchedulerConfig
	sweeper *Sweeper
	locker  Locker
	logger  *slog.Logger
	cron    *cron.Cron

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. locker may be nil.
func NewScheduler(cfg SchedulerConfig, sweeper *Sweeper, locker Locker, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:     cfg,
		sweeper: sweeper,
		locker:  locker,
		logger:  logger,
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start schedules the sweep and starts the cron loop.
func (s *Scheduler) Start() error {
	// cron.Every rounds anything shorter up to a second.
	if s.cfg.Interval < time.Second {
		return fmt.Errorf("sweep interval must be at least 1s, got %s", s.cfg.Interval)
	}

	s.cron.Schedule(cron.Every(s.cfg.Interval), cron.FuncJob(func() {
		if _, err := s.RunOnce(s.ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
			s.logger.Error("expiration sweep failed", "error", err)
		}
	}))
	s.cron.Start()

	s.logger.Info("expiration sweep scheduled",
		"interval", s.cfg.Interval,
		"distributed_lock", s.locker != nil,
	)
	return nil
}

// Stop stops scheduling and waits for a running pass to finish. When ctx
// expires first the running pass is cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		s.logger.Info("expiration sweep stopped")
		return nil
	case <-ctx.Done():
		s.cancel()
		return fmt.Errorf("wait for running sweep: %w", ctx.Err())
	}
}

// RunOnce performs one sweep pass, holding the distributed lease if a
// Locker is configured. When another replica holds the lease the pass is
// skipped and ErrSweepInProgress is returned.
func (s *Scheduler) RunOnce(ctx context.Context) (SweepResult, error) {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = s.cfg.Interval
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	ctx = ctxlog.WithLogger(ctx, s.logger.With("sweep_run", runID))
	logger := ctxlog.FromContext(ctx)

	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if err != nil {
			return SweepResult{}, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			logger.Debug("sweep lock held elsewhere, skipping")
			return SweepResult{}, ErrSweepInProgress
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("failed to release sweep lock", "error", err)
			}
		}()
	}

	result, err := s.sweeper.Run(ctx)
	if err != nil {
		return result, err
	}

	level := slog.LevelDebug
	if result.Expired > 0 || result.Failed > 0 {
		level = slog.LevelInfo
	}
	logger.Log(ctx, level, "expiration sweep finished",
		"scanned", result.Scanned,
		"expired", result.Expired,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}
