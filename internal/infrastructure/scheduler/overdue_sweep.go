package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	billingapp "github.com/waterbill/backend/internal/application/billing"
	"github.com/waterbill/backend/internal/infrastructure/config"
	"github.com/waterbill/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Sweeper runs one pass of the overdue sweep
type Sweeper interface {
	SweepOverdue(ctx context.Context) (*billingapp.SweepResult, error)
}

// OverdueSweepConfig holds configuration for the overdue sweep scheduler
type OverdueSweepConfig struct {
	Enabled bool
	// Schedule is a standard 5-field cron expression, evaluated in Location
	Schedule string
	// Timeout bounds a single sweep
	Timeout  time.Duration
	Location *time.Location
}

// DefaultOverdueSweepConfig returns the default configuration: every six hours, UTC
func DefaultOverdueSweepConfig() OverdueSweepConfig {
	return OverdueSweepConfig{
		Enabled:  true,
		Schedule: "0 */6 * * *",
		Timeout:  10 * time.Minute,
		Location: time.UTC,
	}
}

// OverdueSweepConfigFrom builds the sweep configuration from application config
func OverdueSweepConfigFrom(cfg config.SchedulerConfig) OverdueSweepConfig {
	out := DefaultOverdueSweepConfig()
	out.Enabled = cfg.OverdueSweepEnabled
	if cfg.OverdueSweepSchedule != "" {
		out.Schedule = cfg.OverdueSweepSchedule
	}
	if cfg.SweepTimeout > 0 {
		out.Timeout = cfg.SweepTimeout
	}
	return out
}

// RunRecord describes the most recent sweep execution
type RunRecord struct {
	Trigger    string                  `json:"trigger"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	Result     *billingapp.SweepResult `json:"result,omitempty"`
	Error      string                  `json:"error,omitempty"`
}

// Trigger names recorded on RunRecord
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// OverdueSweepScheduler runs the overdue sweep on a cron schedule.
// At most one sweep runs at a time, whether started by cron or by RunNow.
type OverdueSweepScheduler struct {
	config  OverdueSweepConfig
	sweeper Sweeper
	logger  *zap.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	cancel  context.CancelFunc

	mu        sync.Mutex
	isRunning bool
	lastRun   *RunRecord

	sweeping atomic.Bool
}

// NewOverdueSweepScheduler creates a new overdue sweep scheduler
func NewOverdueSweepScheduler(cfg OverdueSweepConfig, sweeper Sweeper, logger *zap.Logger) *OverdueSweepScheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("overdue_sweep")
	return &OverdueSweepScheduler{
		config:  cfg,
		sweeper: sweeper,
		logger:  logger,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cronLogger{logger: logger}),
			cron.WithChain(cron.Recover(cronLogger{logger: logger})),
		),
	}
}

// Start registers the sweep with cron and starts it.
// It is a no-op when the scheduler is disabled or already running.
func (s *OverdueSweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if !s.config.Enabled {
		s.logger.Info("Overdue sweep scheduler disabled")
		return nil
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSchedule, s.config.Schedule, err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	id, err := s.cron.AddFunc(s.config.Schedule, func() {
		if _, err := s.run(runCtx, TriggerCron); errors.Is(err, ErrSweepInProgress) {
			s.logger.Warn("Skipping scheduled sweep, previous run still in progress")
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("%w %q: %v", ErrInvalidSchedule, s.config.Schedule, err)
	}

	s.entryID = id
	s.cancel = cancel
	s.cron.Start()
	s.isRunning = true

	s.logger.Info("Overdue sweep scheduler started",
		zap.String("schedule", s.config.Schedule),
		zap.Duration("timeout", s.config.Timeout),
		zap.Time("next_run_at", s.cron.Entry(id).Next),
	)
	return nil
}

// Stop stops scheduling new sweeps and waits for a running sweep to finish
// or for ctx to expire, whichever comes first.
func (s *OverdueSweepScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		cancel()
		s.logger.Info("Overdue sweep scheduler stopped")
		return nil
	case <-ctx.Done():
		cancel()
		s.logger.Warn("Overdue sweep scheduler stop timed out")
		return ctx.Err()
	}
}

// RunNow runs a sweep immediately, outside the cron schedule.
// Returns ErrSweepInProgress when a sweep is already running.
func (s *OverdueSweepScheduler) RunNow(ctx context.Context) (*billingapp.SweepResult, error) {
	return s.run(ctx, TriggerManual)
}

// IsRunning reports whether the cron schedule is active
func (s *OverdueSweepScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// NextRun returns the next scheduled sweep time, or the zero time when not running
func (s *OverdueSweepScheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// LastRun returns a copy of the most recent run record, or nil if none ran yet
func (s *OverdueSweepScheduler) LastRun() *RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	record := *s.lastRun
	return &record
}

func (s *OverdueSweepScheduler) run(ctx context.Context, trigger string) (*billingapp.SweepResult, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return nil, ErrSweepInProgress
	}
	defer s.sweeping.Store(false)

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	ctx, span := telemetry.StartSpan(ctx, "scheduler.overdue_sweep",
		telemetry.WithAttribute("trigger", trigger))
	defer span.End()

	record := RunRecord{Trigger: trigger, StartedAt: time.Now()}
	result, err := s.sweeper.SweepOverdue(ctx)
	record.FinishedAt = time.Now()
	record.Result = result
	if err != nil {
		record.Error = err.Error()
		telemetry.RecordError(span, err)
		s.logger.Error("Overdue sweep failed",
			zap.String("trigger", trigger),
			zap.Duration("duration", record.FinishedAt.Sub(record.StartedAt)),
			zap.Error(err),
		)
	} else {
		s.logger.Info("Overdue sweep completed",
			zap.String("trigger", trigger),
			zap.Duration("duration", record.FinishedAt.Sub(record.StartedAt)),
			zap.Int("transitioned", result.Transitioned),
			zap.Int("failed", result.Failed),
		)
	}

	s.mu.Lock()
	s.lastRun = &record
	s.mu.Unlock()

	return result, err
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, zap.Any("details", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, zap.Error(err), zap.Any("details", keysAndValues))
}
