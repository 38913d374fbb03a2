package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/goliatone/go-catalog-sync/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/robfig/cron/v3"
)

const DefaultInterval = 10 * time.Minute

type Runner interface {
	Run(ctx context.Context, opts RunOptions) (Result, error)
}

type Recoverer interface {
	Recover(ctx context.Context) (int, error)
}

// Scheduler triggers an incremental reconciliation on a fixed interval. Each
// tick first re-schedules stale queued webhook events. A tick that is still
// running when the next one fires is skipped.
type Scheduler struct {
	runner    Runner
	recoverer Recoverer
	interval  time.Duration
	logger    core.Logger

	mu      stdsync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	started bool
}

type SchedulerOption func(*Scheduler)

func WithRecoverer(recoverer Recoverer) SchedulerOption {
	return func(s *Scheduler) {
		s.recoverer = recoverer
	}
}

func WithSchedulerLogger(logger core.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewScheduler(runner Runner, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Start registers the recurring tick. Ticks run with a context derived from
// ctx that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil || s.runner == nil {
		return fmt.Errorf("sync: scheduler requires a runner")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("sync: scheduler already started")
	}

	logger := cronLogger{logger: s.logger}
	runner := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	tickCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if _, err := runner.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.Tick(tickCtx)
	}); err != nil {
		cancel()
		return fmt.Errorf("sync: schedule reconciliation: %w", err)
	}
	runner.Start()
	s.cron = runner
	s.cancel = cancel
	s.started = true
	s.logger.WithContext(ctx).Info("reconciliation scheduled", "interval", s.interval.String())
	return nil
}

// Stop cancels in-flight ticks and waits for them to return or for ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	runner, cancel := s.cron, s.cancel
	s.started = false
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	done := runner.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs one scheduled invocation: recover stale webhook events, then an
// incremental reconciliation.
func (s *Scheduler) Tick(ctx context.Context) {
	if s.recoverer != nil {
		if _, err := s.recoverer.Recover(ctx); err != nil {
			s.logger.WithContext(ctx).Error("webhook recovery failed", "error", err)
		}
	}
	if _, err := s.runner.Run(ctx, RunOptions{}); err != nil {
		s.logger.WithContext(ctx).Error("scheduled reconciliation failed", "error", err)
	}
}

type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{"error", err}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}

var _ cron.Logger = cronLogger{}
