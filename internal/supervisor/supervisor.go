// Package supervisor keeps the queue draining: it runs the processor on a
// fixed tick and on wake-up signals, checks queue health, and restarts
// itself with backoff when a health check fails.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sungwon/mailqueue/internal/logger"
	"github.com/sungwon/mailqueue/internal/metrics"
	"github.com/sungwon/mailqueue/internal/queue"
	"github.com/sungwon/mailqueue/internal/wakeup"
)

// Processor is the part of queue.Processor the supervisor drives.
type Processor interface {
	ProcessQueue(ctx context.Context, batchSize int) (queue.BatchResult, error)
	Stats(ctx context.Context) (queue.Stats, error)
	RecoverStale(ctx context.Context) (int64, error)
}

// Config holds supervisor timings.
type Config struct {
	TickInterval    time.Duration
	HealthInterval  time.Duration
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration
	BatchSize       int
}

func (c *Config) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 30 * time.Second
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 2 * time.Minute
	}
	if c.RestartDelay <= 0 {
		c.RestartDelay = 5 * time.Second
	}
	if c.MaxRestartDelay <= 0 {
		c.MaxRestartDelay = 5 * time.Minute
	}
	if c.MaxRestartDelay < c.RestartDelay {
		c.MaxRestartDelay = c.RestartDelay
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithSubscriber drains on every wake-up signal from sub.
func WithSubscriber(sub wakeup.Subscriber) Option {
	return func(s *Supervisor) { s.sub = sub }
}

// Supervisor owns the drain schedule for one Processor.
type Supervisor struct {
	proc Processor
	cfg  Config
	log  zerolog.Logger
	sub  wakeup.Subscriber

	mu           sync.Mutex
	running      bool
	parent       context.Context
	cancel       context.CancelFunc
	sched        *cron.Cron
	restartTimer *time.Timer
	restartGen   uint64
	restartDelay time.Duration
}

// New creates a stopped Supervisor.
func New(proc Processor, cfg Config, log zerolog.Logger, opts ...Option) *Supervisor {
	cfg.applyDefaults()
	s := &Supervisor{
		proc:         proc,
		cfg:          cfg,
		log:          log,
		restartDelay: cfg.RestartDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the drain tick and health check, begins listening for
// wake-up signals, and runs one drain before returning. ctx bounds the
// supervisor's lifetime, including restarts. Calling Start on a running
// supervisor is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Info().Msg("supervisor already running")
		return nil
	}
	runCtx, err := s.startLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.run(runCtx)
	return nil
}

// startLocked builds and starts the schedule. s.mu must be held and the
// supervisor stopped.
func (s *Supervisor) startLocked(ctx context.Context) (context.Context, error) {
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	sched := cron.New(
		cron.WithLogger(logger.NewCronLogger(s.log)),
		cron.WithChain(cron.Recover(logger.NewCronLogger(s.log))),
	)
	if _, err := sched.AddFunc("@every "+s.cfg.TickInterval.String(), func() { s.drain(runCtx, "tick") }); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule drain: %w", err)
	}
	if _, err := sched.AddFunc("@every "+s.cfg.HealthInterval.String(), func() { s.healthCheck(runCtx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule health check: %w", err)
	}

	s.parent = ctx
	s.cancel = cancel
	s.sched = sched
	s.running = true
	sched.Start()
	metrics.SupervisorRunning.Set(1)
	return runCtx, nil
}

// run subscribes to wake-ups and performs the first drain of a started
// schedule. A Stop in the meantime cancels runCtx and ends both.
func (s *Supervisor) run(runCtx context.Context) {
	if s.sub != nil {
		signals, err := s.sub.Subscribe(runCtx)
		if err != nil {
			s.log.Warn().Err(err).Msg("wake-up subscription failed, relying on tick")
		} else {
			go s.listen(runCtx, signals)
		}
	}

	s.log.Info().
		Dur("tick_interval", s.cfg.TickInterval).
		Dur("health_interval", s.cfg.HealthInterval).
		Msg("supervisor started")

	s.drain(runCtx, "start")
}

// Stop halts scheduling and any pending restart. It does not wait for an
// in-flight drain. Calling Stop on a stopped supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restartTimer != nil {
		s.restartTimer.Stop()
		s.restartTimer = nil
	}
	if !s.running {
		return
	}
	s.stopLocked()
	s.log.Info().Msg("supervisor stopped")
}

func (s *Supervisor) stopLocked() {
	s.sched.Stop()
	s.cancel()
	s.sched = nil
	s.cancel = nil
	s.running = false
	metrics.SupervisorRunning.Set(0)
}

// Running reports whether the supervisor is scheduling drains.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Drain runs one batch now. It is the manual trigger used by the HTTP API.
func (s *Supervisor) Drain(ctx context.Context) (queue.BatchResult, error) {
	return s.proc.ProcessQueue(ctx, s.cfg.BatchSize)
}

func (s *Supervisor) listen(ctx context.Context, signals <-chan struct{}) {
	for range signals {
		if ctx.Err() != nil {
			return
		}
		s.drain(ctx, "wakeup")
	}
}

func (s *Supervisor) drain(ctx context.Context, trigger string) {
	res, err := s.proc.ProcessQueue(ctx, s.cfg.BatchSize)
	if err != nil {
		s.log.Error().Err(err).Str("trigger", trigger).Msg("drain failed")
		return
	}
	if res.Selected > 0 {
		s.log.Debug().Str("trigger", trigger).Int("selected", res.Selected).Int("sent", res.Sent).Msg("drain finished")
	}
}

func (s *Supervisor) healthCheck(ctx context.Context) {
	if err := s.checkHealth(ctx); err != nil {
		s.handleFailure(err)
		return
	}
	s.mu.Lock()
	s.restartDelay = s.cfg.RestartDelay
	s.mu.Unlock()
}

// checkHealth recovers stale claims, reads queue depth and drains when work
// is waiting but nothing is in flight.
func (s *Supervisor) checkHealth(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("health check panic: %v", r)
		}
	}()

	if _, err := s.proc.RecoverStale(ctx); err != nil {
		return err
	}
	stats, err := s.proc.Stats(ctx)
	if err != nil {
		return err
	}
	s.log.Debug().
		Int64("pending", stats.Pending).
		Int64("processing", stats.Processing).
		Int64("failed", stats.Failed).
		Msg("queue health")

	if stats.Pending > 0 && stats.Processing == 0 {
		s.drain(ctx, "health")
	}
	return nil
}

// handleFailure stops the supervisor and schedules a restart. Consecutive
// failures double the delay up to MaxRestartDelay.
func (s *Supervisor) handleFailure(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.stopLocked()

	delay := s.restartDelay
	s.restartDelay *= 2
	if s.restartDelay > s.cfg.MaxRestartDelay {
		s.restartDelay = s.cfg.MaxRestartDelay
	}
	metrics.SupervisorRestartsTotal.Inc()

	s.restartGen++
	gen := s.restartGen
	s.restartTimer = time.AfterFunc(delay, func() { s.restart(gen) })

	s.log.Error().Err(cause).Dur("restart_in", delay).Msg("health check failed, restarting supervisor")
}

// restart starts the supervisor again if the timer for gen is still the
// pending one. The check and the start share one critical section so a
// concurrent Stop either cancels the restart or stops the restarted run.
func (s *Supervisor) restart(gen uint64) {
	s.mu.Lock()
	if s.restartTimer == nil || s.restartGen != gen || s.running || s.parent.Err() != nil {
		s.mu.Unlock()
		return
	}
	runCtx, err := s.startLocked(s.parent)
	s.mu.Unlock()
	if err != nil {
		s.log.Error().Err(err).Msg("supervisor restart failed")
		return
	}
	s.run(runCtx)
}

// entries reports the number of scheduled jobs.
func (s *Supervisor) entries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched == nil {
		return 0
	}
	return len(s.sched.Entries())
}
