package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"stock-price-alerts/internal/config"
)

// TickFunc performs one monitoring pass.
type TickFunc func(ctx context.Context) error

// State of the scheduler.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// Options tune scheduler behaviour.
type Options struct {
	Interval   time.Duration
	RunOnStart bool
}

// Scheduler fires a tick at a fixed interval. Ticks never overlap: a trigger
// that arrives while the previous tick is still running is skipped.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger

	mu    sync.Mutex
	cron  *gocron.Scheduler
	state State

	epoch    atomic.Int64
	busy     atomic.Bool
	inflight sync.WaitGroup
	ticks    atomic.Int64
	skipped  atomic.Int64
}

// New constructs a Scheduler. Intervals below one minute are raised to one minute.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	logger = logger.With().Str("component", "scheduler").Logger()
	if opts.Interval < config.MinInterval {
		logger.Warn().Dur("configured", opts.Interval).Dur("using", config.MinInterval).Msg("interval below minimum, clamping")
		opts.Interval = config.MinInterval
	}
	return &Scheduler{opts: opts, logger: logger}
}

// Interval returns the effective tick interval.
func (s *Scheduler) Interval() time.Duration {
	return s.opts.Interval
}

// Start moves the scheduler from Idle to Running. Calling it while Running is
// a logged no-op. ctx is handed to every tick.
func (s *Scheduler) Start(ctx context.Context, tick TickFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		s.logger.Info().Msg("monitor is already running")
		return nil
	}

	cron := gocron.NewScheduler(time.UTC)
	cron.Every(s.opts.Interval)
	if !s.opts.RunOnStart {
		cron.WaitForSchedule()
	}
	epoch := s.epoch.Add(1)
	job := func() {
		if s.epoch.Load() != epoch {
			return
		}
		s.fire(ctx, tick)
	}
	if _, err := cron.Do(job); err != nil {
		return fmt.Errorf("schedule monitor job: %w", err)
	}
	cron.StartAsync()

	s.cron = cron
	s.state = StateRunning
	s.logger.Info().Dur("interval", s.opts.Interval).Bool("run_on_start", s.opts.RunOnStart).Msg("monitor started")
	return nil
}

// Stop prevents future ticks and returns immediately. A tick already in
// progress runs to completion; use Wait to block on it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	cron := s.cron
	s.cron = nil
	s.state = StateIdle
	s.epoch.Add(1)
	s.mu.Unlock()

	// gocron's Stop waits for running jobs.
	go cron.Stop()
	s.logger.Info().Msg("monitor stopped")
}

// Wait blocks until no tick is executing.
func (s *Scheduler) Wait() {
	s.inflight.Wait()
}

// State reports the current state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the number of completed and skipped ticks.
func (s *Scheduler) Stats() (ticks, skipped int64) {
	return s.ticks.Load(), s.skipped.Load()
}

func (s *Scheduler) fire(ctx context.Context, tick TickFunc) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.logger.Warn().Msg("previous tick still running, skipping")
		return
	}
	defer s.busy.Store(false)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Msg("tick panicked")
		}
		s.ticks.Add(1)
		s.logger.Debug().Dur("elapsed", time.Since(start)).Msg("tick finished")
	}()

	if err := tick(ctx); err != nil {
		s.logger.Error().Err(err).Msg("tick execution failed")
	}
}
