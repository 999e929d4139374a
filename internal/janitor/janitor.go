// Package janitor periodically evicts expired conversation caches. The
// sweep runs shortly after startup and then on a fixed interval,
// independently of chat turns.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hikarilab/mentorchat/internal/telemetry"
)

// Sweeper deletes expired entries and reports how many were removed.
// Implemented by convcache.Service.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Janitor schedules recurring cache sweeps. Start and Stop are idempotent;
// the only states are stopped and running.
type Janitor struct {
	sweeper Sweeper
	logger  *slog.Logger
	metrics *telemetry.Metrics

	initialDelay time.Duration
	interval     time.Duration
	sweepTimeout time.Duration

	mu      sync.Mutex
	running bool
	cron    *cron.Cron
	initial *time.Timer
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithInitialDelay overrides the delay before the first sweep.
func WithInitialDelay(d time.Duration) Option {
	return func(j *Janitor) { j.initialDelay = d }
}

// WithInterval overrides the recurring sweep interval.
func WithInterval(d time.Duration) Option {
	return func(j *Janitor) { j.interval = d }
}

// New creates a janitor with the product defaults: first sweep 5 seconds
// after start, then every 15 minutes.
func New(sweeper Sweeper, logger *slog.Logger, metrics *telemetry.Metrics, opts ...Option) *Janitor {
	j := &Janitor{
		sweeper:      sweeper,
		logger:       logger,
		metrics:      metrics,
		initialDelay: 5 * time.Second,
		interval:     15 * time.Minute,
		sweepTimeout: time.Minute,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start begins the sweep schedule. Calling it while running is a no-op.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		j.logger.Debug("janitor already running")
		return
	}

	j.initial = time.AfterFunc(j.initialDelay, j.RunCleanup)

	j.cron = cron.New()
	// AddFunc only fails on a malformed spec; the spec here is generated.
	if _, err := j.cron.AddFunc(fmt.Sprintf("@every %s", j.interval), j.RunCleanup); err != nil {
		j.logger.Error("janitor schedule rejected", "error", err)
		j.initial.Stop()
		j.initial = nil
		j.cron = nil
		return
	}
	j.cron.Start()
	j.running = true
	j.logger.Info("cache janitor started", "initial_delay", j.initialDelay, "interval", j.interval)
}

// Stop cancels the schedule. Safe to call when not running.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}
	j.initial.Stop()
	j.initial = nil
	j.cron.Stop()
	j.cron = nil
	j.running = false
	j.logger.Info("cache janitor stopped")
}

// Running reports whether the schedule is active.
func (j *Janitor) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

// Shutdown stops the schedule and runs one final sweep.
func (j *Janitor) Shutdown() {
	j.Stop()
	j.RunCleanup()
}

// RunCleanup performs one sweep. It never lets a failure escape: sweep
// errors are logged and the next scheduled run proceeds normally.
func (j *Janitor) RunCleanup() {
	defer func() {
		if r := recover(); r != nil {
			j.logger.Error("janitor sweep panicked", "panic", r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), j.sweepTimeout)
	defer cancel()

	start := time.Now()
	deleted, err := j.sweeper.SweepExpired(ctx)
	duration := time.Since(start)
	if err != nil {
		j.logger.Error("janitor sweep failed", "error", err, "duration", duration)
		return
	}

	j.metrics.JanitorSweeps.Inc()
	j.metrics.JanitorDeleted.Add(float64(deleted))
	j.metrics.JanitorDuration.Observe(duration.Seconds())
	j.logger.Info("janitor sweep completed", "deleted", deleted, "duration", duration)
}
