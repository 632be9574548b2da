// Package scheduler runs the periodic tick that advances live appointments and
// harassment sessions through their time based transitions.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/example/chronopact/internal/application"
	"github.com/example/chronopact/internal/logging"
)

// DefaultInterval is the tick period used when none is configured.
const DefaultInterval = time.Minute

// AppointmentTicker advances appointments by one tick.
type AppointmentTicker interface {
	OnTick(ctx context.Context) application.TickReport
}

// HarassmentTicker advances harassment sessions by one tick.
type HarassmentTicker interface {
	OnTick(ctx context.Context) application.HarassmentTickReport
}

// Metrics records tick outcomes.
type Metrics interface {
	ObserveTick(duration time.Duration, skipped bool)
}

// Config wires the loop.
type Config struct {
	Interval     time.Duration
	Appointments AppointmentTicker
	Harassments  HarassmentTicker
	Metrics      Metrics
	Logger       *slog.Logger
}

// Report combines the outcome of one pass. TickID is also attached as tick_id
// to the context logger the tickers receive.
type Report struct {
	TickID       string
	Appointments application.TickReport
	Harassments  application.HarassmentTickReport
	Duration     time.Duration
}

// Loop ticks at a fixed interval. A pass never overlaps another one: a tick
// that arrives while the previous pass still runs is skipped.
type Loop struct {
	interval     time.Duration
	appointments AppointmentTicker
	harassments  HarassmentTicker
	metrics      Metrics
	base         *slog.Logger
	logger       *slog.Logger

	running  atomic.Bool
	busy     atomic.Bool
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a loop. Either ticker may be nil.
func New(cfg Config) *Loop {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		interval:     interval,
		appointments: cfg.Appointments,
		harassments:  cfg.Harassments,
		metrics:      cfg.Metrics,
		base:         logger,
		logger:       logger.With("component", "scheduler"),
		stopChan:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start launches the loop in the background and runs one pass immediately.
// Repeated calls are no-ops. The loop exits when ctx is cancelled or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	if !l.running.CompareAndSwap(false, true) {
		l.logger.Info("scheduler already running")
		return
	}
	l.logger.Info("scheduler started", "interval", l.interval.String())

	go func() {
		defer close(l.done)

		l.RunOnce(ctx)

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				l.RunOnce(ctx)
			case <-ctx.Done():
				l.logger.Info("scheduler stopped", "reason", ctx.Err())
				return
			case <-l.stopChan:
				l.logger.Info("scheduler stopped")
				return
			}
		}
	}()
}

// Stop signals the loop to exit and waits for the current pass to finish.
func (l *Loop) Stop() {
	if !l.running.Load() {
		return
	}
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
	<-l.done
}

// Run starts the loop and blocks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.Start(ctx)
	<-ctx.Done()
	l.Stop()
	return nil
}

// RunOnce performs a single pass over appointments then harassment sessions.
// ok is false when another pass was still in progress and this one was skipped.
func (l *Loop) RunOnce(ctx context.Context) (report Report, ok bool) {
	if !l.busy.CompareAndSwap(false, true) {
		l.logger.Warn("previous tick still running, skipping")
		if l.metrics != nil {
			l.metrics.ObserveTick(0, true)
		}
		return Report{}, false
	}
	defer l.busy.Store(false)

	report.TickID = uuid.NewString()
	ctx = logging.ContextWithLogger(ctx, logging.FromContextOr(ctx, l.base).With("tick_id", report.TickID))

	started := time.Now()
	if l.appointments != nil {
		report.Appointments = l.appointments.OnTick(ctx)
	}
	if l.harassments != nil {
		report.Harassments = l.harassments.OnTick(ctx)
	}
	report.Duration = time.Since(started)

	if l.metrics != nil {
		l.metrics.ObserveTick(report.Duration, false)
	}
	l.logger.Debug("tick finished",
		"tick_id", report.TickID,
		"appointments", report.Appointments.Processed,
		"go_time", report.Appointments.GoTime,
		"cancelled", report.Appointments.Cancelled,
		"completed", report.Appointments.Completed,
		"shamed", report.Appointments.Shamed,
		"harassments", report.Harassments.Processed,
		"insults", report.Harassments.Insults,
		"harassments_ended", report.Harassments.Ended,
		"duration", report.Duration.String(),
	)
	return report, true
}
