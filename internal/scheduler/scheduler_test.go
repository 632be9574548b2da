package scheduler

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/chronopact/internal/application"
	"github.com/example/chronopact/internal/logging"
)

type appointmentTickerStub struct {
	calls   atomic.Int32
	block   chan struct{}
	entered chan struct{}
}

func (s *appointmentTickerStub) OnTick(ctx context.Context) application.TickReport {
	s.calls.Add(1)
	if s.entered != nil {
		s.entered <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	return application.TickReport{Processed: 2, GoTime: 1}
}

type harassmentTickerStub struct {
	calls atomic.Int32
}

func (s *harassmentTickerStub) OnTick(ctx context.Context) application.HarassmentTickReport {
	s.calls.Add(1)
	return application.HarassmentTickReport{Processed: 1, Insults: 1}
}

type metricsStub struct {
	mu      sync.Mutex
	ticks   int
	skipped int
}

func (m *metricsStub) ObserveTick(d time.Duration, skipped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if skipped {
		m.skipped++
		return
	}
	m.ticks++
}

func TestLoop_RunOnceCombinesReports(t *testing.T) {
	t.Parallel()

	appointments := &appointmentTickerStub{}
	harassments := &harassmentTickerStub{}
	metrics := &metricsStub{}
	loop := New(Config{Appointments: appointments, Harassments: harassments, Metrics: metrics})

	report, ok := loop.RunOnce(context.Background())
	if !ok {
		t.Fatalf("expected pass to run")
	}
	if report.Appointments.Processed != 2 || report.Harassments.Insults != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if metrics.ticks != 1 || metrics.skipped != 0 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
}

type loggingTickerStub struct{}

func (loggingTickerStub) OnTick(ctx context.Context) application.HarassmentTickReport {
	logging.FromContext(ctx).InfoContext(ctx, "session advanced")
	return application.HarassmentTickReport{}
}

func TestLoop_RunOnceTagsTickLogs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	loop := New(Config{Harassments: loggingTickerStub{}, Logger: slog.New(slog.NewTextHandler(&buf, nil))})

	first, ok := loop.RunOnce(context.Background())
	if !ok || first.TickID == "" {
		t.Fatalf("expected a tick id, got %+v", first)
	}
	second, _ := loop.RunOnce(context.Background())
	if second.TickID == first.TickID {
		t.Fatalf("tick ids must differ between passes")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected one ticker log line per pass, got %q", buf.String())
	}
	for i, id := range []string{first.TickID, second.TickID} {
		if !strings.Contains(lines[i], "tick_id="+id) || strings.Contains(lines[i], "component=scheduler") {
			t.Fatalf("unexpected ticker log line %q", lines[i])
		}
	}
}

func TestLoop_RunOnceIsNotReentrant(t *testing.T) {
	t.Parallel()

	appointments := &appointmentTickerStub{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	metrics := &metricsStub{}
	loop := New(Config{Appointments: appointments, Metrics: metrics})

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		loop.RunOnce(context.Background())
	}()
	<-appointments.entered

	if _, ok := loop.RunOnce(context.Background()); ok {
		t.Fatalf("overlapping pass must be skipped")
	}
	close(appointments.block)
	<-finished

	if got := appointments.calls.Load(); got != 1 {
		t.Fatalf("expected a single pass, got %d", got)
	}
	if metrics.skipped != 1 {
		t.Fatalf("expected skipped tick to be recorded, got %+v", metrics)
	}

	appointments.block = nil
	appointments.entered = nil
	if _, ok := loop.RunOnce(context.Background()); !ok {
		t.Fatalf("expected pass after previous one finished")
	}
}

func TestLoop_StartRunsImmediatelyAndStops(t *testing.T) {
	t.Parallel()

	appointments := &appointmentTickerStub{}
	harassments := &harassmentTickerStub{}
	loop := New(Config{Interval: 5 * time.Millisecond, Appointments: appointments, Harassments: harassments})

	loop.Start(context.Background())
	loop.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for appointments.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("loop did not tick, calls=%d", appointments.calls.Load())
		}
		time.Sleep(time.Millisecond)
	}

	loop.Stop()
	loop.Stop()
	stopped := appointments.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if got := appointments.calls.Load(); got != stopped {
		t.Fatalf("loop kept ticking after Stop: %d -> %d", stopped, got)
	}
	if harassments.calls.Load() != stopped {
		t.Fatalf("harassments ticked %d times, appointments %d", harassments.calls.Load(), stopped)
	}
}

func TestLoop_RunExitsOnContextCancel(t *testing.T) {
	t.Parallel()

	loop := New(Config{Interval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
