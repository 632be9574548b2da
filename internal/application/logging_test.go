package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/example/chronopact/internal/logging"
	"github.com/example/chronopact/internal/timeexpr"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestServiceLoggerPrefersContextLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctxLogger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := logging.ContextWithLogger(context.Background(), ctxLogger)

	serviceLogger(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)), "AppointmentService", "OnTick", "appointment_id", "a1").Info("tick")

	out := buf.String()
	for _, want := range []string{"service=AppointmentService", "operation=OnTick", "appointment_id=a1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: ErrUnauthorized, want: "unauthorized"},
		{err: fmt.Errorf("wrap: %w", ErrNotFound), want: "not_found"},
		{err: ErrAlreadyActive, want: "already_active"},
		{err: ErrAppointmentClosed, want: "appointment_closed"},
		{err: wrapCollaborator(errors.New("timeout"), ErrDelivery), want: "delivery"},
		{err: wrapCollaborator(errors.New("quota"), ErrGeneration), want: "generation"},
		{err: wrapCollaborator(errors.New("refused"), ErrPresenceLookup), want: "presence_lookup"},
		{err: ErrInvariant, want: "invariant"},
		{err: &ValidationError{Cause: timeexpr.ErrTimeNotInFuture}, want: "time_not_in_future"},
		{err: &ValidationError{FieldErrors: map[string]string{"activity": "required"}}, want: "validation"},
		{err: errors.New("boom"), want: "unexpected"},
	}

	for _, tc := range tests {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Fatalf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestArrivalLogsCarryUserIDOnce(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ctx := logging.ContextWithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	h := newAppointmentHarness()
	createAppointment(t, h, 2, "x", "y")
	h.presence.set("x", true)
	h.clock.Advance(10 * time.Minute)
	h.service.OnTick(ctx)
	h.service.OnArrival(ctx, "voice-1", "y")

	recorded := 0
	for _, line := range strings.Split(buf.String(), "\n") {
		if !strings.Contains(line, `msg="arrival recorded"`) {
			continue
		}
		recorded++
		if n := strings.Count(line, "user_id="); n != 1 {
			t.Fatalf("expected a single user_id attribute, got %d in %q", n, line)
		}
	}
	if recorded != 2 {
		t.Fatalf("expected arrivals from the tick and the event path, got %d in %q", recorded, buf.String())
	}
}
