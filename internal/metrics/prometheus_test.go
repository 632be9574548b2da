package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/example/chronopact/internal/application"
	"github.com/example/chronopact/internal/scheduler"
)

var (
	_ application.Metrics = (*Prometheus)(nil)
	_ scheduler.Metrics   = (*Prometheus)(nil)
	_ application.Metrics = NoOp{}
	_ scheduler.Metrics   = NoOp{}
)

func counterValue(t *testing.T, p *Prometheus, name, label, value string) float64 {
	t.Helper()
	families, err := p.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestPrometheus_Counters(t *testing.T) {
	t.Parallel()

	p := NewPrometheus("")
	p.ObserveTransition(application.TransitionCompleted)
	p.ObserveTransition(application.TransitionCompleted)
	p.ObserveCollaboratorFailure(application.CollaboratorNotifier)
	p.ObserveTick(25*time.Millisecond, false)
	p.ObserveTick(0, true)

	if got := counterValue(t, p, "chronopact_transitions_total", "kind", "completed"); got != 2 {
		t.Fatalf("expected 2 completed transitions, got %v", got)
	}
	if got := counterValue(t, p, "chronopact_collaborator_failures_total", "collaborator", "notifier"); got != 1 {
		t.Fatalf("expected 1 notifier failure, got %v", got)
	}
	if got := counterValue(t, p, "chronopact_ticks_total", "status", "skipped"); got != 1 {
		t.Fatalf("expected 1 skipped tick, got %v", got)
	}
}

func TestPrometheus_Handler(t *testing.T) {
	t.Parallel()

	p := NewPrometheus("test")
	p.ObserveTick(time.Second, false)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_tick_duration_seconds_count 1") {
		t.Fatalf("expected tick histogram in output:\n%s", rec.Body.String())
	}
}
