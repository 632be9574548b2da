// Package metrics exposes Prometheus instrumentation for the appointment
// lifecycle, the scheduler loop and collaborator failures.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "chronopact"

// Prometheus records observations into its own registry.
type Prometheus struct {
	registry *prometheus.Registry

	tickDuration prometheus.Histogram
	tickTotal    *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	failures     *prometheus.CounterVec
}

// NewPrometheus registers the collectors on a fresh registry.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Prometheus{
		registry: registry,
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Duration of one scheduler pass in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		tickTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of scheduler ticks",
		}, []string{"status"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Total number of appointment and harassment transitions",
		}, []string{"kind"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_failures_total",
			Help:      "Total number of failed collaborator calls",
		}, []string{"collaborator"}),
	}
}

// ObserveTick records one scheduler pass.
func (p *Prometheus) ObserveTick(duration time.Duration, skipped bool) {
	if skipped {
		p.tickTotal.WithLabelValues("skipped").Inc()
		return
	}
	p.tickTotal.WithLabelValues("ok").Inc()
	p.tickDuration.Observe(duration.Seconds())
}

// ObserveTransition counts a lifecycle transition.
func (p *Prometheus) ObserveTransition(kind string) {
	p.transitions.WithLabelValues(kind).Inc()
}

// ObserveCollaboratorFailure counts a failed collaborator call.
func (p *Prometheus) ObserveCollaboratorFailure(collaborator string) {
	p.failures.WithLabelValues(collaborator).Inc()
}

// Registry returns the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// NoOp discards every observation.
type NoOp struct{}

func (NoOp) ObserveTick(time.Duration, bool)   {}
func (NoOp) ObserveTransition(string)          {}
func (NoOp) ObserveCollaboratorFailure(string) {}
