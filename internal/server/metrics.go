package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Graveside2022/ArgosFinal-sub003/internal/sweep"
)

// Metrics aggregates sweep activity into Prometheus series. It carries its
// own registry so tests never collide on default-registry registration.
type Metrics struct {
	registry *prometheus.Registry

	samples    prometheus.Counter
	events     *prometheus.CounterVec
	errors     *prometheus.CounterVec
	recoveries prometheus.Counter
	running    prometheus.Gauge
}

// NewMetrics creates the metric set on a fresh registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		samples: factory.NewCounter(prometheus.CounterOpts{
			Name: "argosd_sweep_samples_total",
			Help: "Parsed spectrum samples pushed to subscribers.",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "argosd_events_total",
			Help: "Push events emitted, by event type.",
		}, []string{"type"}),
		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "argosd_sweep_errors_total",
			Help: "Sweep errors emitted, by error type.",
		}, []string{"type"}),
		recoveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "argosd_sweep_recoveries_total",
			Help: "Recovery attempts started.",
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Name: "argosd_sweep_running",
			Help: "Whether a sweep run is active.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe consumes a sweep event stream and updates the series until the
// context ends or the channel closes. Run it in its own goroutine.
func (m *Metrics) Observe(ctx context.Context, events <-chan sweep.Event) {
	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			m.record(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (m *Metrics) record(ev sweep.Event) {
	m.events.WithLabelValues(string(ev.Kind)).Inc()

	switch ev.Kind {
	case sweep.EventSweepData:
		m.samples.Inc()

	case sweep.EventError:
		if detail, ok := ev.Data.(*sweep.ErrorDetail); ok {
			m.errors.WithLabelValues(detail.Kind).Inc()
		}

	case sweep.EventRecoveryStart:
		m.recoveries.Inc()

	case sweep.EventStatus:
		if status, ok := ev.Data.(sweep.Status); ok {
			if status.State == sweep.StateRunning {
				m.running.Set(1)
			} else {
				m.running.Set(0)
			}
		}
	}
}
