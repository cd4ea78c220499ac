// Package metrics exposes Prometheus instrumentation for the monitor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
type Metrics struct {
	CyclesTotal      prometheus.Counter
	CycleDuration    prometheus.Histogram
	ProbesTotal      *prometheus.CounterVec
	NewlyBrokenTotal prometheus.Counter
	AlertSendsTotal  *prometheus.CounterVec
}

// New registers all collectors on the given registerer. Pass
// prometheus.DefaultRegisterer outside of tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "doiwatch_cycles_total",
			Help: "Total number of completed check cycles.",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "doiwatch_cycle_duration_seconds",
			Help:    "Duration of check cycles.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "doiwatch_probes_total",
			Help: "Total number of DOI probes by outcome.",
		}, []string{"outcome"}), // healthy, broken, skipped
		NewlyBrokenTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "doiwatch_newly_broken_total",
			Help: "Total number of healthy-to-broken transitions observed.",
		}),
		AlertSendsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "doiwatch_alert_sends_total",
			Help: "Total number of alert dispatch outcomes.",
		}, []string{"outcome"}), // sent, failed
	}
}
