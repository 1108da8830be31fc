// Package metrics exposes Prometheus collectors for workflow activity. A nil
// *Metrics is valid and records nothing, so packages can take one optionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "postflow"

// Metrics holds the collectors and the registry they are registered in.
type Metrics struct {
	registry *prometheus.Registry

	transitions   *prometheus.CounterVec
	slotClaims    *prometheus.CounterVec
	sweepRecords  *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	dispatches    *prometheus.CounterVec
	webhooks      *prometheus.CounterVec
	workflows     *prometheus.GaugeVec
}

// New builds collectors in a private registry with process and Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Workflow status transitions.",
		}, []string{"from", "to"}),
		slotClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_claims_total",
			Help:      "Schedule slot claim attempts by outcome.",
		}, []string{"brand", "outcome"}),
		sweepRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_records_total",
			Help:      "Records handled by the stuck sweep by outcome.",
		}, []string{"outcome"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Stuck sweep wall time.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Publish calls by channel and outcome.",
		}, []string{"channel", "outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhooks_total",
			Help:      "Inbound provider callbacks by outcome.",
		}, []string{"provider", "outcome"}),
		workflows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows",
			Help:      "Workflow records per status at the last sweep.",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions,
		m.slotClaims,
		m.sweepRecords,
		m.sweepDuration,
		m.dispatches,
		m.webhooks,
		m.workflows,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveSlotClaim(brand, outcome string) {
	if m == nil {
		return
	}
	m.slotClaims.WithLabelValues(brand, outcome).Inc()
}

func (m *Metrics) ObserveSweepRecord(outcome string) {
	if m == nil {
		return
	}
	m.sweepRecords.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSweepDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveDispatch(channel, outcome string) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(channel, outcome).Inc()
}

func (m *Metrics) ObserveWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(provider, outcome).Inc()
}

// SetWorkflowCounts replaces the per-status gauge values.
func (m *Metrics) SetWorkflowCounts(counts map[string]int) {
	if m == nil {
		return
	}
	m.workflows.Reset()
	for status, count := range counts {
		m.workflows.WithLabelValues(status).Set(float64(count))
	}
}
