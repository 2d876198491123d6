package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects pipeline counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	mutations     *prometheus.CounterVec
	rollbacks     *prometheus.CounterVec
	writeDuration *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	deletions     *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		mutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commesse_mutations_total",
				Help: "Pipeline mutations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		rollbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commesse_rollbacks_total",
				Help: "Optimistic cache restores after a failed durable write",
			},
			[]string{"op"},
		),
		writeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "commesse_durable_write_duration_seconds",
				Help:    "Duration of durable writes issued by the pipeline store",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"op"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commesse_notifications_total",
				Help: "Notification deliveries by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		deletions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "commesse_cascade_deletions_total",
				Help: "Cascading order deletions by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) mutation(op, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) rollback(op string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(op).Inc()
}

func (m *Metrics) observeWrite(op string, started time.Time) {
	if m == nil {
		return
	}
	m.writeDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) notification(kind NotificationKind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) deletion(outcome string) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(outcome).Inc()
}
