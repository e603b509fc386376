package app

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for webhook and reconciliation activity.
type Metrics struct {
	webhookEvents   *prometheus.CounterVec
	resolverResults *prometheus.CounterVec
	processorCalls  *prometheus.HistogramVec
}

// MustNewMetrics registers the collectors on reg and panics on duplicate
// registration. Tests pass a fresh prometheus.NewRegistry().
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "northstar",
				Subsystem: "billing",
				Name:      "webhook_events_total",
				Help:      "Stripe webhook events by type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		resolverResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "northstar",
				Subsystem: "billing",
				Name:      "user_resolutions_total",
				Help:      "User resolution attempts by the step that answered.",
			},
			[]string{"resolved_by"},
		),
		processorCalls: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "northstar",
				Subsystem: "billing",
				Name:      "processor_call_duration_seconds",
				Help:      "Latency of payment processor API calls.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op", "status"},
		),
	}
	reg.MustRegister(m.webhookEvents, m.resolverResults, m.processorCalls)
	return m
}

func (m *Metrics) CountWebhook(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) CountResolution(by ResolvedBy, err error) {
	if m == nil {
		return
	}
	label := string(by)
	switch {
	case errors.Is(err, ErrUserNotFound):
		label = "not_found"
	case errors.Is(err, ErrAmbiguousUser):
		label = "ambiguous"
	case err != nil:
		label = "error"
	}
	m.resolverResults.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveProcessorCall(op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.processorCalls.WithLabelValues(op, status).Observe(d.Seconds())
}
