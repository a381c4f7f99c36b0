// Package metrics exposes Prometheus collectors for upstream weather calls,
// outgoing mail and dashboard sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kisaansetu"

// Metrics groups every collector the service registers.
type Metrics struct {
	upstreamLatency *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec

	emailLatency prometheus.Histogram
	emailErrors  prometheus.Counter
	emailsSent   prometheus.Counter

	dashboards prometheus.Gauge
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of weather provider and geocoder calls",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation"}),
		upstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed weather provider and geocoder calls",
		}, []string{"operation"}),
		emailLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "email_send_duration_seconds",
			Help:      "Time taken to send emails",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10},
		}),
		emailErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "email_errors_total",
			Help:      "Total number of email sending errors",
		}),
		emailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Total number of emails sent",
		}),
		dashboards: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dashboards_active",
			Help:      "Dashboard sessions currently held in memory",
		}),
	}

	reg.MustRegister(
		m.upstreamLatency,
		m.upstreamErrors,
		m.emailLatency,
		m.emailErrors,
		m.emailsSent,
		m.dashboards,
	)
	return m
}

// ObserveFetch records one upstream call.
func (m *Metrics) ObserveFetch(op string, elapsed time.Duration, err error) {
	m.upstreamLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.upstreamErrors.WithLabelValues(op).Inc()
	}
}

// ObserveEmail records one send attempt.
func (m *Metrics) ObserveEmail(elapsed time.Duration, err error) {
	m.emailLatency.Observe(elapsed.Seconds())
	if err != nil {
		m.emailErrors.Inc()
		return
	}
	m.emailsSent.Inc()
}

// SetDashboards reports the number of live dashboard sessions.
func (m *Metrics) SetDashboards(n int) {
	m.dashboards.Set(float64(n))
}
