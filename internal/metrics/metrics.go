package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the ingestion loop.
type Metrics struct {
	MessagesTotal      *prometheus.CounterVec
	BatchesTotal       prometheus.Counter
	ReceiveErrorsTotal prometheus.Counter
	InsertDuration     prometheus.Histogram
}

// New creates the collectors and registers them with reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "login_pipeline_messages_total",
			Help: "Queue messages handled, by outcome",
		}, []string{"outcome"}),
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "login_pipeline_batches_total",
			Help: "Receive calls that returned without error",
		}),
		ReceiveErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "login_pipeline_receive_errors_total",
			Help: "Receive calls that failed",
		}),
		InsertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "login_pipeline_insert_duration_seconds",
			Help:    "Time spent committing a single masked login row",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.MessagesTotal, m.BatchesTotal, m.ReceiveErrorsTotal, m.InsertDuration)
	return m
}

// ObserveOutcome increments the counter for one handled message.
// outcome is one of success, skipped, failed_retryable, failed_permanent.
func (m *Metrics) ObserveOutcome(outcome string) {
	m.MessagesTotal.WithLabelValues(outcome).Inc()
}
