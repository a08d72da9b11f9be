package tasks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	runs             prometheus.Counter
	itemsFetched     prometheus.Counter
	itemsDelivered   prometheus.Counter
	fetchFailures    *prometheus.CounterVec
	deliveryFailures prometheus.Counter
	runDuration      prometheus.Histogram
	lastSuccess      prometheus.Gauge
}

// NewMetrics registers the digest metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounter(prometheus.CounterOpts{
			Name: "feed_digest_runs_total",
			Help: "Total number of digest runs",
		}),
		itemsFetched: f.NewCounter(prometheus.CounterOpts{
			Name: "feed_digest_items_fetched_total",
			Help: "Items returned by source adapters before incremental filtering",
		}),
		itemsDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "feed_digest_items_delivered_total",
			Help: "Items handed to the notifier",
		}),
		fetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "feed_digest_fetch_failures_total",
			Help: "Failed source fetches",
		}, []string{"kind"}),
		deliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "feed_digest_delivery_failures_total",
			Help: "Failed digest deliveries",
		}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "feed_digest_run_duration_seconds",
			Help:    "Duration of digest runs",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "feed_digest_last_success_timestamp_seconds",
			Help: "Unix time of the last run without delivery errors",
		}),
	}
}

func (m *Metrics) observe(r Report) {
	if m == nil {
		return
	}
	m.runs.Inc()
	m.itemsFetched.Add(float64(r.Fetched))
	m.itemsDelivered.Add(float64(r.Delivered))
	for _, f := range r.Failures {
		m.fetchFailures.WithLabelValues(f.Kind).Inc()
	}
	if r.DeliveryErr != "" {
		m.deliveryFailures.Inc()
	} else {
		m.lastSuccess.Set(float64(r.StartedAt.Add(r.Duration).Unix()))
	}
	m.runDuration.Observe(r.Duration.Seconds())
}
