package notifications

import (
	"time"

	"github.com/eternisai/devotional-push/internal/webpush"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for push delivery.
type Metrics struct {
	Sends            *prometheus.CounterVec
	DispatchRuns     prometheus.Counter
	DispatchDuration prometheus.Histogram
	Subscriptions    prometheus.Gauge
	Skipped          prometheus.Counter
	Dropped          prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Sends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "devotional",
				Subsystem: "push",
				Name:      "sends_total",
				Help:      "Push sends by notification tag and outcome",
			},
			[]string{"tag", "outcome"},
		),
		DispatchRuns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "devotional",
			Subsystem: "push",
			Name:      "dispatch_runs_total",
			Help:      "Completed scheduled dispatch runs",
		}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "devotional",
			Subsystem: "push",
			Name:      "dispatch_duration_seconds",
			Help:      "Wall time of a scheduled dispatch run",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		Subscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "devotional",
			Subsystem: "push",
			Name:      "subscriptions",
			Help:      "Subscriptions seen by the last dispatch run",
		}),
		Skipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "devotional",
			Subsystem: "push",
			Name:      "skipped_subscribers_total",
			Help:      "Subscribers skipped because their timezone could not be resolved",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "devotional",
			Subsystem: "push",
			Name:      "dropped_subscriptions_total",
			Help:      "Subscriptions deleted after the push service reported them gone",
		}),
	}
}

// ObserveSend matches the webpush.Sender OnResult callback. Nil-safe.
func (m *Metrics) ObserveSend(msg webpush.Message, res webpush.Result) {
	if m == nil {
		return
	}
	m.Sends.WithLabelValues(msg.Tag, string(res.Outcome)).Inc()
}

// ObserveDispatch records a finished run. Nil-safe.
func (m *Metrics) ObserveDispatch(report *Report, took time.Duration) {
	if m == nil || report == nil {
		return
	}
	m.DispatchRuns.Inc()
	m.DispatchDuration.Observe(took.Seconds())
	m.Subscriptions.Set(float64(report.Subscriptions))
	m.Skipped.Add(float64(report.Skipped))
}

// ObserveDropped counts n deleted subscriptions. Nil-safe.
func (m *Metrics) ObserveDropped(n int) {
	if m == nil {
		return
	}
	m.Dropped.Add(float64(n))
}
