package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Flush trigger label values.
const (
	triggerReactive  = "reactive"
	triggerPreAdd    = "pre_add"
	triggerScheduled = "scheduled"
	triggerDrain     = "drain"
)

// Metrics holds Prometheus metrics for a Batcher.
type Metrics struct {
	SubmittedTotal    prometheus.Counter
	RejectedTotal     prometheus.Counter
	CompletedTotal    prometheus.Counter
	FailedTotal       prometheus.Counter
	FlushesTotal      *prometheus.CounterVec
	BatchSize         prometheus.Histogram
	SendFailuresTotal prometheus.Counter
}

// NewMetrics creates batcher metrics registered with the given registerer.
// A nil registerer yields working but unregistered metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_requests_submitted_total",
			Help: "Total number of requests submitted to the batcher",
		}),
		RejectedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_requests_rejected_total",
			Help: "Total number of requests rejected for capacity (buffer or key limit)",
		}),
		CompletedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_requests_completed_total",
			Help: "Total number of requests completed successfully",
		}),
		FailedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_requests_failed_total",
			Help: "Total number of requests completed with a failure",
		}),
		FlushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_flushes_total",
			Help: "Total number of batch flushes by trigger",
		}, []string{"trigger"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "batch_flush_size",
			Help:    "Number of requests per flushed batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		SendFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "batch_send_failures_total",
			Help: "Total number of downstream batch calls that failed as a whole",
		}),
	}
}
