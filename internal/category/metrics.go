package category

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mutationTotal counts tree mutations by operation and result code.
	mutationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "knowtree_category_mutations_total",
		Help: "Category tree mutations by operation and result code",
	}, []string{"operation", "code"})

	// mutationDuration tracks the latency of a mutation transaction.
	mutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "knowtree_category_mutation_duration_seconds",
		Help:    "Category mutation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	}, []string{"operation"})

	// counterCalls counts content counter lookups by outcome.
	counterCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "knowtree_content_counter_calls_total",
		Help: "Content counter lookups by outcome (ok, error, rejected)",
	}, []string{"outcome"})

	// snapshotTotal counts tree snapshot reads served from memory or loaded.
	snapshotTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "knowtree_tree_snapshot_total",
		Help: "Tree snapshot reads by result (hit, load)",
	}, []string{"result"})
)

func observeMutation(op string, err error, started time.Time) {
	mutationTotal.WithLabelValues(op, Code(err)).Inc()
	mutationDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}
