package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics for graph execution.
//
// Metrics exposed (all namespaced "maintgraph"):
//
//   - node_duration_ms (histogram): node execution duration, labeled by
//     node_id and status (success/error)
//   - node_errors_total (counter): node failures, labeled by node_id
//   - suspensions_total (counter): interrupt-node pauses
//   - resumes_total (counter): suspended threads resumed
//
// Attach to an engine via Engine.SetMetrics and expose the registry over
// HTTP with promhttp for scraping.
type Metrics struct {
	nodeDuration *prometheus.HistogramVec
	nodeErrors   *prometheus.CounterVec
	suspensions  prometheus.Counter
	resumes      prometheus.Counter
}

// NewMetrics creates and registers all graph execution metrics with the
// provided registry (prometheus.DefaultRegisterer when nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		nodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "maintgraph",
			Name:      "node_duration_ms",
			Help:      "Node execution duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node_id", "status"}),
		nodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "maintgraph",
			Name:      "node_errors_total",
			Help:      "Total node execution failures.",
		}, []string{"node_id"}),
		suspensions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "maintgraph",
			Name:      "suspensions_total",
			Help:      "Total interrupt-node suspensions.",
		}),
		resumes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "maintgraph",
			Name:      "resumes_total",
			Help:      "Total suspended threads resumed.",
		}),
	}
}

// observeNode records one node invocation.
func (m *Metrics) observeNode(nodeID string, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.nodeErrors.WithLabelValues(nodeID).Inc()
	}
	m.nodeDuration.WithLabelValues(nodeID, status).Observe(float64(elapsed.Milliseconds()))
}
