package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the application
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Business metrics
	MembersCreated prometheus.Counter
	MembersDeleted prometheus.Counter
	TreeAssemblies prometheus.Counter
	TreeSaves      prometheus.Counter
	TreeRecoveries prometheus.Counter
}

// NewCollector creates a new metrics collector with the given namespace.
// A process-wide singleton avoids duplicate registration in tests.
func NewCollector(namespace string) *Collector {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	membersCreated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_created_total",
			Help:      "Total number of family members created",
		},
	)

	membersDeleted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "members_deleted_total",
			Help:      "Total number of family members deleted",
		},
	)

	treeAssemblies := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tree_assemblies_total",
			Help:      "Total number of tree assemblies served",
		},
	)

	treeSaves := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tree_saves_total",
			Help:      "Total number of tree versions saved",
		},
	)

	treeRecoveries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tree_recoveries_total",
			Help:      "Total number of tree version recoveries",
		},
	)

	registry.MustRegister(
		httpRequests,
		httpDuration,
		membersCreated,
		membersDeleted,
		treeAssemblies,
		treeSaves,
		treeRecoveries,
	)

	globalCollector = &Collector{
		registry:       registry,
		HTTPRequests:   httpRequests,
		HTTPDuration:   httpDuration,
		MembersCreated: membersCreated,
		MembersDeleted: membersDeleted,
		TreeAssemblies: treeAssemblies,
		TreeSaves:      treeSaves,
		TreeRecoveries: treeRecoveries,
	}

	return globalCollector
}

// ResetForTesting resets the global collector for testing purposes
func ResetForTesting() {
	collectorMutex.Lock()
	defer collectorMutex.Unlock()
	globalCollector = nil
}

// GetRegistry returns the Prometheus registry for this collector
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}
