package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initSearchMetrics initializes per-strategy query metrics.
func (m *Manager) initSearchMetrics(cfg Config) {
	m.searchQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_queries_total",
			Help:      "Total number of strategy executions by outcome",
		},
		[]string{"strategy", "status"},
	)

	m.searchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Strategy execution duration in seconds",
			Buckets:   cfg.SearchDurationBuckets,
		},
		[]string{"strategy"},
	)

	m.searchResults = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of results returned per strategy execution",
			Buckets:   cfg.ResultCountBuckets,
		},
		[]string{"strategy"},
	)

	m.cacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Result cache lookups by outcome",
		},
		[]string{"result"},
	)

	m.registry.MustRegister(m.searchQueries)
	m.registry.MustRegister(m.searchDuration)
	m.registry.MustRegister(m.searchResults)
	m.registry.MustRegister(m.cacheRequests)
}

// ObserveQuery records one strategy execution.
func (m *Manager) ObserveQuery(strategy, status string, duration time.Duration, results int) {
	if !m.enabled {
		return
	}
	m.searchQueries.WithLabelValues(strategy, status).Inc()
	m.searchDuration.WithLabelValues(strategy).Observe(duration.Seconds())
	m.searchResults.WithLabelValues(strategy).Observe(float64(results))
}

// RecordCacheRequest counts a cache lookup; result is "hit" or "miss".
func (m *Manager) RecordCacheRequest(result string) {
	if !m.enabled {
		return
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}
