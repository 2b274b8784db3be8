package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// initResilienceMetrics initializes breaker, error, alert and memory
// metrics.
func (m *Manager) initResilienceMetrics() {
	m.breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per strategy (0=closed, 1=half-open, 2=open)",
		},
		[]string{"strategy"},
	)

	m.strategyErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_errors_total",
			Help:      "Classified strategy failures",
		},
		[]string{"strategy", "severity"},
	)

	m.alerts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Performance alerts raised by type and severity",
		},
		[]string{"type", "severity"},
	)

	m.memoryBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_bytes",
			Help:      "Memory usage sampled by the performance monitor",
		},
	)

	m.registry.MustRegister(m.breakerState)
	m.registry.MustRegister(m.strategyErrors)
	m.registry.MustRegister(m.alerts)
	m.registry.MustRegister(m.memoryBytes)
}

// SetBreakerState publishes a breaker's state gauge.
func (m *Manager) SetBreakerState(strategy string, state float64) {
	if !m.enabled {
		return
	}
	m.breakerState.WithLabelValues(strategy).Set(state)
}

// RecordStrategyError counts a classified strategy failure.
func (m *Manager) RecordStrategyError(strategy, severity string) {
	if !m.enabled {
		return
	}
	m.strategyErrors.WithLabelValues(strategy, severity).Inc()
}

// RecordAlert counts a performance alert.
func (m *Manager) RecordAlert(alertType, severity string) {
	if !m.enabled {
		return
	}
	m.alerts.WithLabelValues(alertType, severity).Inc()
}

// SetMemoryUsage publishes the sampled memory usage.
func (m *Manager) SetMemoryUsage(bytes uint64) {
	if !m.enabled {
		return
	}
	m.memoryBytes.Set(float64(bytes))
}
