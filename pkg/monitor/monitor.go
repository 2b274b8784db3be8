// Package monitor records per-query performance, samples it on an interval
// into a bounded trend history, raises threshold alerts and builds reports
// and dashboard payloads.
package monitor

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/goclaw/recall/pkg/search"
)

const (
	DefaultInterval  = 60 * time.Second
	DefaultRetention = 24 * time.Hour

	maxRecentAlerts = 100
	maxErrorKinds   = 200
)

// Logger is the logging interface used by the monitor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Recorder forwards observations to an external metrics system.
type Recorder interface {
	ObserveQuery(strategy, status string, duration time.Duration, results int)
	SetMemoryUsage(bytes uint64)
	RecordAlert(alertType, severity string)
}

// QueryRecord is one completed strategy execution.
type QueryRecord struct {
	Strategy   string
	Complexity search.Complexity
	Duration   time.Duration
	Results    int
	Success    bool
	Error      string
	CacheHit   bool
	Timestamp  time.Time
}

// Thresholds trigger alerts when exceeded.
type Thresholds struct {
	MaxResponseTime time.Duration `json:"max_response_time" koanf:"max_response_time"`
	MaxErrorRate    float64       `json:"max_error_rate" koanf:"max_error_rate"`
	MaxMemoryBytes  uint64        `json:"max_memory_bytes" koanf:"max_memory_bytes"`
}

// DefaultThresholds returns 1s response time, 5% errors and 512 MiB heap.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxResponseTime: time.Second,
		MaxErrorRate:    0.05,
		MaxMemoryBytes:  512 << 20,
	}
}

// Options configures a Monitor.
type Options struct {
	Interval   time.Duration
	Retention  time.Duration
	Thresholds Thresholds
	Logger     Logger
	Recorder   Recorder
	Now        func() time.Time
	// MemorySampler returns the current memory usage in bytes.
	MemorySampler func() uint64
}

// StrategyStats aggregates executions of one strategy.
type StrategyStats struct {
	Queries         int64         `json:"queries"`
	Errors          int64         `json:"errors"`
	Results         int64         `json:"results"`
	TotalDuration   time.Duration `json:"total_duration"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	LastUsed        time.Time     `json:"last_used"`
}

// ErrorRate is the share of failed executions.
func (s StrategyStats) ErrorRate() float64 {
	if s.Queries == 0 {
		return 0
	}
	return float64(s.Errors) / float64(s.Queries)
}

// Metrics is the cumulative state of the monitor.
type Metrics struct {
	TotalQueries    int64                       `json:"total_queries"`
	Successful      int64                       `json:"successful"`
	Failed          int64                       `json:"failed"`
	CacheHits       int64                       `json:"cache_hits"`
	AvgResponseTime time.Duration               `json:"avg_response_time"`
	MemoryUsage     uint64                      `json:"memory_usage"`
	PeakMemory      uint64                      `json:"peak_memory"`
	Complexity      map[search.Complexity]int64 `json:"complexity"`
	Strategies      map[string]StrategyStats    `json:"strategies"`
	StartedAt       time.Time                   `json:"started_at"`
}

// ErrorRate is the share of failed executions.
func (m Metrics) ErrorRate() float64 {
	if m.TotalQueries == 0 {
		return 0
	}
	return float64(m.Failed) / float64(m.TotalQueries)
}

// SuccessRate is the share of successful executions, 1 when idle.
func (m Metrics) SuccessRate() float64 {
	if m.TotalQueries == 0 {
		return 1
	}
	return float64(m.Successful) / float64(m.TotalQueries)
}

// TrendSample is one periodic snapshot. Strategy is empty for the overall
// sample.
type TrendSample struct {
	Timestamp       time.Time     `json:"timestamp"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	MemoryUsage     uint64        `json:"memory_usage"`
	QueryCount      int64         `json:"query_count"`
	ErrorRate       float64       `json:"error_rate"`
	Strategy        string        `json:"strategy,omitempty"`
}

// Monitor is safe for concurrent use.
type Monitor struct {
	opts   Options
	logger Logger
	now    func() time.Time

	mu        sync.Mutex
	metrics   Metrics
	errors    map[string]int64
	samples   []TrendSample
	alerts    []Alert
	callbacks []func(Alert)
	// counters at the previous collection, for interval rates
	lastTotal, lastFailed int64
	lastDuration          time.Duration
	totalDuration         time.Duration

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a monitor.
func New(opts Options) *Monitor {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	def := DefaultThresholds()
	if opts.Thresholds.MaxResponseTime <= 0 {
		opts.Thresholds.MaxResponseTime = def.MaxResponseTime
	}
	if opts.Thresholds.MaxErrorRate <= 0 {
		opts.Thresholds.MaxErrorRate = def.MaxErrorRate
	}
	if opts.Thresholds.MaxMemoryBytes == 0 {
		opts.Thresholds.MaxMemoryBytes = def.MaxMemoryBytes
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MemorySampler == nil {
		opts.MemorySampler = heapInUse
	}
	return &Monitor{
		opts:   opts,
		logger: opts.Logger,
		now:    opts.Now,
		metrics: Metrics{
			Complexity: map[search.Complexity]int64{},
			Strategies: map[string]StrategyStats{},
			StartedAt:  opts.Now(),
		},
		errors: map[string]int64{},
	}
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// RecordQuery folds one execution into the counters.
func (m *Monitor) RecordQuery(rec QueryRecord) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = m.now()
	}
	if rec.Complexity == "" {
		rec.Complexity = search.ComplexitySimple
	}
	mem := m.opts.MemorySampler()

	m.mu.Lock()
	mt := &m.metrics
	mt.TotalQueries++
	if rec.Success {
		mt.Successful++
	} else {
		mt.Failed++
		if rec.Error != "" && (len(m.errors) < maxErrorKinds || m.errors[rec.Error] > 0) {
			m.errors[rec.Error]++
		}
	}
	if rec.CacheHit {
		mt.CacheHits++
	}
	m.totalDuration += rec.Duration
	// running average
	mt.AvgResponseTime += (rec.Duration - mt.AvgResponseTime) / time.Duration(mt.TotalQueries)
	mt.Complexity[rec.Complexity]++
	mt.MemoryUsage = mem
	mt.PeakMemory = max(mt.PeakMemory, mem)

	st := mt.Strategies[rec.Strategy]
	st.Queries++
	if !rec.Success {
		st.Errors++
	}
	st.Results += int64(rec.Results)
	st.TotalDuration += rec.Duration
	st.AvgResponseTime = st.TotalDuration / time.Duration(st.Queries)
	st.LastUsed = rec.Timestamp
	mt.Strategies[rec.Strategy] = st
	m.mu.Unlock()

	if r := m.opts.Recorder; r != nil {
		status := "success"
		if !rec.Success {
			status = "error"
		}
		r.ObserveQuery(rec.Strategy, status, rec.Duration, rec.Results)
		r.SetMemoryUsage(mem)
	}
}

// Metrics returns a copy of the cumulative counters.
func (m *Monitor) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metricsLocked()
}

func (m *Monitor) metricsLocked() Metrics {
	out := m.metrics
	out.Complexity = make(map[search.Complexity]int64, len(m.metrics.Complexity))
	for k, v := range m.metrics.Complexity {
		out.Complexity[k] = v
	}
	out.Strategies = make(map[string]StrategyStats, len(m.metrics.Strategies))
	for k, v := range m.metrics.Strategies {
		out.Strategies[k] = v
	}
	return out
}

// Samples returns the retained trend history, oldest first. An empty
// strategy selects the overall samples.
func (m *Monitor) Samples(strategy string) []TrendSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TrendSample
	for _, s := range m.samples {
		if s.Strategy == strategy {
			out = append(out, s)
		}
	}
	return out
}

// Thresholds returns the active alert thresholds.
func (m *Monitor) Thresholds() Thresholds {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts.Thresholds
}

// SetThresholds replaces the alert thresholds; zero fields keep their
// current value.
func (m *Monitor) SetThresholds(t Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.MaxResponseTime > 0 {
		m.opts.Thresholds.MaxResponseTime = t.MaxResponseTime
	}
	if t.MaxErrorRate > 0 {
		m.opts.Thresholds.MaxErrorRate = t.MaxErrorRate
	}
	if t.MaxMemoryBytes > 0 {
		m.opts.Thresholds.MaxMemoryBytes = t.MaxMemoryBytes
	}
}

// OnAlert registers an alert callback.
func (m *Monitor) OnAlert(cb func(Alert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Start launches the collection loop. Calling Start on a running monitor
// is a no-op.
func (m *Monitor) Start(parent context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.Collect()
			case <-ctx.Done():
				return
			}
		}
	}()
	m.logger.Info("performance monitor started", "interval", m.opts.Interval, "retention", m.opts.Retention)
}

// Stop halts the collection loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
	m.logger.Info("performance monitor stopped")
}

// Collect takes one trend snapshot, prunes expired samples and evaluates
// thresholds. It returns the alerts raised.
func (m *Monitor) Collect() []Alert {
	now := m.now()
	mem := m.opts.MemorySampler()

	m.mu.Lock()
	mt := &m.metrics
	mt.MemoryUsage = mem
	mt.PeakMemory = max(mt.PeakMemory, mem)

	deltaQueries := mt.TotalQueries - m.lastTotal
	deltaFailed := mt.Failed - m.lastFailed
	deltaDuration := m.totalDuration - m.lastDuration
	m.lastTotal, m.lastFailed, m.lastDuration = mt.TotalQueries, mt.Failed, m.totalDuration

	var intervalAvg time.Duration
	var intervalErrors float64
	if deltaQueries > 0 {
		intervalAvg = deltaDuration / time.Duration(deltaQueries)
		intervalErrors = float64(deltaFailed) / float64(deltaQueries)
	}

	m.samples = append(m.samples, TrendSample{
		Timestamp:       now,
		AvgResponseTime: mt.AvgResponseTime,
		MemoryUsage:     mem,
		QueryCount:      mt.TotalQueries,
		ErrorRate:       mt.ErrorRate(),
	})
	names := make([]string, 0, len(mt.Strategies))
	for name := range mt.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := mt.Strategies[name]
		m.samples = append(m.samples, TrendSample{
			Timestamp:       now,
			AvgResponseTime: st.AvgResponseTime,
			MemoryUsage:     mem,
			QueryCount:      st.Queries,
			ErrorRate:       st.ErrorRate(),
			Strategy:        name,
		})
	}
	cutoff := now.Add(-m.opts.Retention)
	keep := m.samples[:0]
	for _, s := range m.samples {
		if !s.Timestamp.Before(cutoff) {
			keep = append(keep, s)
		}
	}
	m.samples = keep

	alerts := evaluate(m.opts.Thresholds, intervalAvg, intervalErrors, mem, now)
	m.alerts = append(m.alerts, alerts...)
	if over := len(m.alerts) - maxRecentAlerts; over > 0 {
		m.alerts = append(m.alerts[:0:0], m.alerts[over:]...)
	}
	callbacks := append(([]func(Alert))(nil), m.callbacks...)
	m.mu.Unlock()

	if r := m.opts.Recorder; r != nil {
		r.SetMemoryUsage(mem)
	}
	for _, a := range alerts {
		m.logger.Warn("performance alert", "type", a.Type, "severity", a.Severity, "message", a.Message)
		if r := m.opts.Recorder; r != nil {
			r.RecordAlert(string(a.Type), string(a.Severity))
		}
		for _, cb := range callbacks {
			cb(a)
		}
	}
	return alerts
}

// Alerts returns the most recent alerts, newest last.
func (m *Monitor) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.alerts...)
}
