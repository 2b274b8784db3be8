package monitor

import (
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/goclaw/recall/pkg/search"
)

const topErrors = 5

// Health is the overall status shown on the dashboard.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthCritical Health = "critical"
)

// ErrorTrend classifies the movement of the sampled error rate.
type ErrorTrend string

const (
	ErrorsIncreasing ErrorTrend = "increasing"
	ErrorsStable     ErrorTrend = "stable"
	ErrorsDecreasing ErrorTrend = "decreasing"
)

// ErrorCount is one distinct error message and its frequency.
type ErrorCount struct {
	Error string `json:"error"`
	Count int64  `json:"count"`
}

// Report is the on-demand performance report.
type Report struct {
	GeneratedAt     time.Time                   `json:"generated_at"`
	Uptime          time.Duration               `json:"uptime"`
	TotalQueries    int64                       `json:"total_queries"`
	SuccessRate     float64                     `json:"success_rate"`
	AvgResponseTime time.Duration               `json:"avg_response_time"`
	PeakMemory      uint64                      `json:"peak_memory"`
	StrategyUsage   map[string]float64          `json:"strategy_usage_percent"`
	Strategies      map[string]StrategyStats    `json:"strategies"`
	Complexity      map[search.Complexity]int64 `json:"complexity"`
	TopErrors       []ErrorCount                `json:"top_errors"`
	Recommendations []string                    `json:"recommendations"`
}

// Point is one value of a time series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// StrategyComparison is one row of the dashboard's strategy table.
type StrategyComparison struct {
	Strategy        string        `json:"strategy"`
	Queries         int64         `json:"queries"`
	UsagePercent    float64       `json:"usage_percent"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ErrorRate       float64       `json:"error_rate"`
	AvgResults      float64       `json:"avg_results"`
}

// Dashboard is the payload rendered by operational UIs.
type Dashboard struct {
	GeneratedAt         time.Time            `json:"generated_at"`
	Health              Health               `json:"health"`
	Current             Metrics              `json:"current"`
	Summary             map[string]string    `json:"summary"`
	ResponseTimeHistory []Point              `json:"response_time_history"`
	MemoryHistory       []Point              `json:"memory_history"`
	ErrorRateHistory    []Point              `json:"error_rate_history"`
	QueryCountHistory   []Point              `json:"query_count_history"`
	Strategies          []StrategyComparison `json:"strategies"`
	ErrorTrend          ErrorTrend           `json:"error_trend"`
	RecentAlerts        []Alert              `json:"recent_alerts"`
}

// Report builds the performance report.
func (m *Monitor) Report() Report {
	now := m.now()
	m.mu.Lock()
	mt := m.metricsLocked()
	errs := make([]ErrorCount, 0, len(m.errors))
	for msg, n := range m.errors {
		errs = append(errs, ErrorCount{Error: msg, Count: n})
	}
	thresholds := m.opts.Thresholds
	m.mu.Unlock()

	sort.Slice(errs, func(i, j int) bool {
		if errs[i].Count != errs[j].Count {
			return errs[i].Count > errs[j].Count
		}
		return errs[i].Error < errs[j].Error
	})
	if len(errs) > topErrors {
		errs = errs[:topErrors]
	}

	return Report{
		GeneratedAt:     now,
		Uptime:          now.Sub(mt.StartedAt),
		TotalQueries:    mt.TotalQueries,
		SuccessRate:     mt.SuccessRate(),
		AvgResponseTime: mt.AvgResponseTime,
		PeakMemory:      mt.PeakMemory,
		StrategyUsage:   usage(mt),
		Strategies:      mt.Strategies,
		Complexity:      mt.Complexity,
		TopErrors:       errs,
		Recommendations: recommendations(mt, thresholds),
	}
}

func usage(mt Metrics) map[string]float64 {
	out := make(map[string]float64, len(mt.Strategies))
	for name, st := range mt.Strategies {
		if mt.TotalQueries > 0 {
			out[name] = float64(st.Queries) / float64(mt.TotalQueries) * 100
		}
	}
	return out
}

func recommendations(mt Metrics, t Thresholds) []string {
	var out []string
	if mt.TotalQueries == 0 {
		return out
	}
	if mt.SuccessRate() < 0.95 {
		out = append(out, fmt.Sprintf("success rate is %.1f%%; review the error statistics", mt.SuccessRate()*100))
	}
	if mt.AvgResponseTime > t.MaxResponseTime {
		out = append(out, fmt.Sprintf("average response time %s is above %s; enable caching or lower max_results",
			mt.AvgResponseTime.Round(time.Millisecond), t.MaxResponseTime))
	}
	if t.MaxMemoryBytes > 0 && mt.PeakMemory > t.MaxMemoryBytes*8/10 {
		out = append(out, fmt.Sprintf("peak memory %s is close to the %s limit; reduce cache sizes",
			humanize.IBytes(mt.PeakMemory), humanize.IBytes(t.MaxMemoryBytes)))
	}
	names := make([]string, 0, len(mt.Strategies))
	for name := range mt.Strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := mt.Strategies[name]
		if st.Queries >= 10 && st.ErrorRate() > 0.2 {
			out = append(out, fmt.Sprintf("strategy %s fails %.0f%% of the time; consider lowering its priority", name, st.ErrorRate()*100))
		}
		if st.AvgResponseTime > t.MaxResponseTime {
			out = append(out, fmt.Sprintf("strategy %s averages %s; consider a shorter timeout", name, st.AvgResponseTime.Round(time.Millisecond)))
		}
	}
	return out
}

// Dashboard builds the dashboard payload.
func (m *Monitor) Dashboard() Dashboard {
	now := m.now()
	m.mu.Lock()
	mt := m.metricsLocked()
	thresholds := m.opts.Thresholds
	var overall []TrendSample
	for _, s := range m.samples {
		if s.Strategy == "" {
			overall = append(overall, s)
		}
	}
	alerts := m.alerts
	if len(alerts) > 10 {
		alerts = alerts[len(alerts)-10:]
	}
	alerts = append([]Alert(nil), alerts...)
	m.mu.Unlock()

	d := Dashboard{
		GeneratedAt:  now,
		Current:      mt,
		ErrorTrend:   errorTrend(overall),
		RecentAlerts: alerts,
		Summary: map[string]string{
			"queries":           humanize.Comma(mt.TotalQueries),
			"success_rate":      fmt.Sprintf("%.1f%%", mt.SuccessRate()*100),
			"avg_response_time": mt.AvgResponseTime.Round(time.Microsecond).String(),
			"memory":            humanize.IBytes(mt.MemoryUsage),
			"peak_memory":       humanize.IBytes(mt.PeakMemory),
			"uptime":            now.Sub(mt.StartedAt).Round(time.Second).String(),
		},
	}
	for _, s := range overall {
		d.ResponseTimeHistory = append(d.ResponseTimeHistory, Point{s.Timestamp, s.AvgResponseTime.Seconds()})
		d.MemoryHistory = append(d.MemoryHistory, Point{s.Timestamp, float64(s.MemoryUsage)})
		d.ErrorRateHistory = append(d.ErrorRateHistory, Point{s.Timestamp, s.ErrorRate})
		d.QueryCountHistory = append(d.QueryCountHistory, Point{s.Timestamp, float64(s.QueryCount)})
	}

	usagePct := usage(mt)
	for name, st := range mt.Strategies {
		row := StrategyComparison{
			Strategy:        name,
			Queries:         st.Queries,
			UsagePercent:    usagePct[name],
			AvgResponseTime: st.AvgResponseTime,
			ErrorRate:       st.ErrorRate(),
		}
		if st.Queries > 0 {
			row.AvgResults = float64(st.Results) / float64(st.Queries)
		}
		d.Strategies = append(d.Strategies, row)
	}
	sort.Slice(d.Strategies, func(i, j int) bool {
		if d.Strategies[i].Queries != d.Strategies[j].Queries {
			return d.Strategies[i].Queries > d.Strategies[j].Queries
		}
		return d.Strategies[i].Strategy < d.Strategies[j].Strategy
	})

	d.Health = health(mt, overall, alerts, thresholds)
	return d
}

// errorTrend compares the mean error rate of the older and newer halves of
// the samples.
func errorTrend(samples []TrendSample) ErrorTrend {
	if len(samples) < 2 {
		return ErrorsStable
	}
	half := len(samples) / 2
	mean := func(ss []TrendSample) float64 {
		var sum float64
		for _, s := range ss {
			sum += s.ErrorRate
		}
		return sum / float64(len(ss))
	}
	older, newer := mean(samples[:half]), mean(samples[half:])
	switch {
	case newer > older*1.2 && newer-older > 0.001:
		return ErrorsIncreasing
	case newer < older*0.8 && older-newer > 0.001:
		return ErrorsDecreasing
	}
	return ErrorsStable
}

func health(mt Metrics, samples []TrendSample, alerts []Alert, t Thresholds) Health {
	errorRate := mt.ErrorRate()
	avg := mt.AvgResponseTime
	if n := len(samples); n > 0 {
		errorRate = samples[n-1].ErrorRate
		avg = samples[n-1].AvgResponseTime
	}
	for _, a := range alerts {
		if a.Severity == search.SeverityCritical && len(samples) > 0 && !a.Timestamp.Before(samples[len(samples)-1].Timestamp) {
			return HealthCritical
		}
	}
	switch {
	case errorRate > 2*t.MaxErrorRate, avg > 2*t.MaxResponseTime:
		return HealthCritical
	case errorRate > t.MaxErrorRate, avg > t.MaxResponseTime, t.MaxMemoryBytes > 0 && mt.MemoryUsage > t.MaxMemoryBytes:
		return HealthDegraded
	}
	return HealthHealthy
}
