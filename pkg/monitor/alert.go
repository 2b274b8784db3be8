package monitor

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/goclaw/recall/pkg/search"
)

// AlertType names the breached threshold.
type AlertType string

const (
	AlertResponseTime AlertType = "response_time"
	AlertErrorRate    AlertType = "error_rate"
	AlertMemoryUsage  AlertType = "memory_usage"
)

// Alert is a threshold breach.
type Alert struct {
	ID          string          `json:"id"`
	Type        AlertType       `json:"type"`
	Severity    search.Severity `json:"severity"`
	Message     string          `json:"message"`
	Value       float64         `json:"value"`
	Threshold   float64         `json:"threshold"`
	Suggestions []string        `json:"suggestions"`
	Timestamp   time.Time       `json:"timestamp"`
}

// SeverityForRatio grades value/threshold: above 3 critical, above 2 high,
// above 1.5 medium, otherwise low.
func SeverityForRatio(ratio float64) search.Severity {
	switch {
	case ratio > 3:
		return search.SeverityCritical
	case ratio > 2:
		return search.SeverityHigh
	case ratio > 1.5:
		return search.SeverityMedium
	}
	return search.SeverityLow
}

func evaluate(t Thresholds, avg time.Duration, errorRate float64, mem uint64, now time.Time) []Alert {
	var out []Alert
	if t.MaxResponseTime > 0 && avg > t.MaxResponseTime {
		out = append(out, newAlert(AlertResponseTime, avg.Seconds(), t.MaxResponseTime.Seconds(), now,
			fmt.Sprintf("average response time %s exceeds threshold %s", avg.Round(time.Millisecond), t.MaxResponseTime),
			"enable result caching for the slowest strategies",
			"lower max_results or tighten strategy timeouts",
			"check the memory store for lock contention"))
	}
	if t.MaxErrorRate > 0 && errorRate > t.MaxErrorRate {
		out = append(out, newAlert(AlertErrorRate, errorRate, t.MaxErrorRate, now,
			fmt.Sprintf("error rate %.1f%% exceeds threshold %.1f%%", errorRate*100, t.MaxErrorRate*100),
			"inspect the error statistics for failing strategies",
			"verify the memory store is reachable"))
	}
	if t.MaxMemoryBytes > 0 && mem > t.MaxMemoryBytes {
		out = append(out, newAlert(AlertMemoryUsage, float64(mem), float64(t.MaxMemoryBytes), now,
			fmt.Sprintf("memory usage %s exceeds threshold %s", humanize.IBytes(mem), humanize.IBytes(t.MaxMemoryBytes)),
			"reduce strategy cache sizes",
			"lower max_results for broad strategies"))
	}
	return out
}

func newAlert(typ AlertType, value, threshold float64, now time.Time, msg string, suggestions ...string) Alert {
	return Alert{
		ID:          uuid.NewString(),
		Type:        typ,
		Severity:    SeverityForRatio(value / threshold),
		Message:     msg,
		Value:       value,
		Threshold:   threshold,
		Suggestions: suggestions,
		Timestamp:   now,
	}
}
