package resilience

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goclaw/recall/pkg/search"
)

const (
	DefaultHistorySize = 1000
	DefaultWindow      = 24 * time.Hour

	// Trend thresholds comparing the second half of the window with the
	// first.
	degradingRatio       = 1.2
	improvingRatio       = 0.8
	criticalErrorRate    = 0.10
	investigateErrorRate = 0.5
	maxCallSamples       = 10000
)

// TrendDirection is the movement of a strategy's error count.
type TrendDirection string

const (
	TrendDegrading TrendDirection = "degrading"
	TrendStable    TrendDirection = "stable"
	TrendImproving TrendDirection = "improving"
)

// SystemState is captured with every tracked error.
type SystemState struct {
	Goroutines   int          `json:"goroutines"`
	HeapBytes    uint64       `json:"heap_bytes"`
	BreakerState BreakerState `json:"breaker_state"`
}

// ErrorContext describes the call that failed.
type ErrorContext struct {
	Operation        string          `json:"operation"`
	Query            string          `json:"query,omitempty"`
	Parameters       map[string]any  `json:"parameters,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
	ExecutionTime    time.Duration   `json:"execution_time"`
	Severity         search.Severity `json:"severity"`
	Recoverable      bool            `json:"recoverable"`
	RecoveryAttempts int             `json:"recovery_attempts"`
	System           SystemState     `json:"system"`
}

// ErrorEntry is one tracked strategy failure.
type ErrorEntry struct {
	ID       string       `json:"id"`
	Strategy string       `json:"strategy"`
	Error    string       `json:"error"`
	Context  ErrorContext `json:"context"`
	Resolved bool         `json:"resolved"`
}

// Trend summarises a strategy's errors over the analysis window.
type Trend struct {
	Strategy        string         `json:"strategy"`
	Errors          int            `json:"errors"`
	Calls           int            `json:"calls"`
	ErrorRate       float64        `json:"error_rate"`
	ResolutionRatio float64        `json:"resolution_ratio"`
	Direction       TrendDirection `json:"direction"`
	Critical        bool           `json:"critical"`
}

// Tracker keeps a bounded error history and per-strategy call samples.
type Tracker struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries []ErrorEntry
	calls   map[string][]time.Time
}

// NewTracker creates a tracker holding at most limit entries.
func NewTracker(limit int, window time.Duration, now func() time.Time) *Tracker {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{limit: limit, window: window, now: now, calls: map[string][]time.Time{}}
}

// RecordCall counts a strategy invocation for error-rate computation.
func (t *Tracker) RecordCall(strategy string) {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	samples := append(t.calls[strategy], now)
	cutoff := now.Add(-t.window)
	drop := sort.Search(len(samples), func(i int) bool { return !samples[i].Before(cutoff) })
	if over := len(samples) - drop - maxCallSamples; over > 0 {
		drop += over
	}
	t.calls[strategy] = samples[drop:]
}

// Track stores an entry, assigning its id, and returns the stored copy.
func (t *Tracker) Track(e ErrorEntry) ErrorEntry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Context.Timestamp.IsZero() {
		e.Context.Timestamp = t.now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
	if over := len(t.entries) - t.limit; over > 0 {
		t.entries = append(t.entries[:0:0], t.entries[over:]...)
	}
	return e
}

// Update applies fn to the entry with the given id.
func (t *Tracker) Update(id string, fn func(*ErrorEntry)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].ID == id {
			fn(&t.entries[i])
			return nil
		}
	}
	return fmt.Errorf("resilience: error entry %s not found", id)
}

// Entries returns tracked entries, newest first, optionally for one
// strategy only.
func (t *Tracker) Entries(strategy string, limit int) []ErrorEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []ErrorEntry
	for i := len(t.entries) - 1; i >= 0; i-- {
		e := t.entries[i]
		if strategy != "" && e.Strategy != strategy {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Len returns the number of retained entries.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Trends analyses every strategy seen in the window.
func (t *Tracker) Trends() []Trend {
	now := t.now()
	start := now.Add(-t.window)
	mid := now.Add(-t.window / 2)

	t.mu.RLock()
	defer t.mu.RUnlock()

	type acc struct {
		errors, resolved, firstHalf, secondHalf int
	}
	byStrategy := map[string]*acc{}
	for _, e := range t.entries {
		ts := e.Context.Timestamp
		if ts.Before(start) {
			continue
		}
		a := byStrategy[e.Strategy]
		if a == nil {
			a = &acc{}
			byStrategy[e.Strategy] = a
		}
		a.errors++
		if e.Resolved {
			a.resolved++
		}
		if ts.Before(mid) {
			a.firstHalf++
		} else {
			a.secondHalf++
		}
	}

	out := make([]Trend, 0, len(byStrategy))
	for name, a := range byStrategy {
		calls := 0
		for _, c := range t.calls[name] {
			if !c.Before(start) {
				calls++
			}
		}
		calls = max(calls, a.errors)
		tr := Trend{
			Strategy:        name,
			Errors:          a.errors,
			Calls:           calls,
			ErrorRate:       float64(a.errors) / float64(calls),
			ResolutionRatio: float64(a.resolved) / float64(a.errors),
			Direction:       direction(a.firstHalf, a.secondHalf),
		}
		tr.Critical = tr.Direction == TrendDegrading && tr.ErrorRate > criticalErrorRate
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}

func direction(first, second int) TrendDirection {
	f, s := float64(first), float64(second)
	switch {
	case s > f*degradingRatio:
		return TrendDegrading
	case s < f*improvingRatio:
		return TrendImproving
	}
	return TrendStable
}

// Recommendations turns trends and breaker states into operator advice.
func Recommendations(trends []Trend, breakers []BreakerSnapshot) []string {
	var out []string
	for _, tr := range trends {
		switch {
		case tr.Critical:
			out = append(out, fmt.Sprintf("consider disabling strategy %s: error rate %.0f%% and rising", tr.Strategy, tr.ErrorRate*100))
		case tr.ErrorRate > investigateErrorRate:
			out = append(out, fmt.Sprintf("investigate the backend of strategy %s: %d of %d calls failed", tr.Strategy, tr.Errors, tr.Calls))
		}
		if tr.Errors > 0 && tr.ResolutionRatio == 0 && tr.Calls > 0 {
			out = append(out, fmt.Sprintf("no recovery succeeded for strategy %s; review its fallback chain", tr.Strategy))
		}
	}
	for _, b := range breakers {
		if b.State == StateOpen {
			out = append(out, fmt.Sprintf("circuit breaker for %s is open until %s", b.Strategy, b.NextRetry.Format(time.RFC3339)))
		}
	}
	return out
}
