package resilience

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/goclaw/recall/pkg/search"
)

// Logger is the logging interface used by the handler.
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

// Recorder receives breaker and error observations, typically the
// prometheus metrics manager.
type Recorder interface {
	SetBreakerState(strategy string, state float64)
	RecordStrategyError(strategy, severity string)
}

// Call is one guarded strategy invocation.
type Call struct {
	Strategy  string
	Operation string
	Query     search.Query
	// Timeout bounds Run; zero means no deadline.
	Timeout time.Duration
	Run     func(ctx context.Context) ([]search.Result, error)
}

// RecoveryAction is one step of a strategy's fallback chain.
type RecoveryAction struct {
	Name string
	Run  func(ctx context.Context, q search.Query) ([]search.Result, error)
}

// Options configures a Handler.
type Options struct {
	Breaker     BreakerConfig
	HistorySize int
	Window      time.Duration
	// RecoveryRate and RecoveryBurst throttle recovery attempts per
	// strategy.
	RecoveryRate  rate.Limit
	RecoveryBurst int
	Logger        Logger
	Recorder      Recorder
	Now           func() time.Time
}

// Stats is the error handler's administrative view.
type Stats struct {
	TotalErrors       int                     `json:"total_errors"`
	Unresolved        int                     `json:"unresolved"`
	BySeverity        map[search.Severity]int `json:"by_severity"`
	ByStrategy        map[string]int          `json:"by_strategy"`
	RecoveryAttempts  int64                   `json:"recovery_attempts"`
	RecoverySuccesses int64                   `json:"recovery_successes"`
	Breakers          []BreakerSnapshot       `json:"breakers"`
	Trends            []Trend                 `json:"trends"`
	Recommendations   []string                `json:"recommendations"`
	Recent            []ErrorEntry            `json:"recent"`
}

// Handler guards strategy calls. One breaker, limiter and recovery chain
// exist per strategy, created lazily.
type Handler struct {
	opts    Options
	logger  Logger
	now     func() time.Time
	tracker *Tracker

	mu        sync.Mutex
	breakers  map[string]*Breaker
	limiters  map[string]*rate.Limiter
	chains    map[string][]RecoveryAction
	critical  map[string]bool
	callbacks []func(Trend)

	attempts  int64
	successes int64
}

// NewHandler creates a handler.
func NewHandler(opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RecoveryRate <= 0 {
		opts.RecoveryRate = rate.Every(time.Second)
	}
	if opts.RecoveryBurst <= 0 {
		opts.RecoveryBurst = 3
	}
	if opts.Breaker.FailureThreshold <= 0 || opts.Breaker.RecoveryTimeout <= 0 {
		def := DefaultBreakerConfig()
		if opts.Breaker.FailureThreshold <= 0 {
			opts.Breaker.FailureThreshold = def.FailureThreshold
		}
		if opts.Breaker.RecoveryTimeout <= 0 {
			opts.Breaker.RecoveryTimeout = def.RecoveryTimeout
		}
	}
	return &Handler{
		opts:     opts,
		logger:   opts.Logger,
		now:      opts.Now,
		tracker:  NewTracker(opts.HistorySize, opts.Window, opts.Now),
		breakers: map[string]*Breaker{},
		limiters: map[string]*rate.Limiter{},
		chains:   map[string][]RecoveryAction{},
		critical: map[string]bool{},
	}
}

// Breaker returns the breaker of a strategy, creating it on first use.
func (h *Handler) Breaker(strategy string) *Breaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.breakers[strategy]
	if !ok {
		b = NewBreaker(strategy, h.opts.Breaker, h.now)
		h.breakers[strategy] = b
	}
	return b
}

func (h *Handler) limiter(strategy string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[strategy]
	if !ok {
		l = rate.NewLimiter(h.opts.RecoveryRate, h.opts.RecoveryBurst)
		h.limiters[strategy] = l
	}
	return l
}

// SetRecoveryChain replaces the ordered fallback actions of a strategy.
func (h *Handler) SetRecoveryChain(strategy string, actions ...RecoveryAction) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chains[strategy] = append([]RecoveryAction(nil), actions...)
}

// OnCriticalTrend registers a callback fired when a strategy's error
// trend becomes critical.
func (h *Handler) OnCriticalTrend(cb func(Trend)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.callbacks = append(h.callbacks, cb)
}

// Tracker exposes the error history.
func (h *Handler) Tracker() *Tracker { return h.tracker }

type outcome struct {
	results []search.Result
	err     error
}

// Execute runs call behind its strategy's breaker and deadline. Failures
// are tracked and classified; recoverable ones go through the recovery
// chain. Every returned failure is a *search.StrategyError, except
// breaker rejections (*search.CircuitOpenError) and caller cancellation.
func (h *Handler) Execute(ctx context.Context, call Call) ([]search.Result, error) {
	if call.Operation == "" {
		call.Operation = "execute"
	}
	br := h.Breaker(call.Strategy)
	if !br.Allow() {
		snap := br.Snapshot()
		h.logger.Debug("strategy call rejected by open breaker", "strategy", call.Strategy, "retry_at", snap.NextRetry)
		return nil, &search.CircuitOpenError{Strategy: call.Strategy, RetryAt: snap.NextRetry}
	}
	h.tracker.RecordCall(call.Strategy)

	started := h.now()
	results, err := h.run(ctx, call)
	elapsed := h.now().Sub(started)
	if err == nil {
		h.observeBreaker(call.Strategy, br.RecordSuccess())
		return results, nil
	}
	if ctx.Err() != nil && !errors.Is(err, search.ErrTimeout) {
		// The caller gave up; not the strategy's fault.
		br.Release()
		return nil, ctx.Err()
	}

	state := br.RecordFailure()
	h.observeBreaker(call.Strategy, state)
	class := Classify(call.Operation, err)
	entry := h.tracker.Track(ErrorEntry{
		Strategy: call.Strategy,
		Error:    err.Error(),
		Context: ErrorContext{
			Operation:     call.Operation,
			Query:         call.Query.Text,
			Parameters:    call.Query.Filters,
			Timestamp:     started,
			ExecutionTime: elapsed,
			Severity:      class.Severity,
			Recoverable:   class.Recoverable,
			System:        systemState(state),
		},
	})
	if h.opts.Recorder != nil {
		h.opts.Recorder.RecordStrategyError(call.Strategy, string(class.Severity))
	}
	h.logger.Warn("strategy call failed",
		"strategy", call.Strategy,
		"operation", call.Operation,
		"severity", class.Severity,
		"recoverable", class.Recoverable,
		"breaker", state,
		"error", err)
	defer h.checkTrends()

	if class.Recoverable {
		if recovered, ok := h.recover(ctx, call, entry.ID); ok {
			return recovered, nil
		}
	}
	return nil, &search.StrategyError{
		Strategy:    call.Strategy,
		Operation:   call.Operation,
		Severity:    class.Severity,
		Recoverable: class.Recoverable,
		Err:         err,
	}
}

// run invokes call.Run with a deadline, converting panics to errors. On
// timeout it returns immediately; the strategy's context is cancelled and
// its late result discarded.
func (h *Handler) run(ctx context.Context, call Call) ([]search.Result, error) {
	runCtx := ctx
	cancel := context.CancelFunc(func() {})
	if call.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, call.Timeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("strategy %s panicked: %v", call.Strategy, r)}
			}
		}()
		res, err := call.Run(runCtx)
		done <- outcome{results: res, err: err}
	}()

	timeout := func() error {
		return &search.TimeoutError{Strategy: call.Strategy, Timeout: call.Timeout}
	}
	select {
	case o := <-done:
		if o.err != nil && call.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, timeout()
		}
		return o.results, o.err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, timeout()
	}
}

// recover walks the strategy's fallback chain until an action returns a
// non-empty result.
func (h *Handler) recover(ctx context.Context, call Call, entryID string) ([]search.Result, bool) {
	h.mu.Lock()
	chain := h.chains[call.Strategy]
	h.mu.Unlock()
	if len(chain) == 0 {
		return nil, false
	}
	if !h.limiter(call.Strategy).Allow() {
		h.logger.Debug("recovery throttled", "strategy", call.Strategy)
		return nil, false
	}

	for _, action := range chain {
		if ctx.Err() != nil {
			return nil, false
		}
		h.mu.Lock()
		h.attempts++
		h.mu.Unlock()
		_ = h.tracker.Update(entryID, func(e *ErrorEntry) { e.Context.RecoveryAttempts++ })

		results, err := action.Run(ctx, call.Query)
		if err != nil {
			h.logger.Debug("recovery action failed", "strategy", call.Strategy, "action", action.Name, "error", err)
			continue
		}
		if len(results) == 0 {
			continue
		}
		h.mu.Lock()
		h.successes++
		h.mu.Unlock()
		_ = h.tracker.Update(entryID, func(e *ErrorEntry) { e.Resolved = true })
		h.logger.Info("strategy failure recovered", "strategy", call.Strategy, "action", action.Name, "results", len(results))
		return results, true
	}
	return nil, false
}

func (h *Handler) observeBreaker(strategy string, state BreakerState) {
	if h.opts.Recorder != nil {
		h.opts.Recorder.SetBreakerState(strategy, state.Gauge())
	}
}

func systemState(breaker BreakerState) SystemState {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return SystemState{
		Goroutines:   runtime.NumGoroutine(),
		HeapBytes:    ms.HeapAlloc,
		BreakerState: breaker,
	}
}

// checkTrends fires callbacks for strategies whose trend turned critical.
func (h *Handler) checkTrends() {
	trends := h.tracker.Trends()
	var fire []Trend
	h.mu.Lock()
	for _, tr := range trends {
		was := h.critical[tr.Strategy]
		h.critical[tr.Strategy] = tr.Critical
		if tr.Critical && !was {
			fire = append(fire, tr)
		}
	}
	callbacks := append(([]func(Trend))(nil), h.callbacks...)
	h.mu.Unlock()

	for _, tr := range fire {
		h.logger.Warn("strategy error trend is critical",
			"strategy", tr.Strategy,
			"error_rate", tr.ErrorRate,
			"errors", tr.Errors,
			"direction", tr.Direction)
		for _, cb := range callbacks {
			cb(tr)
		}
	}
}

// AnalyzeTrends recomputes trends and fires critical-trend callbacks.
// The engine calls it from its maintenance loop.
func (h *Handler) AnalyzeTrends() []Trend {
	h.checkTrends()
	return h.tracker.Trends()
}

// ResetBreaker closes a strategy's breaker.
func (h *Handler) ResetBreaker(strategy string) {
	b := h.Breaker(strategy)
	b.Reset()
	h.observeBreaker(strategy, StateClosed)
	h.logger.Info("circuit breaker reset", "strategy", strategy)
}

// TripBreaker forces a strategy's breaker open.
func (h *Handler) TripBreaker(strategy string) {
	b := h.Breaker(strategy)
	b.Trip()
	h.observeBreaker(strategy, StateOpen)
	h.logger.Warn("circuit breaker tripped manually", "strategy", strategy)
}

// Breakers returns snapshots of every breaker, by strategy name.
func (h *Handler) Breakers() []BreakerSnapshot {
	h.mu.Lock()
	list := make([]*Breaker, 0, len(h.breakers))
	for _, b := range h.breakers {
		list = append(list, b)
	}
	h.mu.Unlock()

	out := make([]BreakerSnapshot, 0, len(list))
	for _, b := range list {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}

// Trends returns the current error trends.
func (h *Handler) Trends() []Trend { return h.tracker.Trends() }

// Statistics summarises the tracked errors.
func (h *Handler) Statistics() Stats {
	entries := h.tracker.Entries("", 0)
	s := Stats{
		TotalErrors: len(entries),
		BySeverity:  map[search.Severity]int{},
		ByStrategy:  map[string]int{},
		Breakers:    h.Breakers(),
		Trends:      h.tracker.Trends(),
	}
	for _, e := range entries {
		if !e.Resolved {
			s.Unresolved++
		}
		s.BySeverity[e.Context.Severity]++
		s.ByStrategy[e.Strategy]++
	}
	if len(entries) > 10 {
		entries = entries[:10]
	}
	s.Recent = entries
	s.Recommendations = Recommendations(s.Trends, s.Breakers)
	h.mu.Lock()
	s.RecoveryAttempts, s.RecoverySuccesses = h.attempts, h.successes
	h.mu.Unlock()
	return s
}
