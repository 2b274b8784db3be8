// Package engine is the search service: it owns the strategy registry and
// runs queries through the error handler, the result cache, the
// performance monitor and the filter processor.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goclaw/recall/pkg/cache"
	"github.com/goclaw/recall/pkg/filter"
	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/monitor"
	"github.com/goclaw/recall/pkg/resilience"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategy"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// Config holds the engine's own tunables.
type Config struct {
	// MaxStrategiesPerQuery bounds the automatic fan-out.
	MaxStrategiesPerQuery int
	// MaintenanceInterval drives trend analysis and audit compaction.
	MaintenanceInterval time.Duration
	// CacheTTL applies to the default in-process cache.
	CacheTTL time.Duration
}

// DefaultConfig returns three strategies per query and five-minute
// maintenance.
func DefaultConfig() Config {
	return Config{
		MaxStrategiesPerQuery: 3,
		MaintenanceInterval:   5 * time.Minute,
		CacheTTL:              5 * time.Minute,
	}
}

// Logger is the logging interface used by the engine and handed to its
// components.
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

// MetricsRecorder receives every observation of the engine's components;
// *metrics.Manager implements it.
type MetricsRecorder interface {
	resilience.Recorder
	monitor.Recorder
	cache.Recorder
}

// entry is one registered strategy with its active configuration.
type entry struct {
	strategy search.Strategy
	cfg      strategyconfig.StrategyConfig
	// invalid holds the configuration error that keeps the strategy out of
	// automatic selection.
	invalid error
}

// Engine is safe for concurrent use.
type Engine struct {
	cfg     Config
	store   memory.Store
	logger  Logger
	now     func() time.Time
	configs *strategyconfig.Manager
	handler *resilience.Handler
	monitor *monitor.Monitor
	filter  *filter.Processor
	cache   cache.Cache
	lru     *cache.LRU

	mu         sync.RWMutex
	strategies map[string]*entry

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds the engine over store, registering every built-in strategy.
func New(store memory.Store, cfg Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: store is required")
	}
	def := DefaultConfig()
	if cfg.MaxStrategiesPerQuery <= 0 {
		cfg.MaxStrategiesPerQuery = def.MaxStrategiesPerQuery
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = def.MaintenanceInterval
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}

	s := settings{logger: noopLogger{}, now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}

	e := &Engine{
		cfg:        cfg,
		store:      store,
		logger:     s.logger,
		now:        s.now,
		configs:    s.configs,
		strategies: make(map[string]*entry),
	}

	handlerOpts := resilience.Options{Breaker: s.breaker, Logger: s.logger, Now: s.now}
	monOpts := s.monitor
	if monOpts.Logger == nil {
		monOpts.Logger = s.logger
	}
	if monOpts.Now == nil {
		monOpts.Now = s.now
	}
	var cacheRec cache.Recorder
	if s.metrics != nil {
		handlerOpts.Recorder = s.metrics
		if monOpts.Recorder == nil {
			monOpts.Recorder = s.metrics
		}
		cacheRec = s.metrics
	}
	e.handler = resilience.NewHandler(handlerOpts)
	e.monitor = monitor.New(monOpts)

	fp, err := filter.NewProcessor(filter.Options{Logger: s.logger, Now: s.now})
	if err != nil {
		return nil, fmt.Errorf("engine: filter processor: %w", err)
	}
	for _, t := range s.templates {
		if err := fp.RegisterTemplate(t); err != nil {
			return nil, fmt.Errorf("engine: register template %s: %w", t.Name, err)
		}
	}
	e.filter = fp

	if s.cache != nil {
		e.cache = s.cache
	} else {
		e.lru = cache.NewLRU(cfg.CacheTTL, cacheRec)
		e.cache = e.lru
	}

	for _, name := range strategyconfig.Names() {
		sc, err := e.loadConfig(name)
		if err != nil {
			return nil, err
		}
		if err := e.register(name, sc); err != nil {
			return nil, err
		}
	}
	e.installRecoveryChains()
	return e, nil
}

func (e *Engine) loadConfig(name string) (strategyconfig.StrategyConfig, error) {
	if e.configs != nil {
		sc, err := e.configs.LoadOrDefault(name)
		if err != nil {
			return strategyconfig.StrategyConfig{}, fmt.Errorf("engine: load %s configuration: %w", name, err)
		}
		return sc, nil
	}
	sc, ok := strategyconfig.Default(name)
	if !ok {
		return strategyconfig.StrategyConfig{}, &search.StrategyNotFoundError{Name: name}
	}
	return sc, nil
}

// register builds and installs a strategy. A strategy whose configuration
// does not validate stays registered but is skipped by automatic
// selection.
func (e *Engine) register(name string, sc strategyconfig.StrategyConfig) error {
	s, err := strategy.New(name, e.store, sc)
	if err != nil {
		return err
	}
	ent := &entry{strategy: s, cfg: sc}
	if err := s.ValidateConfiguration(); err != nil {
		ent.invalid = err
		e.logger.Warn("strategy configuration invalid; excluded from selection", "strategy", name, "error", err)
	}
	if e.lru != nil {
		size := 0
		if sc.Performance.EnableCaching {
			size = sc.Performance.CacheSize
		}
		e.lru.Configure(name, size)
	}

	e.mu.Lock()
	e.strategies[name] = ent
	e.mu.Unlock()
	return nil
}

// installRecoveryChains wires the fallbacks used when a strategy fails
// with a recoverable error: full-text falls back to substring matching,
// temporal falls back to recency.
func (e *Engine) installRecoveryChains() {
	e.handler.SetRecoveryChain(strategyconfig.FullText, e.fallback(strategyconfig.Substring))
	e.handler.SetRecoveryChain(strategyconfig.Temporal, e.fallback(strategyconfig.Recency))
}

func (e *Engine) fallback(name string) resilience.RecoveryAction {
	return resilience.RecoveryAction{
		Name: name,
		Run: func(ctx context.Context, q search.Query) ([]search.Result, error) {
			ent, ok := e.lookup(name)
			if !ok || !ent.cfg.Enabled || !ent.strategy.CanHandle(q) {
				return nil, nil
			}
			ctx, cancel := context.WithTimeout(ctx, ent.cfg.Timeout())
			defer cancel()
			return ent.strategy.Execute(ctx, q.Clone())
		},
	}
}

func (e *Engine) lookup(name string) (*entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ent, ok := e.strategies[name]
	return ent, ok
}

// snapshot returns the registered entries ordered by priority, highest
// first, then by name.
func (e *Engine) snapshot() []*entry {
	e.mu.RLock()
	out := make([]*entry, 0, len(e.strategies))
	for _, ent := range e.strategies {
		out = append(out, ent)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].cfg.Priority != out[j].cfg.Priority {
			return out[i].cfg.Priority > out[j].cfg.Priority
		}
		return out[i].strategy.Name() < out[j].strategy.Name()
	})
	return out
}

// Start launches the performance monitor and the maintenance loop.
func (e *Engine) Start(parent context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		return fmt.Errorf("engine is already running")
	}
	ctx, cancel := context.WithCancel(parent)
	e.cancel = cancel
	e.done = make(chan struct{})

	e.monitor.Start(ctx)
	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.cfg.MaintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.maintain()
			case <-ctx.Done():
				return
			}
		}
	}()
	e.logger.Info("search engine started",
		"strategies", len(e.AvailableStrategies()),
		"maintenance_interval", e.cfg.MaintenanceInterval)
	return nil
}

// maintain runs one round of background upkeep.
func (e *Engine) maintain() {
	trends := e.handler.AnalyzeTrends()
	for _, tr := range trends {
		if tr.Direction == resilience.TrendDegrading {
			e.logger.Debug("strategy error trend degrading", "strategy", tr.Strategy, "error_rate", tr.ErrorRate)
		}
	}
	if e.configs != nil {
		if err := e.configs.CompactAudit(); err != nil {
			e.logger.Warn("audit compaction failed", "error", err)
		}
	}
}

// Stop halts background work and waits for it to exit.
func (e *Engine) Stop(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel == nil {
		return ErrNotRunning
	}
	e.cancel()
	e.monitor.Stop()
	select {
	case <-e.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	e.cancel = nil
	e.logger.Info("search engine stopped")
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (e *Engine) IsRunning() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.cancel != nil
}
