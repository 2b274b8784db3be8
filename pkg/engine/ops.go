package engine

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/recall/pkg/filter"
	"github.com/goclaw/recall/pkg/monitor"
	"github.com/goclaw/recall/pkg/resilience"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// StrategyInfo is the administrative view of one registered strategy.
type StrategyInfo struct {
	search.StrategyMetadata
	Enabled  bool                          `json:"enabled"`
	Priority int                           `json:"priority"`
	Invalid  string                        `json:"invalid,omitempty"`
	Breaker  resilience.BreakerSnapshot    `json:"breaker"`
	Config   strategyconfig.StrategyConfig `json:"config"`
}

// DashboardData extends the monitor's dashboard with breaker and error
// trend state.
type DashboardData struct {
	monitor.Dashboard
	Breakers    []resilience.BreakerSnapshot `json:"breakers"`
	ErrorTrends []resilience.Trend           `json:"error_trends"`
}

// AvailableStrategies returns the registered strategy names in priority
// order.
func (e *Engine) AvailableStrategies() []string {
	entries := e.snapshot()
	out := make([]string, len(entries))
	for i, ent := range entries {
		out[i] = ent.strategy.Name()
	}
	return out
}

// StrategyMetadata returns a strategy's description.
func (e *Engine) StrategyMetadata(name string) (search.StrategyMetadata, error) {
	ent, ok := e.lookup(name)
	if !ok {
		return search.StrategyMetadata{}, &search.StrategyNotFoundError{Name: name}
	}
	return ent.strategy.Metadata(), nil
}

// Strategy returns the administrative view of a strategy.
func (e *Engine) Strategy(name string) (StrategyInfo, error) {
	ent, ok := e.lookup(name)
	if !ok {
		return StrategyInfo{}, &search.StrategyNotFoundError{Name: name}
	}
	return e.info(ent), nil
}

// Strategies returns every registered strategy in priority order.
func (e *Engine) Strategies() []StrategyInfo {
	entries := e.snapshot()
	out := make([]StrategyInfo, len(entries))
	for i, ent := range entries {
		out[i] = e.info(ent)
	}
	return out
}

func (e *Engine) info(ent *entry) StrategyInfo {
	info := StrategyInfo{
		StrategyMetadata: ent.strategy.Metadata(),
		Enabled:          ent.cfg.Enabled,
		Priority:         ent.cfg.Priority,
		Breaker:          e.handler.Breaker(ent.strategy.Name()).Snapshot(),
		Config:           ent.cfg.Clone(),
	}
	if ent.invalid != nil {
		info.Invalid = ent.invalid.Error()
	}
	return info
}

// PerformanceReport returns the monitor's report.
func (e *Engine) PerformanceReport() monitor.Report {
	return e.monitor.Report()
}

// DashboardData returns the operational dashboard.
func (e *Engine) DashboardData() DashboardData {
	return DashboardData{
		Dashboard:   e.monitor.Dashboard(),
		Breakers:    e.handler.Breakers(),
		ErrorTrends: e.handler.Trends(),
	}
}

// OnPerformanceAlert registers a callback for threshold alerts.
func (e *Engine) OnPerformanceAlert(cb func(monitor.Alert)) {
	e.monitor.OnAlert(cb)
}

// SetThresholds replaces the monitor's alert thresholds.
func (e *Engine) SetThresholds(t monitor.Thresholds) {
	e.monitor.SetThresholds(t)
}

// CollectMetrics takes a monitor snapshot immediately and returns the
// alerts it raised.
func (e *Engine) CollectMetrics() []monitor.Alert {
	return e.monitor.Collect()
}

// ErrorStatistics returns the error handler's view.
func (e *Engine) ErrorStatistics() resilience.Stats {
	return e.handler.Statistics()
}

// ResetBreaker closes a strategy's breaker.
func (e *Engine) ResetBreaker(name string) error {
	if _, ok := e.lookup(name); !ok {
		return &search.StrategyNotFoundError{Name: name}
	}
	e.handler.ResetBreaker(name)
	e.logger.Info("circuit breaker reset", "strategy", name)
	return nil
}

// TripBreaker forces a strategy's breaker open.
func (e *Engine) TripBreaker(name string) error {
	if _, ok := e.lookup(name); !ok {
		return &search.StrategyNotFoundError{Name: name}
	}
	e.handler.TripBreaker(name)
	e.logger.Warn("circuit breaker tripped", "strategy", name)
	return nil
}

// AuditHistory returns configuration audit entries, newest first. An
// empty strategy matches all; limit <= 0 means no limit.
func (e *Engine) AuditHistory(strategy string, limit int) []strategyconfig.AuditEntry {
	if e.configs == nil {
		return nil
	}
	return e.configs.History(strategyconfig.AuditFilter{Strategy: strategy, Limit: limit})
}

// Configs returns the configuration manager, or nil when the engine runs
// on built-in defaults.
func (e *Engine) Configs() *strategyconfig.Manager { return e.configs }

// Filter returns the filter processor.
func (e *Engine) Filter() *filter.Processor { return e.filter }

// Templates lists the registered filter templates.
func (e *Engine) Templates() []filter.Template { return e.filter.Templates() }

// ReloadStrategy re-reads a strategy's configuration from disk, rebuilds
// the strategy and swaps it in. Its cached results are purged.
func (e *Engine) ReloadStrategy(ctx context.Context, name string) error {
	if _, ok := e.lookup(name); !ok {
		return &search.StrategyNotFoundError{Name: name}
	}
	ctx, span := tracer().Start(ctx, spanReloadStrategy, trace.WithAttributes(attribute.String("strategy", name)))
	defer span.End()

	if e.configs != nil {
		e.configs.Invalidate(name)
	}
	sc, err := e.loadConfig(name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return e.install(ctx, name, sc)
}

// UpdateStrategy merges overrides into a strategy's stored configuration
// and applies the result.
func (e *Engine) UpdateStrategy(ctx context.Context, name string, overrides map[string]any) (strategyconfig.StrategyConfig, error) {
	if e.configs == nil {
		return strategyconfig.StrategyConfig{}, fmt.Errorf("engine: no configuration manager")
	}
	if _, ok := e.lookup(name); !ok {
		return strategyconfig.StrategyConfig{}, &search.StrategyNotFoundError{Name: name}
	}
	sc, err := e.configs.Update(name, overrides)
	if err != nil {
		return strategyconfig.StrategyConfig{}, err
	}
	return sc, e.install(ctx, name, sc)
}

// RestoreStrategy restores a configuration backup and applies it.
func (e *Engine) RestoreStrategy(ctx context.Context, name, backupID string) (strategyconfig.StrategyConfig, error) {
	if e.configs == nil {
		return strategyconfig.StrategyConfig{}, fmt.Errorf("engine: no configuration manager")
	}
	if _, ok := e.lookup(name); !ok {
		return strategyconfig.StrategyConfig{}, &search.StrategyNotFoundError{Name: name}
	}
	sc, err := e.configs.Restore(name, backupID)
	if err != nil {
		return strategyconfig.StrategyConfig{}, err
	}
	return sc, e.install(ctx, name, sc)
}

func (e *Engine) install(ctx context.Context, name string, sc strategyconfig.StrategyConfig) error {
	if err := e.register(name, sc); err != nil {
		return err
	}
	if err := e.cache.Purge(ctx, name); err != nil {
		e.logger.Warn("purge cached results failed", "strategy", name, "error", err)
	}
	e.logger.Info("strategy configuration applied",
		"strategy", name,
		"enabled", sc.Enabled,
		"priority", sc.Priority)
	return nil
}

// EnabledStrategies returns the names of the strategies eligible for
// automatic selection, sorted alphabetically.
func (e *Engine) EnabledStrategies() []string {
	var out []string
	for _, ent := range e.snapshot() {
		if ent.cfg.Enabled && ent.invalid == nil {
			out = append(out, ent.strategy.Name())
		}
	}
	sort.Strings(out)
	return out
}
