package engine

import (
	"time"

	"github.com/goclaw/recall/pkg/cache"
	"github.com/goclaw/recall/pkg/filter"
	"github.com/goclaw/recall/pkg/monitor"
	"github.com/goclaw/recall/pkg/resilience"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// Option is a functional option for configuring the Engine.
type Option func(*settings)

type settings struct {
	logger    Logger
	metrics   MetricsRecorder
	configs   *strategyconfig.Manager
	cache     cache.Cache
	now       func() time.Time
	templates []filter.Template
	breaker   resilience.BreakerConfig
	monitor   monitor.Options
}

// WithLogger sets the logger shared by the engine's components.
func WithLogger(l Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder for the engine.
func WithMetrics(metrics MetricsRecorder) Option {
	return func(s *settings) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithConfigManager loads strategy configurations from a persistent
// manager instead of the built-in defaults.
func WithConfigManager(m *strategyconfig.Manager) Option {
	return func(s *settings) {
		if m != nil {
			s.configs = m
		}
	}
}

// WithCache replaces the default in-process LRU result cache, e.g. with a
// shared Redis cache.
func WithCache(c cache.Cache) Option {
	return func(s *settings) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithClock sets the clock used by breakers, the monitor and the filter
// processor.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFilterTemplates registers additional filter templates.
func WithFilterTemplates(templates ...filter.Template) Option {
	return func(s *settings) {
		s.templates = append(s.templates, templates...)
	}
}

// WithBreaker configures the per-strategy circuit breakers.
func WithBreaker(cfg resilience.BreakerConfig) Option {
	return func(s *settings) {
		s.breaker = cfg
	}
}

// WithMonitor configures the performance monitor. Logger, recorder and
// clock are filled in by the engine when unset.
func WithMonitor(opts monitor.Options) Option {
	return func(s *settings) {
		s.monitor = opts
	}
}
