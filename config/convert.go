package config

import (
	"github.com/goclaw/recall/pkg/cache"
	"github.com/goclaw/recall/pkg/engine"
	"github.com/goclaw/recall/pkg/metrics"
	"github.com/goclaw/recall/pkg/monitor"
	"github.com/goclaw/recall/pkg/resilience"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// ToEngineConfig converts the search and cache settings to engine.Config.
func (c *Config) ToEngineConfig() engine.Config {
	return engine.Config{
		MaxStrategiesPerQuery: c.Search.MaxStrategiesPerQuery,
		MaintenanceInterval:   c.Search.MaintenanceInterval,
		CacheTTL:              c.Cache.TTL,
	}
}

// ToBreakerConfig converts config.BreakerConfig to resilience.BreakerConfig.
func (b *BreakerConfig) ToBreakerConfig() resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold: b.FailureThreshold,
		RecoveryTimeout:  b.RecoveryTimeout,
	}
}

// Thresholds returns the alert thresholds.
func (m *MonitorConfig) Thresholds() monitor.Thresholds {
	return monitor.Thresholds{
		MaxResponseTime: m.MaxResponseTime,
		MaxErrorRate:    m.MaxErrorRate,
		MaxMemoryBytes:  m.MaxMemoryBytes,
	}
}

// ToMonitorOptions converts the monitor settings. Logger, recorder and
// clock are filled in by the engine.
func (m *MonitorConfig) ToMonitorOptions() monitor.Options {
	return monitor.Options{
		Interval:   m.Interval,
		Retention:  m.Retention,
		Thresholds: m.Thresholds(),
	}
}

// ToManagerOptions converts the strategy persistence settings.
func (s *StrategiesConfig) ToManagerOptions(log strategyconfig.Logger) strategyconfig.Options {
	return strategyconfig.Options{
		Dir:        s.Dir,
		MaxBackups: s.MaxBackups,
		AuditLimit: s.AuditLimit,
		Logger:     log,
	}
}

// ToRedisConfig converts the shared cache settings.
func (c *CacheConfig) ToRedisConfig() cache.RedisConfig {
	return cache.RedisConfig{
		KeyPrefix: c.Redis.KeyPrefix,
		TTL:       c.TTL,
	}
}

// ToMetricsConfig converts config.MetricsConfig to metrics.Config,
// keeping the default histogram buckets.
func (m *MetricsConfig) ToMetricsConfig() metrics.Config {
	cfg := metrics.DefaultConfig()
	cfg.Enabled = m.Enabled
	cfg.Port = m.Port
	cfg.Path = m.Path
	return cfg
}
