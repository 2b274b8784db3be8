// Package strategyconfig loads, validates and persists per-strategy
// tunables, with checksummed backups and an audit trail.
package strategyconfig

import (
	"encoding/json"
	"errors"
	"time"
)

// Errors returned by the manager.
var (
	ErrConfigNotFound   = errors.New("strategyconfig: configuration not found")
	ErrBackupNotFound   = errors.New("strategyconfig: backup not found")
	ErrBackupCorrupt    = errors.New("strategyconfig: backup failed integrity check")
	ErrStrategyMismatch = errors.New("strategyconfig: backup belongs to a different strategy")
)

// PerformanceConfig controls caching and parallelism.
type PerformanceConfig struct {
	EnableCaching     bool `json:"enable_caching"`
	CacheSize         int  `json:"cache_size" validate:"gte=0,lte=10000"`
	ParallelExecution bool `json:"parallel_execution"`
}

// ScoringConfig weights the score components. Each weight is in [0,2].
type ScoringConfig struct {
	BaseWeight         float64 `json:"base_weight" validate:"gte=0,lte=2"`
	RecencyWeight      float64 `json:"recency_weight" validate:"gte=0,lte=2"`
	ImportanceWeight   float64 `json:"importance_weight" validate:"gte=0,lte=2"`
	RelationshipWeight float64 `json:"relationship_weight" validate:"gte=0,lte=2"`
}

// StrategyConfig holds the tunables of one strategy.
type StrategyConfig struct {
	Name    string `json:"name" validate:"required"`
	Enabled bool   `json:"enabled"`

	// Priority orders strategies during automatic selection (higher first).
	Priority int `json:"priority" validate:"gte=0,lte=100"`

	// TimeoutMS is the per-call deadline in milliseconds.
	TimeoutMS int `json:"timeout_ms" validate:"gte=1000,lte=60000"`

	MaxResults int `json:"max_results" validate:"gte=1,lte=10000"`

	Performance PerformanceConfig `json:"performance"`
	Scoring     ScoringConfig     `json:"scoring"`

	// StrategySpecific holds the strategy's own parameters; known keys are
	// range-checked by the per-strategy rules.
	StrategySpecific map[string]any `json:"strategy_specific,omitempty"`
}

// Timeout returns TimeoutMS as a duration.
func (c StrategyConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// Clone returns a deep copy.
func (c StrategyConfig) Clone() StrategyConfig {
	out := c
	if c.StrategySpecific != nil {
		out.StrategySpecific = cloneMap(c.StrategySpecific)
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// toMap converts a config to its JSON object form.
func toMap(c StrategyConfig) (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any) (StrategyConfig, error) {
	var c StrategyConfig
	data, err := json.Marshal(m)
	if err != nil {
		return c, err
	}
	err = json.Unmarshal(data, &c)
	return c, err
}
