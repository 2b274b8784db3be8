package search

import (
	"context"
	"time"

	"github.com/goclaw/recall/pkg/memory"
)

// Strategy is one search algorithm over the memory store.
//
// Implementations must be safe for concurrent use and must not keep state
// across queries beyond read access to the store.
type Strategy interface {
	// Name returns the registry key (e.g. "fulltext").
	Name() string

	// CanHandle is a cheap admissibility check with no side effects.
	CanHandle(q Query) bool

	// Execute runs the search. Scores must lie in [0,1].
	Execute(ctx context.Context, q Query) ([]Result, error)

	// Metadata describes the strategy.
	Metadata() StrategyMetadata

	// ValidateConfiguration reports a *ConfigurationError when the
	// strategy's tunables are out of range.
	ValidateConfiguration() error
}

// Capability is something a strategy can do.
type Capability string

const (
	CapKeywordSearch    Capability = "keyword_search"
	CapSemanticSearch   Capability = "semantic_search"
	CapFiltering        Capability = "filtering"
	CapSorting          Capability = "sorting"
	CapRelevanceScoring Capability = "relevance_scoring"
	CapCategorization   Capability = "categorization"
)

// SchemaField documents one strategy-specific tunable.
type SchemaField struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// Range is a helper for building numeric schema fields.
func Range(typ, description string, min, max float64, def any) SchemaField {
	return SchemaField{Type: typ, Description: description, Min: &min, Max: &max, Default: def}
}

// PerformanceProfile holds optional measured characteristics.
type PerformanceProfile struct {
	AvgLatency      time.Duration `json:"avg_latency"`
	Throughput      float64       `json:"throughput_qps"`
	MemoryFootprint uint64        `json:"memory_footprint_bytes"`
}

// StrategyMetadata is the read-only description of a strategy.
type StrategyMetadata struct {
	Name         string                 `json:"name"`
	Version      string                 `json:"version"`
	Description  string                 `json:"description"`
	Capabilities []Capability           `json:"capabilities"`
	MemoryTypes  []memory.MemoryType    `json:"memory_types"`
	ConfigSchema map[string]SchemaField `json:"config_schema,omitempty"`
	Performance  *PerformanceProfile    `json:"performance,omitempty"`
}

// Has reports whether the strategy declares c.
func (m StrategyMetadata) Has(c Capability) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}
