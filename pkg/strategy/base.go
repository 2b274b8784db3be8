// Package strategy implements the closed set of search strategies over a
// memory.Store: full-text, substring, recency, category, temporal,
// metadata and relationship traversal.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

const version = "1.0.0"

// Configured is implemented by every strategy in this package.
type Configured interface {
	Config() strategyconfig.StrategyConfig
}

// base carries what every strategy shares: its configuration, the store
// and its static description.
type base struct {
	name        string
	description string
	caps        []search.Capability
	cfg         strategyconfig.StrategyConfig
	store       memory.Store
	now         func() time.Time
}

func newBase(name, description string, store memory.Store, cfg strategyconfig.StrategyConfig, caps ...search.Capability) base {
	if cfg.StrategySpecific == nil {
		cfg.StrategySpecific = map[string]any{}
	}
	return base{
		name:        name,
		description: description,
		caps:        caps,
		cfg:         cfg.Clone(),
		store:       store,
		now:         time.Now,
	}
}

func (b *base) Name() string { return b.name }

// Config returns a copy of the strategy configuration.
func (b *base) Config() strategyconfig.StrategyConfig { return b.cfg.Clone() }

func (b *base) Metadata() search.StrategyMetadata {
	return search.StrategyMetadata{
		Name:         b.name,
		Version:      version,
		Description:  b.description,
		Capabilities: append([]search.Capability(nil), b.caps...),
		MemoryTypes:  append([]memory.MemoryType(nil), memory.AllMemoryTypes...),
		ConfigSchema: strategyconfig.Schema(b.name),
	}
}

func (b *base) ValidateConfiguration() error {
	if b.cfg.Name != b.name {
		return &search.ConfigurationError{
			Strategy: b.name,
			Field:    "name",
			Message:  fmt.Sprintf("configuration belongs to %q", b.cfg.Name),
		}
	}
	return strategyconfig.Validate(b.cfg)
}

func (b *base) intOpt(key string, def int) int {
	return search.IntOption(b.cfg.StrategySpecific, key, def)
}

func (b *base) floatOpt(key string, def float64) float64 {
	return search.FloatOption(b.cfg.StrategySpecific, key, def)
}

func (b *base) boolOpt(key string, def bool) bool {
	return search.BoolOption(b.cfg.StrategySpecific, key, def)
}

func (b *base) stringOpt(key, def string) string {
	return search.StringOption(b.cfg.StrategySpecific, key, def)
}

// fetchLimit is how many rows a strategy returns: enough to serve the
// requested page, capped by max_results.
func (b *base) fetchLimit(q search.Query) int {
	n := q.EffectiveLimit() + q.Offset
	if b.cfg.MaxResults > 0 && n > b.cfg.MaxResults {
		n = b.cfg.MaxResults
	}
	return n
}

func (b *base) result(r *memory.Record, score float64) search.Result {
	return search.NewResult(r, score, b.name)
}

// importanceBlend mixes a relevance value with the record importance using
// the scoring weights: base weight on relevance, importance weight on
// importance, normalised by their sum.
func (b *base) importanceBlend(relevance, importance float64) float64 {
	wb, wi := b.cfg.Scoring.BaseWeight, b.cfg.Scoring.ImportanceWeight
	if wb+wi == 0 {
		return search.ClampScore(relevance)
	}
	return search.ClampScore((wb*relevance + wi*importance) / (wb + wi))
}

// recencyFactor decays from 1 for a brand new record towards 0 over
// horizon.
func (b *base) recencyFactor(created time.Time, horizon time.Duration) float64 {
	if horizon <= 0 || created.IsZero() {
		return 0
	}
	age := b.now().Sub(created)
	if age < 0 {
		age = 0
	}
	f := 1 - float64(age)/float64(horizon)
	if f < 0 {
		return 0
	}
	return f
}

// memoryTypes reads Filters["memory_type"] as one type or a list.
func memoryTypes(q search.Query) ([]memory.MemoryType, error) {
	v, ok := q.Filter("memory_type")
	if !ok {
		return nil, nil
	}
	var out []memory.MemoryType
	for _, s := range search.ToStringSlice(v) {
		t, err := memory.ParseMemoryType(s)
		if err != nil {
			return nil, search.NewValidationError("filters.memory_type", "%v", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// sortAndTrim orders by score, importance, recency and id, then truncates.
func sortAndTrim(results []search.Result, limit int) []search.Result {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Metadata.Importance != b.Metadata.Importance {
			return a.Metadata.Importance > b.Metadata.Importance
		}
		if !a.Metadata.CreatedAt.Equal(b.Metadata.CreatedAt) {
			return a.Metadata.CreatedAt.After(b.Metadata.CreatedAt)
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
