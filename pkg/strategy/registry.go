package strategy

import (
	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

type constructor func(memory.Store, strategyconfig.StrategyConfig) search.Strategy

var constructors = map[string]constructor{
	strategyconfig.FullText: func(s memory.Store, c strategyconfig.StrategyConfig) search.Strategy {
		return NewFullText(s, c)
	},
	strategyconfig.Substring: func(s memory.Store, c strategyconfig.StrategyConfig) search.Strategy {
		return NewSubstring(s, c)
	},
	strategyconfig.Recency: func(s memory.Store, c strategyconfig.StrategyConfig) search.Strategy {
		return NewRecency(s, c)
	},
	strategyconfig.Category: func(s memory.Store, c strategyconfig.StrategyConfig) search.Strategy {
		return NewCategory(s, c)
	},
	strategyconfig.Temporal: func(s memory.Store, c strategyconfig.StrategyConfig) search.Strategy {
		return NewTemporal(s, c)
	},
	strategyconfig.Metadata: func(s memory.Store, c strategyconfig.StrategyConfig) search.Strategy {
		return NewMetadata(s, c)
	},
	strategyconfig.Relationship: func(s memory.Store, c strategyconfig.StrategyConfig) search.Strategy {
		return NewRelationship(s, c)
	},
}

// New builds the named strategy over store with cfg. It returns a
// *search.StrategyNotFoundError for names outside the built-in set.
func New(name string, store memory.Store, cfg strategyconfig.StrategyConfig) (search.Strategy, error) {
	ctor, ok := constructors[name]
	if !ok {
		return nil, &search.StrategyNotFoundError{Name: name}
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	return ctor(store, cfg), nil
}

// Defaults builds every built-in strategy with its default configuration,
// in name order.
func Defaults(store memory.Store) []search.Strategy {
	names := strategyconfig.Names()
	out := make([]search.Strategy, 0, len(names))
	for _, name := range names {
		cfg, _ := strategyconfig.Default(name)
		s, err := New(name, store, cfg)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}
