package strategyconfig

import "sort"

// Strategy names.
const (
	FullText     = "fulltext"
	Substring    = "substring"
	Recency      = "recency"
	Category     = "category"
	Temporal     = "temporal"
	Metadata     = "metadata"
	Relationship = "relationship"
)

func base(name string, priority int) StrategyConfig {
	return StrategyConfig{
		Name:       name,
		Enabled:    true,
		Priority:   priority,
		TimeoutMS:  5000,
		MaxResults: 100,
		Performance: PerformanceConfig{
			EnableCaching:     true,
			CacheSize:         500,
			ParallelExecution: true,
		},
		Scoring: ScoringConfig{
			BaseWeight:         1.0,
			RecencyWeight:      0.2,
			ImportanceWeight:   0.3,
			RelationshipWeight: 0.5,
		},
		StrategySpecific: map[string]any{},
	}
}

var builtins = map[string]func() StrategyConfig{
	FullText: func() StrategyConfig {
		c := base(FullText, 90)
		c.Performance.CacheSize = 1000
		c.StrategySpecific = map[string]any{
			"title_weight":    2.0,
			"content_weight":  1.0,
			"category_weight": 0.5,
			"min_score":       0.0,
		}
		return c
	},
	Substring: func() StrategyConfig {
		c := base(Substring, 70)
		c.StrategySpecific = map[string]any{
			"max_terms":              10,
			"min_word_length":        2,
			"enable_phrase_matching": true,
		}
		return c
	},
	Recency: func() StrategyConfig {
		c := base(Recency, 50)
		c.Scoring.RecencyWeight = 1.0
		c.StrategySpecific = map[string]any{
			"default_window": "week",
			"max_age_days":   365,
		}
		return c
	},
	Category: func() StrategyConfig {
		c := base(Category, 60)
		c.StrategySpecific = map[string]any{
			"max_hierarchy_depth":   5,
			"include_subcategories": true,
		}
		return c
	},
	Temporal: func() StrategyConfig {
		c := base(Temporal, 55)
		c.StrategySpecific = map[string]any{
			"confidence_threshold": 0.6,
			"default_range_days":   30,
		}
		return c
	},
	Metadata: func() StrategyConfig {
		c := base(Metadata, 45)
		c.StrategySpecific = map[string]any{
			"max_depth":    5,
			"strict_types": false,
		}
		return c
	},
	Relationship: func() StrategyConfig {
		c := base(Relationship, 40)
		c.TimeoutMS = 10000
		c.Scoring.RelationshipWeight = 1.0
		c.StrategySpecific = map[string]any{
			"max_depth":      3,
			"min_strength":   0.1,
			"min_confidence": 0.1,
			"traversal":      "bfs",
			"max_nodes":      1000,
		}
		return c
	},
}

// Default returns the built-in configuration for a strategy.
func Default(name string) (StrategyConfig, bool) {
	build, ok := builtins[name]
	if !ok {
		return StrategyConfig{}, false
	}
	return build(), true
}

// Names lists the strategies with built-in configurations.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known reports whether name is a built-in strategy.
func Known(name string) bool {
	_, ok := builtins[name]
	return ok
}
