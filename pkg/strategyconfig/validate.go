package strategyconfig

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/goclaw/recall/pkg/search"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

type kind int

const (
	kindInt kind = iota
	kindFloat
	kindBool
	kindEnum
)

// rule range-checks one strategy_specific key.
type rule struct {
	key         string
	kind        kind
	min, max    float64
	enum        []string
	description string
}

var strategyRules = map[string][]rule{
	FullText: {
		{key: "title_weight", kind: kindFloat, min: 0, max: 10, description: "weight of the summary field"},
		{key: "content_weight", kind: kindFloat, min: 0, max: 10, description: "weight of the content field"},
		{key: "category_weight", kind: kindFloat, min: 0, max: 10, description: "weight of the category field"},
		{key: "min_score", kind: kindFloat, min: 0, max: 1, description: "drop hits scoring below this value"},
	},
	Substring: {
		{key: "max_terms", kind: kindInt, min: 1, max: 50, description: "maximum query words turned into predicates"},
		{key: "min_word_length", kind: kindInt, min: 1, max: 20, description: "shorter words are ignored"},
		{key: "enable_phrase_matching", kind: kindBool, description: "treat quoted text as a phrase"},
	},
	Recency: {
		{key: "default_window", kind: kindEnum, enum: []string{"recent", "today", "week", "month"}, description: "window used when the query names none"},
		{key: "max_age_days", kind: kindInt, min: 1, max: 3650, description: "records older than this are never returned"},
	},
	Category: {
		{key: "max_hierarchy_depth", kind: kindInt, min: 1, max: 10, description: "category levels considered"},
		{key: "include_subcategories", kind: kindBool, description: "match descendants of the requested category"},
	},
	Temporal: {
		{key: "confidence_threshold", kind: kindFloat, min: 0, max: 1, description: "minimum parse confidence"},
		{key: "default_range_days", kind: kindInt, min: 1, max: 3650, description: "range for open-ended expressions"},
	},
	Metadata: {
		{key: "max_depth", kind: kindInt, min: 1, max: 10, description: "maximum dotted path depth"},
		{key: "strict_types", kind: kindBool, description: "require exact JSON type equality"},
	},
	Relationship: {
		{key: "max_depth", kind: kindInt, min: 1, max: 10, description: "maximum traversal depth"},
		{key: "min_strength", kind: kindFloat, min: 0, max: 1, description: "edges weaker than this are pruned"},
		{key: "min_confidence", kind: kindFloat, min: 0, max: 1, description: "edges less certain than this are pruned"},
		{key: "traversal", kind: kindEnum, enum: []string{"bfs", "dfs", "strength"}, description: "traversal order"},
		{key: "max_nodes", kind: kindInt, min: 1, max: 100000, description: "maximum records visited"},
	},
}

// Validate checks every range of cfg. All violations are returned joined;
// each is a *search.ConfigurationError.
func Validate(cfg StrategyConfig) error {
	var errs []error

	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, &search.ConfigurationError{
				Strategy: cfg.Name,
				Field:    fieldPath(fe),
				Message:  fmt.Sprintf("%s (got %v)", formatFieldError(fe), fe.Value()),
			})
		}
	}

	if cfg.Name != "" && !Known(cfg.Name) {
		errs = append(errs, &search.ConfigurationError{Strategy: cfg.Name, Field: "name", Message: "unknown strategy"})
	}

	for _, r := range strategyRules[cfg.Name] {
		v, ok := cfg.StrategySpecific[r.key]
		if !ok {
			continue
		}
		if msg := r.check(v); msg != "" {
			errs = append(errs, &search.ConfigurationError{
				Strategy: cfg.Name,
				Field:    "strategy_specific." + r.key,
				Message:  msg,
			})
		}
	}

	return errors.Join(errs...)
}

func (r rule) check(v any) string {
	switch r.kind {
	case kindBool:
		if _, ok := v.(bool); !ok {
			return fmt.Sprintf("must be a boolean (got %v)", v)
		}
	case kindEnum:
		s, _ := v.(string)
		for _, allowed := range r.enum {
			if s == allowed {
				return ""
			}
		}
		return fmt.Sprintf("must be one of [%s] (got %v)", strings.Join(r.enum, " "), v)
	case kindInt, kindFloat:
		f, ok := search.ToFloat(v)
		if !ok {
			return fmt.Sprintf("must be a number (got %v)", v)
		}
		if r.kind == kindInt && f != float64(int64(f)) {
			return fmt.Sprintf("must be an integer (got %v)", v)
		}
		if f < r.min || f > r.max {
			return fmt.Sprintf("must be between %g and %g (got %v)", r.min, r.max, v)
		}
	}
	return ""
}

// Schema describes the strategy_specific keys of a strategy.
func Schema(name string) map[string]search.SchemaField {
	rules := strategyRules[name]
	if len(rules) == 0 {
		return nil
	}
	def, _ := Default(name)
	out := make(map[string]search.SchemaField, len(rules))
	for _, r := range rules {
		d := def.StrategySpecific[r.key]
		switch r.kind {
		case kindInt:
			out[r.key] = search.Range("integer", r.description, r.min, r.max, d)
		case kindFloat:
			out[r.key] = search.Range("number", r.description, r.min, r.max, d)
		case kindBool:
			out[r.key] = search.SchemaField{Type: "boolean", Description: r.description, Default: d}
		case kindEnum:
			out[r.key] = search.SchemaField{Type: "string", Description: r.description, Enum: r.enum, Default: d}
		}
	}
	return out
}

// fieldPath drops the root struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func formatFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be less than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
