package filter

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/goclaw/recall/pkg/search"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ParamKind hints the literal type a template parameter expands to.
type ParamKind string

const (
	ParamString ParamKind = "string"
	ParamNumber ParamKind = "number"
)

// Param declares a template parameter. Optional parameters carry a
// default.
type Param struct {
	Name        string    `json:"name"`
	Kind        ParamKind `json:"kind"`
	Required    bool      `json:"required"`
	Default     string    `json:"default,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Template is a named, parameterised filter expression. Placeholders are
// written {name} and substituted textually.
type Template struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Expression  string  `json:"expression"`
	Params      []Param `json:"params"`
}

// BuiltinTemplates returns the templates every processor starts with.
func BuiltinTemplates() []Template {
	return []Template{
		{
			Name:        "recent_and_important",
			Description: "Results from the last N days with at least the given importance",
			Expression:  "created_at >= now-{days}d AND importance >= {min_importance}",
			Params: []Param{
				{Name: "days", Kind: ParamNumber, Default: "7"},
				{Name: "min_importance", Kind: ParamNumber, Default: "0.7"},
			},
		},
		{
			Name:        "category_within_days",
			Description: "Results in a category created within the last N days",
			Expression:  `category = "{category}" AND created_at >= now-{days}d`,
			Params: []Param{
				{Name: "category", Kind: ParamString, Required: true},
				{Name: "days", Kind: ParamNumber, Default: "30"},
			},
		},
		{
			Name:        "short_term_only",
			Description: "Only short-term memories",
			Expression:  `memory_type = "short_term"`,
		},
		{
			Name:        "high_confidence",
			Description: "Results scoring at least the given threshold",
			Expression:  "score >= {min_score}",
			Params: []Param{
				{Name: "min_score", Kind: ParamNumber, Default: "0.8"},
			},
		},
	}
}

func (t Template) referenced() map[string]bool {
	out := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(t.Expression, -1) {
		out[m[1]] = true
	}
	return out
}

func sampleValue(p Param) string {
	if p.Default != "" {
		return p.Default
	}
	if p.Kind == ParamNumber {
		return "1"
	}
	return "x"
}

// Validate checks that placeholders and declared parameters agree and
// that the expression parses once expanded.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return search.NewValidationError("template.name", "is required")
	}
	declared := map[string]bool{}
	for _, p := range t.Params {
		if p.Name == "" {
			return search.NewValidationError("template.params", "template %q has a parameter without a name", t.Name)
		}
		if declared[p.Name] {
			return search.NewValidationError("template.params", "template %q declares %q twice", t.Name, p.Name)
		}
		if !p.Required && p.Default == "" {
			return search.NewValidationError("template.params", "optional parameter %q of template %q needs a default", p.Name, t.Name)
		}
		if p.Kind == ParamNumber && p.Default != "" && !isNumber(p.Default) {
			return search.NewValidationError("template.params", "default of %q in template %q is not a number", p.Name, t.Name)
		}
		declared[p.Name] = true
	}
	used := t.referenced()
	for name := range used {
		if !declared[name] {
			return search.NewValidationError("template.expression", "template %q references undeclared parameter %q", t.Name, name)
		}
	}
	for name := range declared {
		if !used[name] {
			return search.NewValidationError("template.params", "template %q declares unused parameter %q", t.Name, name)
		}
	}

	samples := make(map[string]string, len(t.Params))
	for _, p := range t.Params {
		samples[p.Name] = sampleValue(p)
	}
	if err := Validate(substitute(t.Expression, samples)); err != nil {
		return search.NewValidationError("template.expression", "template %q: %v", t.Name, err)
	}
	return nil
}

// Expand substitutes args into the template. Missing required
// parameters and unknown arguments are validation errors.
func (t Template) Expand(args map[string]string) (string, error) {
	values := make(map[string]string, len(t.Params))
	known := map[string]bool{}
	for _, p := range t.Params {
		known[p.Name] = true
		v, ok := args[p.Name]
		switch {
		case ok:
			if p.Kind == ParamNumber && !isNumber(v) {
				return "", search.NewValidationError("template."+p.Name, "parameter of template %q must be a number, got %q", t.Name, v)
			}
			values[p.Name] = v
		case p.Required:
			return "", search.NewValidationError("template."+p.Name, "required parameter of template %q is missing", t.Name)
		default:
			values[p.Name] = p.Default
		}
	}
	var unknown []string
	for k := range args {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return "", search.NewValidationError("template.params", "template %q has no parameter %s", t.Name, strings.Join(unknown, ", "))
	}
	expr := substitute(t.Expression, values)
	if err := Validate(expr); err != nil {
		return "", err
	}
	return expr, nil
}

func isNumber(v string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func substitute(expr string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(expr, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := values[name]
		if !ok {
			return m
		}
		return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v)
	})
}

// RegisterTemplate validates and stores t, replacing any template with the
// same name.
func (p *Processor) RegisterTemplate(t Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.templates[t.Name] = t
	p.mu.Unlock()
	return nil
}

// Template returns a registered template.
func (p *Processor) Template(name string) (Template, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.templates[name]
	return t, ok
}

// Templates lists registered templates by name.
func (p *Processor) Templates() []Template {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Template, 0, len(p.templates))
	for _, t := range p.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ExpandTemplate expands the named template with args.
func (p *Processor) ExpandTemplate(name string, args map[string]string) (string, error) {
	t, ok := p.Template(name)
	if !ok {
		return "", search.NewValidationError("filter_template", "unknown template %q", name)
	}
	return t.Expand(args)
}

// ApplyTemplate expands the named template and applies it.
func (p *Processor) ApplyTemplate(ctx context.Context, results []search.Result, name string, args map[string]string) ([]search.Result, error) {
	expr, err := p.ExpandTemplate(name, args)
	if err != nil {
		return nil, err
	}
	return p.Apply(ctx, results, expr)
}
