package filter

import "sort"

// Fields with a per-call value index; equality on them is the cheapest
// predicate.
var indexedFields = map[string]bool{
	"category":    true,
	"memory_type": true,
	"strategy":    true,
	"id":          true,
}

// Predicate costs, cheapest first.
const (
	costIndexed = iota
	costOrdered
	costText
	costOther
)

func (c *Comparison) indexed() bool {
	return c.Op == OpEq && indexedFields[c.Field] && c.Value.Kind == KindString
}

// temporal reports whether the comparison constrains a point in time.
func (c *Comparison) temporal() bool {
	return c.Value.Temporal() || c.Field == "created_at"
}

func cost(n Node) int {
	switch t := n.(type) {
	case *Comparison:
		switch {
		case t.indexed():
			return costIndexed
		case t.Op == OpLike || t.Op == OpContains:
			return costText
		case t.Value.Kind == KindNumber || t.Value.Temporal() || (t.Op != OpEq && t.Op != OpNe):
			return costOrdered
		default:
			return costOther
		}
	case *Not:
		return cost(t.Child)
	case *And:
		c := costIndexed
		for _, child := range t.Children {
			c = max(c, cost(child))
		}
		return c
	case *Or:
		c := costIndexed
		for _, child := range t.Children {
			c = max(c, cost(child))
		}
		return c + 1
	}
	return costOther
}

// Optimize flattens nested AND/OR chains, removes double negation and
// orders AND children by estimated cost. The result is equivalent to n.
func Optimize(n Node) Node {
	switch t := n.(type) {
	case *Not:
		child := Optimize(t.Child)
		if inner, ok := child.(*Not); ok {
			return inner.Child
		}
		return &Not{Child: child}
	case *And:
		var children []Node
		for _, c := range t.Children {
			c = Optimize(c)
			if nested, ok := c.(*And); ok {
				children = append(children, nested.Children...)
			} else {
				children = append(children, c)
			}
		}
		sort.SliceStable(children, func(i, j int) bool { return cost(children[i]) < cost(children[j]) })
		return &And{Children: children}
	case *Or:
		var children []Node
		for _, c := range t.Children {
			c = Optimize(c)
			if nested, ok := c.(*Or); ok {
				children = append(children, nested.Children...)
			} else {
				children = append(children, c)
			}
		}
		return &Or{Children: children}
	}
	return n
}

// indexedConjuncts returns the indexed equality predicates that every
// matching result must satisfy: the tree itself or top-level AND children.
func indexedConjuncts(n Node) []*Comparison {
	switch t := n.(type) {
	case *Comparison:
		if t.indexed() {
			return []*Comparison{t}
		}
	case *And:
		var out []*Comparison
		for _, c := range t.Children {
			if cmp, ok := c.(*Comparison); ok && cmp.indexed() {
				out = append(out, cmp)
			}
		}
		return out
	}
	return nil
}
