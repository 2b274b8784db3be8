// Package filter parses, optimises and applies boolean filter expressions
// such as
//
//	category = "work/go" AND (importance >= 0.7 OR created_at > now-7d)
//
// to search results.
package filter

import (
	"strconv"
	"strings"
	"time"
)

// Op is a comparison operator.
type Op string

// Comparison operators.
const (
	OpEq       Op = "="
	OpNe       Op = "!="
	OpGt       Op = ">"
	OpLt       Op = "<"
	OpGte      Op = ">="
	OpLte      Op = "<="
	OpLike     Op = "~"
	OpContains Op = "CONTAINS"
)

// ValueKind tags the literal type of a comparison value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindTime
	// KindRelative is an offset from the evaluation time ("now-7d").
	KindRelative
)

// Value is a literal on the right-hand side of a comparison.
type Value struct {
	Kind   ValueKind
	Str    string
	Num    float64
	Bool   bool
	Time   time.Time
	Offset time.Duration
	// Raw is the literal as written.
	Raw string
}

// Resolve returns the Go value used for comparison.
func (v Value) Resolve(now time.Time) any {
	switch v.Kind {
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	case KindTime:
		return v.Time
	case KindRelative:
		return now.Add(v.Offset)
	default:
		return v.Str
	}
}

// Temporal reports whether the value denotes a point in time.
func (v Value) Temporal() bool {
	return v.Kind == KindTime || v.Kind == KindRelative
}

func (v Value) String() string {
	if v.Kind == KindString {
		return strconv.Quote(v.Str)
	}
	return v.Raw
}

// Node is an expression tree node.
type Node interface {
	String() string
	node()
}

// And is satisfied when every child is.
type And struct{ Children []Node }

// Or is satisfied when any child is.
type Or struct{ Children []Node }

// Not negates its child.
type Not struct{ Child Node }

// Comparison is a leaf predicate: field op value.
type Comparison struct {
	Field string
	Op    Op
	Value Value
}

func (*And) node()        {}
func (*Or) node()         {}
func (*Not) node()        {}
func (*Comparison) node() {}

func joinNodes(children []Node, sep string) string {
	parts := make([]string, len(children))
	for i, c := range children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func (n *And) String() string { return joinNodes(n.Children, " AND ") }
func (n *Or) String() string  { return joinNodes(n.Children, " OR ") }
func (n *Not) String() string { return "NOT " + n.Child.String() }

func (n *Comparison) String() string {
	return n.Field + " " + string(n.Op) + " " + n.Value.String()
}

// Leaves returns the comparisons of a tree in evaluation order.
func Leaves(n Node) []*Comparison {
	var out []*Comparison
	var walk func(Node)
	walk = func(n Node) {
		switch t := n.(type) {
		case *And:
			for _, c := range t.Children {
				walk(c)
			}
		case *Or:
			for _, c := range t.Children {
				walk(c)
			}
		case *Not:
			walk(t.Child)
		case *Comparison:
			out = append(out, t)
		}
	}
	walk(n)
	return out
}
