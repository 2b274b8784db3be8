package strategy

import (
	"container/heap"
	"context"
	"errors"
	"strings"

	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// Traversal orders understood by the relationship strategy.
const (
	TraverseBFS      = "bfs"
	TraverseDFS      = "dfs"
	TraverseStrength = "strength"
)

// path is a cycle-free walk from the start record.
type path struct {
	nodes      []string
	types      []string
	strength   float64
	confidence float64
}

func (p path) last() string { return p.nodes[len(p.nodes)-1] }

func (p path) depth() int { return len(p.nodes) - 1 }

func (p path) visits(id string) bool {
	for _, n := range p.nodes {
		if n == id {
			return true
		}
	}
	return false
}

func (p path) extend(rel memory.Relationship) path {
	nodes := make([]string, len(p.nodes), len(p.nodes)+1)
	copy(nodes, p.nodes)
	types := make([]string, len(p.types), len(p.types)+1)
	copy(types, p.types)
	return path{
		nodes:      append(nodes, rel.TargetID),
		types:      append(types, rel.Type),
		strength:   p.strength * rel.Strength,
		confidence: p.confidence * rel.Confidence,
	}
}

func (p path) weight() float64 { return p.strength * p.confidence }

// frontier abstracts the traversal order.
type frontier interface {
	push(path)
	pop() path
	len() int
}

type queue struct{ items []path }

func (q *queue) push(p path) { q.items = append(q.items, p) }
func (q *queue) pop() path {
	p := q.items[0]
	q.items = q.items[1:]
	return p
}
func (q *queue) len() int { return len(q.items) }

type stack struct{ items []path }

func (s *stack) push(p path) { s.items = append(s.items, p) }
func (s *stack) pop() path {
	p := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return p
}
func (s *stack) len() int { return len(s.items) }

// pathHeap is a max-heap on path weight.
type pathHeap []path

func (h pathHeap) Len() int           { return len(h) }
func (h pathHeap) Less(i, j int) bool { return h[i].weight() > h[j].weight() }
func (h pathHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *pathHeap) Push(x any)        { *h = append(*h, x.(path)) }
func (h *pathHeap) Pop() any {
	old := *h
	n := len(old)
	p := old[n-1]
	*h = old[:n-1]
	return p
}

type strongest struct{ h pathHeap }

func (s *strongest) push(p path) { heap.Push(&s.h, p) }
func (s *strongest) pop() path   { return heap.Pop(&s.h).(path) }
func (s *strongest) len() int    { return s.h.Len() }

func newFrontier(order string) (frontier, error) {
	switch order {
	case TraverseBFS:
		return &queue{}, nil
	case TraverseDFS:
		return &stack{}, nil
	case TraverseStrength:
		return &strongest{}, nil
	}
	return nil, search.NewValidationError("traversal", "unknown traversal %q (want bfs, dfs or strength)", order)
}

// Relationship walks the relationship graph from a start record and
// scores each reached record by the strength and confidence of the best
// path to it.
type Relationship struct {
	base
}

// NewRelationship builds the relationship strategy.
func NewRelationship(store memory.Store, cfg strategyconfig.StrategyConfig) *Relationship {
	return &Relationship{
		base: newBase(strategyconfig.Relationship,
			"Graph traversal over typed, weighted relationships",
			store, cfg,
			search.CapRelevanceScoring, search.CapFiltering),
	}
}

func startID(q search.Query) (string, bool) {
	if id, ok := q.ContextString("start_id"); ok {
		return id, true
	}
	return q.FilterString("related_to")
}

func relationshipTypes(q search.Query) map[string]bool {
	v, ok := q.Context["relationship_types"]
	if !ok {
		v, ok = q.Filters["relationship_types"]
	}
	if !ok {
		return nil
	}
	types := search.ToStringSlice(v)
	if len(types) == 0 {
		return nil
	}
	out := make(map[string]bool, len(types))
	for _, t := range types {
		out[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return out
}

func (s *Relationship) CanHandle(q search.Query) bool {
	_, ok := startID(q)
	return ok
}

func (s *Relationship) Execute(ctx context.Context, q search.Query) ([]search.Result, error) {
	start, ok := startID(q)
	if !ok {
		return nil, search.NewValidationError("context.start_id", "a start record is required")
	}
	order := strings.ToLower(s.stringOpt("traversal", TraverseBFS))
	if o, ok := q.ContextString("traversal"); ok {
		order = strings.ToLower(o)
	} else if o, ok := q.FilterString("traversal"); ok {
		order = strings.ToLower(o)
	}
	front, err := newFrontier(order)
	if err != nil {
		return nil, err
	}
	types, err := memoryTypes(q)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Get(ctx, start); err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			return []search.Result{}, nil
		}
		return nil, search.WrapBackend("relationship start", err)
	}

	best, err := s.traverse(ctx, start, front, relationshipTypes(q))
	if err != nil {
		return nil, err
	}

	results := make([]search.Result, 0, len(best))
	for id, p := range best {
		r, err := s.store.Get(ctx, id)
		if errors.Is(err, memory.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, search.WrapBackend("relationship fetch", err)
		}
		if len(types) > 0 && !(memory.RecordFilter{Types: types}).HasType(r.MemoryType) {
			continue
		}
		res := s.result(r, p.weight()*s.cfg.Scoring.RelationshipWeight)
		if res.Metadata.Extra == nil {
			res.Metadata.Extra = map[string]any{}
		}
		res.Metadata.Extra["path"] = append([]string(nil), p.nodes...)
		res.Metadata.Extra["depth"] = p.depth()
		res.Metadata.Extra["path_strength"] = p.strength
		res.Metadata.Extra["path_confidence"] = p.confidence
		res.Metadata.Extra["relationship_types"] = append([]string(nil), p.types...)
		results = append(results, res)
	}
	return sortAndTrim(results, s.fetchLimit(q)), nil
}

// traverse returns the best path to every record reachable from start
// within max_depth hops, excluding start itself.
func (s *Relationship) traverse(ctx context.Context, start string, front frontier, allowed map[string]bool) (map[string]path, error) {
	maxDepth := s.intOpt("max_depth", 3)
	maxNodes := s.intOpt("max_nodes", 1000)
	minStrength := s.floatOpt("min_strength", 0.1)
	minConfidence := s.floatOpt("min_confidence", 0.1)

	best := map[string]path{}
	// minDepth tracks the shallowest arrival at each record. A weaker path
	// that arrives earlier is still expanded because it can reach records
	// the stronger, deeper path cannot within max_depth.
	minDepth := map[string]int{}
	expanded := 0
	front.push(path{nodes: []string{start}, strength: 1, confidence: 1})
	for front.len() > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := front.pop()
		if p.depth() >= maxDepth {
			continue
		}
		if maxNodes > 0 && expanded >= maxNodes {
			break
		}
		expanded++

		edges, err := s.store.Relationships(ctx, p.last())
		if err != nil {
			return nil, search.WrapBackend("relationship edges", err)
		}
		for _, rel := range edges {
			if rel.Strength < minStrength || rel.Confidence < minConfidence {
				continue
			}
			if allowed != nil && !allowed[strings.ToLower(rel.Type)] {
				continue
			}
			if p.visits(rel.TargetID) {
				continue
			}
			next := p.extend(rel)
			prev, seen := best[rel.TargetID]
			stronger := !seen || next.weight() > prev.weight()
			shallower := !seen || next.depth() < minDepth[rel.TargetID]
			if stronger {
				best[rel.TargetID] = next
			}
			if shallower {
				minDepth[rel.TargetID] = next.depth()
			}
			if stronger || shallower {
				front.push(next)
			}
		}
	}
	return best, nil
}
