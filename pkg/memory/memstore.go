package memory

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-process Store with a BM25 index. It is the default
// backend and the reference implementation the persistent stores follow.
type MemStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	edges   map[string][]Relationship
	index   *BM25Index
	closed  bool
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		records: make(map[string]*Record),
		edges:   make(map[string][]Relationship),
		index:   NewBM25Index(1.5, 0.75),
	}
}

var (
	_ Store        = (*MemStore)(nil)
	_ Writer       = (*MemStore)(nil)
	_ TextSearcher = (*MemStore)(nil)
)

// Put inserts or replaces a record.
func (s *MemStore) Put(ctx context.Context, r *Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	c := r.Clone()
	s.records[c.ID] = c
	s.index.Index(c)
	return nil
}

// PutRelationship adds or replaces the edge (source, target, type).
func (s *MemStore) PutRelationship(ctx context.Context, rel Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	edges := s.edges[rel.SourceID]
	for i, e := range edges {
		if e.TargetID == rel.TargetID && e.Type == rel.Type {
			edges[i] = rel
			return nil
		}
	}
	s.edges[rel.SourceID] = append(edges, rel)
	return nil
}

// Delete removes a record and every edge touching it.
func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.records, id)
	delete(s.edges, id)
	for src, edges := range s.edges {
		kept := edges[:0]
		for _, e := range edges {
			if e.TargetID != id {
				kept = append(kept, e)
			}
		}
		s.edges[src] = kept
	}
	s.index.Remove(id)
	return nil
}

// Records scans the store with the filter applied in process.
func (s *MemStore) Records(ctx context.Context, filter RecordFilter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if filter.Matches(r) {
			out = append(out, r.Clone())
		}
	}
	SortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Get returns a copy of the record with the given id.
func (s *MemStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.Clone(), nil
}

// Relationships returns the outgoing edges of id.
func (s *MemStore) Relationships(ctx context.Context, id string) ([]Relationship, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return append([]Relationship(nil), s.edges[id]...), nil
}

// SearchText ranks records with the BM25 index.
func (s *MemStore) SearchText(ctx context.Context, q TextQuery) ([]TextHit, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, ErrClosed
	}
	return s.index.Search(q.Text, q.Weights, q.Limit, q.Types), nil
}

// Len returns the number of stored records.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close marks the store closed.
func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
