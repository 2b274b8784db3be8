package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

// Sentinel errors for the memory stores.
var (
	ErrNotFound            = errors.New("memory: record not found")
	ErrInvalidRecord       = errors.New("memory: invalid record")
	ErrInvalidRelationship = errors.New("memory: invalid relationship")
	ErrClosed              = errors.New("memory: store closed")
)

// RecordFilter narrows a Records scan. Zero values mean "no constraint".
type RecordFilter struct {
	// Types restricts the scan to the listed tables.
	Types []MemoryType

	// Category matches the category exactly.
	Category string

	// CategoryPrefix matches the category or any of its descendants.
	CategoryPrefix string

	// Since and Until bound the creation time (inclusive).
	Since time.Time
	Until time.Time

	// Patterns are LIKE-style patterns ('%' and '_' wildcards). A record
	// matches when any pattern matches its content, summary or category,
	// ignoring case.
	Patterns []string

	// Limit caps the number of rows returned, newest first.
	Limit int
}

// HasType reports whether the filter admits t.
func (f RecordFilter) HasType(t MemoryType) bool {
	if len(f.Types) == 0 {
		return true
	}
	for _, ft := range f.Types {
		if ft == t {
			return true
		}
	}
	return false
}

// Matches evaluates the filter against a record in process.
func (f RecordFilter) Matches(r *Record) bool {
	if !f.HasType(r.MemoryType) {
		return false
	}
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.CategoryPrefix != "" && !InCategory(r.Category, f.CategoryPrefix) {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.CreatedAt.After(f.Until) {
		return false
	}
	if len(f.Patterns) > 0 {
		matched := false
		for _, p := range f.Patterns {
			if MatchPattern(p, r.Content) || MatchPattern(p, r.Summary) || MatchPattern(p, r.Category) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// InCategory reports whether category equals parent or is nested under it.
func InCategory(category, parent string) bool {
	category = strings.Trim(category, "/")
	parent = strings.Trim(parent, "/")
	if parent == "" {
		return true
	}
	return category == parent || strings.HasPrefix(category, parent+"/")
}

// SortNewestFirst orders records by creation time descending, then id.
func SortNewestFirst(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

// Store is the read contract the search layer consumes.
type Store interface {
	// Records returns rows matching the filter, newest first.
	Records(ctx context.Context, filter RecordFilter) ([]*Record, error)

	// Get returns a single record or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// Relationships returns the outgoing edges of a record.
	Relationships(ctx context.Context, id string) ([]Relationship, error)

	// Close releases store resources.
	Close() error
}

// Writer is implemented by stores that accept writes.
type Writer interface {
	Put(ctx context.Context, r *Record) error
	PutRelationship(ctx context.Context, rel Relationship) error
	Delete(ctx context.Context, id string) error
}

// FieldWeights weights the title (summary), content and category fields
// in full-text ranking.
type FieldWeights struct {
	Title    float64 `json:"title"`
	Content  float64 `json:"content"`
	Category float64 `json:"category"`
}

// DefaultFieldWeights favours the summary over body text.
func DefaultFieldWeights() FieldWeights {
	return FieldWeights{Title: 2.0, Content: 1.0, Category: 0.5}
}

// TextQuery is a ranked full-text request.
type TextQuery struct {
	Text    string
	Weights FieldWeights
	Types   []MemoryType
	Limit   int
}

// TextHit is a ranked full-text match. Score is a raw, non-negative
// relevance value where higher is better.
type TextHit struct {
	ID    string
	Score float64
}

// TextSearcher is implemented by stores with an inverted index.
type TextSearcher interface {
	SearchText(ctx context.Context, q TextQuery) ([]TextHit, error)
}
