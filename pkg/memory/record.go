// Package memory defines the record model searched by recall, the store
// contract the search layer reads through, and an in-process store with a
// field-weighted BM25 index.
package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MemoryType separates short-lived conversational records from
// consolidated long-lived ones.
type MemoryType string

const (
	// ShortTerm records live in the short-term table.
	ShortTerm MemoryType = "short_term"
	// LongTerm records live in the long-term table.
	LongTerm MemoryType = "long_term"
)

// AllMemoryTypes lists every memory type in table order.
var AllMemoryTypes = []MemoryType{ShortTerm, LongTerm}

// Valid reports whether t is a known memory type.
func (t MemoryType) Valid() bool {
	return t == ShortTerm || t == LongTerm
}

// ParseMemoryType parses a memory type, accepting the short aliases
// "short" and "long".
func ParseMemoryType(s string) (MemoryType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short_term", "short", "short-term":
		return ShortTerm, nil
	case "long_term", "long", "long-term":
		return LongTerm, nil
	default:
		return "", fmt.Errorf("memory: unknown memory type %q", s)
	}
}

// Record is a single stored memory row.
type Record struct {
	// ID is the unique record identifier.
	ID string `json:"id"`

	// Content is the raw text of the memory.
	Content string `json:"content"`

	// Summary is an optional short title for the memory.
	Summary string `json:"summary,omitempty"`

	// Metadata holds the decoded metadata JSON blob.
	Metadata map[string]any `json:"metadata,omitempty"`

	// MemoryType selects the table the record belongs to.
	MemoryType MemoryType `json:"memory_type"`

	// Category is the primary category as a slash separated path.
	Category string `json:"category,omitempty"`

	// Importance is the stored importance in [0,1].
	Importance float64 `json:"importance"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks the invariants a store relies on.
func (r *Record) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidRecord)
	}
	if !r.MemoryType.Valid() {
		return fmt.Errorf("%w: unknown memory type %q", ErrInvalidRecord, r.MemoryType)
	}
	if r.Importance < 0 || r.Importance > 1 {
		return fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidRecord, r.Importance)
	}
	return nil
}

// MetadataJSON encodes the metadata map the way the tables store it.
func (r *Record) MetadataJSON() ([]byte, error) {
	if len(r.Metadata) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Metadata)
}

// SetMetadataJSON decodes a metadata blob. Empty and "null" blobs clear the map.
func (r *Record) SetMetadataJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		r.Metadata = nil
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("memory: decode metadata for %s: %w", r.ID, err)
	}
	r.Metadata = m
	return nil
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Metadata != nil {
		c.Metadata = cloneMap(r.Metadata)
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		s := make([]any, len(t))
		for i := range t {
			s[i] = cloneValue(t[i])
		}
		return s
	default:
		return v
	}
}

// Relationship is a directed, typed, weighted edge between two records.
type Relationship struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Type       string  `json:"type"`
	Strength   float64 `json:"strength"`
	Confidence float64 `json:"confidence"`
}

// Validate checks the edge endpoints and weight ranges.
func (r Relationship) Validate() error {
	if r.SourceID == "" || r.TargetID == "" {
		return fmt.Errorf("%w: source and target are required", ErrInvalidRelationship)
	}
	if r.SourceID == r.TargetID {
		return fmt.Errorf("%w: self edge on %s", ErrInvalidRelationship, r.SourceID)
	}
	if r.Strength < 0 || r.Strength > 1 {
		return fmt.Errorf("%w: strength %v outside [0,1]", ErrInvalidRelationship, r.Strength)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidRelationship, r.Confidence)
	}
	return nil
}
