// Package bleveindex decorates any memory.Store with a bleve inverted index
// so stores without native full-text search gain field-boosted ranking.
package bleveindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/goclaw/recall/pkg/memory"
)

// ErrReadOnly is returned by writes when the wrapped store is not a Writer.
var ErrReadOnly = errors.New("bleveindex: wrapped store is read-only")

type document struct {
	Summary    string    `json:"summary"`
	Content    string    `json:"content"`
	Category   string    `json:"category"`
	MemoryType string    `json:"memory_type"`
	CreatedAt  time.Time `json:"created_at"`
}

func toDocument(r *memory.Record) document {
	return document{
		Summary:    r.Summary,
		Content:    r.Content,
		Category:   strings.ReplaceAll(r.Category, "/", " "),
		MemoryType: string(r.MemoryType),
		CreatedAt:  r.CreatedAt,
	}
}

// Index is a memory.Store whose SearchText is served by bleve.
type Index struct {
	memory.Store
	index bleve.Index
}

var (
	_ memory.Store        = (*Index)(nil)
	_ memory.Writer       = (*Index)(nil)
	_ memory.TextSearcher = (*Index)(nil)
)

func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name

	keywordField := bleve.NewKeywordFieldMapping()
	dateField := bleve.NewDateTimeFieldMapping()

	docMapping.AddFieldMappingsAt("summary", textField)
	docMapping.AddFieldMappingsAt("content", textField)
	docMapping.AddFieldMappingsAt("category", textField)
	docMapping.AddFieldMappingsAt("memory_type", keywordField)
	docMapping.AddFieldMappingsAt("created_at", dateField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// New wraps store. An empty path keeps the index in memory; otherwise the
// index is created or reopened at path. Call Rebuild to index existing rows.
func New(store memory.Store, path string) (*Index, error) {
	var (
		idx bleve.Index
		err error
	)
	switch {
	case path == "":
		idx, err = bleve.NewMemOnly(buildIndexMapping())
	default:
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			idx, err = bleve.New(path, buildIndexMapping())
		} else {
			idx, err = bleve.Open(path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("bleveindex: open index: %w", err)
	}
	return &Index{Store: store, index: idx}, nil
}

// Rebuild indexes every record currently in the wrapped store.
func (i *Index) Rebuild(ctx context.Context) error {
	records, err := i.Store.Records(ctx, memory.RecordFilter{})
	if err != nil {
		return fmt.Errorf("bleveindex: scan store: %w", err)
	}
	batch := i.index.NewBatch()
	for _, r := range records {
		if err := batch.Index(r.ID, toDocument(r)); err != nil {
			return fmt.Errorf("bleveindex: batch %s: %w", r.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("bleveindex: apply batch: %w", err)
	}
	return nil
}

func (i *Index) writer() (memory.Writer, error) {
	w, ok := i.Store.(memory.Writer)
	if !ok {
		return nil, ErrReadOnly
	}
	return w, nil
}

// Put writes through to the wrapped store and indexes the record.
func (i *Index) Put(ctx context.Context, r *memory.Record) error {
	w, err := i.writer()
	if err != nil {
		return err
	}
	if err := w.Put(ctx, r); err != nil {
		return err
	}
	if err := i.index.Index(r.ID, toDocument(r)); err != nil {
		return fmt.Errorf("bleveindex: index %s: %w", r.ID, err)
	}
	return nil
}

// PutRelationship writes through to the wrapped store.
func (i *Index) PutRelationship(ctx context.Context, rel memory.Relationship) error {
	w, err := i.writer()
	if err != nil {
		return err
	}
	return w.PutRelationship(ctx, rel)
}

// Delete removes the record from the store and the index.
func (i *Index) Delete(ctx context.Context, id string) error {
	w, err := i.writer()
	if err != nil {
		return err
	}
	if err := w.Delete(ctx, id); err != nil {
		return err
	}
	if err := i.index.Delete(id); err != nil {
		return fmt.Errorf("bleveindex: unindex %s: %w", id, err)
	}
	return nil
}

// SearchText runs one boosted match query per weighted field.
func (i *Index) SearchText(ctx context.Context, q memory.TextQuery) ([]memory.TextHit, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, nil
	}

	fields := []struct {
		name   string
		weight float64
	}{
		{"summary", q.Weights.Title},
		{"content", q.Weights.Content},
		{"category", q.Weights.Category},
	}
	var perField []query.Query
	for _, f := range fields {
		if f.weight <= 0 {
			continue
		}
		mq := bleve.NewMatchQuery(q.Text)
		mq.SetField(f.name)
		mq.SetBoost(f.weight)
		perField = append(perField, mq)
	}
	if len(perField) == 0 {
		return nil, nil
	}

	var root query.Query = bleve.NewDisjunctionQuery(perField...)
	if len(q.Types) > 0 {
		typeQueries := make([]query.Query, len(q.Types))
		for n, t := range q.Types {
			tq := bleve.NewTermQuery(string(t))
			tq.SetField("memory_type")
			typeQueries[n] = tq
		}
		root = bleve.NewConjunctionQuery(root, bleve.NewDisjunctionQuery(typeQueries...))
	}

	size := q.Limit
	if size <= 0 {
		size = 50
	}
	req := bleve.NewSearchRequestOptions(root, size, 0, false)
	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleveindex: search: %w", err)
	}

	hits := make([]memory.TextHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, memory.TextHit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// DocCount returns the number of indexed documents.
func (i *Index) DocCount() (uint64, error) {
	return i.index.DocCount()
}

// Close closes the index and the wrapped store.
func (i *Index) Close() error {
	return errors.Join(i.index.Close(), i.Store.Close())
}
