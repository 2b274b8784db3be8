// Package badgerstore persists memory records and relationships in BadgerDB
// and keeps an in-process BM25 index in step with the stored rows.
package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/goclaw/recall/pkg/memory"
)

const (
	recordKeyPrefix = "record:"
	relKeyPrefix    = "rel:"
)

// Config holds BadgerDB settings.
type Config struct {
	Path             string
	SyncWrites       bool
	ValueLogFileSize int64
	InMemory         bool
}

// Store is a Badger-backed memory.Store.
type Store struct {
	db    *badger.DB
	owned bool
	index *memory.BM25Index
}

var (
	_ memory.Store        = (*Store)(nil)
	_ memory.Writer       = (*Store)(nil)
	_ memory.TextSearcher = (*Store)(nil)
)

// Open opens (or creates) a database at cfg.Path and rebuilds the index.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", cfg.Path, err)
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// New wraps an existing database. The caller keeps ownership of db.
func New(db *badger.DB) (*Store, error) {
	s := &Store{db: db, index: memory.NewBM25Index(1.5, 0.75)}
	if err := s.rebuildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

func recordKey(t memory.MemoryType, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", recordKeyPrefix, t, id))
}

func typePrefix(t memory.MemoryType) []byte {
	return []byte(fmt.Sprintf("%s%s:", recordKeyPrefix, t))
}

func relKey(rel memory.Relationship) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", relKeyPrefix, rel.SourceID, rel.TargetID, rel.Type))
}

func relPrefix(sourceID string) []byte {
	return []byte(fmt.Sprintf("%s%s:", relKeyPrefix, sourceID))
}

func (s *Store) rebuildIndex() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var r memory.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("badgerstore: decode %s: %w", it.Item().Key(), err)
			}
			s.index.Index(&r)
		}
		return nil
	})
}

// Put writes a record, replacing any prior version in either table.
func (s *Store) Put(ctx context.Context, r *memory.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("badgerstore: marshal record: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, t := range memory.AllMemoryTypes {
			if t == r.MemoryType {
				continue
			}
			if err := txn.Delete(recordKey(t, r.ID)); err != nil {
				return err
			}
		}
		return txn.Set(recordKey(r.MemoryType, r.ID), data)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: put %s: %w", r.ID, err)
	}
	s.index.Index(r.Clone())
	return nil
}

// PutRelationship writes an edge keyed by (source, target, type).
func (s *Store) PutRelationship(ctx context.Context, rel memory.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("badgerstore: marshal relationship: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(relKey(rel), data)
	})
}

// Delete removes a record and every edge that starts or ends at it.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, t := range memory.AllMemoryTypes {
			if err := txn.Delete(recordKey(t, id)); err != nil {
				return err
			}
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(relKeyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			// Key format: rel:{source}:{target}:{type}
			parts := strings.SplitN(string(it.Item().Key()), ":", 4)
			if len(parts) == 4 && (parts[1] == id || parts[2] == id) {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badgerstore: delete %s: %w", id, err)
	}
	s.index.Remove(id)
	return nil
}

// Records scans the requested tables and applies the filter in process.
func (s *Store) Records(ctx context.Context, filter memory.RecordFilter) ([]*memory.Record, error) {
	var out []*memory.Record
	err := s.db.View(func(txn *badger.Txn) error {
		for _, t := range memory.AllMemoryTypes {
			if !filter.HasType(t) {
				continue
			}
			opts := badger.DefaultIteratorOptions
			opts.Prefix = typePrefix(t)
			it := txn.NewIterator(opts)

			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					it.Close()
					return err
				}
				var r memory.Record
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &r)
				}); err != nil {
					it.Close()
					return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
				}
				if filter.Matches(&r) {
					out = append(out, &r)
				}
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("badgerstore: scan: %w", err)
	}
	memory.SortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Get looks the id up in each table.
func (s *Store) Get(ctx context.Context, id string) (*memory.Record, error) {
	var r memory.Record
	err := s.db.View(func(txn *badger.Txn) error {
		for _, t := range memory.AllMemoryTypes {
			item, err := txn.Get(recordKey(t, id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
		}
		return memory.ErrNotFound
	})
	if errors.Is(err, memory.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("badgerstore: get %s: %w", id, err)
	}
	return &r, nil
}

// Relationships prefix-scans the outgoing edges of id.
func (s *Store) Relationships(ctx context.Context, id string) ([]memory.Relationship, error) {
	var out []memory.Relationship
	prefix := relPrefix(id)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if !bytes.HasPrefix(it.Item().Key(), prefix) {
				break
			}
			var rel memory.Relationship
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rel)
			}); err != nil {
				return err
			}
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: relationships of %s: %w", id, err)
	}
	return out, nil
}

// SearchText ranks records with the in-process index.
func (s *Store) SearchText(ctx context.Context, q memory.TextQuery) ([]memory.TextHit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.index.Search(q.Text, q.Weights, q.Limit, q.Types), nil
}

// Close closes the database when the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
