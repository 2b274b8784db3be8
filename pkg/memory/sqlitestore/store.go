// Package sqlitestore keeps memory records in two SQLite tables, one per
// memory type, with an FTS5 index for ranked full-text search.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/goclaw/recall/pkg/memory"
)

// Store is a SQLite-backed memory.Store.
type Store struct {
	db *sqlx.DB
}

var (
	_ memory.Store        = (*Store)(nil)
	_ memory.Writer       = (*Store)(nil)
	_ memory.TextSearcher = (*Store)(nil)
)

var tables = map[memory.MemoryType]string{
	memory.ShortTerm: "short_term_memory",
	memory.LongTerm:  "long_term_memory",
}

// Open opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	var stmts []string
	for _, t := range memory.AllMemoryTypes {
		table := tables[t]
		stmts = append(stmts,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				content TEXT NOT NULL,
				summary TEXT NOT NULL DEFAULT '',
				metadata TEXT NOT NULL DEFAULT '{}',
				category TEXT NOT NULL DEFAULT '',
				importance REAL NOT NULL DEFAULT 0,
				created_at INTEGER NOT NULL
			)`, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created ON %s(created_at)`, table, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_category ON %s(category)`, table, table),
		)
	}
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS memory_relationships (
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			strength REAL NOT NULL,
			confidence REAL NOT NULL,
			PRIMARY KEY (source_id, target_id, type)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_relationships_target ON memory_relationships(target_id)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
			summary,
			content,
			category,
			id UNINDEXED,
			memory_type UNINDEXED,
			tokenize='porter unicode61'
		)`,
	)

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

type recordRow struct {
	ID         string  `db:"id"`
	Content    string  `db:"content"`
	Summary    string  `db:"summary"`
	Metadata   string  `db:"metadata"`
	Category   string  `db:"category"`
	Importance float64 `db:"importance"`
	CreatedAt  int64   `db:"created_at"`
}

func (row recordRow) toRecord(t memory.MemoryType) (*memory.Record, error) {
	r := &memory.Record{
		ID:         row.ID,
		Content:    row.Content,
		Summary:    row.Summary,
		MemoryType: t,
		Category:   row.Category,
		Importance: row.Importance,
		CreatedAt:  time.Unix(0, row.CreatedAt),
	}
	if err := r.SetMetadataJSON([]byte(row.Metadata)); err != nil {
		return nil, err
	}
	return r, nil
}

// Put inserts or replaces a record and its FTS entry.
func (s *Store) Put(ctx context.Context, r *memory.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	meta, err := r.MetadataJSON()
	if err != nil {
		return fmt.Errorf("sqlitestore: marshal metadata: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", r.ID); err != nil {
			return fmt.Errorf("sqlitestore: clear %s: %w", r.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM memory_fts WHERE id = ?", r.ID); err != nil {
		return fmt.Errorf("sqlitestore: clear fts %s: %w", r.ID, err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO `+tables[r.MemoryType]+`
		(id, content, summary, metadata, category, importance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Content, r.Summary, string(meta), r.Category, r.Importance, r.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("sqlitestore: insert %s: %w", r.ID, err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO memory_fts (summary, content, category, id, memory_type)
		VALUES (?, ?, ?, ?, ?)`,
		r.Summary, r.Content, strings.ReplaceAll(r.Category, "/", " "), r.ID, string(r.MemoryType))
	if err != nil {
		return fmt.Errorf("sqlitestore: insert fts %s: %w", r.ID, err)
	}
	return tx.Commit()
}

// PutRelationship upserts an edge.
func (s *Store) PutRelationship(ctx context.Context, rel memory.Relationship) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO memory_relationships
		(source_id, target_id, type, strength, confidence) VALUES (?, ?, ?, ?, ?)`,
		rel.SourceID, rel.TargetID, rel.Type, rel.Strength, rel.Confidence)
	if err != nil {
		return fmt.Errorf("sqlitestore: put relationship: %w", err)
	}
	return nil
}

// Delete removes a record, its FTS entry and its edges.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		"DELETE FROM short_term_memory WHERE id = ?",
		"DELETE FROM long_term_memory WHERE id = ?",
		"DELETE FROM memory_fts WHERE id = ?",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("sqlitestore: delete %s: %w", id, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM memory_relationships WHERE source_id = ? OR target_id = ?", id, id); err != nil {
		return fmt.Errorf("sqlitestore: delete edges of %s: %w", id, err)
	}
	return tx.Commit()
}

// Records pushes the filter down as SQL and re-checks rows in process so
// results match the other stores exactly (SQLite LIKE folds ASCII only).
func (s *Store) Records(ctx context.Context, filter memory.RecordFilter) ([]*memory.Record, error) {
	where, args := buildWhere(filter)

	var out []*memory.Record
	for _, t := range memory.AllMemoryTypes {
		if !filter.HasType(t) {
			continue
		}
		query := "SELECT id, content, summary, metadata, category, importance, created_at FROM " + tables[t] + where + " ORDER BY created_at DESC"

		var rows []recordRow
		if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("sqlitestore: select %s: %w", tables[t], err)
		}
		for _, row := range rows {
			r, err := row.toRecord(t)
			if err != nil {
				return nil, err
			}
			if filter.Matches(r) {
				out = append(out, r)
			}
		}
	}

	memory.SortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func buildWhere(f memory.RecordFilter) (string, []any) {
	var conds []string
	var args []any

	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.CategoryPrefix != "" {
		prefix := strings.Trim(f.CategoryPrefix, "/")
		conds = append(conds, `(category = ? OR category LIKE ? ESCAPE '\')`)
		args = append(args, prefix, memory.EscapeLike(prefix)+"/%")
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UnixNano())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.Until.UnixNano())
	}
	if len(f.Patterns) > 0 {
		var ors []string
		for _, p := range f.Patterns {
			ors = append(ors, `content LIKE ? ESCAPE '\'`, `summary LIKE ? ESCAPE '\'`, `category LIKE ? ESCAPE '\'`)
			args = append(args, p, p, p)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Get looks the id up in both tables.
func (s *Store) Get(ctx context.Context, id string) (*memory.Record, error) {
	for _, t := range memory.AllMemoryTypes {
		var row recordRow
		err := s.db.GetContext(ctx, &row,
			"SELECT id, content, summary, metadata, category, importance, created_at FROM "+tables[t]+" WHERE id = ?", id)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: get %s: %w", id, err)
		}
		return row.toRecord(t)
	}
	return nil, fmt.Errorf("%w: %s", memory.ErrNotFound, id)
}

type relationshipRow struct {
	SourceID   string  `db:"source_id"`
	TargetID   string  `db:"target_id"`
	Type       string  `db:"type"`
	Strength   float64 `db:"strength"`
	Confidence float64 `db:"confidence"`
}

// Relationships returns the outgoing edges of id, strongest first.
func (s *Store) Relationships(ctx context.Context, id string) ([]memory.Relationship, error) {
	var rows []relationshipRow
	err := s.db.SelectContext(ctx, &rows, `SELECT source_id, target_id, type, strength, confidence
		FROM memory_relationships WHERE source_id = ? ORDER BY strength DESC, target_id`, id)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: relationships of %s: %w", id, err)
	}
	out := make([]memory.Relationship, len(rows))
	for i, row := range rows {
		out[i] = memory.Relationship(row)
	}
	return out, nil
}

type hitRow struct {
	ID    string  `db:"id"`
	Score float64 `db:"score"`
}

// SearchText runs an FTS5 MATCH ranked by bm25() with per-column weights.
// bm25() is negative with better matches lower, so the score is negated.
func (s *Store) SearchText(ctx context.Context, q memory.TextQuery) ([]memory.TextHit, error) {
	match := ftsQuery(q.Text)
	if match == "" {
		return nil, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	args := []any{q.Weights.Title, q.Weights.Content, q.Weights.Category, match}
	where := ""
	if len(q.Types) > 0 {
		placeholders := make([]string, len(q.Types))
		for i, t := range q.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		where = " AND memory_type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	args = append(args, limit)

	query := `SELECT id, -bm25(memory_fts, ?, ?, ?) AS score
		FROM memory_fts
		WHERE memory_fts MATCH ?` + where + `
		ORDER BY score DESC
		LIMIT ?`

	var rows []hitRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("sqlitestore: fts query: %w", err)
	}
	hits := make([]memory.TextHit, 0, len(rows))
	for _, row := range rows {
		if row.Score <= 0 {
			continue
		}
		hits = append(hits, memory.TextHit{ID: row.ID, Score: row.Score})
	}
	return hits, nil
}

// ftsQuery turns free text into an FTS5 OR-query of quoted terms so user
// input can never inject FTS syntax.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		quoted = append(quoted, `"`+w+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
