package strategyconfig

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditAction names a journaled operation.
type AuditAction string

const (
	ActionCreate   AuditAction = "create"
	ActionUpdate   AuditAction = "update"
	ActionDelete   AuditAction = "delete"
	ActionLoad     AuditAction = "load"
	ActionValidate AuditAction = "validate"
	ActionSave     AuditAction = "save"
	ActionImport   AuditAction = "import"
	ActionBackup   AuditAction = "backup"
	ActionRestore  AuditAction = "restore"
)

// DefaultAuditLimit bounds the audit journal.
const DefaultAuditLimit = 1000

// AuditEntry is one journaled operation.
type AuditEntry struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Action    AuditAction   `json:"action"`
	Strategy  string        `json:"strategy"`
	Success   bool          `json:"success"`
	Message   string        `json:"message,omitempty"`
	Changes   []FieldChange `json:"changes,omitempty"`
}

// AuditFilter selects entries from the journal. Zero values match all.
type AuditFilter struct {
	Strategy string
	Action   AuditAction
	Since    time.Time
	Until    time.Time
	Limit    int
}

func (f AuditFilter) matches(e AuditEntry) bool {
	if f.Strategy != "" && e.Strategy != f.Strategy {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// AuditLog is an append-only JSON lines file mirrored by a bounded
// in-memory journal. The file may grow past the bound until Compact.
type AuditLog struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	entries []AuditEntry
	limit   int
}

// OpenAuditLog opens or creates the journal at path and loads its tail.
func OpenAuditLog(path string, limit int) (*AuditLog, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	a := &AuditLog{path: path, limit: limit}
	if err := a.loadTail(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("strategyconfig: open audit log: %w", err)
	}
	a.file = f
	return a, nil
}

func (a *AuditLog) loadTail() error {
	f, err := os.Open(a.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("strategyconfig: read audit log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		a.entries = append(a.entries, e)
		if len(a.entries) > a.limit {
			a.entries = a.entries[1:]
		}
	}
	return scanner.Err()
}

// Append journals an entry, filling in its id and timestamp when unset.
func (a *AuditLog) Append(e AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	if len(a.entries) > a.limit {
		a.entries = append([]AuditEntry(nil), a.entries[len(a.entries)-a.limit:]...)
	}
	if a.file == nil {
		return nil
	}
	if _, err := a.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("strategyconfig: write audit log: %w", err)
	}
	return nil
}

// History returns matching entries, newest first.
func (a *AuditLog) History(f AuditFilter) []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []AuditEntry
	for i := len(a.entries) - 1; i >= 0; i-- {
		if !f.matches(a.entries[i]) {
			continue
		}
		out = append(out, a.entries[i])
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out
}

// Len returns the number of entries held in memory.
func (a *AuditLog) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Compact rewrites the file so it holds only the in-memory entries.
func (a *AuditLog) Compact() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(a.path), ".audit-*.tmp")
	if err != nil {
		return fmt.Errorf("strategyconfig: compact audit log: %w", err)
	}
	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, e := range a.entries {
		if err := enc.Encode(e); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if a.file != nil {
		a.file.Close()
		a.file = nil
	}
	if err := os.Rename(tmp.Name(), a.path); err != nil {
		return fmt.Errorf("strategyconfig: replace audit log: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("strategyconfig: reopen audit log: %w", err)
	}
	a.file = f
	return nil
}

// Close closes the journal file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}
