package strategyconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	backupDirName = "backups"
	auditFileName = "audit.jsonl"

	// DefaultMaxBackups is the rotation bound per strategy.
	DefaultMaxBackups = 10
)

// Logger is the logging surface the manager needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Manager.
type Options struct {
	// Dir holds <strategy>.json, backups/ and audit.jsonl.
	Dir        string
	MaxBackups int
	AuditLimit int
	Logger     Logger

	// Now is the clock used for backup ids and audit timestamps.
	Now func() time.Time
}

// Manager is the write-through configuration store. Reads are served from
// memory; writes persist first and update the cache under the same lock.
type Manager struct {
	mu         sync.RWMutex
	dir        string
	cache      map[string]StrategyConfig
	maxBackups int
	audit      *AuditLog
	logger     Logger
	now        func() time.Time
}

// NewManager creates the directory layout and opens the audit journal.
func NewManager(opts Options) (*Manager, error) {
	if opts.Dir == "" {
		return nil, errors.New("strategyconfig: directory is required")
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = DefaultMaxBackups
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(filepath.Join(opts.Dir, backupDirName), 0o755); err != nil {
		return nil, fmt.Errorf("strategyconfig: create directories: %w", err)
	}
	audit, err := OpenAuditLog(filepath.Join(opts.Dir, auditFileName), opts.AuditLimit)
	if err != nil {
		return nil, err
	}
	return &Manager{
		dir:        opts.Dir,
		cache:      make(map[string]StrategyConfig),
		maxBackups: opts.MaxBackups,
		audit:      audit,
		logger:     opts.Logger,
		now:        opts.Now,
	}, nil
}

// Close closes the audit journal.
func (m *Manager) Close() error {
	return m.audit.Close()
}

func (m *Manager) configPath(name string) string {
	return filepath.Join(m.dir, name+".json")
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("strategyconfig: invalid strategy name %q", name)
	}
	return nil
}

func (m *Manager) record(action AuditAction, strategy string, err error, msg string, changes []FieldChange) {
	e := AuditEntry{
		Timestamp: m.now(),
		Action:    action,
		Strategy:  strategy,
		Success:   err == nil,
		Message:   msg,
		Changes:   changes,
	}
	if err != nil {
		e.Message = err.Error()
	}
	if aerr := m.audit.Append(e); aerr != nil {
		m.logger.Warn("audit append failed", "action", action, "strategy", strategy, "error", aerr)
	}
}

// Load returns the configuration for name from the cache, else from disk.
func (m *Manager) Load(name string) (StrategyConfig, error) {
	if err := checkName(name); err != nil {
		return StrategyConfig{}, err
	}
	m.mu.RLock()
	cfg, ok := m.cache[name]
	m.mu.RUnlock()
	if ok {
		return cfg.Clone(), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.cache[name]; ok {
		return cfg.Clone(), nil
	}
	cfg, err := m.readFile(name)
	if err != nil {
		if !errors.Is(err, ErrConfigNotFound) {
			m.record(ActionLoad, name, err, "", nil)
		}
		return StrategyConfig{}, err
	}
	m.cache[name] = cfg
	m.record(ActionLoad, name, nil, "loaded from disk", nil)
	return cfg.Clone(), nil
}

func (m *Manager) readFile(name string) (StrategyConfig, error) {
	data, err := os.ReadFile(m.configPath(name))
	if os.IsNotExist(err) {
		return StrategyConfig{}, fmt.Errorf("%w: %s", ErrConfigNotFound, name)
	}
	if err != nil {
		return StrategyConfig{}, fmt.Errorf("strategyconfig: read %s: %w", name, err)
	}
	var cfg StrategyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return StrategyConfig{}, fmt.Errorf("strategyconfig: decode %s: %w", name, err)
	}
	return cfg, nil
}

// LoadOrDefault loads name, persisting the built-in default on first use.
func (m *Manager) LoadOrDefault(name string) (StrategyConfig, error) {
	cfg, err := m.Load(name)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrConfigNotFound) {
		return StrategyConfig{}, err
	}
	def, ok := Default(name)
	if !ok {
		return StrategyConfig{}, err
	}
	if err := m.Save(def); err != nil {
		return StrategyConfig{}, err
	}
	return m.Load(name)
}

// Validate checks cfg and journals the outcome.
func (m *Manager) Validate(cfg StrategyConfig) error {
	err := Validate(cfg)
	m.record(ActionValidate, cfg.Name, err, "", nil)
	return err
}

// Save validates cfg and persists it. An invalid configuration leaves both
// the file and the cache untouched.
func (m *Manager) Save(cfg StrategyConfig) error {
	return m.save(cfg, "")
}

func (m *Manager) save(cfg StrategyConfig, action AuditAction) error {
	if err := checkName(cfg.Name); err != nil {
		return err
	}
	if err := Validate(cfg); err != nil {
		m.record(ActionValidate, cfg.Name, err, "", nil)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prior, hadPrior := m.cache[cfg.Name]
	if !hadPrior {
		if p, err := m.readFile(cfg.Name); err == nil {
			prior, hadPrior = p, true
		}
	}

	stored, err := m.writeFile(cfg)
	if err != nil {
		m.record(ActionSave, cfg.Name, err, "", nil)
		return err
	}
	m.cache[cfg.Name] = stored

	var changes []FieldChange
	if hadPrior {
		changes = Diff(prior, cfg)
	}
	if action == "" {
		action = ActionUpdate
		if !hadPrior {
			action = ActionCreate
		}
	}
	m.record(action, cfg.Name, nil, summarize(changes), changes)
	m.logger.Debug("strategy configuration saved", "strategy", cfg.Name, "action", action, "changes", len(changes))
	return nil
}

// writeFile persists cfg and returns it as decoded from the written bytes,
// so cached values have the same types as values read back from disk.
func (m *Manager) writeFile(cfg StrategyConfig) (StrategyConfig, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return StrategyConfig{}, fmt.Errorf("strategyconfig: encode %s: %w", cfg.Name, err)
	}
	var stored StrategyConfig
	if err := json.Unmarshal(data, &stored); err != nil {
		return StrategyConfig{}, err
	}
	if err := writeFileAtomic(m.configPath(cfg.Name), data); err != nil {
		return StrategyConfig{}, err
	}
	return stored, nil
}

// writeFileAtomic writes to a temp file in the same directory and renames
// it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("strategyconfig: create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("strategyconfig: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("strategyconfig: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("strategyconfig: rename %s: %w", path, err)
	}
	return nil
}

// Update loads name (or its default), merges overrides and saves.
func (m *Manager) Update(name string, overrides map[string]any) (StrategyConfig, error) {
	base, err := m.LoadOrDefault(name)
	if err != nil {
		return StrategyConfig{}, err
	}
	merged, err := Merge(base, overrides)
	if err != nil {
		m.record(ActionUpdate, name, err, "", nil)
		return StrategyConfig{}, err
	}
	if err := m.Save(merged); err != nil {
		return StrategyConfig{}, err
	}
	return m.Load(name)
}

// Delete removes the persisted configuration. Backups are kept.
func (m *Manager) Delete(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	err := os.Remove(m.configPath(name))
	if os.IsNotExist(err) {
		if _, cached := m.cache[name]; !cached {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, name)
		}
		err = nil
	}
	if err != nil {
		m.record(ActionDelete, name, err, "", nil)
		return fmt.Errorf("strategyconfig: delete %s: %w", name, err)
	}
	delete(m.cache, name)
	m.record(ActionDelete, name, nil, "", nil)
	return nil
}

// Invalidate drops name from the cache so the next Load reads the file.
func (m *Manager) Invalidate(name string) {
	m.mu.Lock()
	delete(m.cache, name)
	m.mu.Unlock()
}

// List returns the names of persisted configurations, sorted.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("strategyconfig: list: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || strings.HasPrefix(n, ".") || filepath.Ext(n) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(n, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// History queries the audit journal.
func (m *Manager) History(f AuditFilter) []AuditEntry {
	return m.audit.History(f)
}

// CompactAudit trims the audit file to the in-memory bound.
func (m *Manager) CompactAudit() error {
	return m.audit.Compact()
}
