package strategyconfig

import (
	"errors"
	"fmt"
	"sort"

	"github.com/goclaw/recall/pkg/search"
)

// Export returns every persisted configuration keyed by strategy name.
func (m *Manager) Export() (map[string]StrategyConfig, error) {
	names, err := m.List()
	if err != nil {
		return nil, err
	}
	out := make(map[string]StrategyConfig, len(names))
	for _, name := range names {
		cfg, err := m.Load(name)
		if err != nil {
			return nil, err
		}
		out[name] = cfg
	}
	return out, nil
}

// Import validates every configuration before writing any. Existing
// configurations are skipped unless overwrite is set. It returns the names
// written.
func (m *Manager) Import(configs map[string]StrategyConfig, overwrite bool) ([]string, error) {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)

	pending := make(map[string]StrategyConfig, len(configs))
	var errs []error
	for _, name := range names {
		cfg := configs[name].Clone()
		if cfg.Name == "" {
			cfg.Name = name
		}
		pending[name] = cfg
		if cfg.Name != name {
			errs = append(errs, &search.ConfigurationError{Strategy: name, Field: "name", Message: fmt.Sprintf("entry holds %q", cfg.Name)})
			continue
		}
		if err := Validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		m.record(ActionImport, "", err, "", nil)
		return nil, err
	}

	var written []string
	for _, name := range names {
		if !overwrite {
			if _, err := m.Load(name); err == nil {
				continue
			}
		}
		if err := m.save(pending[name], ActionImport); err != nil {
			return written, err
		}
		written = append(written, name)
	}
	return written, nil
}
