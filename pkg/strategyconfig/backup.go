package strategyconfig

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	backupTimeLayout   = "20060102T150405.000000000Z"
	metadataFileSuffix = ".metadata.json"
)

// BackupMetadata describes one backup file.
type BackupMetadata struct {
	ID        string    `json:"id"`
	Strategy  string    `json:"strategy"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
	Count     int       `json:"count"`
	Checksum  string    `json:"checksum"`
}

func (m *Manager) backupDir() string {
	return filepath.Join(m.dir, backupDirName)
}

func (m *Manager) backupPath(id string) string {
	return filepath.Join(m.backupDir(), id+".json")
}

func (m *Manager) backupMetaPath(id string) string {
	return filepath.Join(m.backupDir(), id+metadataFileSuffix)
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Backup snapshots the current configuration of name and rotates old
// backups beyond the configured maximum.
func (m *Manager) Backup(name string) (BackupMetadata, error) {
	cfg, err := m.Load(name)
	if err != nil {
		m.record(ActionBackup, name, err, "", nil)
		return BackupMetadata{}, err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return BackupMetadata{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, err := m.listBackups(name)
	if err != nil {
		return BackupMetadata{}, err
	}

	created := m.now().UTC()
	id := name + "-" + created.Format(backupTimeLayout)
	for {
		_, err := os.Stat(m.backupPath(id))
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			m.record(ActionBackup, name, err, "", nil)
			return BackupMetadata{}, fmt.Errorf("strategyconfig: check backup %s: %w", id, err)
		}
		created = created.Add(time.Nanosecond)
		id = name + "-" + created.Format(backupTimeLayout)
	}

	count := 1
	if n := len(existing); n > 0 {
		count = existing[n-1].Count + 1
	}
	meta := BackupMetadata{
		ID:        id,
		Strategy:  name,
		CreatedAt: created,
		Size:      int64(len(data)),
		Count:     count,
		Checksum:  checksum(data),
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return BackupMetadata{}, err
	}
	if err := writeFileAtomic(m.backupPath(id), data); err != nil {
		m.record(ActionBackup, name, err, "", nil)
		return BackupMetadata{}, err
	}
	if err := writeFileAtomic(m.backupMetaPath(id), metaData); err != nil {
		os.Remove(m.backupPath(id))
		m.record(ActionBackup, name, err, "", nil)
		return BackupMetadata{}, err
	}

	all := append(existing, meta)
	for len(all) > m.maxBackups {
		oldest := all[0]
		all = all[1:]
		if err := m.removeBackup(oldest.ID); err != nil {
			m.logger.Warn("backup rotation failed", "backup", oldest.ID, "error", err)
			continue
		}
		m.logger.Debug("backup rotated", "backup", oldest.ID)
	}

	m.record(ActionBackup, name, nil, "created "+id, nil)
	return meta, nil
}

func (m *Manager) removeBackup(id string) error {
	err1 := os.Remove(m.backupPath(id))
	err2 := os.Remove(m.backupMetaPath(id))
	if os.IsNotExist(err1) {
		err1 = nil
	}
	if os.IsNotExist(err2) {
		err2 = nil
	}
	return errors.Join(err1, err2)
}

// ListBackups returns the backups of name, oldest first.
func (m *Manager) ListBackups(name string) ([]BackupMetadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBackups(name)
}

func (m *Manager) listBackups(name string) ([]BackupMetadata, error) {
	entries, err := os.ReadDir(m.backupDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("strategyconfig: list backups: %w", err)
	}
	var out []BackupMetadata
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), metadataFileSuffix) {
			continue
		}
		meta, err := m.readBackupMeta(strings.TrimSuffix(e.Name(), metadataFileSuffix))
		if err != nil {
			m.logger.Warn("skipping unreadable backup metadata", "file", e.Name(), "error", err)
			continue
		}
		if meta.Strategy == name {
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Count < out[j].Count
	})
	return out, nil
}

func (m *Manager) readBackupMeta(id string) (BackupMetadata, error) {
	var meta BackupMetadata
	data, err := os.ReadFile(m.backupMetaPath(id))
	if os.IsNotExist(err) {
		return meta, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("strategyconfig: decode backup metadata %s: %w", id, err)
	}
	return meta, nil
}

// ValidateIntegrity recomputes the size and checksum of a backup and
// compares them with its metadata. A missing backup is an error; a
// mismatch returns false.
func (m *Manager) ValidateIntegrity(backupID string) (bool, error) {
	if err := checkName(backupID); err != nil {
		return false, err
	}
	meta, err := m.readBackupMeta(backupID)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(m.backupPath(backupID))
	if os.IsNotExist(err) {
		return false, fmt.Errorf("%w: %s", ErrBackupNotFound, backupID)
	}
	if err != nil {
		return false, err
	}
	return int64(len(data)) == meta.Size && checksum(data) == meta.Checksum, nil
}

// Restore replaces the configuration of name with a verified backup.
func (m *Manager) Restore(name, backupID string) (StrategyConfig, error) {
	cfg, err := m.restore(name, backupID)
	if err != nil {
		m.record(ActionRestore, name, err, "", nil)
		return StrategyConfig{}, err
	}
	return cfg, nil
}

func (m *Manager) restore(name, backupID string) (StrategyConfig, error) {
	if err := checkName(backupID); err != nil {
		return StrategyConfig{}, err
	}
	meta, err := m.readBackupMeta(backupID)
	if err != nil {
		return StrategyConfig{}, err
	}
	if meta.Strategy != name {
		return StrategyConfig{}, fmt.Errorf("%w: %s is a backup of %s", ErrStrategyMismatch, backupID, meta.Strategy)
	}
	ok, err := m.ValidateIntegrity(backupID)
	if err != nil {
		return StrategyConfig{}, err
	}
	if !ok {
		return StrategyConfig{}, fmt.Errorf("%w: %s", ErrBackupCorrupt, backupID)
	}

	data, err := os.ReadFile(m.backupPath(backupID))
	if err != nil {
		return StrategyConfig{}, err
	}
	var cfg StrategyConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return StrategyConfig{}, fmt.Errorf("strategyconfig: decode backup %s: %w", backupID, err)
	}
	if cfg.Name != name {
		return StrategyConfig{}, fmt.Errorf("%w: %s holds %s", ErrStrategyMismatch, backupID, cfg.Name)
	}
	if err := m.save(cfg, ActionRestore); err != nil {
		return StrategyConfig{}, err
	}
	return m.Load(name)
}
