package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/recall/config"
	"github.com/goclaw/recall/pkg/engine"
	"github.com/goclaw/recall/pkg/logger"
	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/monitor"
	"github.com/goclaw/recall/pkg/search"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

// writeConfig writes a minimal service config rooted in a temp directory.
func writeConfig(t *testing.T) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "recall.yaml")
	body := "log:\n  level: error\n" +
		"strategies:\n  dir: " + filepath.Join(dir, "strategies") + "\n" +
		"metrics:\n  enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path, dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootOptions_Overrides(t *testing.T) {
	opts := &rootOptions{logLevel: "debug", port: 9090, storage: "sqlite", debug: true}
	assert.Equal(t, map[string]interface{}{
		"log.level":    "debug",
		"server.port":  9090,
		"storage.type": "sqlite",
		"app.debug":    true,
	}, opts.overrides())

	assert.Empty(t, (&rootOptions{}).overrides())
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"priority=75", "enabled=false", "name=fulltext", `field_weights={"title":3}`, "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"priority":      float64(75),
		"enabled":       false,
		"name":          "fulltext",
		"field_weights": map[string]any{"title": float64(3)},
		"note":          "a=b",
	}, got)

	_, err = parseAssignments([]string{"priority"})
	assert.Error(t, err)
	_, err = parseAssignments([]string{"=5"})
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "recall "), out)

	out, err = run(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
}

func TestConfigCommands(t *testing.T) {
	path, dir := writeConfig(t)

	out, err := run(t, "--config", path, "config", "set", "substring", "priority=75")
	require.NoError(t, err, out)
	var sc strategyconfig.StrategyConfig
	require.NoError(t, json.Unmarshal([]byte(out), &sc))
	assert.Equal(t, 75, sc.Priority)

	out, err = run(t, "--config", path, "config", "show", "substring")
	require.NoError(t, err)
	assert.Contains(t, out, `"priority": 75`)

	out, err = run(t, "--config", path, "config", "backups", "substring")
	require.NoError(t, err)
	assert.Contains(t, out, "No backups.")

	out, err = run(t, "--config", path, "config", "backup", "substring")
	require.NoError(t, err)
	assert.Contains(t, out, "Created backup substring-")

	out, err = run(t, "--config", path, "config", "backups", "substring")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, out)
	backupID := strings.Fields(lines[1])[0]

	out, err = run(t, "--config", path, "config", "verify", backupID)
	require.NoError(t, err)
	assert.Contains(t, out, "is intact")

	_, err = run(t, "--config", path, "config", "set", "substring", "priority=10")
	require.NoError(t, err)
	out, err = run(t, "--config", path, "config", "restore", "substring", backupID)
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &sc))
	assert.Equal(t, 75, sc.Priority)

	_, err = run(t, "--config", path, "config", "set", "substring", "priority=500")
	assert.Error(t, err)

	export := filepath.Join(dir, "export.json")
	out, err = run(t, "--config", path, "config", "export", "-o", export)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 configurations")

	out, err = run(t, "--config", path, "config", "import", export)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 0 of 1 configurations")

	out, err = run(t, "--config", path, "config", "import", "--overwrite", export)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 of 1 configurations: substring")

	out, err = run(t, "--config", path, "config", "audit", "--strategy", "substring", "--json")
	require.NoError(t, err)
	var entries []strategyconfig.AuditEntry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Equal(t, "substring", e.Strategy)
	}
}

func TestConfigShow_Service(t *testing.T) {
	path, _ := writeConfig(t)
	out, err := run(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "max_strategies_per_query")
	assert.Contains(t, out, "strategies")
}

func TestStrategiesCommand(t *testing.T) {
	path, _ := writeConfig(t)

	out, err := run(t, "--config", path, "strategies")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 8, out)
	assert.True(t, strings.HasPrefix(lines[1], "fulltext"), lines[1])

	out, err = run(t, "--config", path, "strategies", "temporal")
	require.NoError(t, err)
	var info engine.StrategyInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 55, info.Priority)

	_, err = run(t, "--config", path, "strategies", "vector")
	assert.Error(t, err)
}

func TestSearchCommand_EmptyStore(t *testing.T) {
	path, _ := writeConfig(t)
	out, err := run(t, "--config", path, "search", "anything")
	require.NoError(t, err)
	assert.Contains(t, out, "No results.")
}

func TestRunSearch(t *testing.T) {
	store := memory.NewMemStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, &memory.Record{
		ID: "groceries", Content: "buy milk and eggs", MemoryType: memory.ShortTerm,
		Importance: 0.2, CreatedAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, store.Put(ctx, &memory.Record{
		ID: "infra", Content: "the kubernetes cluster was upgraded", MemoryType: memory.LongTerm,
		Importance: 0.8, CreatedAt: time.Now().Add(-2 * time.Hour),
	}))
	eng, err := engine.New(store, engine.DefaultConfig())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runSearch(ctx, &out, eng, "milk", &searchOptions{strategy: strategyconfig.Substring, asJSON: true}))
	var results []search.Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "groceries", results[0].ID)

	out.Reset()
	require.NoError(t, runSearch(ctx, &out, eng, "kubernetes", &searchOptions{sort: "importance"}))
	assert.Contains(t, out.String(), "SCORE")
	assert.Contains(t, out.String(), "infra")

	out.Reset()
	require.NoError(t, runSearch(ctx, &out, eng, "milk", &searchOptions{template: "short_term_only", asJSON: true}))
	require.NoError(t, json.Unmarshal(out.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "groceries", results[0].ID)

	out.Reset()
	require.NoError(t, runSearch(ctx, &out, eng, "kubernetes", &searchOptions{template: "short_term_only"}))
	assert.Contains(t, out.String(), "No results.")

	err = runSearch(ctx, &out, eng, "milk", &searchOptions{template: "high_confidence", params: map[string]string{"min_score": "lots"}})
	assert.True(t, search.IsValidation(err), "got %v", err)

	err = runSearch(ctx, &out, eng, "milk", &searchOptions{strategy: "vector"})
	assert.ErrorIs(t, err, search.ErrStrategyNotFound)

	err = runSearch(ctx, &out, eng, "milk", &searchOptions{sort: "score:sideways"})
	assert.True(t, search.IsValidation(err), "got %v", err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "a b c", truncate("a\n b \tc", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

func TestReloader(t *testing.T) {
	cfg := config.DefaultConfig()
	log := logger.New(&logger.Config{Level: logger.InfoLevel, Format: "json", Output: "stdout"})

	var applied []monitor.Thresholds
	r := newReloader(cfg, log, func(th monitor.Thresholds) { applied = append(applied, th) })

	same := config.DefaultConfig()
	r.apply(same)
	assert.Empty(t, applied)
	assert.Equal(t, logger.InfoLevel, log.GetLevel())

	next := config.DefaultConfig()
	next.Log.Level = "debug"
	r.apply(next)
	assert.Equal(t, logger.DebugLevel, log.GetLevel())
	assert.Empty(t, applied)

	next = config.DefaultConfig()
	next.Log.Level = "debug"
	next.Monitor.MaxErrorRate = 0.2
	r.apply(next)
	require.Len(t, applied, 1)
	assert.Equal(t, 0.2, applied[0].MaxErrorRate)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	log := logger.New(&logger.Config{Level: logger.ErrorLevel, Format: "json", Output: "stdout"})
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{"memory", config.StorageConfig{Type: "memory"}},
		{"sqlite", config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "db", "recall.db")}}},
		{"badger", config.StorageConfig{Type: "badger", Badger: config.BadgerConfig{Path: filepath.Join(dir, "badger")}}},
		{"indexed", config.StorageConfig{Type: "memory", Index: config.IndexConfig{Enabled: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStore(ctx, tt.cfg, log)
			require.NoError(t, err)
			w, ok := store.(memory.Writer)
			require.True(t, ok, "store should accept writes")
			require.NoError(t, w.Put(ctx, &memory.Record{
				ID: "r1", Content: "hello", MemoryType: memory.LongTerm, CreatedAt: time.Now(),
			}))
			got, err := store.Get(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, "hello", got.Content)
			require.NoError(t, store.Close())
		})
	}

	_, err := openStore(ctx, config.StorageConfig{Type: "postgres"}, log)
	assert.Error(t, err)
}

func TestOpenCache_LRU(t *testing.T) {
	c, err := openCache(context.Background(), config.DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Nil(t, c)
}
