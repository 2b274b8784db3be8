package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/recall/config"
	"github.com/goclaw/recall/pkg/api/events"
	"github.com/goclaw/recall/pkg/api/handlers"
	"github.com/goclaw/recall/pkg/api/models"
	"github.com/goclaw/recall/pkg/api/response"
	"github.com/goclaw/recall/pkg/engine"
	"github.com/goclaw/recall/pkg/logger"
	"github.com/goclaw/recall/pkg/memory"
	"github.com/goclaw/recall/pkg/metrics"
	"github.com/goclaw/recall/pkg/resilience"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

func testLogger() logger.Logger {
	return logger.New(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: "json",
		Output: "stdout",
	})
}

func testStore(t *testing.T) memory.Store {
	t.Helper()
	now := time.Now().UTC()
	s := memory.NewMemStore()
	records := []*memory.Record{
		{ID: "title", Content: "notes from the week", Summary: "kubernetes upgrade", Category: "work/infra", MemoryType: memory.LongTerm, Importance: 0.9, CreatedAt: now.Add(-time.Hour)},
		{ID: "body", Content: "the kubernetes cluster was upgraded", Category: "work/infra", MemoryType: memory.LongTerm, Importance: 0.4, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "groceries", Content: "buy milk and eggs", Category: "personal", MemoryType: memory.ShortTerm, Importance: 0.2, CreatedAt: now.Add(-3 * time.Hour)},
	}
	for _, r := range records {
		require.NoError(t, s.Put(context.Background(), r))
	}
	return s
}

type testEnv struct {
	router http.Handler
	engine *engine.Engine
}

// newTestEnv wires every handler over a seeded store. withManager adds
// persisted strategy configuration in a temporary directory.
func newTestEnv(t *testing.T, withManager bool) *testEnv {
	t.Helper()
	log := testLogger()
	mgr := metrics.NewManager(metrics.DefaultConfig())

	opts := []engine.Option{engine.WithLogger(log), engine.WithMetrics(mgr)}
	if withManager {
		configs, err := strategyconfig.NewManager(strategyconfig.Options{Dir: t.TempDir()})
		require.NoError(t, err)
		t.Cleanup(func() { configs.Close() })
		opts = append(opts, engine.WithConfigManager(configs))
	}
	eng, err := engine.New(testStore(t), engine.DefaultConfig(), opts...)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	router := NewRouter(cfg, log, &Handlers{
		Search:         handlers.NewSearchHandler(eng, log),
		Strategies:     handlers.NewStrategyHandler(eng, log),
		Config:         handlers.NewConfigHandler(eng, log),
		Health:         handlers.NewHealthHandler(eng),
		Metrics:        mgr,
		MetricsHandler: mgr.Handler(),
	})
	return &testEnv{router: router, engine: eng}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestNewRouter_EmptyHandlers(t *testing.T) {
	router := NewRouter(config.DefaultConfig(), testLogger(), &Handlers{})
	require.NotNil(t, router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	t.Run("search", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/search", `{"query":"kubernetes"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[models.SearchResponse](t, w)
		assert.Equal(t, len(resp.Results), resp.Count)
		var got []string
		for _, r := range resp.Results {
			got = append(got, r.ID)
		}
		assert.Contains(t, got, "body")
		assert.NotContains(t, got, "groceries")
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	})

	t.Run("single strategy", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/search/substring", `{"query":"milk"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[models.SearchResponse](t, w)
		assert.Equal(t, strategyconfig.Substring, resp.Strategy)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "groceries", resp.Results[0].ID)
	})

	t.Run("filter template", func(t *testing.T) {
		w := env.do(t, http.MethodPost, "/api/v1/search", `{"query":"kubernetes","filter_template":{"name":"recent_and_important"}}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp := decode[models.SearchResponse](t, w)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "title", resp.Results[0].ID)

		w = env.do(t, http.MethodPost, "/api/v1/search/substring", `{"query":"milk","filter_template":{"name":"short_term_only"}}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		resp = decode[models.SearchResponse](t, w)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "groceries", resp.Results[0].ID)
	})

	t.Run("list templates", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/templates", "")
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[models.TemplateListResponse](t, w)
		assert.Equal(t, len(resp.Templates), resp.Total)
		assert.Equal(t, "category_within_days", resp.Templates[0].Name)
	})

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown strategy", "/api/v1/search/vector", `{"query":"x"}`, http.StatusNotFound, response.ErrCodeNotFound},
		{"unknown template", "/api/v1/search", `{"query":"x","filter_template":{"name":"nope"}}`, http.StatusBadRequest, response.ErrCodeValidationFailed},
		{"template without name", "/api/v1/search", `{"query":"x","filter_template":{}}`, http.StatusBadRequest, response.ErrCodeValidationFailed},
		{"non-numeric template argument", "/api/v1/search", `{"query":"x","filter_template":{"name":"high_confidence","args":{"min_score":"0 OR id != \"\""}}}`, http.StatusBadRequest, response.ErrCodeValidationFailed},
		{"malformed body", "/api/v1/search", `{"query":`, http.StatusBadRequest, response.ErrCodeBadRequest},
		{"unknown field", "/api/v1/search", `{"text":"x"}`, http.StatusBadRequest, response.ErrCodeBadRequest},
		{"limit too large", "/api/v1/search", `{"query":"x","limit":5000}`, http.StatusBadRequest, response.ErrCodeValidationFailed},
		{"bad sort direction", "/api/v1/search", `{"query":"x","sort":{"field":"score","direction":"up"}}`, http.StatusBadRequest, response.ErrCodeValidationFailed},
		{"bad filter expression", "/api/v1/search", `{"query":"x","filter_expression":"importance >>"}`, http.StatusBadRequest, response.ErrCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			resp := decode[response.ErrorResponse](t, w)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.RequestID)
		})
	}
}

func TestStrategyEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/api/v1/strategies", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.StrategyListResponse](t, w)
	assert.Equal(t, 7, list.Total)
	assert.Len(t, list.Enabled, 7)
	assert.Equal(t, strategyconfig.FullText, list.Strategies[0].Name)

	w = env.do(t, http.MethodGet, "/api/v1/strategies/temporal", "")
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[engine.StrategyInfo](t, w)
	assert.Equal(t, 55, info.Priority)

	w = env.do(t, http.MethodGet, "/api/v1/strategies/vector", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/strategies/substring/reload", "")
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestBreakerEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodPost, "/api/v1/breakers/fulltext/trip", "")
	require.Equal(t, http.StatusOK, w.Code)
	snap := decode[resilience.BreakerSnapshot](t, w)
	assert.Equal(t, resilience.StateOpen, snap.State)

	w = env.do(t, http.MethodPost, "/api/v1/breakers/fulltext/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	snap = decode[resilience.BreakerSnapshot](t, w)
	assert.Equal(t, resilience.StateClosed, snap.State)

	w = env.do(t, http.MethodPost, "/api/v1/breakers/vector/trip", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMonitoringEndpoints(t *testing.T) {
	env := newTestEnv(t, false)
	env.do(t, http.MethodPost, "/api/v1/search", `{"query":"kubernetes"}`)

	for _, path := range []string{"/api/v1/report", "/api/v1/dashboard", "/api/v1/errors"} {
		w := env.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := env.do(t, http.MethodGet, "/api/v1/report", "")
	var report map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.NotZero(t, report["total_queries"])

	w = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "recall_"), "expected recall metrics in exposition")
}

func TestConfigEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.do(t, http.MethodGet, "/api/v1/config/substring", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 70, decode[models.ConfigResponse](t, w).Config.Priority)

	w = env.do(t, http.MethodPost, "/api/v1/config/substring/backups", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	backup := decode[strategyconfig.BackupMetadata](t, w)
	assert.Equal(t, strategyconfig.Substring, backup.Strategy)

	w = env.do(t, http.MethodPut, "/api/v1/config/substring", `{"priority":99}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 99, decode[models.ConfigResponse](t, w).Config.Priority)
	info, err := env.engine.Strategy(strategyconfig.Substring)
	require.NoError(t, err)
	assert.Equal(t, 99, info.Priority)

	w = env.do(t, http.MethodPut, "/api/v1/config/substring", `{"timeout_ms":5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = env.do(t, http.MethodPut, "/api/v1/config/substring", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/config/substring/backups", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[models.BackupListResponse](t, w).Backups, 1)

	w = env.do(t, http.MethodPost, "/api/v1/config/substring/restore/"+backup.ID, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 70, decode[models.ConfigResponse](t, w).Config.Priority)

	w = env.do(t, http.MethodPost, "/api/v1/config/substring/restore/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/audit?strategy=substring&limit=50", "")
	require.Equal(t, http.StatusOK, w.Code)
	audit := decode[models.AuditResponse](t, w)
	assert.NotZero(t, audit.Total)
	for _, e := range audit.Entries {
		assert.Equal(t, strategyconfig.Substring, e.Strategy)
	}

	w = env.do(t, http.MethodGet, "/api/v1/audit?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfigEndpoints_NoManager(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/api/v1/config/substring", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPut, "/api/v1/config/substring", `{"priority":99}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/config/substring/backups", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/audit", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode[models.AuditResponse](t, w).Total)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	w := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	ctx := context.Background()
	require.NoError(t, env.engine.Start(ctx))
	defer env.engine.Stop(ctx)

	w = env.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[map[string]any](t, w)
	assert.Equal(t, true, status["running"])
}

func TestAdminChangesPublishEvents(t *testing.T) {
	log := testLogger()
	configs, err := strategyconfig.NewManager(strategyconfig.Options{Dir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { configs.Close() })
	eng, err := engine.New(testStore(t), engine.DefaultConfig(), engine.WithConfigManager(configs))
	require.NoError(t, err)

	b := events.NewBroadcaster()
	defer b.Close()
	ch := b.Subscribe(4)

	env := &testEnv{engine: eng, router: NewRouter(config.DefaultConfig(), log, &Handlers{
		Strategies: handlers.NewStrategyHandler(eng, log).WithEvents(b),
		Config:     handlers.NewConfigHandler(eng, log).WithEvents(b),
	})}

	w := env.do(t, http.MethodPost, "/api/v1/breakers/temporal/trip", "")
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPut, "/api/v1/config/recency", `{"priority":10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	first := <-ch
	assert.Equal(t, events.TypeBreaker, first.Type)
	assert.Equal(t, map[string]any{"strategy": "temporal", "state": "open"}, first.Payload)
	second := <-ch
	assert.Equal(t, events.TypeConfig, second.Type)
	assert.Equal(t, map[string]any{"strategy": "recency", "action": "update"}, second.Payload)
}
