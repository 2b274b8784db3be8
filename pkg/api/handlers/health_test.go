package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goclaw/recall/pkg/engine"
	"github.com/goclaw/recall/pkg/logger"
	"github.com/goclaw/recall/pkg/memory"
)

func newTestLogger() logger.Logger {
	return logger.New(&logger.Config{
		Level:  logger.ErrorLevel,
		Format: "json",
		Output: "stdout",
	})
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	store := memory.NewMemStore()
	err := store.Put(context.Background(), &memory.Record{
		ID:         "groceries",
		Content:    "buy milk and eggs",
		MemoryType: memory.ShortTerm,
		Importance: 0.2,
		CreatedAt:  time.Now().Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("Failed to seed store: %v", err)
	}

	eng, err := engine.New(store, engine.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func TestHealthHandler_Health(t *testing.T) {
	handler := NewHealthHandler(newTestEngine(t))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.Health(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("Expected status healthy, got %q", body["status"])
	}
	if body["version"] == "" {
		t.Error("Expected version in response")
	}
}

func TestHealthHandler_Ready(t *testing.T) {
	eng := newTestEngine(t)
	handler := NewHealthHandler(eng)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	handler.Ready(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503 before start, got %d", w.Code)
	}

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}
	defer eng.Stop(ctx)

	w = httptest.NewRecorder()
	handler.Ready(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 after start, got %d", w.Code)
	}
}

func TestHealthHandler_Status(t *testing.T) {
	handler := NewHealthHandler(newTestEngine(t))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()

	handler.Status(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	for _, key := range []string{"health", "running", "strategies", "enabled", "summary", "version"} {
		if _, ok := body[key]; !ok {
			t.Errorf("Expected %q in status response", key)
		}
	}
	if strategies, ok := body["strategies"].([]any); !ok || len(strategies) != 7 {
		t.Errorf("Expected 7 strategies, got %v", body["strategies"])
	}
}
