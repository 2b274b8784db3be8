package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goclaw/recall/config"
)

func TestCORS(t *testing.T) {
	restricted := &config.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         3600,
	}

	tests := []struct {
		name          string
		config        *config.CORSConfig
		method        string
		origin        string
		preflight     bool
		wantStatus    int
		wantOrigin    string
		wantMethods   string
		wantNextCalls int
	}{
		{
			name:          "allowed origin",
			config:        restricted,
			method:        http.MethodPost,
			origin:        "http://localhost:3000",
			wantStatus:    http.StatusOK,
			wantOrigin:    "http://localhost:3000",
			wantNextCalls: 1,
		},
		{
			name:          "disallowed origin passes through without headers",
			config:        restricted,
			method:        http.MethodPost,
			origin:        "http://evil.test",
			wantStatus:    http.StatusOK,
			wantNextCalls: 1,
		},
		{
			name:        "preflight from allowed origin",
			config:      restricted,
			method:      http.MethodOptions,
			origin:      "http://localhost:3000",
			preflight:   true,
			wantStatus:  http.StatusNoContent,
			wantOrigin:  "http://localhost:3000",
			wantMethods: "GET, POST",
		},
		{
			name:       "preflight from disallowed origin",
			config:     restricted,
			method:     http.MethodOptions,
			origin:     "http://evil.test",
			preflight:  true,
			wantStatus: http.StatusForbidden,
		},
		{
			name: "wildcard origin",
			config: &config.CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
			},
			method:        http.MethodGet,
			origin:        "http://example.com",
			wantStatus:    http.StatusOK,
			wantOrigin:    "*",
			wantNextCalls: 1,
		},
		{
			name: "wildcard with credentials echoes origin",
			config: &config.CORSConfig{
				Enabled:          true,
				AllowedOrigins:   []string{"*"},
				AllowCredentials: true,
			},
			method:        http.MethodGet,
			origin:        "http://example.com",
			wantStatus:    http.StatusOK,
			wantOrigin:    "http://example.com",
			wantNextCalls: 1,
		},
		{
			name:          "disabled",
			config:        &config.CORSConfig{Enabled: false, AllowedOrigins: []string{"*"}},
			method:        http.MethodGet,
			origin:        "http://localhost:3000",
			wantStatus:    http.StatusOK,
			wantNextCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			handler := CORS(tt.config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/v1/search", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := w.Header().Get("Access-Control-Allow-Methods"); got != tt.wantMethods {
				t.Errorf("Access-Control-Allow-Methods = %q, want %q", got, tt.wantMethods)
			}
			if calls != tt.wantNextCalls {
				t.Errorf("next called %d times, want %d", calls, tt.wantNextCalls)
			}
		})
	}
}

func TestCORS_ExposesSearchHeaders(t *testing.T) {
	cfg := &config.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:3000"},
		ExposedHeaders: []string{"x-request-id", "X-Total"},
	}
	handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/report", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got, want := w.Header().Get("Access-Control-Expose-Headers"), "x-request-id, X-Total, Retry-After"; got != want {
		t.Errorf("Access-Control-Expose-Headers = %q, want %q", got, want)
	}
	if got := w.Header().Get("Vary"); got != "Origin" {
		t.Errorf("Vary = %q, want Origin", got)
	}
}
