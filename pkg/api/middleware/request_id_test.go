package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	tests := []struct {
		name          string
		header        string
		wantGenerated bool
	}{
		{name: "missing header", header: "", wantGenerated: true},
		{name: "caller id kept", header: "search-7f3a:retry.2", wantGenerated: false},
		{name: "newline rejected", header: "abc\ninjected=1", wantGenerated: true},
		{name: "spaces rejected", header: "two words", wantGenerated: true},
		{name: "too long", header: strings.Repeat("a", maxRequestIDLen+1), wantGenerated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/search", nil)
			if tt.header != "" {
				req.Header.Set(RequestIDHeader, tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if got := w.Header().Get(RequestIDHeader); got != captured {
				t.Errorf("response id %q != context id %q", got, captured)
			}
			if tt.wantGenerated {
				if _, err := uuid.Parse(captured); err != nil {
					t.Errorf("expected a generated UUID, got %q", captured)
				}
			} else if captured != tt.header {
				t.Errorf("request id = %q, want %q", captured, tt.header)
			}
		})
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() = %q, want empty", got)
	}
	if got := GetRequestID(WithRequestID(context.Background(), "r-1")); got != "r-1" {
		t.Errorf("GetRequestID() = %q, want r-1", got)
	}
}
