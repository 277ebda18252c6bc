package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"mediarelay/internal/metrics"
)

// Shared metrics instance to avoid duplicate Prometheus registration
var sharedMetrics = metrics.New()

func TestBasicAuth(t *testing.T) {
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})

	tests := []struct {
		name         string
		providedUser string
		providedPass string
		setAuth      bool
		wantStatus   int
	}{
		{
			name:         "valid credentials",
			providedUser: "admin",
			providedPass: "secret",
			setAuth:      true,
			wantStatus:   http.StatusOK,
		},
		{
			name:         "invalid username",
			providedUser: "wrong",
			providedPass: "secret",
			setAuth:      true,
			wantStatus:   http.StatusUnauthorized,
		},
		{
			name:         "invalid password",
			providedUser: "admin",
			providedPass: "wrong",
			setAuth:      true,
			wantStatus:   http.StatusUnauthorized,
		},
		{
			name:       "no credentials provided",
			setAuth:    false,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := BasicAuth("admin", "secret")(testHandler)
			req := httptest.NewRequest("GET", "/metrics", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.providedUser, tt.providedPass)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var captured string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	t.Run("generates id when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if captured == "" {
			t.Error("no request id in context")
		}
		if rec.Header().Get("X-Request-ID") != captured {
			t.Error("response header does not match context id")
		}
	})

	t.Run("preserves provided id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Request-ID", "given-id")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if captured != "given-id" {
			t.Errorf("request id = %q, want given-id", captured)
		}
	})
}

func TestHealthHandler_Health(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		toolErr    error
		cacheErr   error
		wantStatus int
		wantState  string
	}{
		{
			name:       "all healthy",
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name:       "tool missing",
			toolErr:    errors.New("executable not found"),
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
		{
			name:       "cache down",
			cacheErr:   errors.New("connection refused"),
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(logger, sharedMetrics, map[string]Check{
				"extractor": func(ctx context.Context) error { return tt.toolErr },
				"cache":     func(ctx context.Context) error { return tt.cacheErr },
			})

			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest("GET", "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != tt.wantState {
				t.Errorf("state = %q, want %q", resp.Status, tt.wantState)
			}
		})
	}
}
