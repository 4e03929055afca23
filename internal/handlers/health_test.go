package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthChecker(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		query      string
		checks     map[string]Check
		breaker    string
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "basic mode skips probes",
			checks:     map[string]Check{"redis": down},
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "extended all healthy",
			query:      "?mode=extended",
			checks:     map[string]Check{"redis": ok, "database": ok},
			breaker:    "CLOSED",
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
			wantChecks: map[string]string{"redis": "healthy", "database": "healthy", "circuit_breaker": "CLOSED"},
		},
		{
			name:       "extended dependency down",
			query:      "?mode=extended",
			checks:     map[string]Check{"redis": down, "database": ok},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
			wantChecks: map[string]string{"redis": "unhealthy: connection refused", "database": "healthy"},
		},
		{
			name:       "open breaker degrades",
			query:      "?mode=extended",
			checks:     map[string]Check{"redis": ok},
			breaker:    "OPEN",
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantChecks: map[string]string{"redis": "healthy", "circuit_breaker": "OPEN"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := NewHealthChecker()
			for name, check := range tt.checks {
				h.Register(name, check)
			}
			if tt.breaker != "" {
				state := tt.breaker
				h.WithBreakerState(func() string { return state })
			}

			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest("GET", "/healthz"+tt.query, nil))

			if w.Code != tt.wantCode {
				t.Errorf("Expected status code %d, got %d", tt.wantCode, w.Code)
			}
			var body HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("Expected status %q, got %q", tt.wantStatus, body.Status)
			}
			if len(body.Checks) != len(tt.wantChecks) {
				t.Errorf("Expected %d checks, got %v", len(tt.wantChecks), body.Checks)
			}
			for k, v := range tt.wantChecks {
				if body.Checks[k] != v {
					t.Errorf("Expected check[%s] = %q, got %q", k, v, body.Checks[k])
				}
			}
		})
	}
}
