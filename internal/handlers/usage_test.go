package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/kusuridheeraj/titan-grid/internal/limiter"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/redis/go-redis/v9"
)

type usageEnvelope struct {
	Success bool          `json:"success"`
	Data    UsageResponse `json:"data"`
}

func newUsageRouter(t *testing.T) (*mux.Router, *limiter.SlidingWindow, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sw := limiter.NewSlidingWindow(client, limiter.Config{}, nil)
	router := mux.NewRouter()
	NewUsageHandler(sw, models.NewDefaultRule(5, 60), nil).RegisterRoutes(router)
	return router, sw, mr
}

func consume(t *testing.T, sw *limiter.SlidingWindow, n int) {
	t.Helper()
	token := models.RequestToken{ClientID: "ip:10.0.0.1", EndpointKey: "/api/orders", Limit: 5, WindowSeconds: 60}
	for i := 0; i < n; i++ {
		if _, err := sw.Check(context.Background(), token); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}
}

func getUsage(t *testing.T, router http.Handler, query string) (*httptest.ResponseRecorder, usageEnvelope) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/admin/usage"+query, nil))
	var body usageEnvelope
	if w.Code == http.StatusOK {
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return w, body
}

func TestUsageHandler_GetUsage(t *testing.T) {
	t.Parallel()

	router, sw, _ := newUsageRouter(t)
	consume(t, sw, 3)

	w, body := getUsage(t, router, "?clientId=ip:10.0.0.1&endpoint=/api/orders")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if body.Data.CurrentCount != 3 || body.Data.Remaining != 2 || body.Data.Exceeded {
		t.Errorf("unexpected usage: %+v", body.Data)
	}

	// reading usage must not consume quota
	_, again := getUsage(t, router, "?clientId=ip:10.0.0.1&endpoint=/api/orders")
	if again.Data.CurrentCount != 3 {
		t.Errorf("usage consumed quota: count %d", again.Data.CurrentCount)
	}

	_, strict := getUsage(t, router, "?clientId=ip:10.0.0.1&endpoint=/api/orders&limit=3")
	if !strict.Data.Exceeded || strict.Data.Remaining != 0 {
		t.Errorf("Expected exceeded usage with limit=3, got %+v", strict.Data)
	}
}

func TestUsageHandler_Validation(t *testing.T) {
	t.Parallel()

	router, _, _ := newUsageRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"usage without client", "GET", "/admin/usage?endpoint=/api/orders"},
		{"usage without endpoint", "GET", "/admin/usage?clientId=ip:1.2.3.4"},
		{"usage bad limit", "GET", "/admin/usage?clientId=a&endpoint=/b&limit=abc"},
		{"usage zero window", "GET", "/admin/usage?clientId=a&endpoint=/b&windowSeconds=0"},
		{"reset without params", "POST", "/admin/reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestUsageHandler_Reset(t *testing.T) {
	t.Parallel()

	router, sw, _ := newUsageRouter(t)
	consume(t, sw, 5)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/admin/reset?clientId=ip:10.0.0.1&endpoint=/api/orders", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("reset %d: expected status 200, got %d", i, w.Code)
		}
	}

	_, body := getUsage(t, router, "?clientId=ip:10.0.0.1&endpoint=/api/orders")
	if body.Data.CurrentCount != 0 {
		t.Errorf("Expected count 0 after reset, got %d", body.Data.CurrentCount)
	}
}

func TestUsageHandler_StoreDown(t *testing.T) {
	t.Parallel()

	router, _, mr := newUsageRouter(t)
	mr.Close()

	w, _ := getUsage(t, router, "?clientId=ip:10.0.0.1&endpoint=/api/orders")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", w.Code)
	}
}
