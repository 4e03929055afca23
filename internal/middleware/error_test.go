package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantBody   string
		wantLog    string
	}{
		{
			name: "no panic passes through",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("OK"))
			},
			wantStatus: http.StatusOK,
			wantBody:   "OK",
		},
		{
			name:       "string panic",
			handler:    func(http.ResponseWriter, *http.Request) { panic("rule store exploded") },
			wantStatus: http.StatusInternalServerError,
			wantLog:    "panic_recovered",
		},
		{
			name: "runtime panic",
			handler: func(http.ResponseWriter, *http.Request) {
				var counters map[string]int
				counters["ip:203.0.113.9"]++
			},
			wantStatus: http.StatusInternalServerError,
			wantLog:    "panic_recovered",
		},
		{
			name: "panic after upstream headers were sent",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
				_, _ = w.Write([]byte("partial"))
				panic("upstream stream broke")
			},
			wantStatus: http.StatusAccepted,
			wantBody:   "partial",
			wantLog:    "panic_after_response_started",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			core, logs := observer.New(zapcore.InfoLevel)
			h := ErrorHandler(zap.New(core))(tt.handler)

			req := httptest.NewRequest(http.MethodGet, "/api/orders/7", nil)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
			if tt.wantLog != "" && logs.FilterMessage(tt.wantLog).Len() != 1 {
				t.Errorf("expected one %q log entry, got %v", tt.wantLog, logs.All())
			}
			if tt.wantLog == "" && logs.Len() != 0 {
				t.Errorf("unexpected log entries: %v", logs.All())
			}
		})
	}
}

func TestErrorHandler_ResponseBody(t *testing.T) {
	t.Parallel()

	h := ErrorHandler(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	req := httptest.NewRequest(http.MethodPost, "/admin/rules", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Status != http.StatusInternalServerError || body.Error != "Internal Server Error" {
		t.Errorf("body = %+v", body)
	}
	if body.Message != "An unexpected error occurred" {
		t.Errorf("panic detail leaked: %q", body.Message)
	}
	if body.Path != "/admin/rules" || body.Timestamp == "" {
		t.Errorf("path/timestamp = %q/%q", body.Path, body.Timestamp)
	}
}

func TestErrorHandler_ReraisesAbortHandler(t *testing.T) {
	t.Parallel()

	h := ErrorHandler(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		rec := recover()
		err, ok := rec.(error)
		if !ok || !errors.Is(err, http.ErrAbortHandler) {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/catalog", nil))
	t.Error("ServeHTTP returned without re-panicking")
}
