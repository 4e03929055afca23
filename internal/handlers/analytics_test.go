package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/kusuridheeraj/titan-grid/internal/observability"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvents struct {
	err         error
	summaryArgs [][2]int
	severity    models.Severity
	hours       int
}

func (f *fakeEvents) Summary(_ context.Context, hours, top int) (*models.AnalyticsSummary, error) {
	f.summaryArgs = append(f.summaryArgs, [2]int{hours, top})
	if f.err != nil {
		return nil, f.err
	}
	return &models.AnalyticsSummary{TimeRangeHours: hours, TotalEvents: 10, BlockedEvents: 4, AllowedEvents: 6, BlockRate: "40.00%"}, nil
}

func (f *fakeEvents) BlockedByIP(_ context.Context, ip string) ([]*models.RateLimitEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*models.RateLimitEvent{{IPAddress: ip}, {IPAddress: ip}}, nil
}

func (f *fakeEvents) BlockedByClient(_ context.Context, clientID string) ([]*models.RateLimitEvent, error) {
	return []*models.RateLimitEvent{{ClientID: clientID}}, f.err
}

func (f *fakeEvents) BySeverity(_ context.Context, severity models.Severity, hours int) ([]*models.RateLimitEvent, error) {
	f.severity, f.hours = severity, hours
	return []*models.RateLimitEvent{{Severity: &severity, Timestamp: time.Now()}}, f.err
}

func serveAnalytics(h *AnalyticsHandler, path string) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func TestAnalyticsHandler_Summary(t *testing.T) {
	t.Parallel()

	events := &fakeEvents{}
	w := serveAnalytics(NewAnalyticsHandler(events, nil, nil), "/admin/analytics/summary?hours=6&top=3")
	require.Equal(t, http.StatusOK, w.Code)

	var summary models.AnalyticsSummary
	decodeData(t, w, &summary)
	assert.Equal(t, 6, summary.TimeRangeHours)
	assert.Equal(t, "40.00%", summary.BlockRate)
	assert.Equal(t, [][2]int{{6, 3}}, events.summaryArgs)
}

func TestAnalyticsHandler_HoursBounds(t *testing.T) {
	t.Parallel()

	for _, path := range []string{
		"/admin/analytics/summary?hours=0",
		"/admin/analytics/summary?hours=721",
		"/admin/analytics/summary?top=abc",
		"/admin/analytics/severity/HIGH?hours=-1",
		"/admin/analytics/severity/EXTREME",
	} {
		w := serveAnalytics(NewAnalyticsHandler(&fakeEvents{}, nil, nil), path)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestAnalyticsHandler_HealthDashboard(t *testing.T) {
	t.Parallel()

	events := &fakeEvents{}
	w := serveAnalytics(NewAnalyticsHandler(events, nil, nil), "/admin/analytics/health")
	require.Equal(t, http.StatusOK, w.Code)

	var dash HealthDashboard
	decodeData(t, w, &dash)
	assert.Equal(t, 1, dash.Last1Hour.TimeRangeHours)
	assert.Equal(t, 24, dash.Last24Hours.TimeRangeHours)
}

func TestAnalyticsHandler_Blocked(t *testing.T) {
	t.Parallel()

	h := NewAnalyticsHandler(&fakeEvents{}, nil, nil)

	w := serveAnalytics(h, "/admin/analytics/blocked/ip/203.0.113.7")
	require.Equal(t, http.StatusOK, w.Code)
	var byIP BlockedEventsResponse
	decodeData(t, w, &byIP)
	assert.Equal(t, "203.0.113.7", byIP.IPAddress)
	assert.Equal(t, 2, byIP.TotalBlocked)

	w = serveAnalytics(h, "/admin/analytics/blocked/client/apikey:abc")
	require.Equal(t, http.StatusOK, w.Code)
	var byClient BlockedEventsResponse
	decodeData(t, w, &byClient)
	assert.Equal(t, "apikey:abc", byClient.ClientID)
	assert.Equal(t, 1, byClient.TotalBlocked)
}

func TestAnalyticsHandler_BySeverity(t *testing.T) {
	t.Parallel()

	events := &fakeEvents{}
	w := serveAnalytics(NewAnalyticsHandler(events, nil, nil), "/admin/analytics/severity/critical?hours=48")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.SeverityCritical, events.severity)
	assert.Equal(t, 48, events.hours)

	var resp SeverityEventsResponse
	decodeData(t, w, &resp)
	assert.Equal(t, 1, resp.TotalEvents)
	assert.Equal(t, 48, resp.TimeRangeHours)
}

func TestAnalyticsHandler_Unavailable(t *testing.T) {
	t.Parallel()

	h := NewAnalyticsHandler(nil, nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, serveAnalytics(h, "/admin/analytics/summary").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serveAnalytics(h, "/admin/analytics/stream").Code)

	failing := NewAnalyticsHandler(&fakeEvents{err: errors.New("pq: relation does not exist")}, nil, nil)
	w := serveAnalytics(failing, "/admin/analytics/blocked/ip/1.2.3.4")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "relation")
}

func TestAnalyticsHandler_Stream(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	pub := observability.NewStreamPublisher(client, "", 0)
	require.NoError(t, pub.EnsureConsumerGroups(ctx, observability.DefaultConsumerGroups...))
	require.NoError(t, pub.Publish(ctx, &models.SuspiciousTrafficEvent{EventID: "e1", Severity: models.SeverityHigh}))

	w := serveAnalytics(NewAnalyticsHandler(nil, pub, nil), "/admin/analytics/stream")
	require.Equal(t, http.StatusOK, w.Code)

	var info observability.StreamInfo
	decodeData(t, w, &info)
	assert.Equal(t, observability.DefaultAlertStream, info.StreamName)
	assert.Equal(t, int64(1), info.Length)
}
