package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/kusuridheeraj/titan-grid/internal/observability"
	"go.uber.org/zap"
)

const (
	defaultSummaryHours = 24
	maxHours            = 720
	defaultTopN         = 10
)

// EventReader is the analytics side of the audit store
type EventReader interface {
	Summary(ctx context.Context, hours, top int) (*models.AnalyticsSummary, error)
	BlockedByIP(ctx context.Context, ip string) ([]*models.RateLimitEvent, error)
	BlockedByClient(ctx context.Context, clientID string) ([]*models.RateLimitEvent, error)
	BySeverity(ctx context.Context, severity models.Severity, hours int) ([]*models.RateLimitEvent, error)
}

// StreamInspector reports alert stream statistics
type StreamInspector interface {
	Info(ctx context.Context) (*observability.StreamInfo, error)
}

// AnalyticsHandler serves audit analytics
type AnalyticsHandler struct {
	events EventReader
	stream StreamInspector
	logger *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler. events or stream may be nil when the backing store is not configured.
func NewAnalyticsHandler(events EventReader, stream StreamInspector, zapLogger *zap.Logger) *AnalyticsHandler {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &AnalyticsHandler{events: events, stream: stream, logger: zapLogger}
}

// RegisterRoutes registers analytics routes
func (h *AnalyticsHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/admin/analytics/summary", h.Summary).Methods("GET")
	r.HandleFunc("/admin/analytics/health", h.Health).Methods("GET")
	r.HandleFunc("/admin/analytics/stream", h.Stream).Methods("GET")
	r.HandleFunc("/admin/analytics/blocked/ip/{ip}", h.BlockedByIP).Methods("GET")
	r.HandleFunc("/admin/analytics/blocked/client/{id}", h.BlockedByClient).Methods("GET")
	r.HandleFunc("/admin/analytics/severity/{severity}", h.BySeverity).Methods("GET")
}

// BlockedEventsResponse lists blocked events for one key
type BlockedEventsResponse struct {
	IPAddress    string                   `json:"ipAddress,omitempty"`
	ClientID     string                   `json:"clientId,omitempty"`
	TotalBlocked int                      `json:"totalBlocked"`
	Events       []*models.RateLimitEvent `json:"events"`
}

// SeverityEventsResponse lists events of one severity
type SeverityEventsResponse struct {
	Severity       models.Severity          `json:"severity"`
	TimeRangeHours int                      `json:"timeRangeHours"`
	TotalEvents    int                      `json:"totalEvents"`
	Events         []*models.RateLimitEvent `json:"events"`
}

// HealthDashboard compares the last hour with the last day
type HealthDashboard struct {
	Last1Hour   *models.AnalyticsSummary `json:"last1Hour"`
	Last24Hours *models.AnalyticsSummary `json:"last24Hours"`
}

// Summary handles GET /admin/analytics/summary?hours=&top=
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if !h.requireEvents(w) {
		return
	}
	hours, err := queryInt(r, "hours", defaultSummaryHours, 1, maxHours)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid parameter", err.Error())
		return
	}
	top, err := queryInt(r, "top", defaultTopN, 1, 100)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid parameter", err.Error())
		return
	}
	summary, err := h.events.Summary(r.Context(), hours, top)
	if err != nil {
		h.queryError(w, "analytics_summary_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Health handles GET /admin/analytics/health
func (h *AnalyticsHandler) Health(w http.ResponseWriter, r *http.Request) {
	if !h.requireEvents(w) {
		return
	}
	hour, err := h.events.Summary(r.Context(), 1, defaultTopN)
	if err != nil {
		h.queryError(w, "analytics_health_failed", err)
		return
	}
	day, err := h.events.Summary(r.Context(), 24, defaultTopN)
	if err != nil {
		h.queryError(w, "analytics_health_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, HealthDashboard{Last1Hour: hour, Last24Hours: day})
}

// Stream handles GET /admin/analytics/stream
func (h *AnalyticsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Unavailable", "Alert stream is not configured")
		return
	}
	info, err := h.stream.Info(r.Context())
	if err != nil {
		h.logger.Error("alert_stream_info_failed", zap.String("error", logger.SanitizeError(err)))
		respondJSONError(w, http.StatusServiceUnavailable, "Store unavailable", "Alert stream is unreachable")
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// BlockedByIP handles GET /admin/analytics/blocked/ip/{ip}
func (h *AnalyticsHandler) BlockedByIP(w http.ResponseWriter, r *http.Request) {
	if !h.requireEvents(w) {
		return
	}
	ip := mux.Vars(r)["ip"]
	events, err := h.events.BlockedByIP(r.Context(), ip)
	if err != nil {
		h.queryError(w, "analytics_blocked_by_ip_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, BlockedEventsResponse{IPAddress: ip, TotalBlocked: len(events), Events: events})
}

// BlockedByClient handles GET /admin/analytics/blocked/client/{id}
func (h *AnalyticsHandler) BlockedByClient(w http.ResponseWriter, r *http.Request) {
	if !h.requireEvents(w) {
		return
	}
	clientID := mux.Vars(r)["id"]
	events, err := h.events.BlockedByClient(r.Context(), clientID)
	if err != nil {
		h.queryError(w, "analytics_blocked_by_client_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, BlockedEventsResponse{ClientID: clientID, TotalBlocked: len(events), Events: events})
}

// BySeverity handles GET /admin/analytics/severity/{severity}?hours=
func (h *AnalyticsHandler) BySeverity(w http.ResponseWriter, r *http.Request) {
	if !h.requireEvents(w) {
		return
	}
	severity, ok := models.ParseSeverity(mux.Vars(r)["severity"])
	if !ok {
		respondJSONError(w, http.StatusBadRequest, "Invalid parameter", "severity must be LOW, MEDIUM, HIGH or CRITICAL")
		return
	}
	hours, err := queryInt(r, "hours", defaultSummaryHours, 1, maxHours)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid parameter", err.Error())
		return
	}
	events, err := h.events.BySeverity(r.Context(), severity, hours)
	if err != nil {
		h.queryError(w, "analytics_by_severity_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, SeverityEventsResponse{
		Severity:       severity,
		TimeRangeHours: hours,
		TotalEvents:    len(events),
		Events:         events,
	})
}

func (h *AnalyticsHandler) requireEvents(w http.ResponseWriter) bool {
	if h.events == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Unavailable", "Audit store is not configured")
		return false
	}
	return true
}

func (h *AnalyticsHandler) queryError(w http.ResponseWriter, event string, err error) {
	h.logger.Error(event, zap.String("error", logger.SanitizeError(err)))
	respondJSONError(w, http.StatusInternalServerError, "Internal server error", "Analytics query failed")
}
