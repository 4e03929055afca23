package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"go.uber.org/zap"
)

// CounterAdmin exposes read-only usage and reset for shared counters
type CounterAdmin interface {
	Usage(ctx context.Context, clientID, endpoint string, limit, windowSeconds int) (models.RateLimitDecision, error)
	Reset(ctx context.Context, clientID, endpoint string) error
}

// UsageHandler serves counter inspection and reset
type UsageHandler struct {
	counters    CounterAdmin
	defaultRule models.RateLimitRule
	logger      *zap.Logger
}

// NewUsageHandler creates a new usage handler. defaultRule supplies limit and window when the query omits them.
func NewUsageHandler(counters CounterAdmin, defaultRule models.RateLimitRule, zapLogger *zap.Logger) *UsageHandler {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &UsageHandler{counters: counters, defaultRule: defaultRule, logger: zapLogger}
}

// RegisterRoutes registers usage routes
func (h *UsageHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/admin/usage", h.GetUsage).Methods("GET")
	r.HandleFunc("/admin/reset", h.ResetUsage).Methods("POST")
}

// UsageResponse reports one counter without consuming quota
type UsageResponse struct {
	ClientID      string    `json:"clientId"`
	Endpoint      string    `json:"endpoint"`
	Limit         int64     `json:"limit"`
	WindowSeconds int       `json:"windowSeconds"`
	CurrentCount  int64     `json:"currentCount"`
	Remaining     int64     `json:"remaining"`
	ResetTime     time.Time `json:"resetTime"`
	Exceeded      bool      `json:"exceeded"`
}

// GetUsage handles GET /admin/usage?clientId=&endpoint=&limit=&windowSeconds=
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	clientID, endpoint, ok := counterParams(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", h.defaultRule.Limit, 1, 1_000_000)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid parameter", err.Error())
		return
	}
	window, err := queryInt(r, "windowSeconds", h.defaultRule.WindowSeconds, 1, 86400)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid parameter", err.Error())
		return
	}

	d, err := h.counters.Usage(r.Context(), clientID, endpoint, limit, window)
	if err != nil {
		h.storeError(w, "usage_lookup_failed", err)
		return
	}

	respondJSON(w, http.StatusOK, UsageResponse{
		ClientID:      clientID,
		Endpoint:      endpoint,
		Limit:         d.Limit,
		WindowSeconds: window,
		CurrentCount:  d.CurrentCount,
		Remaining:     d.Remaining(),
		ResetTime:     d.ResetTime.UTC(),
		Exceeded:      !d.Allowed,
	})
}

// ResetUsage handles POST /admin/reset?clientId=&endpoint=
func (h *UsageHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	clientID, endpoint, ok := counterParams(w, r)
	if !ok {
		return
	}
	if err := h.counters.Reset(r.Context(), clientID, endpoint); err != nil {
		h.storeError(w, "usage_reset_failed", err)
		return
	}
	h.logger.Info("admin_counter_reset",
		zap.String("client_id", logger.SanitizeClientID(clientID)),
		zap.String("endpoint", logger.SanitizePath(endpoint)),
	)
	respondJSON(w, http.StatusOK, map[string]any{
		"clientId": clientID,
		"endpoint": endpoint,
		"reset":    true,
	})
}

func (h *UsageHandler) storeError(w http.ResponseWriter, event string, err error) {
	h.logger.Error(event, zap.String("error", logger.SanitizeError(err)))
	if errors.Is(err, models.ErrStoreUnavailable) {
		respondJSONError(w, http.StatusServiceUnavailable, "Store unavailable", "Counting store is unreachable")
		return
	}
	respondJSONError(w, http.StatusBadRequest, "Invalid parameter", err.Error())
}

func counterParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	clientID := r.URL.Query().Get("clientId")
	endpoint := r.URL.Query().Get("endpoint")
	if clientID == "" || endpoint == "" {
		respondJSONError(w, http.StatusBadRequest, "Missing parameter", "clientId and endpoint are required")
		return "", "", false
	}
	return clientID, endpoint, true
}
