package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/kusuridheeraj/titan-grid/internal/database"
	"github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/kusuridheeraj/titan-grid/internal/validation"
	"go.uber.org/zap"
)

// CacheInvalidator drops cached rule lookups after a write
type CacheInvalidator interface {
	Invalidate()
}

// RuleHandler manages dynamic rules
type RuleHandler struct {
	repo   database.RuleRepositoryInterface
	cache  CacheInvalidator
	logger *zap.Logger
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(repo database.RuleRepositoryInterface, cache CacheInvalidator, zapLogger *zap.Logger) *RuleHandler {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &RuleHandler{repo: repo, cache: cache, logger: zapLogger}
}

// RegisterRoutes registers rule routes
func (h *RuleHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/admin/rules", h.ListRules).Methods("GET")
	r.HandleFunc("/admin/rules", h.CreateRule).Methods("POST")
	r.HandleFunc("/admin/rules/{id:[0-9]+}", h.GetRule).Methods("GET")
	r.HandleFunc("/admin/rules/{id:[0-9]+}", h.UpdateRule).Methods("PUT")
	r.HandleFunc("/admin/rules/{id:[0-9]+}/enabled", h.SetEnabled).Methods("PATCH")
	r.HandleFunc("/admin/rules/{id:[0-9]+}", h.DeleteRule).Methods("DELETE")
}

// RuleRequest is the writable subset of a dynamic rule
type RuleRequest struct {
	EndpointPattern string  `json:"endpoint_pattern"`
	LimitCount      int     `json:"limit_count"`
	WindowSeconds   int     `json:"window_seconds"`
	ClientType      string  `json:"client_type"`
	CustomKey       *string `json:"custom_key,omitempty"`
	Enabled         *bool   `json:"enabled,omitempty"`
	Priority        int     `json:"priority"`
	Description     *string `json:"description,omitempty"`
	CreatedBy       *string `json:"created_by,omitempty"`
}

// toRecord converts and validates a request; enabled defaults to true
func (req *RuleRequest) toRecord() (*models.RuleRecord, error) {
	clientType, err := models.ParseClientType(req.ClientType)
	if err != nil {
		return nil, err
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	if req.Description != nil {
		desc := validation.SanitizeText(*req.Description)
		req.Description = &desc
	}
	rec := &models.RuleRecord{
		EndpointPattern: strings.TrimSpace(req.EndpointPattern),
		LimitCount:      req.LimitCount,
		WindowSeconds:   req.WindowSeconds,
		ClientType:      clientType,
		CustomKey:       req.CustomKey,
		Enabled:         enabled,
		Priority:        req.Priority,
		Description:     req.Description,
		CreatedBy:       req.CreatedBy,
	}
	if err := validation.ValidateRuleRecord(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRules handles GET /admin/rules
func (h *RuleHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.repo.List(r.Context())
	if err != nil {
		h.repoError(w, "rule_list_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, rules)
}

// GetRule handles GET /admin/rules/{id}
func (h *RuleHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	rule, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.repoError(w, "rule_get_failed", err)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /admin/rules
func (h *RuleHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	rec, err := req.toRecord()
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	if err := h.repo.Create(r.Context(), rec); err != nil {
		h.repoError(w, "rule_create_failed", err)
		return
	}
	h.invalidate("created", rec.ID)
	respondJSON(w, http.StatusCreated, rec)
}

// UpdateRule handles PUT /admin/rules/{id}
func (h *RuleHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	var req RuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	rec, err := req.toRecord()
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	rec.ID = id
	if err := h.repo.Update(r.Context(), rec); err != nil {
		h.repoError(w, "rule_update_failed", err)
		return
	}
	h.invalidate("updated", id)
	respondJSON(w, http.StatusOK, rec)
}

// SetEnabled handles PATCH /admin/rules/{id}/enabled with {"enabled": bool}
func (h *RuleHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondJSONError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.Enabled == nil {
		respondJSONError(w, http.StatusBadRequest, "Validation failed", "enabled is required")
		return
	}
	if err := h.repo.SetEnabled(r.Context(), id, *req.Enabled); err != nil {
		h.repoError(w, "rule_toggle_failed", err)
		return
	}
	h.invalidate("toggled", id)
	respondJSON(w, http.StatusOK, map[string]any{"id": id, "enabled": *req.Enabled})
}

// DeleteRule handles DELETE /admin/rules/{id}
func (h *RuleHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id, ok := ruleID(w, r)
	if !ok {
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.repoError(w, "rule_delete_failed", err)
		return
	}
	h.invalidate("deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *RuleHandler) invalidate(action string, id int64) {
	if h.cache != nil {
		h.cache.Invalidate()
	}
	h.logger.Info("dynamic_rule_"+action, zap.Int64("rule_id", id))
}

func (h *RuleHandler) repoError(w http.ResponseWriter, event string, err error) {
	if errors.Is(err, models.ErrRuleNotFound) {
		respondJSONError(w, http.StatusNotFound, "Not found", "Rule not found")
		return
	}
	h.logger.Error(event, zap.String("error", logger.SanitizeError(err)))
	respondJSONError(w, http.StatusInternalServerError, "Internal server error", "Rule store request failed")
}

func ruleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		respondJSONError(w, http.StatusBadRequest, "Invalid ID", "Rule ID must be a positive integer")
		return 0, false
	}
	return id, true
}
