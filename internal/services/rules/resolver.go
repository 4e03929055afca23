// Package rules resolves the effective rate limit rule for a request from
// three tiers: explicit route overrides, dynamic rules stored in PostgreSQL
// and the static default.
package rules

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/kusuridheeraj/titan-grid/internal/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheTTL is how long a dynamic lookup result is reused
	DefaultCacheTTL = 60 * time.Second
	// DefaultLookupTimeout bounds one dynamic store query
	DefaultLookupTimeout = 500 * time.Millisecond
)

// RuleStore is the dynamic rule store queried on cache misses
type RuleStore interface {
	FindMatchingRules(ctx context.Context, endpoint string) ([]*models.RuleRecord, error)
}

// Config configures a Resolver
type Config struct {
	DefaultRule     models.RateLimitRule
	CacheTTL        time.Duration
	MaxCacheEntries int
	LookupTimeout   time.Duration
	Exclusions      []string
}

// Stats are cumulative resolver counters
type Stats struct {
	CacheHits    uint64
	CacheMisses  uint64
	LookupErrors uint64
}

// Resolver picks the effective rule for an endpoint
type Resolver struct {
	store         RuleStore
	defaultRule   models.RateLimitRule
	cache         *ruleCache
	group         singleflight.Group
	lookupTimeout time.Duration
	exclusions    []string
	logger        *zap.Logger

	hits, misses, lookupErrors atomic.Uint64
}

// NewResolver creates a Resolver. store may be nil, in which case the dynamic tier is skipped.
// The default rule must be valid.
func NewResolver(store RuleStore, cfg Config, zapLogger *zap.Logger) (*Resolver, error) {
	def := models.NewDefaultRule(cfg.DefaultRule.Limit, cfg.DefaultRule.WindowSeconds)
	if err := validation.ValidateRule(def); err != nil {
		return nil, err
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &Resolver{
		store:         store,
		defaultRule:   def,
		cache:         newRuleCache(cfg.CacheTTL, cfg.MaxCacheEntries),
		lookupTimeout: cfg.LookupTimeout,
		exclusions:    normalizeExclusions(cfg.Exclusions),
		logger:        zapLogger,
	}, nil
}

// Resolve returns the effective rule: a valid override, else the best dynamic
// match, else the default. It never fails; store errors fall through to the default.
func (r *Resolver) Resolve(ctx context.Context, endpoint string, override *models.RateLimitRule) models.RateLimitRule {
	if override != nil {
		rule := models.NewOverrideRule(override.Limit, override.WindowSeconds, override.ClientType, override.CustomKeyName)
		err := validation.ValidateRule(rule)
		if err == nil {
			return rule
		}
		r.logger.Warn("invalid_override_rule_skipped",
			zap.String("endpoint", logger.SanitizePath(endpoint)),
			zap.Error(err),
		)
	}

	if rule := r.dynamic(ctx, endpoint); rule != nil {
		return *rule
	}
	return r.defaultRule
}

// DefaultRule returns the static fallback rule.
func (r *Resolver) DefaultRule() models.RateLimitRule {
	return r.defaultRule
}

func (r *Resolver) dynamic(ctx context.Context, endpoint string) *models.RateLimitRule {
	if r.store == nil {
		return nil
	}
	if rule, ok := r.cache.get(endpoint); ok {
		r.hits.Add(1)
		return rule
	}
	r.misses.Add(1)

	v, err, _ := r.group.Do(endpoint, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.lookupTimeout)
		defer cancel()

		records, err := r.store.FindMatchingRules(lookupCtx, endpoint)
		if err != nil {
			return nil, err
		}
		rule := r.selectRule(endpoint, records)
		r.cache.put(endpoint, rule)
		return rule, nil
	})
	if err != nil {
		r.lookupErrors.Add(1)
		r.logger.Warn("dynamic_rule_lookup_failed",
			zap.String("endpoint", logger.SanitizePath(endpoint)),
			zap.String("error", logger.SanitizeError(err)),
		)
		return nil
	}
	rule, _ := v.(*models.RateLimitRule)
	return rule
}

// selectRule picks the first valid matching row by priority DESC, id ASC
func (r *Resolver) selectRule(endpoint string, records []*models.RuleRecord) *models.RateLimitRule {
	sorted := make([]*models.RuleRecord, 0, len(records))
	for _, rec := range records {
		if rec != nil && rec.Enabled {
			sorted = append(sorted, rec)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].ID < sorted[j].ID
	})

	for _, rec := range sorted {
		if !MatchPattern(rec.EndpointPattern, endpoint) {
			continue
		}
		rule := rec.ToRule()
		if err := validation.ValidateRule(rule); err != nil {
			r.logger.Warn("invalid_dynamic_rule_skipped",
				zap.Int64("rule_id", rec.ID),
				zap.Error(err),
			)
			continue
		}
		return &rule
	}
	return nil
}

// Invalidate drops every cached dynamic lookup.
func (r *Resolver) Invalidate() {
	r.cache.clear()
	r.logger.Info("rule_cache_invalidated")
}

// Stats returns cumulative cache and lookup counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		CacheHits:    r.hits.Load(),
		CacheMisses:  r.misses.Load(),
		LookupErrors: r.lookupErrors.Load(),
	}
}

// IsExcluded reports whether path bypasses admission control.
// Entries ending in "/" match as prefixes; other entries match exactly or as a parent path or file stem.
func (r *Resolver) IsExcluded(path string) bool {
	for _, ex := range r.exclusions {
		if strings.HasSuffix(ex, "/") {
			if strings.HasPrefix(path, ex) {
				return true
			}
			continue
		}
		if path == ex || strings.HasPrefix(path, ex+"/") || strings.HasPrefix(path, ex+".") {
			return true
		}
	}
	return false
}

func normalizeExclusions(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, ex := range in {
		ex = strings.TrimSpace(ex)
		if ex == "" || seen[ex] {
			continue
		}
		if !strings.HasPrefix(ex, "/") {
			ex = "/" + ex
		}
		seen[ex] = true
		out = append(out, ex)
	}
	return out
}
