package rules

import (
	"sort"
	"strings"
	"sync"

	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/kusuridheeraj/titan-grid/internal/validation"
)

// Registry maps route templates and route prefixes to explicit override rules.
// A route registration beats any group registration; among groups the longest prefix wins.
type Registry struct {
	mu     sync.RWMutex
	routes map[string]models.RateLimitRule
	groups []groupRule
}

type groupRule struct {
	prefix string
	rule   models.RateLimitRule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string]models.RateLimitRule)}
}

// Register attaches rule to an exact route template such as "/api/orders/{id}".
func (r *Registry) Register(routeTemplate string, rule models.RateLimitRule) error {
	rule = asOverride(rule)
	if err := validation.ValidateRule(rule); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[routeTemplate] = rule
	return nil
}

// RegisterGroup attaches rule to every route template under prefix.
func (r *Registry) RegisterGroup(prefix string, rule models.RateLimitRule) error {
	rule = asOverride(rule)
	if err := validation.ValidateRule(rule); err != nil {
		return err
	}
	prefix = "/" + strings.Trim(prefix, "/")

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.groups {
		if r.groups[i].prefix == prefix {
			r.groups[i].rule = rule
			return nil
		}
	}
	r.groups = append(r.groups, groupRule{prefix: prefix, rule: rule})
	sort.SliceStable(r.groups, func(i, j int) bool {
		return len(r.groups[i].prefix) > len(r.groups[j].prefix)
	})
	return nil
}

// Lookup returns the override for a route template, or nil.
func (r *Registry) Lookup(routeTemplate string) *models.RateLimitRule {
	if r == nil || routeTemplate == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rule, ok := r.routes[routeTemplate]; ok {
		return &rule
	}
	for _, g := range r.groups {
		if g.prefix == "/" || routeTemplate == g.prefix || strings.HasPrefix(routeTemplate, g.prefix+"/") {
			rule := g.rule
			return &rule
		}
	}
	return nil
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes) + len(r.groups)
}

func asOverride(rule models.RateLimitRule) models.RateLimitRule {
	return models.NewOverrideRule(rule.Limit, rule.WindowSeconds, rule.ClientType, rule.CustomKeyName)
}
