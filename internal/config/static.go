package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/kusuridheeraj/titan-grid/internal/validation"
	"gopkg.in/yaml.v3"
)

// StaticRules is the optional YAML file declaring the default rule, route
// overrides and excluded paths.
//
//	default:
//	  limit: 100
//	  window_seconds: 60
//	overrides:
//	  - route: /api/orders/{id}
//	    limit: 5
//	    window_seconds: 10
//	    client_type: API_KEY
//	  - group: /api/admin
//	    limit: 20
//	    window_seconds: 60
//	exclusions:
//	  - /internal/
type StaticRules struct {
	Default    *models.RateLimitRule `yaml:"default"`
	Overrides  []StaticOverride      `yaml:"overrides"`
	Exclusions []string              `yaml:"exclusions"`
}

// StaticOverride binds a rule to a route template or a route prefix
type StaticOverride struct {
	Route string               `yaml:"route"`
	Group string               `yaml:"group"`
	Rule  models.RateLimitRule `yaml:",inline"`
}

// LoadStaticRules reads and validates the static rules file. An empty path yields an empty set.
func LoadStaticRules(path string) (*StaticRules, error) {
	if path == "" {
		return &StaticRules{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read static rules file: %w", err)
	}
	return ParseStaticRules(data)
}

// ParseStaticRules decodes and validates a static rules document.
func ParseStaticRules(data []byte) (*StaticRules, error) {
	rules := &StaticRules{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(rules); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse static rules: %w", err)
	}

	if rules.Default != nil {
		*rules.Default = models.NewDefaultRule(rules.Default.Limit, rules.Default.WindowSeconds)
		if err := validation.ValidateRule(*rules.Default); err != nil {
			return nil, fmt.Errorf("default rule: %w", err)
		}
	}

	for i := range rules.Overrides {
		o := &rules.Overrides[i]
		if (o.Route == "") == (o.Group == "") {
			return nil, fmt.Errorf("override %d: %w: exactly one of route or group is required", i, models.ErrInvalidRuleConfig)
		}
		clientType, err := models.ParseClientType(string(o.Rule.ClientType))
		if err != nil {
			return nil, fmt.Errorf("override %d: %w: %v", i, models.ErrInvalidRuleConfig, err)
		}
		o.Rule = models.NewOverrideRule(o.Rule.Limit, o.Rule.WindowSeconds, clientType, o.Rule.CustomKeyName)
		if err := validation.ValidateRule(o.Rule); err != nil {
			return nil, fmt.Errorf("override %d (%s%s): %w", i, o.Route, o.Group, err)
		}
	}

	return rules, nil
}

// DefaultRule returns the YAML default rule when present, else the env default.
func (c *Config) DefaultRule(static *StaticRules) models.RateLimitRule {
	if static != nil && static.Default != nil {
		return *static.Default
	}
	return models.NewDefaultRule(c.DefaultLimit, c.DefaultWindowSeconds)
}

// Exclusions merges configured and static excluded path prefixes.
func (c *Config) Exclusions(static *StaticRules) []string {
	out := append([]string(nil), c.ExcludedPaths...)
	if static != nil {
		out = append(out, static.Exclusions...)
	}
	return out
}
