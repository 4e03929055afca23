package models

import (
	"fmt"
	"strings"
	"time"
)

// ClientType selects how a caller is identified for quota purposes
type ClientType string

const (
	ClientTypeIP     ClientType = "IP"
	ClientTypeAPIKey ClientType = "API_KEY"
	ClientTypeUserID ClientType = "USER_ID"
	ClientTypeCustom ClientType = "CUSTOM"
)

// ParseClientType parses a client type name, accepting lower case and dashes.
func ParseClientType(s string) (ClientType, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	switch ClientType(normalized) {
	case ClientTypeIP, ClientTypeAPIKey, ClientTypeUserID, ClientTypeCustom:
		return ClientType(normalized), nil
	case "":
		return ClientTypeIP, nil
	default:
		return "", fmt.Errorf("invalid client_type: %s (must be IP, API_KEY, USER_ID or CUSTOM)", s)
	}
}

// RuleSource records which tier produced an effective rule
type RuleSource string

const (
	RuleSourceOverride RuleSource = "OVERRIDE"
	RuleSourceDynamic  RuleSource = "DYNAMIC"
	RuleSourceDefault  RuleSource = "DEFAULT"
)

const (
	// OverridePriority is the priority stamped on rules registered against a route
	OverridePriority = 1000
	// DefaultPriority is the priority of the static fallback rule
	DefaultPriority = 0
)

// RateLimitRule is the effective rule for one request
type RateLimitRule struct {
	Limit         int        `json:"limit" yaml:"limit" validate:"gt=0"`
	WindowSeconds int        `json:"window_seconds" yaml:"window_seconds" validate:"gt=0"`
	ClientType    ClientType `json:"client_type" yaml:"client_type" validate:"client_type"`
	CustomKeyName string     `json:"custom_key,omitempty" yaml:"custom_key"`
	Source        RuleSource `json:"source" yaml:"-"`
	Priority      int        `json:"priority" yaml:"-"`
}

// Window returns the rule window as a duration.
func (r RateLimitRule) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// Validate checks the rule invariants.
func (r RateLimitRule) Validate() error {
	if r.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidRuleConfig, r.Limit)
	}
	if r.WindowSeconds <= 0 {
		return fmt.Errorf("%w: window_seconds must be positive, got %d", ErrInvalidRuleConfig, r.WindowSeconds)
	}
	if _, err := ParseClientType(string(r.ClientType)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRuleConfig, err)
	}
	return nil
}

// NewOverrideRule builds a rule registered explicitly against a route.
func NewOverrideRule(limit, windowSeconds int, clientType ClientType, customKey string) RateLimitRule {
	if clientType == "" {
		clientType = ClientTypeIP
	}
	return RateLimitRule{
		Limit:         limit,
		WindowSeconds: windowSeconds,
		ClientType:    clientType,
		CustomKeyName: customKey,
		Source:        RuleSourceOverride,
		Priority:      OverridePriority,
	}
}

// NewDefaultRule builds the static fallback rule. Default rules always identify by IP.
func NewDefaultRule(limit, windowSeconds int) RateLimitRule {
	return RateLimitRule{
		Limit:         limit,
		WindowSeconds: windowSeconds,
		ClientType:    ClientTypeIP,
		Source:        RuleSourceDefault,
		Priority:      DefaultPriority,
	}
}

// RuleRecord is a row of the dynamic rule store
type RuleRecord struct {
	ID              int64      `json:"id"`
	EndpointPattern string     `json:"endpoint_pattern" validate:"required,endpoint_pattern"`
	LimitCount      int        `json:"limit_count" validate:"gt=0"`
	WindowSeconds   int        `json:"window_seconds" validate:"gt=0"`
	ClientType      ClientType `json:"client_type" validate:"client_type"`
	CustomKey       *string    `json:"custom_key,omitempty"`
	Enabled         bool       `json:"enabled"`
	Priority        int        `json:"priority"`
	Description     *string    `json:"description,omitempty"`
	CreatedBy       *string    `json:"created_by,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ToRule converts a stored row into an effective DYNAMIC rule.
func (r *RuleRecord) ToRule() RateLimitRule {
	customKey := ""
	if r.CustomKey != nil {
		customKey = *r.CustomKey
	}
	return RateLimitRule{
		Limit:         r.LimitCount,
		WindowSeconds: r.WindowSeconds,
		ClientType:    r.ClientType,
		CustomKeyName: customKey,
		Source:        RuleSourceDynamic,
		Priority:      r.Priority,
	}
}
