package models

import (
	"strings"
	"time"
)

// Severity classifies how far a client overshot its limit
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity returns the severity for a case-insensitive name.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	case SeverityCritical:
		return SeverityCritical, true
	}
	return "", false
}

// RateLimitEvent is one audit record written to the durable sink
type RateLimitEvent struct {
	ID             int64     `json:"id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	ClientID       string    `json:"client_id"`
	IPAddress      string    `json:"ip_address"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"http_method"`
	Allowed        bool      `json:"allowed"`
	CurrentCount   int64     `json:"current_count"`
	Limit          int64     `json:"limit_threshold"`
	RuleSource     string    `json:"rule_source"`
	Severity       *Severity `json:"severity,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
	RequestHeaders string    `json:"request_headers,omitempty"`
	DecisionTimeMs float64   `json:"decision_time_ms"`
	ServerInstance string    `json:"server_instance,omitempty"`
}

// SuspiciousTrafficEvent is one alert published to the real-time stream
type SuspiciousTrafficEvent struct {
	EventID        string    `json:"event_id"`
	Timestamp      time.Time `json:"timestamp"`
	Severity       Severity  `json:"severity"`
	ThreatScore    int       `json:"threat_score"`
	ClientID       string    `json:"client_id"`
	IPAddress      string    `json:"ip_address"`
	Endpoint       string    `json:"endpoint"`
	Method         string    `json:"http_method"`
	ViolationCount int64     `json:"violation_count"`
	Threshold      int64     `json:"threshold"`
	PercentageOver float64   `json:"percentage_over"`
	RuleSource     string    `json:"rule_source"`
	UserAgent      string    `json:"user_agent"`
	DecisionTimeMs float64   `json:"decision_time_ms"`
}

// CountByKey is one row of a grouped analytics query
type CountByKey struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// AnalyticsSummary aggregates audit records over a time range
type AnalyticsSummary struct {
	TimeRangeHours       int          `json:"time_range_hours"`
	TotalEvents          int64        `json:"total_events"`
	BlockedEvents        int64        `json:"blocked_events"`
	AllowedEvents        int64        `json:"allowed_events"`
	BlockRate            string       `json:"block_rate"`
	TopBlockedIPs        []CountByKey `json:"top_blocked_ips"`
	TopTargetedEndpoints []CountByKey `json:"top_targeted_endpoints"`
}
