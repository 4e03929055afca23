package models

import (
	"strings"
	"time"
)

// ClientIdentity is a tagged caller identifier such as "ip:10.0.0.1" or "apikey:abc"
type ClientIdentity string

// Identity prefixes
const (
	IdentityPrefixIP     = "ip:"
	IdentityPrefixAPIKey = "apikey:"
	IdentityPrefixUser   = "user:"
	IdentityPrefixCustom = "custom:"
)

// Kind returns the identity tag without the trailing colon, e.g. "ip".
func (c ClientIdentity) Kind() string {
	s := string(c)
	if i := strings.IndexByte(s, ':'); i > 0 {
		return s[:i]
	}
	return ""
}

func (c ClientIdentity) String() string { return string(c) }

// RequestToken addresses one shared sliding-window counter
type RequestToken struct {
	ClientID      string
	EndpointKey   string
	Limit         int
	WindowSeconds int
}

// Key builds the counter key: {prefix}:{clientId}:{endpointKey}.
func (t RequestToken) Key(prefix string) string {
	return prefix + ":" + t.ClientID + ":" + t.EndpointKey
}

// Window returns the token window as a duration.
func (t RequestToken) Window() time.Duration {
	return time.Duration(t.WindowSeconds) * time.Second
}

// RateLimitDecision is the immutable outcome of one admission check
type RateLimitDecision struct {
	Allowed      bool           `json:"allowed"`
	CurrentCount int64          `json:"current_count"`
	Limit        int64          `json:"limit"`
	ResetTime    time.Time      `json:"reset_time"`
	RetryAfter   *time.Duration `json:"retry_after,omitempty"`
	// Attempts counts admitted plus rejected requests in the window when the store reports it
	Attempts int64 `json:"attempts,omitempty"`
}

// Demand returns the larger of Attempts and CurrentCount.
func (d RateLimitDecision) Demand() int64 {
	if d.Attempts > d.CurrentCount {
		return d.Attempts
	}
	return d.CurrentCount
}

// Remaining returns max(0, limit - currentCount).
func (d RateLimitDecision) Remaining() int64 {
	if rem := d.Limit - d.CurrentCount; rem > 0 {
		return rem
	}
	return 0
}

// RetryAfterSeconds returns the retry-after hint rounded up to whole seconds, or 0 when absent.
func (d RateLimitDecision) RetryAfterSeconds() int64 {
	if d.RetryAfter == nil || *d.RetryAfter <= 0 {
		return 0
	}
	return int64((*d.RetryAfter + time.Second - 1) / time.Second)
}

// AllowedDecision builds an admitting decision.
func AllowedDecision(currentCount, limit int64, resetTime time.Time) RateLimitDecision {
	return RateLimitDecision{Allowed: true, CurrentCount: currentCount, Limit: limit, ResetTime: resetTime}
}

// DeniedDecision builds a rejecting decision.
func DeniedDecision(currentCount, limit int64, resetTime time.Time, retryAfter time.Duration) RateLimitDecision {
	return RateLimitDecision{Allowed: false, CurrentCount: currentCount, Limit: limit, ResetTime: resetTime, RetryAfter: &retryAfter}
}
