package request

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/kusuridheeraj/titan-grid/internal/models"
)

type contextKey string

const decisionContextKey contextKey = "rate_limit_decision"

// DecisionContextKey returns the context key used for the admission outcome. Exposed for tests that inject non-outcome values.
func DecisionContextKey() contextKey { return decisionContextKey }

// Outcome is the admission result attached to a forwarded request
type Outcome struct {
	Client   models.ClientIdentity
	Rule     models.RateLimitRule
	Decision models.RateLimitDecision
}

// ClientIP extracts the client IP from the request, respecting X-Forwarded-For and X-Real-IP.
// The first non-blank X-Forwarded-For entry wins. The port is stripped from RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// WithOutcome returns a context with the admission outcome attached.
func WithOutcome(ctx context.Context, o *Outcome) context.Context {
	return context.WithValue(ctx, decisionContextKey, o)
}

// OutcomeFromContext returns the admission outcome from the request context, or nil if missing or wrong type.
func OutcomeFromContext(r *http.Request) *Outcome {
	o, _ := r.Context().Value(decisionContextKey).(*Outcome)
	return o
}
