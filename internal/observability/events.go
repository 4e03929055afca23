package observability

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/kusuridheeraj/titan-grid/internal/request"
)

// safeHeaders are the request headers copied into audit records
var safeHeaders = []string{
	"User-Agent",
	"Accept",
	"Content-Type",
	"Origin",
	"Referer",
	"X-Forwarded-For",
	"X-Real-IP",
	"X-API-Key",
}

// Record is a snapshot of one admission decision taken off the request path
type Record struct {
	Timestamp    time.Time
	Client       models.ClientIdentity
	IPAddress    string
	Endpoint     string
	Method       string
	UserAgent    string
	Headers      map[string]string
	Rule         models.RateLimitRule
	Decision     models.RateLimitDecision
	DecisionTime time.Duration
}

// NewRecord captures everything the pipeline needs from the request.
// The request must not be retained once the handler returns, so headers are copied here.
func NewRecord(r *http.Request, client models.ClientIdentity, rule models.RateLimitRule, decision models.RateLimitDecision, elapsed time.Duration, apiKeyHeader string) Record {
	return Record{
		Timestamp:    time.Now().UTC(),
		Client:       client,
		IPAddress:    request.ClientIP(r),
		Endpoint:     r.URL.Path,
		Method:       r.Method,
		UserAgent:    r.UserAgent(),
		Headers:      extractSafeHeaders(r.Header, apiKeyHeader),
		Rule:         rule,
		Decision:     decision,
		DecisionTime: elapsed,
	}
}

func extractSafeHeaders(h http.Header, apiKeyHeader string) map[string]string {
	out := make(map[string]string)
	for _, name := range safeHeaders {
		if v := h.Get(name); v != "" {
			out[name] = v
		}
	}
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}
	if v := h.Get(apiKeyHeader); v != "" {
		delete(out, "X-API-Key")
		out[http.CanonicalHeaderKey(apiKeyHeader)] = logger.MaskSecret(v)
	}
	return out
}

// Severity grades the record. Allowed decisions carry no severity.
func (rec Record) Severity() *models.Severity {
	if rec.Decision.Allowed {
		return nil
	}
	sev := ClassifySeverity(rec.Decision.Demand(), rec.Decision.Limit)
	return &sev
}

// AuditEvent builds the durable audit record.
func (rec Record) AuditEvent(serverInstance string) *models.RateLimitEvent {
	headers := ""
	if len(rec.Headers) > 0 {
		if b, err := json.Marshal(rec.Headers); err == nil {
			headers = string(b)
		}
	}
	return &models.RateLimitEvent{
		Timestamp:      rec.Timestamp,
		ClientID:       rec.Client.String(),
		IPAddress:      rec.IPAddress,
		Endpoint:       rec.Endpoint,
		Method:         rec.Method,
		Allowed:        rec.Decision.Allowed,
		CurrentCount:   rec.Decision.CurrentCount,
		Limit:          rec.Decision.Limit,
		RuleSource:     string(rec.Rule.Source),
		Severity:       rec.Severity(),
		UserAgent:      rec.UserAgent,
		RequestHeaders: headers,
		DecisionTimeMs: durationMillis(rec.DecisionTime),
		ServerInstance: serverInstance,
	}
}

// AlertEvent builds the real-time alert for a denial, or nil for an allowed decision.
func (rec Record) AlertEvent() *models.SuspiciousTrafficEvent {
	sev := rec.Severity()
	if sev == nil {
		return nil
	}
	demand := rec.Decision.Demand()
	return &models.SuspiciousTrafficEvent{
		EventID:        uuid.NewString(),
		Timestamp:      rec.Timestamp,
		Severity:       *sev,
		ThreatScore:    ThreatScore(demand, rec.Decision.Limit, *sev),
		ClientID:       rec.Client.String(),
		IPAddress:      rec.IPAddress,
		Endpoint:       rec.Endpoint,
		Method:         rec.Method,
		ViolationCount: demand,
		Threshold:      rec.Decision.Limit,
		PercentageOver: PercentageOver(demand, rec.Decision.Limit),
		RuleSource:     string(rec.Rule.Source),
		UserAgent:      rec.UserAgent,
		DecisionTimeMs: durationMillis(rec.DecisionTime),
	}
}

func durationMillis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
