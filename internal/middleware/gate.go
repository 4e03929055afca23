package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	logpkg "github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/kusuridheeraj/titan-grid/internal/observability"
	"github.com/kusuridheeraj/titan-grid/internal/request"
	"github.com/kusuridheeraj/titan-grid/internal/services/rules"
	"github.com/kusuridheeraj/titan-grid/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RuleResolver picks the effective rule for a request
type RuleResolver interface {
	Resolve(ctx context.Context, endpoint string, override *models.RateLimitRule) models.RateLimitRule
	IsExcluded(path string) bool
}

// ClientIdentifier derives the caller identity for a rule
type ClientIdentifier interface {
	Identify(r *http.Request, clientType models.ClientType, customKeyName string) models.ClientIdentity
}

// Decider answers admission checks, never failing
type Decider interface {
	Call(ctx context.Context, token models.RequestToken) models.RateLimitDecision
}

// RecordSubmitter accepts decision records for asynchronous delivery
type RecordSubmitter interface {
	Submit(rec observability.Record) bool
}

// GateOptions wires the gate's collaborators. Registry, Pipeline, Metrics and Tracer are optional.
type GateOptions struct {
	Resolver     RuleResolver
	Registry     *rules.Registry
	Identifier   ClientIdentifier
	Decider      Decider
	Pipeline     RecordSubmitter
	Metrics      *observability.Metrics
	Tracer       trace.Tracer
	APIKeyHeader string
}

// RejectionResponse is the body of a 429 response
type RejectionResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Status     int    `json:"status"`
	Endpoint   string `json:"endpoint"`
	Limit      int64  `json:"limit"`
	RetryAfter int64  `json:"retryAfter"`
	ResetTime  string `json:"resetTime"`
}

// Gate admits or rejects each request before it reaches the protected handler
type Gate struct {
	opts   GateOptions
	logger *zap.Logger
}

// NewGate creates the admission gate.
func NewGate(opts GateOptions, logger *zap.Logger) *Gate {
	if opts.Tracer == nil {
		opts.Tracer = telemetry.Tracer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{opts: opts, logger: logger}
}

// Middleware returns the gate as mux middleware.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.opts.Resolver.IsExcluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ctx, span := g.opts.Tracer.Start(r.Context(), "aegis.admission")
		outcome, err := g.decide(ctx, r)
		elapsed := time.Since(start)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "admission failed open")
			span.End()
			g.logger.Error("admission_failed_open",
				zap.String("path", logpkg.SanitizePath(r.URL.Path)),
				zap.Error(err),
			)
			next.ServeHTTP(w, r)
			return
		}
		decision := outcome.Decision
		span.SetAttributes(
			attribute.String("aegis.client_kind", outcome.Client.Kind()),
			attribute.String("aegis.rule_source", string(outcome.Rule.Source)),
			attribute.Int64("aegis.limit", decision.Limit),
			attribute.Int64("aegis.current_count", decision.CurrentCount),
			attribute.Bool("aegis.allowed", decision.Allowed),
		)
		span.End()

		g.opts.Metrics.ObserveDecision(outcome.Rule, decision, elapsed)
		if g.opts.Pipeline != nil {
			g.opts.Pipeline.Submit(observability.NewRecord(r, outcome.Client, outcome.Rule, decision, elapsed, g.opts.APIKeyHeader))
		}

		setRateLimitHeaders(w, decision)
		if !decision.Allowed {
			g.reject(w, r, outcome)
			return
		}
		next.ServeHTTP(w, r.WithContext(request.WithOutcome(r.Context(), outcome)))
	})
}

// decide resolves, identifies and checks. Panics are returned as errors so the caller can fail open.
func (g *Gate) decide(ctx context.Context, r *http.Request) (out *request.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, fmt.Errorf("admission panic: %v", p)
		}
	}()

	rule := g.opts.Resolver.Resolve(ctx, r.URL.Path, g.override(r))
	client := g.opts.Identifier.Identify(r, rule.ClientType, rule.CustomKeyName)
	token := models.RequestToken{
		ClientID:      client.String(),
		EndpointKey:   r.URL.Path,
		Limit:         rule.Limit,
		WindowSeconds: rule.WindowSeconds,
	}
	decision := g.opts.Decider.Call(ctx, token)
	return &request.Outcome{Client: client, Rule: rule, Decision: decision}, nil
}

// override looks up the registry by matched route template, then by raw path
func (g *Gate) override(r *http.Request) *models.RateLimitRule {
	if g.opts.Registry == nil {
		return nil
	}
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			if rule := g.opts.Registry.Lookup(tpl); rule != nil {
				return rule
			}
		}
	}
	return g.opts.Registry.Lookup(r.URL.Path)
}

func setRateLimitHeaders(w http.ResponseWriter, d models.RateLimitDecision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining(), 10))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetTime.Unix(), 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.FormatInt(d.RetryAfterSeconds(), 10))
	}
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, outcome *request.Outcome) {
	d := outcome.Decision
	g.logger.Warn("rate_limit_exceeded",
		zap.String("client_id", logpkg.SanitizeClientID(outcome.Client.String())),
		zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		zap.String("rule_source", string(outcome.Rule.Source)),
		zap.Int64("current_count", d.CurrentCount),
		zap.Int64("limit", d.Limit),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	body := RejectionResponse{
		Error:      "Rate limit exceeded",
		Message:    "Too many requests. Please try again later.",
		Status:     http.StatusTooManyRequests,
		Endpoint:   r.URL.Path,
		Limit:      d.Limit,
		RetryAfter: d.RetryAfterSeconds(),
		ResetTime:  d.ResetTime.UTC().Format(time.RFC3339),
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Error("failed_to_encode_rejection",
			zap.Error(err),
			zap.String("path", logpkg.SanitizePath(r.URL.Path)),
		)
	}
}
