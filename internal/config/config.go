package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Failure modes applied when the counting store is unavailable
const (
	FailureModeAllow = "ALLOW"
	FailureModeDeny  = "DENY"
)

// Audit sink kinds
const (
	AuditSinkPostgres = "postgres"
	AuditSinkRabbitMQ = "rabbitmq"
	AuditSinkNone     = "none"
)

// Config holds application configuration
type Config struct {
	DatabaseURL      string
	ServerPort       string
	AdminPort        string
	RedisURL         string
	RabbitMQURL      string
	RabbitMQPrefetch int
	EnableHSTS       bool
	WorkerDebugMode  bool
	ServerDebugMode  bool
	OTELEnabled      bool
	OTELEndpoint     string
	// UpstreamURL is the service proxied behind the gate; empty serves the built-in test routes
	UpstreamURL string

	// Admission control
	KeyPrefix            string
	DefaultLimit         int
	DefaultWindowSeconds int
	FailureMode          string
	StoreTimeout         time.Duration
	RuleCacheTTL         time.Duration
	ExcludedPaths        []string
	StaticRulesFile      string

	// Circuit breaker around the counting store
	BreakerMinRequests         uint32
	BreakerFailureRatio        float64
	BreakerConsecutiveFailures uint32
	BreakerOpenTimeout         time.Duration

	// Observability pipeline
	AuditSink         string
	VerboseAudit      bool
	PipelineBuffer    int
	PipelineWorkers   int
	AlertStream       string
	AlertStreamMaxLen int64

	// Client identification
	APIKeyHeader string
	JWTSecret    string
	JWKSURL      string
	JWTIssuer    string
	JWTAudience  string

	// Admin surface
	AdminToken       string
	AdminRate        string
	AdminCORSOrigins []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		AdminPort:        getEnv("ADMIN_PORT", "9090"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:      getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch: getEnvInt("RABBITMQ_PREFETCH", 10),
		EnableHSTS:       getEnvBool("ENABLE_HSTS", false),
		WorkerDebugMode:  getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:  getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:      getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		UpstreamURL:      getEnv("GATEWAY_UPSTREAM_URL", ""),

		KeyPrefix:            getEnv("RATE_LIMIT_KEY_PREFIX", "rate_limit"),
		DefaultLimit:         getEnvInt("RATE_LIMIT_DEFAULT_LIMIT", 100),
		DefaultWindowSeconds: getEnvInt("RATE_LIMIT_DEFAULT_WINDOW_SECONDS", 60),
		FailureMode:          strings.ToUpper(getEnv("RATE_LIMIT_FAILURE_MODE", FailureModeAllow)),
		StoreTimeout:         getEnvDuration("RATE_LIMIT_STORE_TIMEOUT", 150*time.Millisecond),
		RuleCacheTTL:         getEnvDuration("RATE_LIMIT_RULE_CACHE_TTL", 60*time.Second),
		ExcludedPaths:        getEnvList("RATE_LIMIT_EXCLUDED_PATHS", DefaultExcludedPaths()),
		StaticRulesFile:      getEnv("RATE_LIMIT_STATIC_RULES_FILE", ""),

		BreakerMinRequests:         uint32(getEnvInt("BREAKER_MIN_REQUESTS", 10)),
		BreakerFailureRatio:        getEnvFloat("BREAKER_FAILURE_RATIO", 0.5),
		BreakerConsecutiveFailures: uint32(getEnvInt("BREAKER_CONSECUTIVE_FAILURES", 5)),
		BreakerOpenTimeout:         getEnvDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),

		AuditSink:         strings.ToLower(getEnv("AUDIT_SINK", AuditSinkPostgres)),
		VerboseAudit:      getEnvBool("AUDIT_VERBOSE", false),
		PipelineBuffer:    getEnvInt("PIPELINE_BUFFER", 1024),
		PipelineWorkers:   getEnvInt("PIPELINE_WORKERS", 4),
		AlertStream:       getEnv("ALERT_STREAM", "suspicious_traffic"),
		AlertStreamMaxLen: int64(getEnvInt("ALERT_STREAM_MAXLEN", 10000)),

		APIKeyHeader: getEnv("API_KEY_HEADER", "X-API-Key"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		JWKSURL:      getEnv("JWT_JWKS_URL", ""),
		JWTIssuer:    getEnv("JWT_ISSUER", ""),
		JWTAudience:  getEnv("JWT_AUDIENCE", ""),

		AdminToken:       getEnv("ADMIN_TOKEN", ""),
		AdminRate:        getEnv("ADMIN_RATE", "20-S"),
		AdminCORSOrigins: getEnvList("ADMIN_CORS_ORIGINS", nil),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DefaultLimit <= 0 || c.DefaultWindowSeconds <= 0 {
		return fmt.Errorf("RATE_LIMIT_DEFAULT_LIMIT and RATE_LIMIT_DEFAULT_WINDOW_SECONDS must be positive")
	}
	if c.FailureMode != FailureModeAllow && c.FailureMode != FailureModeDeny {
		return fmt.Errorf("RATE_LIMIT_FAILURE_MODE must be ALLOW or DENY, got %q", c.FailureMode)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("RATE_LIMIT_STORE_TIMEOUT must be positive")
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("BREAKER_FAILURE_RATIO must be in (0, 1], got %v", c.BreakerFailureRatio)
	}
	switch c.AuditSink {
	case AuditSinkPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when AUDIT_SINK=postgres")
		}
	case AuditSinkRabbitMQ:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required when AUDIT_SINK=rabbitmq")
		}
	case AuditSinkNone:
	default:
		return fmt.Errorf("AUDIT_SINK must be postgres, rabbitmq or none, got %q", c.AuditSink)
	}
	if c.PipelineBuffer <= 0 || c.PipelineWorkers <= 0 {
		return fmt.Errorf("PIPELINE_BUFFER and PIPELINE_WORKERS must be positive")
	}
	return nil
}

// DefaultExcludedPaths returns the path prefixes that bypass admission control.
func DefaultExcludedPaths() []string {
	return []string{"/healthz", "/health", "/metrics", "/docs/", "/swagger/", "/openapi", "/static/", "/public/", "/favicon.ico"}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("150ms") or bare milliseconds ("150")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
