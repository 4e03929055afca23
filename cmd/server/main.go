package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/kusuridheeraj/titan-grid/internal/config"
	"github.com/kusuridheeraj/titan-grid/internal/database"
	"github.com/kusuridheeraj/titan-grid/internal/failsafe"
	"github.com/kusuridheeraj/titan-grid/internal/handlers"
	"github.com/kusuridheeraj/titan-grid/internal/limiter"
	"github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/middleware"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/kusuridheeraj/titan-grid/internal/observability"
	"github.com/kusuridheeraj/titan-grid/internal/queue"
	"github.com/kusuridheeraj/titan-grid/internal/services/identity"
	"github.com/kusuridheeraj/titan-grid/internal/services/rules"
	"github.com/kusuridheeraj/titan-grid/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const (
	serviceName = "aegis"
	breakerName = "rate-limiter-store"

	strictTestRoute = "/api/test/strict"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if err := config.LoadEnvFiles(); err != nil {
		log.Fatalf("Failed to load env files: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	static, err := config.LoadStaticRules(cfg.StaticRulesFile)
	if err != nil {
		log.Fatalf("Failed to load static rules: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag
	zapLogger, err := logger.NewProductionLogger("aegis-server", debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("admin_port", cfg.AdminPort),
		zap.String("failure_mode", cfg.FailureMode),
		zap.String("audit_sink", cfg.AuditSink),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else if tp, err := telemetry.InitTracer(context.Background(), serviceName, cfg.OTELEndpoint, logger.Hostname()); err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := telemetry.Shutdown(ctx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("invalid_redis_url", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()

	var db *database.DB
	if cfg.DatabaseURL != "" {
		db, err = database.New(cfg.DatabaseURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
		}
		defer func() {
			if err := db.Close(); err != nil {
				zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
			}
		}()
		zapLogger.Info("connected_to_database")
	}

	// Rule resolution
	var ruleStore rules.RuleStore
	var ruleRepo *database.RuleRepository
	if db != nil {
		ruleRepo = database.NewRuleRepository(db)
		ruleStore = ruleRepo
	}
	resolver, err := rules.NewResolver(ruleStore, rules.Config{
		DefaultRule: cfg.DefaultRule(static),
		CacheTTL:    cfg.RuleCacheTTL,
		Exclusions:  cfg.Exclusions(static),
	}, zapLogger)
	if err != nil {
		zapLogger.Fatal("invalid_default_rule", zap.Error(err))
	}
	registry := rules.NewRegistry()
	if err := registerOverrides(registry, static, cfg.UpstreamURL == ""); err != nil {
		zapLogger.Fatal("invalid_override_rule", zap.Error(err))
	}

	// Client identification
	verifier, err := newVerifier(cfg)
	if err != nil {
		zapLogger.Fatal("invalid_jwt_configuration", zap.Error(err))
	}
	identifier := identity.NewIdentifier(identity.Config{APIKeyHeader: cfg.APIKeyHeader}, verifier, zapLogger)

	// Counting store behind the circuit breaker
	metrics := observability.NewMetrics()
	slidingWindow := limiter.NewSlidingWindow(redisClient, limiter.Config{
		KeyPrefix: cfg.KeyPrefix,
		Timeout:   cfg.StoreTimeout,
	}, zapLogger)
	failureMode, err := failsafe.ParseFailureMode(cfg.FailureMode)
	if err != nil {
		zapLogger.Fatal("invalid_failure_mode", zap.Error(err))
	}
	breaker := failsafe.NewBreaker(slidingWindow, failsafe.Settings{
		Name:                breakerName,
		FailureMode:         failureMode,
		MinRequests:         cfg.BreakerMinRequests,
		FailureRatio:        cfg.BreakerFailureRatio,
		ConsecutiveFailures: cfg.BreakerConsecutiveFailures,
		OpenTimeout:         cfg.BreakerOpenTimeout,
		OnStateChange: func(_, to failsafe.State) {
			metrics.SetBreakerState(breakerName, to)
		},
	}, zapLogger)
	metrics.SetBreakerState(breakerName, breaker.State())
	metrics.RegisterResolverStats(resolver.Stats)

	// Observability pipeline
	var eventRepo *database.EventRepository
	if db != nil {
		eventRepo = database.NewEventRepository(db)
	}
	var sink observability.AuditSink
	var auditQueue *queue.RabbitMQQueue
	switch cfg.AuditSink {
	case config.AuditSinkPostgres:
		sink = eventRepo
	case config.AuditSinkRabbitMQ:
		auditQueue, err = queue.ConnectWithRetry(context.Background(), cfg.RabbitMQURL, nil, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
		}
		defer func() {
			if err := auditQueue.Close(); err != nil {
				zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
			}
		}()
		sink = auditQueue
	}

	alerts := observability.NewStreamPublisher(redisClient, cfg.AlertStream, cfg.AlertStreamMaxLen)
	groupsCtx, groupsCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := alerts.EnsureConsumerGroups(groupsCtx, observability.DefaultConsumerGroups...); err != nil {
		zapLogger.Warn("failed_to_create_alert_consumer_groups", zap.Error(err))
	}
	groupsCancel()

	pipeline := observability.NewPipeline(sink, alerts, observability.PipelineConfig{
		Buffer:         cfg.PipelineBuffer,
		Workers:        cfg.PipelineWorkers,
		VerboseAudit:   cfg.VerboseAudit,
		ServerInstance: logger.Hostname(),
	}, metrics, zapLogger)
	metrics.RegisterQueueDepth(pipeline.Depth)

	gate := middleware.NewGate(middleware.GateOptions{
		Resolver:     resolver,
		Registry:     registry,
		Identifier:   identifier,
		Decider:      breaker,
		Pipeline:     pipeline,
		Metrics:      metrics,
		APIKeyHeader: cfg.APIKeyHeader,
	}, zapLogger)

	gateRouter, err := newGateRouter(cfg, gate, tracingEnabled, zapLogger)
	if err != nil {
		zapLogger.Fatal("invalid_upstream_url", zap.Error(err))
	}

	// Admin surface
	if cfg.AdminToken == "" {
		zapLogger.Warn("admin_token_not_configured_admin_api_unauthenticated")
	}
	throttle, err := middleware.AdminThrottle(redisClient, cfg.AdminRate)
	if err != nil {
		zapLogger.Fatal("invalid_admin_rate", zap.Error(err))
	}

	healthChecker := handlers.NewHealthChecker().
		Register("redis", slidingWindow.HealthCheck).
		WithBreakerState(func() string { return string(breaker.State()) })
	if db != nil {
		healthChecker.Register("database", db.HealthCheck)
	}
	if auditQueue != nil {
		healthChecker.Register("queue", auditQueue.HealthCheck)
	}

	adminRouter := mux.NewRouter()
	adminRouter.Use(middleware.Logging(zapLogger))
	adminRouter.Use(middleware.ErrorHandler(zapLogger))
	adminRouter.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	adminRouter.Use(middleware.AdminCORS(cfg.AdminCORSOrigins))

	adminRouter.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")
	adminRouter.Handle("/metrics", metrics.Handler()).Methods("GET")
	handlers.NewOpenAPIHandler(nil).RegisterRoutes(adminRouter)

	api := adminRouter.PathPrefix("/admin").Subrouter()
	api.Use(throttle)
	api.Use(middleware.AdminAuth(cfg.AdminToken, zapLogger))
	api.Use(middleware.RequireJSON)
	api.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	api.Use(middleware.Timeout(30 * time.Second))

	handlers.NewUsageHandler(slidingWindow, resolver.DefaultRule(), zapLogger).RegisterRoutes(api)
	handlers.NewAnalyticsHandler(analyticsSource(eventRepo), alerts, zapLogger).RegisterRoutes(api)
	if ruleRepo != nil {
		handlers.NewRuleHandler(ruleRepo, resolver, zapLogger).RegisterRoutes(api)
	}
	adminRouter.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	gateServer := newServer(cfg.ServerPort, gateRouter)
	adminServer := newServer(cfg.AdminPort, adminRouter)

	for name, srv := range map[string]*http.Server{"gate": gateServer, "admin": adminServer} {
		go func(name string, srv *http.Server) {
			zapLogger.Info("server_starting", zap.String("listener", name), zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zapLogger.Fatal("server_failed_to_start", zap.String("listener", name), zap.Error(err))
			}
		}(name, srv)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := gateServer.Shutdown(ctx); err != nil {
		zapLogger.Error("gate_server_forced_to_shutdown", zap.Error(err))
	}
	if err := adminServer.Shutdown(ctx); err != nil {
		zapLogger.Error("admin_server_forced_to_shutdown", zap.Error(err))
	}
	if err := pipeline.Close(ctx); err != nil {
		zapLogger.Warn("pipeline_drain_incomplete", zap.Error(err), zap.Uint64("dropped", pipeline.Dropped()))
	}

	zapLogger.Info("server_exited")
}

// newGateRouter builds the protected listener: a reverse proxy to the upstream, or the built-in test routes.
func newGateRouter(cfg *config.Config, gate *middleware.Gate, tracing bool, zapLogger *zap.Logger) (*mux.Router, error) {
	r := mux.NewRouter()
	if tracing {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(gate.Middleware)
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}).Methods("GET")

	if cfg.UpstreamURL != "" {
		target, err := url.Parse(cfg.UpstreamURL)
		if err != nil || target.Scheme == "" || target.Host == "" {
			return nil, errors.New("GATEWAY_UPSTREAM_URL must be an absolute URL")
		}
		r.PathPrefix("/").Handler(httputil.NewSingleHostReverseProxy(target))
		zapLogger.Info("gate_proxying_upstream", zap.String("upstream", target.Redacted()))
		return r, nil
	}

	r.HandleFunc("/api/test/limited", testEndpoint("Request allowed")).Methods("GET", "POST")
	r.HandleFunc(strictTestRoute, testEndpoint("Strict endpoint request allowed")).Methods("GET", "POST")
	return r, nil
}

func testEndpoint(message string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"` + message + `","timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `"}`))
	}
}

// registerOverrides loads static overrides; the strict test route is registered only when serving test routes
func registerOverrides(registry *rules.Registry, static *config.StaticRules, testRoutes bool) error {
	if testRoutes {
		if err := registry.Register(strictTestRoute, models.NewOverrideRule(10, 60, models.ClientTypeIP, "")); err != nil {
			return err
		}
	}
	for _, o := range static.Overrides {
		var err error
		if o.Route != "" {
			err = registry.Register(o.Route, o.Rule)
		} else {
			err = registry.RegisterGroup(o.Group, o.Rule)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func newVerifier(cfg *config.Config) (identity.TokenVerifier, error) {
	vc := identity.VerifierConfig{Issuer: cfg.JWTIssuer, Audience: cfg.JWTAudience}
	switch {
	case cfg.JWTSecret != "":
		vc.HMACSecret = []byte(cfg.JWTSecret)
	case cfg.JWKSURL != "":
		vc.JWKS = identity.NewJWKSManager(cfg.JWKSURL, time.Hour)
	default:
		return nil, nil
	}
	return identity.NewVerifier(vc)
}

func analyticsSource(repo *database.EventRepository) handlers.EventReader {
	if repo == nil {
		return nil
	}
	return repo
}

func newServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
