package observability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultBuffer is the pipeline queue capacity
	DefaultBuffer = 1024
	// DefaultWorkers is the number of delivery goroutines
	DefaultWorkers = 4
	// DefaultWriteTimeout bounds one sink or publisher call
	DefaultWriteTimeout = 2 * time.Second
)

// AuditSink persists audit records
type AuditSink interface {
	SaveEvent(ctx context.Context, e *models.RateLimitEvent) error
}

// AlertPublisher delivers real-time alerts
type AlertPublisher interface {
	Publish(ctx context.Context, ev *models.SuspiciousTrafficEvent) error
}

// PipelineConfig configures the pipeline
type PipelineConfig struct {
	Buffer         int
	Workers        int
	VerboseAudit   bool
	WriteTimeout   time.Duration
	ServerInstance string
}

// Pipeline delivers decision records to the audit sink and alert stream off the request path
type Pipeline struct {
	queue   chan Record
	sink    AuditSink
	alerts  AlertPublisher
	cfg     PipelineConfig
	metrics *Metrics
	logger  *zap.Logger

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Uint64
}

// NewPipeline starts the worker goroutines. sink and alerts may be nil.
func NewPipeline(sink AuditSink, alerts AlertPublisher, cfg PipelineConfig, metrics *Metrics, log *zap.Logger) *Pipeline {
	if cfg.Buffer <= 0 {
		cfg.Buffer = DefaultBuffer
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ServerInstance == "" {
		cfg.ServerInstance = logger.Hostname()
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pipeline{
		queue:   make(chan Record, cfg.Buffer),
		sink:    sink,
		alerts:  alerts,
		cfg:     cfg,
		metrics: metrics,
		logger:  log,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit enqueues a record without blocking. It reports false when the record was dropped.
// Allowed decisions are only queued when verbose auditing is on.
func (p *Pipeline) Submit(rec Record) bool {
	if rec.Decision.Allowed && !p.cfg.VerboseAudit {
		return true
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.drop()
		return false
	}
	select {
	case p.queue <- rec:
		return true
	default:
		p.drop()
		return false
	}
}

func (p *Pipeline) drop() {
	if p.dropped.Add(1)%1000 == 1 {
		p.logger.Warn("pipeline_record_dropped", zap.Uint64("dropped_total", p.dropped.Load()))
	}
	if p.metrics != nil {
		p.metrics.PipelineDropped.Inc()
	}
}

// Dropped returns how many records were discarded.
func (p *Pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

// Depth returns the number of queued records.
func (p *Pipeline) Depth() int {
	return len(p.queue)
}

// Close stops accepting records and waits for the queue to drain or ctx to end.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn("pipeline_drain_incomplete", zap.Int("remaining", len(p.queue)))
		return ctx.Err()
	}
}

func (p *Pipeline) worker() {
	defer p.wg.Done()
	for rec := range p.queue {
		p.deliver(rec)
	}
}

func (p *Pipeline) deliver(rec Record) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline_delivery_panic", zap.Any("panic", r))
		}
	}()

	if !rec.Decision.Allowed && p.metrics != nil {
		if sev := rec.Severity(); sev != nil {
			p.metrics.ObserveSeverity(*sev)
		}
	}

	if p.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
		err := p.sink.SaveEvent(ctx, rec.AuditEvent(p.cfg.ServerInstance))
		cancel()
		if err != nil {
			p.fail("audit", rec, err)
		}
	}

	if p.alerts == nil {
		return
	}
	alert := rec.AlertEvent()
	if alert == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WriteTimeout)
	defer cancel()
	if err := p.alerts.Publish(ctx, alert); err != nil {
		p.fail("alert", rec, err)
		return
	}
	p.logger.Debug("suspicious_traffic_published",
		zap.String("event_id", alert.EventID),
		zap.String("severity", string(alert.Severity)),
		zap.Int("threat_score", alert.ThreatScore),
		zap.String("client_id", logger.SanitizeClientID(alert.ClientID)),
	)
}

func (p *Pipeline) fail(sink string, rec Record, err error) {
	if p.metrics != nil {
		p.metrics.PipelineErrors.WithLabelValues(sink).Inc()
	}
	p.logger.Warn("pipeline_delivery_failed",
		zap.String("sink", sink),
		zap.String("client_id", logger.SanitizeClientID(rec.Client.String())),
		zap.String("endpoint", logger.SanitizePath(rec.Endpoint)),
		zap.Error(err),
	)
}
