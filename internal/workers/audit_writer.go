package workers

import (
	"context"
	"errors"
	"fmt"

	logpkg "github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/kusuridheeraj/titan-grid/internal/queue"
	"go.uber.org/zap"
)

// EventStore persists audit events
type EventStore interface {
	SaveEvent(ctx context.Context, e *models.RateLimitEvent) error
}

// Requeuer republishes an envelope for another attempt
type Requeuer interface {
	Enqueue(ctx context.Context, env *queue.Envelope) error
}

// ErrEmptyEnvelope is returned for messages without an event
var ErrEmptyEnvelope = errors.New("envelope has no event")

// AuditWriter drains the audit queue into the event store
type AuditWriter struct {
	store    EventStore
	requeuer Requeuer
	logger   *zap.Logger
}

// NewAuditWriter creates a new audit writer
func NewAuditWriter(store EventStore, requeuer Requeuer, logger *zap.Logger) *AuditWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditWriter{store: store, requeuer: requeuer, logger: logger}
}

// Process writes one message. Expired envelopes are acked and dropped; bad
// messages are dead-lettered; failed writes are republished until the retry budget runs out.
func (w *AuditWriter) Process(ctx context.Context, msg queue.MessageInterface) error {
	env := msg.GetEnvelope()
	if env == nil || env.Event == nil {
		if nackErr := msg.Nack(false); nackErr != nil {
			w.logger.Warn("audit_nack_failed", zap.Error(nackErr))
		}
		return ErrEmptyEnvelope
	}

	if env.IsExpired() {
		w.logger.Warn("audit_event_expired",
			zap.String("envelope_id", env.ID.String()),
			zap.Time("created_at", env.CreatedAt),
		)
		return msg.Ack()
	}

	if err := w.store.SaveEvent(ctx, env.Event); err != nil {
		return w.handleWriteError(ctx, msg, env, err)
	}

	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to ack envelope: %w", err)
	}
	w.logger.Debug("audit_event_written",
		zap.String("envelope_id", env.ID.String()),
		zap.String("client_id", logpkg.SanitizeClientID(env.Event.ClientID)),
		zap.Bool("allowed", env.Event.Allowed),
	)
	return nil
}

func (w *AuditWriter) handleWriteError(ctx context.Context, msg queue.MessageInterface, env *queue.Envelope, cause error) error {
	if env.CanRetry() && w.requeuer != nil {
		env.IncrementRetry()
		if err := w.requeuer.Enqueue(ctx, env); err == nil {
			w.logger.Warn("audit_write_retrying",
				zap.String("envelope_id", env.ID.String()),
				zap.Int("retry_count", env.RetryCount),
				zap.Error(cause),
			)
			if ackErr := msg.Ack(); ackErr != nil {
				return fmt.Errorf("failed to ack retried envelope: %w", ackErr)
			}
			return fmt.Errorf("failed to write audit event: %w", cause)
		}
	}

	if nackErr := msg.Nack(false); nackErr != nil {
		w.logger.Warn("audit_nack_failed", zap.Error(nackErr))
	}
	w.logger.Error("audit_event_dead_lettered",
		zap.String("envelope_id", env.ID.String()),
		zap.Int("retry_count", env.RetryCount),
		zap.Error(cause),
	)
	return fmt.Errorf("failed to write audit event: %w", cause)
}

// Run processes messages until ctx is cancelled or the channels close
func (w *AuditWriter) Run(ctx context.Context, msgs <-chan *queue.Message, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Info("audit_message_channel_closed")
				return
			}
			if err := w.Process(ctx, msg); err != nil {
				w.logger.Error("audit_message_failed", zap.Error(err))
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Error("audit_queue_error", zap.Error(err))
		}
	}
}
