package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	connectMaxRetries   = 10
	connectInitialDelay = 2 * time.Second
	connectMaxDelay     = 30 * time.Second
)

// Dialer opens a queue connection
type Dialer func(amqpURL string) (*RabbitMQQueue, error)

// ConnectWithRetry dials RabbitMQ with exponential backoff to ride out broker startup.
func ConnectWithRetry(ctx context.Context, amqpURL string, dial Dialer, logger *zap.Logger) (*RabbitMQQueue, error) {
	if dial == nil {
		dial = NewRabbitMQQueue
	}
	var lastErr error
	for attempt := 0; attempt < connectMaxRetries; attempt++ {
		q, err := dial(amqpURL)
		if err == nil {
			logger.Info("connected_to_rabbitmq", zap.Int("attempt", attempt+1))
			return q, nil
		}
		lastErr = err

		delay := backoffDelay(attempt)
		logger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", connectMaxRetries),
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("failed to connect to rabbitmq after %d attempts: %w", connectMaxRetries, lastErr)
}

func backoffDelay(attempt int) time.Duration {
	delay := connectInitialDelay * time.Duration(1<<uint(attempt))
	if delay > connectMaxDelay || delay <= 0 {
		return connectMaxDelay
	}
	return delay
}
