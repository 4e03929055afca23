package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{3, 16 * time.Second},
		{4, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestConnectWithRetry_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	dial := func(string) (*RabbitMQQueue, error) {
		calls++
		cancel()
		return nil, errors.New("connection refused")
	}

	_, err := ConnectWithRetry(ctx, "amqp://localhost", dial, zap.NewNop())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 dial attempt, got %d", calls)
	}
}

func TestConnectWithRetry_Success(t *testing.T) {
	t.Parallel()

	want := &RabbitMQQueue{}
	got, err := ConnectWithRetry(context.Background(), "amqp://localhost", func(string) (*RabbitMQQueue, error) {
		return want, nil
	}, zap.NewNop())
	if err != nil || got != want {
		t.Fatalf("ConnectWithRetry() = %v, %v", got, err)
	}
}
