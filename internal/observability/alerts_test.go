package observability

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamPublisher(t *testing.T, maxLen int64) (*StreamPublisher, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStreamPublisher(client, "", maxLen), client
}

func sampleAlert() *models.SuspiciousTrafficEvent {
	return &models.SuspiciousTrafficEvent{
		EventID:        "evt-1",
		Timestamp:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Severity:       models.SeverityCritical,
		ThreatScore:    100,
		ClientID:       "ip:10.0.0.1",
		IPAddress:      "10.0.0.1",
		Endpoint:       "/api/login",
		Method:         "POST",
		ViolationCount: 40,
		Threshold:      10,
		PercentageOver: 400,
		RuleSource:     "OVERRIDE",
	}
}

func TestStreamPublisher_Publish(t *testing.T) {
	t.Parallel()

	pub, client := newStreamPublisher(t, 0)
	ctx := context.Background()
	require.NoError(t, pub.Publish(ctx, sampleAlert()))

	msgs, err := client.XRange(ctx, DefaultAlertStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "evt-1", msgs[0].Values["event_id"])
	assert.Equal(t, "CRITICAL", msgs[0].Values["severity"])
	assert.Equal(t, "100", msgs[0].Values["threat_score"])
	assert.Equal(t, "400.0", msgs[0].Values["percentage_over"])
	assert.Equal(t, "2026-01-02T03:04:05Z", msgs[0].Values["timestamp"])
}

func TestStreamPublisher_TrimsToMaxLen(t *testing.T) {
	t.Parallel()

	pub, _ := newStreamPublisher(t, 5)
	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, pub.Publish(ctx, sampleAlert()))
	}

	info, err := pub.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultAlertStream, info.StreamName)
	assert.Equal(t, int64(5), info.MaxLength)
	assert.LessOrEqual(t, info.Length, int64(5))
}

func TestStreamPublisher_EnsureConsumerGroupsIsIdempotent(t *testing.T) {
	t.Parallel()

	pub, client := newStreamPublisher(t, 0)
	ctx := context.Background()
	require.NoError(t, pub.EnsureConsumerGroups(ctx, DefaultConsumerGroups...))
	require.NoError(t, pub.EnsureConsumerGroups(ctx, DefaultConsumerGroups...))

	require.NoError(t, pub.Publish(ctx, sampleAlert()))
	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    "security_monitor",
		Consumer: "test",
		Streams:  []string{DefaultAlertStream, ">"},
		Count:    10,
		Block:    -1,
	}).Result()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Len(t, streams[0].Messages, 1)
}

func TestStreamPublisher_StoreDown(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	pub := NewStreamPublisher(client, "alerts", 100)
	assert.Error(t, pub.Publish(context.Background(), sampleAlert()))
	_, err := pub.Info(context.Background())
	assert.Error(t, err)
}
