package failsafe

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kusuridheeraj/titan-grid/internal/limiter"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubChecker struct {
	calls atomic.Int64
	fn    func(models.RequestToken) (models.RateLimitDecision, error)
}

func (s *stubChecker) Check(_ context.Context, token models.RequestToken) (models.RateLimitDecision, error) {
	s.calls.Add(1)
	return s.fn(token)
}

func failing(err error) *stubChecker {
	return &stubChecker{fn: func(models.RequestToken) (models.RateLimitDecision, error) {
		return models.RateLimitDecision{}, err
	}}
}

var token = models.RequestToken{ClientID: "ip:10.1.1.1", EndpointKey: "/api/pay", Limit: 20, WindowSeconds: 45}

func unreachableLimiter(t *testing.T) *limiter.SlidingWindow {
	t.Helper()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	client := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1, DialTimeout: 50 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	return limiter.NewSlidingWindow(client, limiter.Config{Timeout: 100 * time.Millisecond}, zap.NewNop())
}

func TestBreaker_FailOpen(t *testing.T) {
	t.Parallel()
	b := NewBreaker(unreachableLimiter(t), Settings{FailureMode: FailureModeAllow}, zap.NewNop())

	for i := 0; i < 25; i++ {
		before := time.Now()
		d := b.Call(context.Background(), token)
		assert.True(t, d.Allowed)
		assert.Equal(t, int64(0), d.CurrentCount)
		assert.Equal(t, int64(20), d.Limit)
		assert.Nil(t, d.RetryAfter)
		assert.WithinDuration(t, before.Add(45*time.Second), d.ResetTime, 2*time.Second)
	}
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_FailClosed(t *testing.T) {
	t.Parallel()
	b := NewBreaker(unreachableLimiter(t), Settings{FailureMode: FailureModeDeny}, zap.NewNop())

	for i := 0; i < 25; i++ {
		d := b.Call(context.Background(), token)
		assert.False(t, d.Allowed)
		assert.Equal(t, int64(20), d.CurrentCount)
		require.NotNil(t, d.RetryAfter)
		assert.Equal(t, 45*time.Second, *d.RetryAfter)
		assert.Equal(t, int64(45), d.RetryAfterSeconds())
	}
}

func TestBreaker_OpenStateSkipsStore(t *testing.T) {
	t.Parallel()
	checker := failing(models.ErrStoreUnavailable)
	b := NewBreaker(checker, Settings{MinRequests: 4, FailureRatio: 0.5, OpenTimeout: time.Hour}, zap.NewNop())

	for i := 0; i < 4; i++ {
		b.Call(context.Background(), token)
	}
	require.Equal(t, StateOpen, b.State())
	require.Equal(t, int64(4), checker.calls.Load())

	for i := 0; i < 100; i++ {
		d := b.Call(context.Background(), token)
		assert.True(t, d.Allowed)
	}
	assert.Equal(t, int64(4), checker.calls.Load(), "open breaker must not touch the store")
}

func TestBreaker_FailureRatioBelowThreshold(t *testing.T) {
	t.Parallel()
	var n atomic.Int64
	checker := &stubChecker{fn: func(tok models.RequestToken) (models.RateLimitDecision, error) {
		if n.Add(1)%4 == 0 {
			return models.RateLimitDecision{}, models.ErrStoreUnavailable
		}
		return models.AllowedDecision(1, int64(tok.Limit), time.Now()), nil
	}}
	b := NewBreaker(checker, Settings{MinRequests: 4, FailureRatio: 0.5}, zap.NewNop())

	for i := 0; i < 40; i++ {
		b.Call(context.Background(), token)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	t.Parallel()
	var healthy atomic.Bool
	checker := &stubChecker{fn: func(tok models.RequestToken) (models.RateLimitDecision, error) {
		if healthy.Load() {
			return models.AllowedDecision(3, int64(tok.Limit), time.Now()), nil
		}
		return models.RateLimitDecision{}, models.ErrStoreUnavailable
	}}

	var mu sync.Mutex
	var transitions []State
	b := NewBreaker(checker, Settings{
		ConsecutiveFailures: 2,
		OpenTimeout:         20 * time.Millisecond,
		OnStateChange: func(_, to State) {
			mu.Lock()
			transitions = append(transitions, to)
			mu.Unlock()
		},
	}, zap.NewNop())

	b.Call(context.Background(), token)
	b.Call(context.Background(), token)
	require.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())

	// failed trial re-opens
	b.Call(context.Background(), token)
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(40 * time.Millisecond)
	healthy.Store(true)
	d := b.Call(context.Background(), token)
	assert.Equal(t, int64(3), d.CurrentCount, "trial call reaches the store")
	assert.Equal(t, StateClosed, b.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestBreaker_RecoversPanic(t *testing.T) {
	t.Parallel()
	checker := &stubChecker{fn: func(models.RequestToken) (models.RateLimitDecision, error) {
		panic("nil map write")
	}}
	b := NewBreaker(checker, Settings{FailureMode: FailureModeDeny}, zap.NewNop())

	d := b.Call(context.Background(), token)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(20), d.CurrentCount)
}

func TestBreaker_MalformedReplyFallsBack(t *testing.T) {
	t.Parallel()
	b := NewBreaker(failing(models.ErrMalformedReply), Settings{}, zap.NewNop())
	d := b.Call(context.Background(), token)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(0), d.CurrentCount)
}

func TestBreaker_CancellationNotCounted(t *testing.T) {
	t.Parallel()
	checker := failing(context.Canceled)
	b := NewBreaker(checker, Settings{MinRequests: 2, ConsecutiveFailures: 2}, zap.NewNop())
	for i := 0; i < 10; i++ {
		b.Call(context.Background(), token)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, int64(10), checker.calls.Load())
}

func TestBreaker_PassesDecisionThrough(t *testing.T) {
	t.Parallel()
	want := models.DeniedDecision(20, 20, time.Now().Add(time.Second), time.Second)
	checker := &stubChecker{fn: func(models.RequestToken) (models.RateLimitDecision, error) { return want, nil }}
	b := NewBreaker(checker, Settings{}, nil)
	assert.Equal(t, want, b.Call(context.Background(), token))
	assert.Equal(t, FailureModeAllow, b.Mode())
}

func TestParseFailureMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    FailureMode
		wantErr bool
	}{
		{"", FailureModeAllow, false},
		{"allow", FailureModeAllow, false},
		{" DENY ", FailureModeDeny, false},
		{"maybe", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFailureMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFailureMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestFallback(t *testing.T) {
	t.Parallel()
	now := time.Unix(1_700_000_000, 0)

	allow := Fallback(FailureModeAllow, token, now)
	assert.True(t, allow.Allowed)
	assert.Equal(t, now.Add(45*time.Second), allow.ResetTime)

	deny := Fallback(FailureModeDeny, token, now)
	assert.False(t, deny.Allowed)
	assert.Equal(t, int64(0), deny.Remaining())
}
