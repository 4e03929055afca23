// Package limiter implements the sliding-window admission check against Redis.
//
// Each (client, endpoint) pair owns a sorted set of admitted request
// timestamps in milliseconds plus a denial counter. One Lua script purges,
// counts and conditionally records a request, so concurrent callers on any number of instances never
// admit more than the limit within a trailing window.
package limiter

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kusuridheeraj/titan-grid/internal/logger"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

//go:embed sliding_window.lua
var slidingWindowSource string

var slidingWindowScript = redis.NewScript(slidingWindowSource)

const (
	// DefaultKeyPrefix prefixes every counter key
	DefaultKeyPrefix = "rate_limit"
	// DefaultTimeout bounds every store round trip
	DefaultTimeout = 150 * time.Millisecond

	deniedSuffix = ":denied"
)

// Checker performs one admission check
type Checker interface {
	Check(ctx context.Context, token models.RequestToken) (models.RateLimitDecision, error)
}

// Config configures a SlidingWindow
type Config struct {
	KeyPrefix string
	Timeout   time.Duration
}

// SlidingWindow is the Redis-backed sliding-window limiter
type SlidingWindow struct {
	client    redis.Cmdable
	keyPrefix string
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

var _ Checker = (*SlidingWindow)(nil)

// NewSlidingWindow creates a limiter over client.
func NewSlidingWindow(client redis.Cmdable, cfg Config, zapLogger *zap.Logger) *SlidingWindow {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	return &SlidingWindow{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		timeout:   cfg.Timeout,
		logger:    zapLogger,
		now:       time.Now,
		newID:     func() string { return uuid.NewString() },
	}
}

// KeyPrefix returns the configured counter key prefix.
func (s *SlidingWindow) KeyPrefix() string { return s.keyPrefix }

// Check runs the atomic purge-count-record script for token.
// Store failures wrap models.ErrStoreUnavailable and unparseable replies wrap models.ErrMalformedReply.
func (s *SlidingWindow) Check(ctx context.Context, token models.RequestToken) (models.RateLimitDecision, error) {
	if token.Limit <= 0 || token.WindowSeconds <= 0 {
		return models.RateLimitDecision{}, fmt.Errorf("%w: limit=%d window=%d", models.ErrInvalidRuleConfig, token.Limit, token.WindowSeconds)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := token.Key(s.keyPrefix)
	now := s.now()
	windowMs := token.Window().Milliseconds()

	reply, err := slidingWindowScript.Run(ctx, s.client,
		[]string{key, key + deniedSuffix},
		now.UnixMilli(), windowMs, token.Limit, s.newID(),
	).Slice()
	if err != nil {
		return models.RateLimitDecision{}, fmt.Errorf("%w: sliding window script: %w", models.ErrStoreUnavailable, err)
	}

	res, err := parseReply(reply)
	if err != nil {
		return models.RateLimitDecision{}, err
	}

	ttl := time.Duration(res.resetMs) * time.Millisecond
	if res.resetMs <= 0 {
		ttl = token.Window()
	}
	resetTime := now.Add(ttl)

	if s.logger.Core().Enabled(zap.DebugLevel) {
		s.logger.Debug("rate_limit_check",
			zap.String("key", logger.SanitizeClientID(key)),
			zap.Bool("allowed", res.allowed),
			zap.Int64("count", res.count),
			zap.Int("limit", token.Limit),
			zap.Duration("reset_in", ttl),
		)
	}

	var d models.RateLimitDecision
	if res.allowed {
		d = models.AllowedDecision(res.count, int64(token.Limit), resetTime)
	} else {
		d = models.DeniedDecision(res.count, int64(token.Limit), resetTime, ttl)
	}
	d.Attempts = res.count + res.denied
	return d, nil
}

// Usage reports the current window for a client and endpoint without recording a request.
func (s *SlidingWindow) Usage(ctx context.Context, clientID, endpoint string, limit, windowSeconds int) (models.RateLimitDecision, error) {
	token := models.RequestToken{ClientID: clientID, EndpointKey: endpoint, Limit: limit, WindowSeconds: windowSeconds}
	if token.Limit <= 0 || token.WindowSeconds <= 0 {
		return models.RateLimitDecision{}, fmt.Errorf("%w: limit=%d window=%d", models.ErrInvalidRuleConfig, limit, windowSeconds)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := token.Key(s.keyPrefix)
	now := s.now()
	windowStart := now.Add(-token.Window()).UnixMilli()

	pipe := s.client.Pipeline()
	countCmd := pipe.ZCount(ctx, key, "("+strconv.FormatInt(windowStart, 10), "+inf")
	oldestCmd := pipe.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min:   "(" + strconv.FormatInt(windowStart, 10),
		Max:   "+inf",
		Count: 1,
	})
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return models.RateLimitDecision{}, fmt.Errorf("%w: usage: %w", models.ErrStoreUnavailable, err)
	}

	count := countCmd.Val()
	ttl := token.Window()
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		if remaining := int64(oldest[0].Score) + token.Window().Milliseconds() - now.UnixMilli(); remaining > 0 {
			ttl = time.Duration(remaining) * time.Millisecond
		}
	}
	resetTime := now.Add(ttl)

	if count < int64(limit) {
		return models.AllowedDecision(count, int64(limit), resetTime), nil
	}
	return models.DeniedDecision(count, int64(limit), resetTime, ttl), nil
}

// Reset deletes the counter for a client and endpoint. Resetting an absent counter is a no-op.
func (s *SlidingWindow) Reset(ctx context.Context, clientID, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := models.RequestToken{ClientID: clientID, EndpointKey: endpoint}.Key(s.keyPrefix)
	if err := s.client.Del(ctx, key, key+deniedSuffix).Err(); err != nil {
		return fmt.Errorf("%w: reset: %w", models.ErrStoreUnavailable, err)
	}
	s.logger.Info("rate_limit_reset", zap.String("key", logger.SanitizeClientID(key)))
	return nil
}

// HealthCheck pings the counting store.
func (s *SlidingWindow) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout*4)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

type scriptResult struct {
	allowed bool
	count   int64
	resetMs int64
	denied  int64
}

func parseReply(reply []interface{}) (scriptResult, error) {
	if len(reply) < 3 {
		return scriptResult{}, fmt.Errorf("%w: expected at least 3 elements, got %d", models.ErrMalformedReply, len(reply))
	}
	nums := make([]int64, len(reply))
	for i, v := range reply {
		n, ok := v.(int64)
		if !ok {
			return scriptResult{}, fmt.Errorf("%w: element %d has type %T", models.ErrMalformedReply, i, v)
		}
		nums[i] = n
	}
	if nums[0] != 0 && nums[0] != 1 {
		return scriptResult{}, fmt.Errorf("%w: allowed flag %d", models.ErrMalformedReply, nums[0])
	}
	if nums[1] < 0 {
		return scriptResult{}, fmt.Errorf("%w: negative count %d", models.ErrMalformedReply, nums[1])
	}
	res := scriptResult{allowed: nums[0] == 1, count: nums[1], resetMs: nums[2]}
	if len(nums) > 3 {
		res.denied = nums[3]
	}
	return res, nil
}
