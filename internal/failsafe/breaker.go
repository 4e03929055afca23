// Package failsafe guards the limiter with a circuit breaker and turns every
// store failure into a policy-driven fallback decision.
package failsafe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kusuridheeraj/titan-grid/internal/limiter"
	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// FailureMode selects the fallback decision used when the store cannot answer
type FailureMode string

const (
	FailureModeAllow FailureMode = "ALLOW"
	FailureModeDeny  FailureMode = "DENY"
)

// ParseFailureMode parses ALLOW or DENY, case-insensitively.
func ParseFailureMode(s string) (FailureMode, error) {
	switch FailureMode(strings.ToUpper(strings.TrimSpace(s))) {
	case FailureModeAllow, "":
		return FailureModeAllow, nil
	case FailureModeDeny:
		return FailureModeDeny, nil
	default:
		return "", fmt.Errorf("invalid failure mode %q (must be ALLOW or DENY)", s)
	}
}

// State is the breaker state
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Settings configures a Breaker
type Settings struct {
	Name        string
	FailureMode FailureMode
	// MinRequests is the request volume in the current interval before FailureRatio is evaluated
	MinRequests  uint32
	FailureRatio float64
	// ConsecutiveFailures trips the breaker regardless of volume; 0 disables it
	ConsecutiveFailures uint32
	// OpenTimeout is the cool-down before a half-open trial call
	OpenTimeout time.Duration
	// Interval clears closed-state counts periodically; 0 keeps them until a state change
	Interval time.Duration
	// OnStateChange is called after every transition
	OnStateChange func(from, to State)
}

func (s *Settings) setDefaults() {
	if s.Name == "" {
		s.Name = "rate-limiter-store"
	}
	if s.FailureMode == "" {
		s.FailureMode = FailureModeAllow
	}
	if s.MinRequests == 0 {
		s.MinRequests = 10
	}
	if s.FailureRatio <= 0 || s.FailureRatio > 1 {
		s.FailureRatio = 0.5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	if s.Interval <= 0 {
		s.Interval = 60 * time.Second
	}
}

// Breaker wraps a limiter.Checker; Call never returns an error.
type Breaker struct {
	checker  limiter.Checker
	cb       *gobreaker.CircuitBreaker
	mode     FailureMode
	logger   *zap.Logger
	warnOnce *rate.Sometimes
	now      func() time.Time
}

// NewBreaker creates a Breaker around checker.
func NewBreaker(checker limiter.Checker, settings Settings, zapLogger *zap.Logger) *Breaker {
	settings.setDefaults()
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}

	b := &Breaker{
		checker:  checker,
		mode:     settings.FailureMode,
		logger:   zapLogger,
		warnOnce: &rate.Sometimes{Interval: 10 * time.Second},
		now:      time.Now,
	}

	minRequests := settings.MinRequests
	ratio := settings.FailureRatio
	consecutive := settings.ConsecutiveFailures
	onChange := settings.OnStateChange

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Interval:    settings.Interval,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if consecutive > 0 && counts.ConsecutiveFailures >= consecutive {
				return true
			}
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			zapLogger.Warn("circuit_breaker_state_change",
				zap.String("breaker", name),
				zap.String("from", string(fromGobreaker(from))),
				zap.String("to", string(fromGobreaker(to))),
			)
			if onChange != nil {
				onChange(fromGobreaker(from), fromGobreaker(to))
			}
		},
		IsSuccessful: isSuccessful,
	})

	return b
}

// isSuccessful keeps caller cancellations and rule defects out of the failure counts
func isSuccessful(err error) bool {
	return err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, models.ErrInvalidRuleConfig)
}

// Call returns the limiter decision, or the fallback decision on any error,
// panic, malformed reply or open circuit.
func (b *Breaker) Call(ctx context.Context, token models.RequestToken) models.RateLimitDecision {
	result, err := b.cb.Execute(func() (res interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: limiter panic: %v", models.ErrStoreUnavailable, r)
			}
		}()
		return b.checker.Check(ctx, token)
	})
	if err == nil {
		if d, ok := result.(models.RateLimitDecision); ok {
			return d
		}
		err = fmt.Errorf("%w: unexpected result type %T", models.ErrMalformedReply, result)
	}

	b.warnOnce.Do(func() {
		b.logger.Warn("rate_limiter_fallback",
			zap.String("failure_mode", string(b.mode)),
			zap.String("breaker_state", string(b.State())),
			zap.Error(err),
		)
	})
	return Fallback(b.mode, token, b.now())
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// Mode returns the configured failure mode.
func (b *Breaker) Mode() FailureMode {
	return b.mode
}

// Fallback builds the decision used when the store cannot answer.
// ALLOW admits with count 0; DENY rejects with count=limit and retry-after of one window.
func Fallback(mode FailureMode, token models.RequestToken, now time.Time) models.RateLimitDecision {
	window := token.Window()
	resetTime := now.Add(window)
	if mode == FailureModeDeny {
		return models.DeniedDecision(int64(token.Limit), int64(token.Limit), resetTime, window)
	}
	return models.AllowedDecision(0, int64(token.Limit), resetTime)
}
