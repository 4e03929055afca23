package observability

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kusuridheeraj/titan-grid/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultAlertStream is the Redis stream receiving suspicious traffic alerts
	DefaultAlertStream = "suspicious_traffic"
	// DefaultAlertStreamMaxLen approximately caps the stream length
	DefaultAlertStreamMaxLen = 10000
)

// DefaultConsumerGroups are created on the alert stream at startup
var DefaultConsumerGroups = []string{"security_monitor", "analytics_processor", "alert_manager"}

// StreamInfo describes the alert stream
type StreamInfo struct {
	StreamName string   `json:"streamName"`
	Length     int64    `json:"length"`
	MaxLength  int64    `json:"maxLength"`
	Groups     []string `json:"groups,omitempty"`
}

// StreamPublisher appends alerts to a capped Redis stream
type StreamPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewStreamPublisher creates a publisher. Empty stream or non-positive maxLen select the defaults.
func NewStreamPublisher(client redis.Cmdable, stream string, maxLen int64) *StreamPublisher {
	if stream == "" {
		stream = DefaultAlertStream
	}
	if maxLen <= 0 {
		maxLen = DefaultAlertStreamMaxLen
	}
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Stream returns the stream name.
func (p *StreamPublisher) Stream() string {
	return p.stream
}

// Publish appends one alert and returns nil on success.
func (p *StreamPublisher) Publish(ctx context.Context, ev *models.SuspiciousTrafficEvent) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		ID:     "*",
		Values: alertFields(ev),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish alert to %s: %w", p.stream, err)
	}
	return nil
}

func alertFields(ev *models.SuspiciousTrafficEvent) map[string]any {
	return map[string]any{
		"event_id":         ev.EventID,
		"timestamp":        ev.Timestamp.UTC().Format(time.RFC3339Nano),
		"severity":         string(ev.Severity),
		"threat_score":     strconv.Itoa(ev.ThreatScore),
		"client_id":        ev.ClientID,
		"ip_address":       ev.IPAddress,
		"endpoint":         ev.Endpoint,
		"http_method":      ev.Method,
		"violation_count":  strconv.FormatInt(ev.ViolationCount, 10),
		"threshold":        strconv.FormatInt(ev.Threshold, 10),
		"percentage_over":  strconv.FormatFloat(ev.PercentageOver, 'f', 1, 64),
		"rule_source":      ev.RuleSource,
		"user_agent":       ev.UserAgent,
		"decision_time_ms": strconv.FormatFloat(ev.DecisionTimeMs, 'f', 3, 64),
	}
}

// EnsureConsumerGroups creates the given groups, creating the stream if needed.
// Groups that already exist are left untouched.
func (p *StreamPublisher) EnsureConsumerGroups(ctx context.Context, groups ...string) error {
	for _, group := range groups {
		err := p.client.XGroupCreateMkStream(ctx, p.stream, group, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("failed to create consumer group %s: %w", group, err)
		}
	}
	return nil
}

// Info returns the stream length and its consumer groups.
func (p *StreamPublisher) Info(ctx context.Context) (*StreamInfo, error) {
	length, err := p.client.XLen(ctx, p.stream).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stream length: %w", err)
	}
	info := &StreamInfo{StreamName: p.stream, Length: length, MaxLength: p.maxLen}

	groups, err := p.client.XInfoGroups(ctx, p.stream).Result()
	if err == nil {
		for _, g := range groups {
			info.Groups = append(info.Groups, g.Name)
		}
	}
	return info, nil
}
