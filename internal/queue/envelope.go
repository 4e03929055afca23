package queue

import (
	"time"

	"github.com/google/uuid"
	"github.com/kusuridheeraj/titan-grid/internal/models"
)

const (
	// DefaultMaxRetries bounds redelivery of an envelope whose write keeps failing
	DefaultMaxRetries = 3
	// DefaultEventTTL drops audit events that could not be written within a day
	DefaultEventTTL = 24 * time.Hour
)

// Envelope wraps one audit event for transport
type Envelope struct {
	ID         uuid.UUID              `json:"id"`
	Event      *models.RateLimitEvent `json:"event"`
	CreatedAt  time.Time              `json:"created_at"`
	NotAfter   *time.Time             `json:"not_after,omitempty"`
	RetryCount int                    `json:"retry_count"`
	MaxRetries int                    `json:"max_retries"`
}

// NewEnvelope wraps event with the default retry budget and expiry
func NewEnvelope(event *models.RateLimitEvent) *Envelope {
	now := time.Now().UTC()
	notAfter := now.Add(DefaultEventTTL)
	return &Envelope{
		ID:         uuid.New(),
		Event:      event,
		CreatedAt:  now,
		NotAfter:   &notAfter,
		MaxRetries: DefaultMaxRetries,
	}
}

// IsExpired checks if the envelope has expired
func (e *Envelope) IsExpired() bool {
	if e.NotAfter == nil {
		return false
	}
	return time.Now().After(*e.NotAfter)
}

// CanRetry checks if the envelope can be retried
func (e *Envelope) CanRetry() bool {
	return e.RetryCount < e.MaxRetries
}

// IncrementRetry increments the retry count
func (e *Envelope) IncrementRetry() {
	e.RetryCount++
}
