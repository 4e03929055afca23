package database

import (
	"context"

	"github.com/kusuridheeraj/titan-grid/internal/models"
)

// RuleRepositoryInterface defines the dynamic rule store operations
// This interface enables better testability by allowing mock implementations
type RuleRepositoryInterface interface {
	FindEnabledRules(ctx context.Context) ([]*models.RuleRecord, error)
	FindMatchingRules(ctx context.Context, endpoint string) ([]*models.RuleRecord, error)
	List(ctx context.Context) ([]*models.RuleRecord, error)
	GetByID(ctx context.Context, id int64) (*models.RuleRecord, error)
	Create(ctx context.Context, rec *models.RuleRecord) error
	Update(ctx context.Context, rec *models.RuleRecord) error
	SetEnabled(ctx context.Context, id int64, enabled bool) error
	Delete(ctx context.Context, id int64) error
}

// EventRepositoryInterface defines the audit sink and analytics operations
type EventRepositoryInterface interface {
	SaveEvent(ctx context.Context, e *models.RateLimitEvent) error
	Summary(ctx context.Context, hours, top int) (*models.AnalyticsSummary, error)
	BlockedByIP(ctx context.Context, ip string) ([]*models.RateLimitEvent, error)
	BlockedByClient(ctx context.Context, clientID string) ([]*models.RateLimitEvent, error)
	BySeverity(ctx context.Context, severity models.Severity, hours int) ([]*models.RateLimitEvent, error)
}

// Ensure concrete types implement the interfaces
var (
	_ RuleRepositoryInterface  = (*RuleRepository)(nil)
	_ EventRepositoryInterface = (*EventRepository)(nil)
)
