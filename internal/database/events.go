package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kusuridheeraj/titan-grid/internal/models"
)

const (
	eventColumns = `id, event_timestamp, client_id, ip_address, endpoint, http_method, allowed,
		current_count, limit_threshold, rule_source, severity, user_agent, request_headers,
		decision_time_ms, server_instance`

	// maxEventRows bounds the event listings returned to the admin surface
	maxEventRows = 500
)

// EventRepository persists audit records to aegis.rate_limit_events and serves analytics.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// SaveEvent inserts one audit record.
func (r *EventRepository) SaveEvent(ctx context.Context, e *models.RateLimitEvent) error {
	var severity *string
	if e.Severity != nil {
		s := string(*e.Severity)
		severity = &s
	}
	var headers *string
	if e.RequestHeaders != "" {
		headers = &e.RequestHeaders
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO aegis.rate_limit_events
			(event_timestamp, client_id, ip_address, endpoint, http_method, allowed,
			 current_count, limit_threshold, rule_source, severity, user_agent, request_headers,
			 decision_time_ms, server_instance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, e.Timestamp, e.ClientID, e.IPAddress, e.Endpoint, e.Method, e.Allowed,
		e.CurrentCount, e.Limit, e.RuleSource, severity, e.UserAgent, headers,
		e.DecisionTimeMs, e.ServerInstance).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("save rate limit event: %w", err)
	}
	return nil
}

// Summary aggregates totals and top offenders since now-hours.
func (r *EventRepository) Summary(ctx context.Context, hours, top int) (*models.AnalyticsSummary, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	s := &models.AnalyticsSummary{TimeRangeHours: hours}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE allowed = false)
		FROM aegis.rate_limit_events
		WHERE event_timestamp > $1
	`, since).Scan(&s.TotalEvents, &s.BlockedEvents)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	s.AllowedEvents = s.TotalEvents - s.BlockedEvents
	s.BlockRate = BlockRate(s.BlockedEvents, s.TotalEvents)

	if s.TopBlockedIPs, err = r.topBlocked(ctx, "ip_address", since, top); err != nil {
		return nil, err
	}
	if s.TopTargetedEndpoints, err = r.topBlocked(ctx, "endpoint", since, top); err != nil {
		return nil, err
	}
	return s, nil
}

// topBlocked groups blocked events by a fixed column name
func (r *EventRepository) topBlocked(ctx context.Context, column string, since time.Time, limit int) ([]models.CountByKey, error) {
	if column != "ip_address" && column != "endpoint" {
		return nil, fmt.Errorf("unsupported group column %q", column)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+column+`, COUNT(*) AS block_count
		FROM aegis.rate_limit_events
		WHERE allowed = false AND event_timestamp > $1
		GROUP BY `+column+`
		ORDER BY block_count DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("top blocked by %s: %w", column, err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.CountByKey{}
	for rows.Next() {
		var c models.CountByKey
		if err := rows.Scan(&c.Key, &c.Count); err != nil {
			return nil, fmt.Errorf("scan top blocked: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate top blocked: %w", err)
	}
	return out, nil
}

// BlockedByIP returns the most recent blocked events for an IP address.
func (r *EventRepository) BlockedByIP(ctx context.Context, ip string) ([]*models.RateLimitEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM aegis.rate_limit_events
		WHERE ip_address = $1 AND allowed = false
		ORDER BY event_timestamp DESC
		LIMIT $2
	`, ip, maxEventRows)
	if err != nil {
		return nil, fmt.Errorf("blocked by ip: %w", err)
	}
	return scanEvents(rows)
}

// BlockedByClient returns the most recent blocked events for a client identity.
func (r *EventRepository) BlockedByClient(ctx context.Context, clientID string) ([]*models.RateLimitEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM aegis.rate_limit_events
		WHERE client_id = $1 AND allowed = false
		ORDER BY event_timestamp DESC
		LIMIT $2
	`, clientID, maxEventRows)
	if err != nil {
		return nil, fmt.Errorf("blocked by client: %w", err)
	}
	return scanEvents(rows)
}

// BySeverity returns events of one severity since now-hours.
func (r *EventRepository) BySeverity(ctx context.Context, severity models.Severity, hours int) ([]*models.RateLimitEvent, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM aegis.rate_limit_events
		WHERE severity = $1 AND event_timestamp > $2
		ORDER BY event_timestamp DESC
		LIMIT $3
	`, string(severity), since, maxEventRows)
	if err != nil {
		return nil, fmt.Errorf("events by severity: %w", err)
	}
	return scanEvents(rows)
}

// BlockRate formats blocked/total as a percentage with two decimals.
func BlockRate(blocked, total int64) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.2f%%", float64(blocked)/float64(total)*100)
}

func scanEvents(rows *sql.Rows) ([]*models.RateLimitEvent, error) {
	defer func() { _ = rows.Close() }()
	out := []*models.RateLimitEvent{}
	for rows.Next() {
		e := &models.RateLimitEvent{}
		var severity, userAgent, headers, instance sql.NullString
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ClientID, &e.IPAddress, &e.Endpoint, &e.Method,
			&e.Allowed, &e.CurrentCount, &e.Limit, &e.RuleSource, &severity, &userAgent, &headers,
			&e.DecisionTimeMs, &instance); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if severity.Valid {
			s := models.Severity(severity.String)
			e.Severity = &s
		}
		e.UserAgent = userAgent.String
		e.RequestHeaders = headers.String
		e.ServerInstance = instance.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
