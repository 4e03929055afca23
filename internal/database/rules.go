package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kusuridheeraj/titan-grid/internal/models"
)

const ruleColumns = `id, endpoint_pattern, limit_count, window_seconds, client_type, custom_key,
		enabled, priority, description, created_by, created_at, updated_at`

// RuleRepository handles the dynamic rule table aegis.rate_limit_rules.
type RuleRepository struct {
	db *DB
}

// NewRuleRepository creates a new rule repository.
func NewRuleRepository(db *DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// FindEnabledRules returns enabled rules ordered by priority DESC, id ASC.
func (r *RuleRepository) FindEnabledRules(ctx context.Context) ([]*models.RuleRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM aegis.rate_limit_rules
		WHERE enabled = true
		ORDER BY priority DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("find enabled rules: %w", err)
	}
	return scanRules(rows)
}

// FindMatchingRules returns the candidate rules for endpoint in evaluation order.
// Ant patterns ("**" may match zero segments) have no faithful LIKE form, so every
// enabled rule is a candidate and the caller applies the pattern match.
func (r *RuleRepository) FindMatchingRules(ctx context.Context, endpoint string) ([]*models.RuleRecord, error) {
	recs, err := r.FindEnabledRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("find rules for %q: %w", endpoint, err)
	}
	return recs, nil
}

// List returns every rule, enabled or not, in evaluation order.
func (r *RuleRepository) List(ctx context.Context) ([]*models.RuleRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleColumns+`
		FROM aegis.rate_limit_rules
		ORDER BY priority DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return scanRules(rows)
}

// GetByID retrieves a rule, returning ErrRuleNotFound when absent.
func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*models.RuleRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ruleColumns+`
		FROM aegis.rate_limit_rules WHERE id = $1
	`, id)
	rec, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %d: %w", id, err)
	}
	return rec, nil
}

// Create inserts a rule and fills in its id and timestamps.
func (r *RuleRepository) Create(ctx context.Context, rec *models.RuleRecord) error {
	now := time.Now()
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO aegis.rate_limit_rules
			(endpoint_pattern, limit_count, window_seconds, client_type, custom_key,
			 enabled, priority, description, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		RETURNING id
	`, rec.EndpointPattern, rec.LimitCount, rec.WindowSeconds, string(rec.ClientType), rec.CustomKey,
		rec.Enabled, rec.Priority, rec.Description, rec.CreatedBy, now).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

// Update rewrites a rule's mutable fields.
func (r *RuleRepository) Update(ctx context.Context, rec *models.RuleRecord) error {
	now := time.Now()
	res, err := r.db.ExecContext(ctx, `
		UPDATE aegis.rate_limit_rules SET
			endpoint_pattern = $2, limit_count = $3, window_seconds = $4, client_type = $5,
			custom_key = $6, enabled = $7, priority = $8, description = $9, updated_at = $10
		WHERE id = $1
	`, rec.ID, rec.EndpointPattern, rec.LimitCount, rec.WindowSeconds, string(rec.ClientType),
		rec.CustomKey, rec.Enabled, rec.Priority, rec.Description, now)
	if err != nil {
		return fmt.Errorf("update rule %d: %w", rec.ID, err)
	}
	if err := requireOneRow(res); err != nil {
		return err
	}
	rec.UpdatedAt = now
	return nil
}

// SetEnabled toggles a rule without touching its other fields.
func (r *RuleRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE aegis.rate_limit_rules SET enabled = $2, updated_at = $3 WHERE id = $1
	`, id, enabled, time.Now())
	if err != nil {
		return fmt.Errorf("set rule %d enabled: %w", id, err)
	}
	return requireOneRow(res)
}

// Delete removes a rule.
func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM aegis.rate_limit_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete rule %d: %w", id, err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return models.ErrRuleNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(s scanner) (*models.RuleRecord, error) {
	rec := &models.RuleRecord{}
	var clientType string
	err := s.Scan(&rec.ID, &rec.EndpointPattern, &rec.LimitCount, &rec.WindowSeconds, &clientType,
		&rec.CustomKey, &rec.Enabled, &rec.Priority, &rec.Description, &rec.CreatedBy,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.ClientType = models.ClientType(clientType)
	return rec, nil
}

func scanRules(rows *sql.Rows) ([]*models.RuleRecord, error) {
	defer func() { _ = rows.Close() }()
	var out []*models.RuleRecord
	for rows.Next() {
		rec, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return out, nil
}
