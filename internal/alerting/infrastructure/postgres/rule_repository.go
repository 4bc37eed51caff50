package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	alerting "hivewatch/internal/alerting/domain"
)

const defaultAlertRulesTable = "alert_rules"

// RuleRepository is a Postgres repository for alert rules.
type RuleRepository struct {
	db    *sql.DB
	table string
}

// NewRuleRepository constructs a repository.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db, table: defaultAlertRulesTable}
}

// Create inserts an alert rule.
func (r *RuleRepository) Create(ctx context.Context, rule *alerting.AlertRule) error {
	if r == nil || r.db == nil {
		return errors.New("alert rule repo: nil db")
	}
	if rule == nil {
		return errors.New("alert rule repo: nil rule")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	id, device_id, metric, operator, threshold, duration_seconds, active, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)`, r.table), rule.ID, rule.DeviceID, rule.Metric, string(rule.Operator), rule.Threshold,
		rule.DurationSeconds, rule.Active, rule.CreatedAt)
	return err
}

// ListActive returns active rules ordered by device and creation time.
func (r *RuleRepository) ListActive(ctx context.Context) ([]alerting.AlertRule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert rule repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
SELECT id, device_id, metric, operator, threshold, duration_seconds, active, created_at
FROM %s
WHERE active = TRUE
ORDER BY device_id ASC, created_at ASC, id ASC`, r.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alerting.AlertRule
	for rows.Next() {
		var rule alerting.AlertRule
		var op string
		if err := rows.Scan(
			&rule.ID,
			&rule.DeviceID,
			&rule.Metric,
			&op,
			&rule.Threshold,
			&rule.DurationSeconds,
			&rule.Active,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		parsed, err := alerting.ParseOperator(op)
		if err != nil {
			return nil, fmt.Errorf("alert rule repo: rule %s: %w", rule.ID, err)
		}
		rule.Operator = parsed
		rule.CreatedAt = rule.CreatedAt.UTC()
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
