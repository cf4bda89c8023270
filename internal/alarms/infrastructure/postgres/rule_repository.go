package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alarms "watergrid-edge/internal/alarms/domain"
)

// AlarmRuleRepository is a Postgres repository for alarm rules.
type AlarmRuleRepository struct {
	db *sql.DB
}

// NewAlarmRuleRepository constructs a repository.
func NewAlarmRuleRepository(db *sql.DB) *AlarmRuleRepository {
	return &AlarmRuleRepository{db: db}
}

// Create inserts an alarm rule.
func (r *AlarmRuleRepository) Create(ctx context.Context, rule *alarms.AlarmRule) error {
	if r == nil || r.db == nil {
		return errors.New("alarm rule repo: nil db")
	}
	if rule == nil {
		return errors.New("alarm rule repo: nil rule")
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alarm_rules (
	id, supply_line_id, parameter, condition, threshold, severity, message_template, enabled, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)`, rule.ID, nullableString(rule.SupplyLineID), string(rule.Parameter), string(rule.Condition),
		rule.Threshold, string(rule.Severity), rule.MessageTemplate, rule.Enabled, time.Now().UTC())
	return err
}

// ListEnabled returns all enabled rules. Loaded once at startup; a rule
// change requires a restart.
func (r *AlarmRuleRepository) ListEnabled(ctx context.Context) ([]alarms.AlarmRule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm rule repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, supply_line_id, parameter, condition, threshold, severity, message_template, enabled
FROM alarm_rules
WHERE enabled = TRUE
ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.AlarmRule
	for rows.Next() {
		var rule alarms.AlarmRule
		var supplyLineID sql.NullString
		var parameter, condition, severity string
		if err := rows.Scan(
			&rule.ID,
			&supplyLineID,
			&parameter,
			&condition,
			&rule.Threshold,
			&severity,
			&rule.MessageTemplate,
			&rule.Enabled,
		); err != nil {
			return nil, err
		}
		if supplyLineID.Valid {
			rule.SupplyLineID = supplyLineID.String
		}
		rule.Parameter = alarms.Parameter(parameter)
		rule.Condition = alarms.Condition(condition)
		rule.Severity = alarms.Severity(severity)
		result = append(result, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
