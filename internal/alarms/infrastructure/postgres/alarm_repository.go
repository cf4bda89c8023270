package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	alarms "watergrid-edge/internal/alarms/domain"
)

// AlarmRepository is a Postgres repository for alarms.
type AlarmRepository struct {
	db *sql.DB
}

// NewAlarmRepository constructs a repository.
func NewAlarmRepository(db *sql.DB) *AlarmRepository {
	return &AlarmRepository{db: db}
}

// Create inserts a new alarm row.
func (r *AlarmRepository) Create(ctx context.Context, alarm *alarms.Alarm) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	if alarm == nil {
		return errors.New("alarm repo: nil alarm")
	}
	if alarm.ID == "" || alarm.SupplyLineID == "" {
		return errors.New("alarm repo: missing fields")
	}
	if alarm.CreatedAt.IsZero() {
		alarm.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alarms (
	id, supply_line_id, parameter, alarm_type, severity, message, value, threshold,
	status, acknowledged_by, acknowledged_at, closed_at, notes, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13, $14
)`,
		alarm.ID,
		alarm.SupplyLineID,
		string(alarm.Parameter),
		alarm.AlarmType,
		string(alarm.Severity),
		alarm.Message,
		alarm.Value,
		alarm.Threshold,
		string(alarm.Status),
		nullableString(alarm.AcknowledgedBy),
		nullableTime(alarm.AcknowledgedAt),
		nullableTime(alarm.ClosedAt),
		nullableString(alarm.Notes),
		alarm.CreatedAt,
	)
	return err
}

// GetByID fetches an alarm by id.
func (r *AlarmRepository) GetByID(ctx context.Context, id string) (*alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, supply_line_id, parameter, alarm_type, severity, message, value, threshold,
	status, acknowledged_by, acknowledged_at, closed_at, notes, created_at
FROM alarms
WHERE id = $1`, id)
	return scanAlarm(row)
}

// MarkAcknowledged marks an alarm as acknowledged.
func (r *AlarmRepository) MarkAcknowledged(ctx context.Context, id, userID, notes string, ackedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alarms
SET status = $1, acknowledged_by = $2, acknowledged_at = $3, notes = $4
WHERE id = $5`, string(alarms.StatusAcknowledged), userID, ackedAt, nullableString(notes), id)
	return err
}

// MarkClosed marks an alarm as closed. Closing an already-closed alarm is
// a no-op at the row level, which keeps close retries idempotent.
func (r *AlarmRepository) MarkClosed(ctx context.Context, id string, closedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alarm repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alarms
SET status = $1, closed_at = $2
WHERE id = $3 AND status <> $1`, string(alarms.StatusClosed), closedAt, id)
	return err
}

// ListActive returns alarms that are still open, newest first.
func (r *AlarmRepository) ListActive(ctx context.Context) ([]alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	return r.list(ctx, `
SELECT id, supply_line_id, parameter, alarm_type, severity, message, value, threshold,
	status, acknowledged_by, acknowledged_at, closed_at, notes, created_at
FROM alarms
WHERE status IN ('active', 'acknowledged')
ORDER BY created_at DESC`)
}

// ListBySupplyLine returns alarms for one supply line, newest first,
// optionally filtered by status.
func (r *AlarmRepository) ListBySupplyLine(ctx context.Context, supplyLineID string, status alarms.Status, limit int) ([]alarms.Alarm, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	if supplyLineID == "" {
		return nil, errors.New("alarm repo: invalid query")
	}
	if limit <= 0 {
		limit = 100
	}
	query := `
SELECT id, supply_line_id, parameter, alarm_type, severity, message, value, threshold,
	status, acknowledged_by, acknowledged_at, closed_at, notes, created_at
FROM alarms
WHERE supply_line_id = $1`
	args := []any{supplyLineID}
	if status != "" {
		query += " AND status = $2"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC LIMIT " + strconv.Itoa(limit)
	return r.list(ctx, query, args...)
}

// CountBySupplyLineAndWindow counts alarms raised for a supply line in a window.
func (r *AlarmRepository) CountBySupplyLineAndWindow(ctx context.Context, supplyLineID string, from, to time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("alarm repo: nil db")
	}
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM alarms
WHERE supply_line_id = $1 AND created_at >= $2 AND created_at < $3`,
		supplyLineID, from, to).Scan(&count)
	return count, err
}

func (r *AlarmRepository) list(ctx context.Context, query string, args ...any) ([]alarms.Alarm, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []alarms.Alarm
	for rows.Next() {
		alarm, err := scanAlarm(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *alarm)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type alarmScanner interface {
	Scan(dest ...any) error
}

func scanAlarm(row alarmScanner) (*alarms.Alarm, error) {
	var alarm alarms.Alarm
	var parameter, severity, status string
	var ackedBy, notes sql.NullString
	var ackedAt, closedAt sql.NullTime
	if err := row.Scan(
		&alarm.ID,
		&alarm.SupplyLineID,
		&parameter,
		&alarm.AlarmType,
		&severity,
		&alarm.Message,
		&alarm.Value,
		&alarm.Threshold,
		&status,
		&ackedBy,
		&ackedAt,
		&closedAt,
		&notes,
		&alarm.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	alarm.Parameter = alarms.Parameter(parameter)
	alarm.Severity = alarms.Severity(severity)
	alarm.Status = alarms.Status(status)
	alarm.CreatedAt = alarm.CreatedAt.UTC()
	if ackedBy.Valid {
		alarm.AcknowledgedBy = ackedBy.String
	}
	if notes.Valid {
		alarm.Notes = notes.String
	}
	if ackedAt.Valid {
		alarm.AcknowledgedAt = ackedAt.Time.UTC()
	}
	if closedAt.Valid {
		alarm.ClosedAt = closedAt.Time.UTC()
	}
	return &alarm, nil
}

func nullableTime(value time.Time) sql.NullTime {
	if value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value, Valid: true}
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
