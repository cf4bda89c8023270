package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"watergrid-edge/internal/historian"
)

// FlowDataRepository writes and reads historized flow samples.
type FlowDataRepository struct {
	db *sql.DB
}

// NewFlowDataRepository constructs a repository.
func NewFlowDataRepository(db *sql.DB) *FlowDataRepository {
	return &FlowDataRepository{db: db}
}

// InsertBatch writes one historian batch as a single multi-row insert.
func (r *FlowDataRepository) InsertBatch(ctx context.Context, records []historian.Record) error {
	if r == nil || r.db == nil {
		return errors.New("flow data repo: nil db")
	}
	if len(records) == 0 {
		return nil
	}

	var query strings.Builder
	query.WriteString(`
INSERT INTO flow_data (
	time, supply_line_id, flow_rate, total_volume, pressure, valve_position, status
) VALUES `)
	args := make([]any, 0, len(records)*7)
	for i, record := range records {
		if i > 0 {
			query.WriteString(", ")
		}
		base := i * 7
		query.WriteString("($" + strconv.Itoa(base+1) +
			", $" + strconv.Itoa(base+2) +
			", $" + strconv.Itoa(base+3) +
			", $" + strconv.Itoa(base+4) +
			", $" + strconv.Itoa(base+5) +
			", $" + strconv.Itoa(base+6) +
			", $" + strconv.Itoa(base+7) + ")")
		args = append(args,
			record.Time,
			record.SupplyLineID,
			record.FlowRate,
			record.TotalVolume,
			record.Pressure,
			record.ValvePosition,
			record.Status,
		)
	}

	_, err := r.db.ExecContext(ctx, query.String(), args...)
	return err
}

// ListBySupplyLine returns samples for one supply line inside a window,
// oldest first.
func (r *FlowDataRepository) ListBySupplyLine(ctx context.Context, supplyLineID string, from, to time.Time, limit int) ([]historian.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("flow data repo: nil db")
	}
	if supplyLineID == "" {
		return nil, errors.New("flow data repo: invalid query")
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT time, supply_line_id, flow_rate, total_volume, pressure, valve_position, status
FROM flow_data
WHERE supply_line_id = $1 AND time >= $2 AND time < $3
ORDER BY time ASC
LIMIT `+strconv.Itoa(limit), supplyLineID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListLatest returns the most recent sample per supply line.
func (r *FlowDataRepository) ListLatest(ctx context.Context) ([]historian.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("flow data repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT DISTINCT ON (supply_line_id)
	time, supply_line_id, flow_rate, total_volume, pressure, valve_position, status
FROM flow_data
ORDER BY supply_line_id, time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows *sql.Rows) ([]historian.Record, error) {
	var result []historian.Record
	for rows.Next() {
		var record historian.Record
		if err := rows.Scan(
			&record.Time,
			&record.SupplyLineID,
			&record.FlowRate,
			&record.TotalVolume,
			&record.Pressure,
			&record.ValvePosition,
			&record.Status,
		); err != nil {
			return nil, err
		}
		record.Time = record.Time.UTC()
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
