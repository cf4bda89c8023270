package reports

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// FlowStatsQuery aggregates flow_data rows for billing reports.
type FlowStatsQuery struct {
	db *sql.DB
}

// NewFlowStatsQuery constructs a stats reader over Postgres.
func NewFlowStatsQuery(db *sql.DB) *FlowStatsQuery {
	return &FlowStatsQuery{db: db}
}

// FlowStats computes volume and flow aggregates for one supply line.
// Delivered volume is the spread of the cumulative counter over the window.
// Downtime is counted as minutes with at least one alarm-status sample.
func (q *FlowStatsQuery) FlowStats(ctx context.Context, supplyLineID string, from, to time.Time) (FlowStats, error) {
	if q == nil || q.db == nil {
		return FlowStats{}, errors.New("flow stats: nil db")
	}
	var stats FlowStats
	err := q.db.QueryRowContext(ctx, `
SELECT
	COALESCE(MAX(total_volume) - MIN(total_volume), 0),
	COALESCE(MAX(flow_rate), 0),
	COALESCE(AVG(flow_rate), 0)
FROM flow_data
WHERE supply_line_id = $1 AND time >= $2 AND time < $3`,
		supplyLineID, from, to).Scan(&stats.TotalVolume, &stats.PeakFlowRate, &stats.AverageFlowRate)
	if err != nil {
		return FlowStats{}, err
	}

	err = q.db.QueryRowContext(ctx, `
SELECT COUNT(DISTINCT date_trunc('minute', time))
FROM flow_data
WHERE supply_line_id = $1 AND time >= $2 AND time < $3 AND status = 'alarm'`,
		supplyLineID, from, to).Scan(&stats.DowntimeMinutes)
	if err != nil {
		return FlowStats{}, err
	}
	return stats, nil
}
