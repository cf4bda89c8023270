package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	masterdata "watergrid-edge/internal/masterdata/domain"
)

// SupplyLineRepository is a Postgres repository for supply lines.
type SupplyLineRepository struct {
	db *sql.DB
}

// NewSupplyLineRepository constructs a repository.
func NewSupplyLineRepository(db *sql.DB) *SupplyLineRepository {
	return &SupplyLineRepository{db: db}
}

const supplyLineColumns = `
id, vendor_id, name, flow_meter_id, lat, lng, max_flow_rate, max_daily_volume, status, created_at, updated_at`

// Get fetches one supply line. A missing row returns (nil, nil).
func (r *SupplyLineRepository) Get(ctx context.Context, id string) (*masterdata.SupplyLine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("supply line repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+supplyLineColumns+`
FROM supply_lines
WHERE id = $1`, id)
	line, err := scanSupplyLine(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return line, nil
}

// List returns all supply lines ordered by name.
func (r *SupplyLineRepository) List(ctx context.Context) ([]masterdata.SupplyLine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("supply line repo: nil db")
	}
	return r.list(ctx, `
SELECT `+supplyLineColumns+`
FROM supply_lines
ORDER BY name ASC`)
}

// ListByVendor returns the supply lines owned by one vendor.
func (r *SupplyLineRepository) ListByVendor(ctx context.Context, vendorID string) ([]masterdata.SupplyLine, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("supply line repo: nil db")
	}
	if vendorID == "" {
		return nil, errors.New("supply line repo: empty vendor id")
	}
	return r.list(ctx, `
SELECT `+supplyLineColumns+`
FROM supply_lines
WHERE vendor_id = $1
ORDER BY name ASC`, vendorID)
}

// Save upserts a supply line.
func (r *SupplyLineRepository) Save(ctx context.Context, line *masterdata.SupplyLine) error {
	if r == nil || r.db == nil {
		return errors.New("supply line repo: nil db")
	}
	if line == nil {
		return errors.New("supply line repo: nil supply line")
	}
	if err := line.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if line.CreatedAt.IsZero() {
		line.CreatedAt = now
	}
	line.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
INSERT INTO supply_lines (
	id, vendor_id, name, flow_meter_id, lat, lng, max_flow_rate, max_daily_volume, status, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
ON CONFLICT (id) DO UPDATE SET
	vendor_id = EXCLUDED.vendor_id,
	name = EXCLUDED.name,
	flow_meter_id = EXCLUDED.flow_meter_id,
	lat = EXCLUDED.lat,
	lng = EXCLUDED.lng,
	max_flow_rate = EXCLUDED.max_flow_rate,
	max_daily_volume = EXCLUDED.max_daily_volume,
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at`,
		line.ID, line.VendorID, line.Name, line.FlowMeterID, line.Latitude, line.Longitude,
		line.MaxFlowRate, line.MaxDailyVolume, string(line.Status), line.CreatedAt, line.UpdatedAt)
	return err
}

func (r *SupplyLineRepository) list(ctx context.Context, query string, args ...any) ([]masterdata.SupplyLine, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.SupplyLine
	for rows.Next() {
		line, err := scanSupplyLine(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSupplyLine(row rowScanner) (*masterdata.SupplyLine, error) {
	var line masterdata.SupplyLine
	var status string
	var lat, lng sql.NullFloat64
	if err := row.Scan(
		&line.ID,
		&line.VendorID,
		&line.Name,
		&line.FlowMeterID,
		&lat,
		&lng,
		&line.MaxFlowRate,
		&line.MaxDailyVolume,
		&status,
		&line.CreatedAt,
		&line.UpdatedAt,
	); err != nil {
		return nil, err
	}
	line.Status = masterdata.SupplyLineStatus(status)
	if lat.Valid {
		line.Latitude = lat.Float64
	}
	if lng.Valid {
		line.Longitude = lng.Float64
	}
	line.CreatedAt = line.CreatedAt.UTC()
	line.UpdatedAt = line.UpdatedAt.UTC()
	return &line, nil
}
