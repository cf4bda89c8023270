package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	masterdata "watergrid-edge/internal/masterdata/domain"
)

// VendorRepository is a Postgres repository for vendors.
type VendorRepository struct {
	db *sql.DB
}

// NewVendorRepository constructs a repository.
func NewVendorRepository(db *sql.DB) *VendorRepository {
	return &VendorRepository{db: db}
}

const vendorColumns = `
id, name, code, email, phone, address, billing_rate, status, created_at, updated_at`

// Get fetches one vendor. A missing row returns (nil, nil).
func (r *VendorRepository) Get(ctx context.Context, id string) (*masterdata.Vendor, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("vendor repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+vendorColumns+`
FROM vendors
WHERE id = $1`, id)
	vendor, err := scanVendor(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return vendor, nil
}

// List returns all vendors ordered by name.
func (r *VendorRepository) List(ctx context.Context) ([]masterdata.Vendor, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("vendor repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+vendorColumns+`
FROM vendors
ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []masterdata.Vendor
	for rows.Next() {
		vendor, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *vendor)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts a vendor.
func (r *VendorRepository) Save(ctx context.Context, vendor *masterdata.Vendor) error {
	if r == nil || r.db == nil {
		return errors.New("vendor repo: nil db")
	}
	if vendor == nil {
		return errors.New("vendor repo: nil vendor")
	}
	if err := vendor.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if vendor.CreatedAt.IsZero() {
		vendor.CreatedAt = now
	}
	vendor.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
INSERT INTO vendors (
	id, name, code, email, phone, address, billing_rate, status, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	code = EXCLUDED.code,
	email = EXCLUDED.email,
	phone = EXCLUDED.phone,
	address = EXCLUDED.address,
	billing_rate = EXCLUDED.billing_rate,
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at`,
		vendor.ID, vendor.Name, vendor.Code, vendor.Email, nullable(vendor.Phone), nullable(vendor.Address),
		vendor.BillingRate, string(vendor.Status), vendor.CreatedAt, vendor.UpdatedAt)
	return err
}

func scanVendor(row rowScanner) (*masterdata.Vendor, error) {
	var vendor masterdata.Vendor
	var status string
	var phone, address sql.NullString
	if err := row.Scan(
		&vendor.ID,
		&vendor.Name,
		&vendor.Code,
		&vendor.Email,
		&phone,
		&address,
		&vendor.BillingRate,
		&status,
		&vendor.CreatedAt,
		&vendor.UpdatedAt,
	); err != nil {
		return nil, err
	}
	vendor.Status = masterdata.VendorStatus(status)
	if phone.Valid {
		vendor.Phone = phone.String
	}
	if address.Valid {
		vendor.Address = address.String
	}
	vendor.CreatedAt = vendor.CreatedAt.UTC()
	vendor.UpdatedAt = vendor.UpdatedAt.UTC()
	return &vendor, nil
}

func nullable(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
