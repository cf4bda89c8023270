package masterdata

import (
	"context"
	"errors"
	"time"
)

// SupplyLineStatus is the operational state of a supply line.
type SupplyLineStatus string

const (
	SupplyLineActive      SupplyLineStatus = "active"
	SupplyLineMaintenance SupplyLineStatus = "maintenance"
	SupplyLineOffline     SupplyLineStatus = "offline"
)

// SupplyLine represents a metered water supply line.
type SupplyLine struct {
	ID             string           `json:"id"`
	VendorID       string           `json:"vendor_id"`
	Name           string           `json:"name"`
	FlowMeterID    string           `json:"flow_meter_id"`
	Latitude       float64          `json:"lat,omitempty"`
	Longitude      float64          `json:"lng,omitempty"`
	MaxFlowRate    float64          `json:"max_flow_rate"`
	MaxDailyVolume float64          `json:"max_daily_volume"`
	Status         SupplyLineStatus `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// Validate checks supply line invariants.
func (s SupplyLine) Validate() error {
	if s.ID == "" {
		return errors.New("supply line: empty id")
	}
	if s.VendorID == "" {
		return errors.New("supply line: empty vendor id")
	}
	if s.Name == "" {
		return errors.New("supply line: empty name")
	}
	if s.FlowMeterID == "" {
		return errors.New("supply line: empty flow meter id")
	}
	return nil
}

// SupplyLineRepository manages supply line persistence.
type SupplyLineRepository interface {
	Get(ctx context.Context, id string) (*SupplyLine, error)
	List(ctx context.Context) ([]SupplyLine, error)
	ListByVendor(ctx context.Context, vendorID string) ([]SupplyLine, error)
	Save(ctx context.Context, line *SupplyLine) error
}
