package masterdata

import (
	"context"
	"errors"
	"time"
)

// VendorStatus is the account state of a vendor.
type VendorStatus string

const (
	VendorActive    VendorStatus = "active"
	VendorInactive  VendorStatus = "inactive"
	VendorSuspended VendorStatus = "suspended"
)

// Vendor is a water vendor billed per delivered volume.
type Vendor struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Code        string       `json:"code"`
	Email       string       `json:"email"`
	Phone       string       `json:"phone,omitempty"`
	Address     string       `json:"address,omitempty"`
	BillingRate float64      `json:"billing_rate"`
	Status      VendorStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Validate checks vendor invariants.
func (v Vendor) Validate() error {
	if v.ID == "" {
		return errors.New("vendor: empty id")
	}
	if v.Name == "" {
		return errors.New("vendor: empty name")
	}
	if v.Code == "" {
		return errors.New("vendor: empty code")
	}
	if v.BillingRate < 0 {
		return errors.New("vendor: negative billing rate")
	}
	return nil
}

// VendorRepository manages vendor persistence.
type VendorRepository interface {
	Get(ctx context.Context, id string) (*Vendor, error)
	List(ctx context.Context) ([]Vendor, error)
	Save(ctx context.Context, vendor *Vendor) error
}
