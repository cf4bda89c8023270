package reports

import "time"

// Status is the delivery state of a billing report.
type Status string

const (
	StatusDraft Status = "draft"
	StatusSent  Status = "sent"
	StatusPaid  Status = "paid"
)

// BillingReport summarizes delivered volume and charges for one supply
// line over a billing period.
type BillingReport struct {
	ID              string    `json:"id"`
	VendorID        string    `json:"vendor_id"`
	VendorName      string    `json:"vendor_name"`
	SupplyLineID    string    `json:"supply_line_id"`
	SupplyLineName  string    `json:"supply_line_name"`
	PeriodStart     time.Time `json:"period_start"`
	PeriodEnd       time.Time `json:"period_end"`
	TotalVolume     float64   `json:"total_volume"`
	PeakFlowRate    float64   `json:"peak_flow_rate"`
	AverageFlowRate float64   `json:"average_flow_rate"`
	DowntimeMinutes int       `json:"downtime_minutes"`
	AlarmCount      int       `json:"alarm_count"`
	BillingRate     float64   `json:"billing_rate"`
	Amount          float64   `json:"amount"`
	Status          Status    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// FlowStats are the aggregates a report is built from.
type FlowStats struct {
	TotalVolume     float64
	PeakFlowRate    float64
	AverageFlowRate float64
	DowntimeMinutes int
}
