package telemetry

import "time"

// Quality is the derived health of a single reading.
type Quality string

const (
	QualityOK      Quality = "ok"
	QualityWarning Quality = "warning"
	QualityError   Quality = "error"
)

// Valid returns true when the quality is a known value.
func (q Quality) Valid() bool {
	switch q {
	case QualityOK, QualityWarning, QualityError:
		return true
	default:
		return false
	}
}

// Reading is one sample produced by a flow meter.
type Reading struct {
	MeterID       string    `json:"meter_id"`
	Timestamp     time.Time `json:"timestamp"`
	FlowRate      float64   `json:"flow_rate"`
	TotalVolume   float64   `json:"total_volume"`
	Pressure      float64   `json:"pressure"`
	ValvePosition float64   `json:"valve_position"`
	Quality       Quality   `json:"status"`
}

// Device is the latest-value snapshot of one flow meter.
type Device struct {
	ID              string  `json:"id"`
	SupplyLineID    string  `json:"supply_line_id"`
	MeterType       string  `json:"type"`
	CurrentFlow     float64 `json:"current_flow"`
	CurrentPressure float64 `json:"current_pressure"`
	TotalVolume     float64 `json:"total_volume"`
	ValvePosition   float64 `json:"valve_position"`
}

// ReadingHandler consumes readings in arrival order.
type ReadingHandler func(Reading)

// Source produces the telemetry stream and the device registry.
// Subscribers are invoked synchronously per reading, so a single
// subscriber sees readings in generation order.
type Source interface {
	ListDevices() []Device
	LookupDevice(meterID string) (Device, bool)
	Subscribe(handler ReadingHandler)
}
