package alarms

import "time"

// Status is the lifecycle state of an alarm.
type Status string

const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusClosed       Status = "closed"
)

// Open reports whether the alarm still occupies its scope for deduplication.
// An acknowledged alarm is still open until rule re-evaluation closes it.
func (s Status) Open() bool {
	return s == StatusActive || s == StatusAcknowledged
}

// Valid returns true when the status is a known value.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusAcknowledged, StatusClosed:
		return true
	default:
		return false
	}
}

// Severity classifies an alarm.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Valid returns true when the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// Alarm is a raised condition instance. A closed alarm is terminal; a new
// violation after closure creates a fresh alarm identity.
type Alarm struct {
	ID             string    `json:"id"`
	SupplyLineID   string    `json:"supply_line_id"`
	Parameter      Parameter `json:"parameter"`
	AlarmType      string    `json:"alarm_type"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	Value          float64   `json:"value"`
	Threshold      float64   `json:"threshold"`
	Status         Status    `json:"status"`
	AcknowledgedBy string    `json:"acknowledged_by,omitempty"`
	AcknowledgedAt time.Time `json:"acknowledged_at,omitempty"`
	ClosedAt       time.Time `json:"closed_at,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ScopeKey is the deduplication key: at most one open alarm may exist
// per (supply line, parameter) pair.
func ScopeKey(supplyLineID string, parameter Parameter) string {
	return supplyLineID + "|" + string(parameter)
}

// Scope returns the alarm's deduplication key.
func (a Alarm) Scope() string {
	return ScopeKey(a.SupplyLineID, a.Parameter)
}
