package alarms

import "errors"

// Parameter identifies which measured value a rule targets.
type Parameter string

const (
	ParameterFlowRate      Parameter = "flow_rate"
	ParameterPressure      Parameter = "pressure"
	ParameterValvePosition Parameter = "valve_position"
	ParameterTotalVolume   Parameter = "total_volume"
)

// Valid returns true when the parameter is a known value.
func (p Parameter) Valid() bool {
	switch p {
	case ParameterFlowRate, ParameterPressure, ParameterValvePosition, ParameterTotalVolume:
		return true
	default:
		return false
	}
}

// Condition is the comparison a rule applies against its threshold.
type Condition string

const (
	ConditionGreaterThan Condition = "greater_than"
	ConditionLessThan    Condition = "less_than"
	ConditionEquals      Condition = "equals"
	ConditionNotEquals   Condition = "not_equals"
)

// Valid returns true when the condition is a known value.
func (c Condition) Valid() bool {
	switch c {
	case ConditionGreaterThan, ConditionLessThan, ConditionEquals, ConditionNotEquals:
		return true
	default:
		return false
	}
}

// Matches evaluates the comparison. An unrecognized condition never matches,
// so a rule carrying one never fires.
func (c Condition) Matches(value, threshold float64) bool {
	switch c {
	case ConditionGreaterThan:
		return value > threshold
	case ConditionLessThan:
		return value < threshold
	case ConditionEquals:
		return value == threshold
	case ConditionNotEquals:
		return value != threshold
	default:
		return false
	}
}

// AlarmRule is a named threshold condition. Rules are immutable for the
// lifetime of a run; changes require a restart.
type AlarmRule struct {
	ID              string
	SupplyLineID    string // empty means wildcard: applies to every supply line
	Parameter       Parameter
	Condition       Condition
	Threshold       float64
	Severity        Severity
	MessageTemplate string
	Enabled         bool
}

// AppliesTo reports whether the rule is in scope for a supply line.
func (r AlarmRule) AppliesTo(supplyLineID string) bool {
	return r.SupplyLineID == "" || r.SupplyLineID == supplyLineID
}

// Validate checks rule invariants.
func (r AlarmRule) Validate() error {
	if r.ID == "" {
		return errors.New("alarm rule: empty id")
	}
	if !r.Parameter.Valid() {
		return errors.New("alarm rule: invalid parameter")
	}
	if !r.Severity.Valid() {
		return errors.New("alarm rule: invalid severity")
	}
	return nil
}
