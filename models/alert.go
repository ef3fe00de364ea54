package models

import (
	"fmt"
	"time"
)

// Verdict classifies a reading against the device settings
type Verdict string

const (
	VerdictInRange       Verdict = "in_range"
	VerdictViolationHigh Verdict = "violation_high"
	VerdictViolationLow  Verdict = "violation_low"
)

// IsViolation reports whether the verdict is outside the operating range
func (v Verdict) IsViolation() bool {
	return v == VerdictViolationHigh || v == VerdictViolationLow
}

// BreachKind names which bound was crossed, in the wording alerts use
type BreachKind string

const (
	BreachHigh BreachKind = "High"
	BreachLow  BreachKind = "Low"
)

// Evaluation is the outcome of running one reading through the threshold
// evaluator: the verdict, the status the device should move to, and whether
// that is a change at all.
type Evaluation struct {
	Verdict       Verdict
	NewStatus     DeviceStatus
	StatusChanged bool

	// Limit and Kind are only meaningful for violations: the bound that was
	// crossed and in which direction.
	Limit float64
	Kind  BreachKind
}

// AlertEvent is one qualifying violation, fanned out to every resolved
// recipient as a notification burst.
type AlertEvent struct {
	DeviceID    string     `json:"device_id"`
	DeviceName  string     `json:"device_name"`
	TenantID    string     `json:"tenant_id"`
	Temperature float64    `json:"temperature"`
	Limit       float64    `json:"limit"`
	Kind        BreachKind `json:"kind"`
	Timestamp   time.Time  `json:"timestamp"`
}

// Summary renders the one-line description used in logs and ops messages
func (e *AlertEvent) Summary() string {
	return fmt.Sprintf("%s: %.2f°C breached %s limit %.2f°C",
		e.DeviceName, e.Temperature, e.Kind, e.Limit)
}
