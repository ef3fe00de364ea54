package models

import (
	"time"
)

// Reading is a single accepted temperature sample. Readings are append-only
// telemetry: they are never updated or deleted, and duplicates from device
// retries are kept.
type Reading struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	TenantID    string    `json:"tenant_id"`
	Temperature float64   `json:"temperature"`
	Timestamp   time.Time `json:"timestamp"`
}

// ReadingSubmission is the wire payload a device publishes to the readings
// queue. Temperature is a pointer so a missing field can be told apart from
// a literal zero.
type ReadingSubmission struct {
	DeviceKey   string     `json:"device_key"`
	Temperature *float64   `json:"temperature"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
}
