package models

import (
	"time"
)

// DeviceStatus represents the alerting state of a device
type DeviceStatus string

const (
	// DeviceInactive is the initial state of a device that never reported
	DeviceInactive DeviceStatus = "inactive"
	// DeviceActive means the last reading was inside the configured range
	DeviceActive DeviceStatus = "active"
	// DeviceAlert means the device reported a reading outside its range and
	// has not reported an in-range reading since
	DeviceAlert DeviceStatus = "alert"
)

// Settings holds the inclusive operating range of a device. Readings equal
// to a bound are in range; only strictly outside values are violations.
type Settings struct {
	TempMin float64 `json:"temp_min"`
	TempMax float64 `json:"temp_max"`
}

// Device is the registry record for a sensor unit. The coordinator and the
// liveness monitor are the only writers of the mutable fields (Status,
// IsOnline, LastSeen, LastContact, LastAlertSent); identity and settings are
// owned by the management plane.
type Device struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenant_id"`
	Name     string   `json:"name"`
	Key      string   `json:"key,omitempty"` // ingestion secret; blanked on outward snapshots
	Settings Settings `json:"settings"`

	Status   DeviceStatus `json:"status"`
	IsOnline bool         `json:"is_online"`
	LastSeen time.Time    `json:"last_seen"`

	// HeartbeatIntervalSeconds is the expected seconds between contacts.
	// Zero or negative means unset; the liveness monitor substitutes its
	// configured default.
	HeartbeatIntervalSeconds int `json:"heartbeat_interval_seconds"`

	LastContact   *time.Time `json:"last_contact,omitempty"`
	LastAlertSent *time.Time `json:"last_alert_sent,omitempty"`

	// Version increments on every save and backs the optimistic
	// compare-and-swap in SaveDevice.
	Version int64 `json:"version"`
}

// HeartbeatInterval returns the expected contact interval, falling back to
// def when the device has no interval configured.
func (d *Device) HeartbeatInterval(def time.Duration) time.Duration {
	if d.HeartbeatIntervalSeconds <= 0 {
		return def
	}
	return time.Duration(d.HeartbeatIntervalSeconds) * time.Second
}

// Clone returns a deep copy so callers can mutate a snapshot without
// aliasing the stored record.
func (d *Device) Clone() *Device {
	c := *d
	if d.LastContact != nil {
		t := *d.LastContact
		c.LastContact = &t
	}
	if d.LastAlertSent != nil {
		t := *d.LastAlertSent
		c.LastAlertSent = &t
	}
	return &c
}
