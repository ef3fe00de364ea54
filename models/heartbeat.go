package models

import "time"

// Heartbeat is a lightweight liveness-only contact: it refreshes
// LastSeen/IsOnline but never touches the alerting status.
type Heartbeat struct {
	DeviceID  string    `json:"device_id"`
	DeviceKey string    `json:"device_key"`
	Timestamp time.Time `json:"timestamp"`
}
