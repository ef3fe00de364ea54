package services

import (
	"time"
)

// CooldownTracker rate-limits notification bursts to at most one per device
// per window, no matter how many violating readings arrive inside it. It
// only gates the notification side effect; status transitions are never
// held back.
type CooldownTracker struct {
	window time.Duration
}

func NewCooldownTracker(window time.Duration) *CooldownTracker {
	return &CooldownTracker{window: window}
}

// ShouldNotify reports whether a fresh burst is allowed. A device that has
// never alerted (nil lastAlertSent) always qualifies. The caller must record
// the new LastAlertSent in the same persisted device write that carries the
// status transition, while holding the device's lock.
func (c *CooldownTracker) ShouldNotify(lastAlertSent *time.Time, now time.Time) bool {
	if lastAlertSent == nil {
		return true
	}
	return now.Sub(*lastAlertSent) > c.window
}

func (c *CooldownTracker) Window() time.Duration {
	return c.window
}
