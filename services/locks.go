package services

import (
	"sync"
)

// DeviceLocks serializes read-modify-write sequences on a single device's
// record. The ingestion coordinator and the liveness monitor share one
// instance, so their updates to the same device never interleave, while
// different devices proceed in parallel.
//
// Entries are never evicted; the map is bounded by the number of distinct
// devices seen by this process.
type DeviceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDeviceLocks() *DeviceLocks {
	return &DeviceLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *DeviceLocks) get(deviceID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.locks[deviceID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[deviceID] = m
	}
	return m
}

// Lock acquires the exclusive section for one device
func (l *DeviceLocks) Lock(deviceID string) {
	l.get(deviceID).Lock()
}

// Unlock releases the exclusive section for one device
func (l *DeviceLocks) Unlock(deviceID string) {
	l.get(deviceID).Unlock()
}
