package services

import (
	"context"
	"fmt"
	"sync"

	"coldwatch/models"
)

// MemoryStore is an in-process implementation of DeviceRegistry,
// ReadingStore and UserDirectory. It backs local development runs without a
// Firebase project and doubles as the store used by the test suite. All
// methods hand out deep copies so callers never alias stored records.
type MemoryStore struct {
	mu            sync.RWMutex
	devices       map[string]*models.Device
	idByKey       map[string]string
	readings      map[string][]*models.Reading
	usersByTenant map[string][]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices:       make(map[string]*models.Device),
		idByKey:       make(map[string]string),
		readings:      make(map[string][]*models.Reading),
		usersByTenant: make(map[string][]*models.User),
	}
}

// PutDevice seeds or replaces a device record. Version is forced to at
// least 1 so the first SaveDevice CAS has something to compare against.
func (s *MemoryStore) PutDevice(device *models.Device) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := device.Clone()
	if d.Version <= 0 {
		d.Version = 1
	}
	device.Version = d.Version
	s.devices[d.ID] = d
	if d.Key != "" {
		s.idByKey[d.Key] = d.ID
	}
}

// PutUser seeds a directory entry
func (s *MemoryStore) PutUser(user *models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := *user
	u.DeviceIDs = append([]string(nil), user.DeviceIDs...)
	s.usersByTenant[u.TenantID] = append(s.usersByTenant[u.TenantID], &u)
}

func (s *MemoryStore) GetDeviceByKey(ctx context.Context, key string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.idByKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown device key", ErrDeviceNotFound)
	}
	return s.devices[id].Clone(), nil
}

func (s *MemoryStore) GetDeviceByID(ctx context.Context, id string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	device, ok := s.devices[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, id)
	}
	return device.Clone(), nil
}

func (s *MemoryStore) ListOnlineDevices(ctx context.Context) ([]*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var online []*models.Device
	for _, device := range s.devices {
		if device.IsOnline {
			online = append(online, device.Clone())
		}
	}
	return online, nil
}

func (s *MemoryStore) SaveDevice(ctx context.Context, device *models.Device, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.devices[device.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, device.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: device %s at version %d, expected %d",
			ErrConflict, device.ID, current.Version, expectedVersion)
	}

	saved := device.Clone()
	saved.Version = expectedVersion + 1
	// Key is not part of the mutable state; keep the stored one
	saved.Key = current.Key
	s.devices[device.ID] = saved
	device.Version = saved.Version
	return nil
}

func (s *MemoryStore) AppendReading(ctx context.Context, reading *models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *reading
	s.readings[r.DeviceID] = append(s.readings[r.DeviceID], &r)
	return nil
}

// ReadingsForDevice returns the accepted samples for a device in append
// order, for dashboards and tests.
func (s *MemoryStore) ReadingsForDevice(deviceID string) []*models.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.readings[deviceID]
	out := make([]*models.Reading, len(stored))
	for i, r := range stored {
		c := *r
		out[i] = &c
	}
	return out
}

func (s *MemoryStore) ListUsersByTenant(ctx context.Context, tenantID string) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.usersByTenant[tenantID]
	out := make([]*models.User, len(stored))
	for i, u := range stored {
		c := *u
		c.DeviceIDs = append([]string(nil), u.DeviceIDs...)
		out[i] = &c
	}
	return out, nil
}
