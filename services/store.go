package services

import (
	"context"
	"errors"
	"time"

	"coldwatch/models"
)

// Error taxonomy for ingestion and device-state updates. Request-level
// failures (not found, invalid input, unauthorized) are terminal; store and
// conflict errors are transient and safe to retry because reading appends
// are additive and device-state recomputation is idempotent.
var (
	ErrDeviceNotFound   = errors.New("device not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrConflict         = errors.New("concurrent update conflict")
)

// DeviceRegistry is the authoritative store of device identity, settings and
// mutable state. The persistence engine lives behind this interface; the
// service ships a Firebase RTDB adapter and an in-memory one.
type DeviceRegistry interface {
	GetDeviceByKey(ctx context.Context, key string) (*models.Device, error)
	GetDeviceByID(ctx context.Context, id string) (*models.Device, error)
	ListOnlineDevices(ctx context.Context) ([]*models.Device, error)

	// SaveDevice persists the device if its stored version still equals
	// expectedVersion, then bumps the version. Returns ErrConflict on a
	// version mismatch so the caller can re-read and retry instead of
	// losing an update.
	SaveDevice(ctx context.Context, device *models.Device, expectedVersion int64) error
}

// ReadingStore appends accepted temperature samples. Append-only: readings
// are never updated or deleted.
type ReadingStore interface {
	AppendReading(ctx context.Context, reading *models.Reading) error
}

// UserDirectory exposes the read-only user snapshots the fan-out resolver
// filters. User CRUD happens elsewhere.
type UserDirectory interface {
	ListUsersByTenant(ctx context.Context, tenantID string) ([]*models.User, error)
}

// AlertSender hands one alert for one recipient to the external delivery
// capability (mail gateway, messaging bridge). A failure for one recipient
// must not affect the others; the dispatcher enforces that isolation.
type AlertSender interface {
	SendAlert(ctx context.Context, recipient *models.User, event *models.AlertEvent) error
}

// OpsNotifier receives operational device-state notices (offline, recovered)
// on a channel watched by operators, separate from tenant-facing alerts.
type OpsNotifier interface {
	DeviceOffline(device *models.Device, elapsed time.Duration) error
	DeviceRecovered(device *models.Device, downFor time.Duration) error
}
