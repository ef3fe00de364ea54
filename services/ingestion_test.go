package services

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"coldwatch/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitScenario(t *testing.T) {
	// Device with range [2,8], cooldown 300s, readings [5, 9.5, 9.7, 4]
	// arriving at t=0, 1, 2 and 300 seconds.
	sender := newRecordingSender()
	coordinator, store, dispatcher, clock := newTestPipeline(sender, nil, 300*time.Second)
	seedDevice(store)
	store.PutUser(&models.User{ID: "admin-1", TenantID: "t1", Role: models.RoleAdmin, Email: "a1@x.test"})
	ctx := context.Background()
	t0 := *clock

	// t=0: in range, no alert
	require.NoError(t, coordinator.Submit(ctx, "key-1", 5.0, nil))
	require.True(t, dispatcher.Flush(5*time.Second))
	assert.Zero(t, sender.sentCount())
	device, _ := store.GetDeviceByID(ctx, "dev-1")
	assert.Equal(t, models.DeviceActive, device.Status)
	assert.Nil(t, device.LastAlertSent)

	// t=1: violation, one burst, lastAlertSent recorded
	*clock = t0.Add(1 * time.Second)
	require.NoError(t, coordinator.Submit(ctx, "key-1", 9.5, nil))
	require.True(t, dispatcher.Flush(5*time.Second))
	assert.Equal(t, 1, sender.sentCount())
	device, _ = store.GetDeviceByID(ctx, "dev-1")
	assert.Equal(t, models.DeviceAlert, device.Status)
	require.NotNil(t, device.LastAlertSent)
	assert.Equal(t, t0.Add(1*time.Second), *device.LastAlertSent)

	// t=2: still violating, within cooldown, no new burst
	*clock = t0.Add(2 * time.Second)
	require.NoError(t, coordinator.Submit(ctx, "key-1", 9.7, nil))
	require.True(t, dispatcher.Flush(5*time.Second))
	assert.Equal(t, 1, sender.sentCount())
	device, _ = store.GetDeviceByID(ctx, "dev-1")
	assert.Equal(t, models.DeviceAlert, device.Status)
	assert.Equal(t, t0.Add(1*time.Second), *device.LastAlertSent)

	// t=300: back in range, alert clears, no notification
	*clock = t0.Add(300 * time.Second)
	require.NoError(t, coordinator.Submit(ctx, "key-1", 4.0, nil))
	require.True(t, dispatcher.Flush(5*time.Second))
	assert.Equal(t, 1, sender.sentCount())
	device, _ = store.GetDeviceByID(ctx, "dev-1")
	assert.Equal(t, models.DeviceActive, device.Status)

	// Every reading was persisted, violations included
	assert.Len(t, store.ReadingsForDevice("dev-1"), 4)
}

func TestSubmitNewBurstAfterCooldownExpiry(t *testing.T) {
	sender := newRecordingSender()
	coordinator, store, dispatcher, clock := newTestPipeline(sender, nil, 300*time.Second)
	seedDevice(store)
	store.PutUser(&models.User{ID: "admin-1", TenantID: "t1", Role: models.RoleAdmin, Email: "a1@x.test"})
	ctx := context.Background()
	t0 := *clock

	require.NoError(t, coordinator.Submit(ctx, "key-1", 9.5, nil))
	require.True(t, dispatcher.Flush(5*time.Second))
	assert.Equal(t, 1, sender.sentCount())

	// Still inside the window
	*clock = t0.Add(300 * time.Second)
	require.NoError(t, coordinator.Submit(ctx, "key-1", 9.6, nil))
	require.True(t, dispatcher.Flush(5*time.Second))
	assert.Equal(t, 1, sender.sentCount())

	// Strictly past the window relative to the first burst
	*clock = t0.Add(301 * time.Second)
	require.NoError(t, coordinator.Submit(ctx, "key-1", 9.7, nil))
	require.True(t, dispatcher.Flush(5*time.Second))
	assert.Equal(t, 2, sender.sentCount())
}

func TestSubmitAlwaysUpdatesContact(t *testing.T) {
	sender := newRecordingSender()
	coordinator, store, dispatcher, clock := newTestPipeline(sender, nil, 300*time.Second)
	seedDevice(store)
	ctx := context.Background()
	t0 := *clock

	require.NoError(t, coordinator.Submit(ctx, "key-1", 9.5, nil))

	// Suppressed burst still counts as contact
	*clock = t0.Add(10 * time.Second)
	require.NoError(t, coordinator.Submit(ctx, "key-1", 9.6, nil))
	require.True(t, dispatcher.Flush(5*time.Second))

	device, _ := store.GetDeviceByID(ctx, "dev-1")
	require.NotNil(t, device.LastContact)
	assert.Equal(t, t0.Add(10*time.Second), *device.LastContact)
	assert.Equal(t, t0.Add(10*time.Second), device.LastSeen)
	assert.True(t, device.IsOnline)
}

func TestSubmitConcurrentViolationsSingleBurst(t *testing.T) {
	sender := newRecordingSender()
	coordinator, store, dispatcher, _ := newTestPipeline(sender, nil, 300*time.Second)
	seedDevice(store)
	store.PutUser(&models.User{ID: "admin-1", TenantID: "t1", Role: models.RoleAdmin, Email: "a1@x.test"})
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, coordinator.Submit(ctx, "key-1", 9.5, nil))
		}()
	}
	wg.Wait()
	require.True(t, dispatcher.Flush(5*time.Second))

	assert.Equal(t, 1, sender.sentCount())
	assert.Len(t, store.ReadingsForDevice("dev-1"), n)
}

func TestSubmitInputValidation(t *testing.T) {
	sender := newRecordingSender()
	coordinator, store, _, _ := newTestPipeline(sender, nil, 300*time.Second)
	seedDevice(store)
	ctx := context.Background()

	err := coordinator.Submit(ctx, "", 5.0, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = coordinator.Submit(ctx, "key-1", math.NaN(), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = coordinator.Submit(ctx, "key-1", math.Inf(1), nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = coordinator.Submit(ctx, "unknown-key", 5.0, nil)
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	// Nothing was persisted for the rejected submissions
	assert.Empty(t, store.ReadingsForDevice("dev-1"))
}

func TestSubmitHonoursProvidedTimestamp(t *testing.T) {
	sender := newRecordingSender()
	coordinator, store, _, _ := newTestPipeline(sender, nil, 300*time.Second)
	seedDevice(store)
	ctx := context.Background()

	at := time.Date(2026, 7, 15, 8, 30, 0, 0, time.UTC)
	require.NoError(t, coordinator.Submit(ctx, "key-1", 5.0, &at))

	readings := store.ReadingsForDevice("dev-1")
	require.Len(t, readings, 1)
	assert.Equal(t, at, readings[0].Timestamp)
	assert.Equal(t, "t1", readings[0].TenantID)
}

func TestHeartbeat(t *testing.T) {
	sender := newRecordingSender()
	coordinator, store, _, clock := newTestPipeline(sender, nil, 300*time.Second)
	device := seedDevice(store)
	device.Status = models.DeviceAlert
	device.IsOnline = true
	store.PutDevice(device)
	ctx := context.Background()
	t0 := *clock

	require.NoError(t, coordinator.Heartbeat(ctx, "dev-1", "key-1"))

	saved, _ := store.GetDeviceByID(ctx, "dev-1")
	assert.Equal(t, t0, saved.LastSeen)
	require.NotNil(t, saved.LastContact)
	assert.Equal(t, t0, *saved.LastContact)
	assert.True(t, saved.IsOnline)

	// Heartbeats never touch alerting state
	assert.Equal(t, models.DeviceAlert, saved.Status)
	assert.Zero(t, sender.sentCount())
}

func TestHeartbeatRejectsWrongKey(t *testing.T) {
	sender := newRecordingSender()
	coordinator, store, _, _ := newTestPipeline(sender, nil, 300*time.Second)
	seedDevice(store)
	ctx := context.Background()

	err := coordinator.Heartbeat(ctx, "dev-1", "wrong-key")
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = coordinator.Heartbeat(ctx, "no-such-device", "key-1")
	assert.ErrorIs(t, err, ErrDeviceNotFound)

	err = coordinator.Heartbeat(ctx, "", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubmitRecoveryNotice(t *testing.T) {
	sender := newRecordingSender()
	ops := &recordingOps{}
	coordinator, store, dispatcher, clock := newTestPipeline(sender, ops, 300*time.Second)
	device := seedDevice(store)
	device.IsOnline = false
	device.LastSeen = clock.Add(-10 * time.Minute)
	store.PutDevice(device)
	ctx := context.Background()

	require.NoError(t, coordinator.Submit(ctx, "key-1", 5.0, nil))
	require.True(t, dispatcher.Flush(5*time.Second))

	assert.Equal(t, []string{"dev-1"}, ops.recoveredIDs())

	saved, _ := store.GetDeviceByID(ctx, "dev-1")
	assert.True(t, saved.IsOnline)
}

func TestSubmitFirstContactIsNotARecovery(t *testing.T) {
	sender := newRecordingSender()
	ops := &recordingOps{}
	coordinator, store, _, _ := newTestPipeline(sender, ops, 300*time.Second)

	store.PutDevice(&models.Device{
		ID:       "dev-1",
		TenantID: "t1",
		Name:     "Fridge 1",
		Key:      "key-1",
		Settings: models.Settings{TempMin: 2.0, TempMax: 8.0},
		Status:   models.DeviceInactive,
	})
	ctx := context.Background()

	require.NoError(t, coordinator.Submit(ctx, "key-1", 5.0, nil))

	assert.Empty(t, ops.recoveredIDs())
}

func TestDeviceSnapshotBlanksKey(t *testing.T) {
	sender := newRecordingSender()
	coordinator, store, _, _ := newTestPipeline(sender, nil, 300*time.Second)
	seedDevice(store)

	snapshot, err := coordinator.DeviceSnapshot(context.Background(), "dev-1")
	require.NoError(t, err)

	assert.Empty(t, snapshot.Key)
	assert.Equal(t, "dev-1", snapshot.ID)
}
