package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"coldwatch/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// IngestionCoordinator runs the full reading -> evaluate -> transition ->
// notify -> persist sequence. All mutation of a device's record happens
// inside that device's exclusive section, so concurrent submissions for the
// same device serialize while different devices proceed in parallel, and
// the cooldown decision plus the LastAlertSent write land in one persisted
// device update.
type IngestionCoordinator struct {
	registry   DeviceRegistry
	readings   ReadingStore
	resolver   *RecipientResolver
	dispatcher *AlertDispatcher
	cooldown   *CooldownTracker
	locks      *DeviceLocks
	ops        OpsNotifier // optional
	logger     *zap.Logger
	now        func() time.Time
}

func NewIngestionCoordinator(
	registry DeviceRegistry,
	readings ReadingStore,
	resolver *RecipientResolver,
	dispatcher *AlertDispatcher,
	cooldown *CooldownTracker,
	locks *DeviceLocks,
	ops OpsNotifier,
	logger *zap.Logger,
) *IngestionCoordinator {
	return &IngestionCoordinator{
		registry:   registry,
		readings:   readings,
		resolver:   resolver,
		dispatcher: dispatcher,
		cooldown:   cooldown,
		locks:      locks,
		ops:        ops,
		logger:     logger,
		now:        time.Now,
	}
}

// Submit ingests one temperature reading authenticated by the device key.
// The reading is appended unconditionally; the device's status, liveness
// and alert bookkeeping are then updated in a single registry write. A
// notification burst fires only when the verdict is a violation and the
// cooldown window has passed.
func (c *IngestionCoordinator) Submit(ctx context.Context, deviceKey string, temperature float64, at *time.Time) error {
	if deviceKey == "" {
		return fmt.Errorf("%w: device key is required", ErrInvalidInput)
	}
	if math.IsNaN(temperature) || math.IsInf(temperature, 0) {
		return fmt.Errorf("%w: temperature must be a finite number", ErrInvalidInput)
	}

	resolved, err := c.registry.GetDeviceByKey(ctx, deviceKey)
	if err != nil {
		return err
	}

	c.locks.Lock(resolved.ID)
	defer c.locks.Unlock(resolved.ID)

	// Re-read under the lock so we evaluate against the freshest state
	device, err := c.registry.GetDeviceByID(ctx, resolved.ID)
	if err != nil {
		return err
	}

	now := c.now()
	ts := now
	if at != nil && !at.IsZero() {
		ts = *at
	}

	reading := &models.Reading{
		ID:          uuid.NewString(),
		DeviceID:    device.ID,
		TenantID:    device.TenantID,
		Temperature: temperature,
		Timestamp:   ts,
	}
	if err := c.readings.AppendReading(ctx, reading); err != nil {
		return fmt.Errorf("append reading for device %s: %w", device.ID, err)
	}

	ev := EvaluateReading(temperature, device.Settings, device.Status)
	if ev.StatusChanged {
		c.logger.Info("Device status transition",
			zap.String("device_id", device.ID),
			zap.String("from", string(device.Status)),
			zap.String("to", string(ev.NewStatus)),
			zap.Float64("temperature", temperature))
		device.Status = ev.NewStatus
	}

	var event *models.AlertEvent
	if ev.Verdict.IsViolation() {
		if c.cooldown.ShouldNotify(device.LastAlertSent, now) {
			event = &models.AlertEvent{
				DeviceID:    device.ID,
				DeviceName:  device.Name,
				TenantID:    device.TenantID,
				Temperature: temperature,
				Limit:       ev.Limit,
				Kind:        ev.Kind,
				Timestamp:   now,
			}
			sent := now
			device.LastAlertSent = &sent
		} else {
			c.logger.Debug("Violation within cooldown window, suppressing burst",
				zap.String("device_id", device.ID),
				zap.Duration("cooldown", c.cooldown.Window()))
		}
	}

	wasOffline := !device.IsOnline
	lastSeenBefore := device.LastSeen

	device.IsOnline = true
	device.LastSeen = now
	contact := now
	device.LastContact = &contact

	// One write carries status, cooldown bookkeeping and liveness together;
	// the burst is released only after the decision is durably recorded.
	if err := c.registry.SaveDevice(ctx, device, device.Version); err != nil {
		return fmt.Errorf("save device %s: %w", device.ID, err)
	}

	if event != nil {
		recipients, err := c.resolver.ResolveAlertRecipients(ctx, device.TenantID, device.ID)
		if err != nil {
			// Notification-stage failure is isolated: the ingestion itself
			// already succeeded.
			c.logger.Error("Failed to resolve alert recipients",
				zap.String("device_id", device.ID),
				zap.String("tenant_id", device.TenantID),
				zap.Error(err))
		} else {
			c.dispatcher.Dispatch(ctx, event, recipients)
		}
	}

	if wasOffline {
		c.notifyRecovered(device, lastSeenBefore, now)
	}

	return nil
}

// Heartbeat records a liveness-only contact. It refreshes LastSeen,
// LastContact and IsOnline and never touches the alerting status.
func (c *IngestionCoordinator) Heartbeat(ctx context.Context, deviceID, deviceKey string) error {
	if deviceID == "" || deviceKey == "" {
		return fmt.Errorf("%w: device id and key are required", ErrInvalidInput)
	}

	probe, err := c.registry.GetDeviceByID(ctx, deviceID)
	if err != nil {
		return err
	}
	if probe.Key != deviceKey {
		return fmt.Errorf("%w: key mismatch for device %s", ErrUnauthorized, deviceID)
	}

	c.locks.Lock(deviceID)
	defer c.locks.Unlock(deviceID)

	device, err := c.registry.GetDeviceByID(ctx, deviceID)
	if err != nil {
		return err
	}

	now := c.now()
	wasOffline := !device.IsOnline
	lastSeenBefore := device.LastSeen

	device.IsOnline = true
	device.LastSeen = now
	contact := now
	device.LastContact = &contact

	if err := c.registry.SaveDevice(ctx, device, device.Version); err != nil {
		return fmt.Errorf("save device %s: %w", device.ID, err)
	}

	c.logger.Debug("Heartbeat accepted", zap.String("device_id", deviceID))

	if wasOffline {
		c.notifyRecovered(device, lastSeenBefore, now)
	}

	return nil
}

// DeviceSnapshot returns a read-only copy of the device record for
// dashboards and status queries.
func (c *IngestionCoordinator) DeviceSnapshot(ctx context.Context, deviceID string) (*models.Device, error) {
	device, err := c.registry.GetDeviceByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	snapshot := device.Clone()
	snapshot.Key = ""
	return snapshot, nil
}

func (c *IngestionCoordinator) notifyRecovered(device *models.Device, lastSeenBefore, now time.Time) {
	if lastSeenBefore.IsZero() {
		// First contact ever, nothing recovered
		c.logger.Info("Device online for the first time",
			zap.String("device_id", device.ID),
			zap.String("name", device.Name))
		return
	}
	downFor := now.Sub(lastSeenBefore)

	c.logger.Info("Device back online",
		zap.String("device_id", device.ID),
		zap.String("name", device.Name),
		zap.Duration("down_for", downFor))

	if c.ops == nil {
		return
	}
	if err := c.ops.DeviceRecovered(device, downFor); err != nil {
		c.logger.Error("Failed to send recovery notice",
			zap.String("device_id", device.ID),
			zap.Error(err))
	}
}
