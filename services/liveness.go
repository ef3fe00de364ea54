package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LivenessMonitor periodically sweeps the devices believed online and
// demotes any whose last contact is older than its heartbeat interval times
// a tolerance factor. Detection is eventual: worst case one sweep period
// plus the tolerance margin. Sweeps are idempotent per tick and a skipped
// or delayed tick costs nothing but latency.
type LivenessMonitor struct {
	registry DeviceRegistry
	locks    *DeviceLocks
	ops      OpsNotifier // optional
	logger   *zap.Logger

	sweepInterval   time.Duration
	toleranceFactor float64
	defaultInterval time.Duration
	now             func() time.Time
}

func NewLivenessMonitor(
	registry DeviceRegistry,
	locks *DeviceLocks,
	ops OpsNotifier,
	sweepInterval time.Duration,
	toleranceFactor float64,
	defaultInterval time.Duration,
	logger *zap.Logger,
) *LivenessMonitor {
	return &LivenessMonitor{
		registry:        registry,
		locks:           locks,
		ops:             ops,
		logger:          logger,
		sweepInterval:   sweepInterval,
		toleranceFactor: toleranceFactor,
		defaultInterval: defaultInterval,
		now:             time.Now,
	}
}

// Start runs sweeps on a fixed cadence until the context is cancelled
func (m *LivenessMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	m.logger.Info("Liveness monitor started",
		zap.Duration("sweep_interval", m.sweepInterval),
		zap.Float64("tolerance_factor", m.toleranceFactor),
		zap.Duration("default_heartbeat_interval", m.defaultInterval))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Liveness monitor stopped")
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep runs one offline-detection pass. An error on one device is logged
// and never aborts the pass for the remaining devices. Returns how many
// devices were demoted.
func (m *LivenessMonitor) Sweep(ctx context.Context) int {
	devices, err := m.registry.ListOnlineDevices(ctx)
	if err != nil {
		m.logger.Error("Liveness sweep could not list online devices", zap.Error(err))
		return 0
	}

	demoted := 0
	for _, device := range devices {
		changed, err := m.sweepDevice(ctx, device.ID)
		if err != nil {
			m.logger.Error("Liveness sweep failed for device",
				zap.String("device_id", device.ID),
				zap.Error(err))
			continue
		}
		if changed {
			demoted++
		}
	}

	if demoted > 0 {
		m.logger.Info("Liveness sweep finished",
			zap.Int("checked", len(devices)),
			zap.Int("marked_offline", demoted))
	}
	return demoted
}

// sweepDevice re-checks a single device under its exclusive section so a
// concurrently arriving reading or heartbeat cannot be overwritten.
func (m *LivenessMonitor) sweepDevice(ctx context.Context, deviceID string) (bool, error) {
	m.locks.Lock(deviceID)
	defer m.locks.Unlock(deviceID)

	device, err := m.registry.GetDeviceByID(ctx, deviceID)
	if err != nil {
		return false, err
	}
	if !device.IsOnline {
		// Already offline, or demoted by a racing sweep; no repeated write
		return false, nil
	}

	interval := device.HeartbeatInterval(m.defaultInterval)
	threshold := time.Duration(float64(interval) * m.toleranceFactor)
	elapsed := m.now().Sub(device.LastSeen)

	if elapsed <= threshold {
		return false, nil
	}

	device.IsOnline = false
	if err := m.registry.SaveDevice(ctx, device, device.Version); err != nil {
		return false, fmt.Errorf("save device %s: %w", deviceID, err)
	}

	m.logger.Warn("Device marked offline",
		zap.String("device_id", device.ID),
		zap.String("name", device.Name),
		zap.Time("last_seen", device.LastSeen),
		zap.Duration("elapsed", elapsed),
		zap.Duration("threshold", threshold))

	if m.ops != nil {
		if err := m.ops.DeviceOffline(device, elapsed); err != nil {
			m.logger.Error("Failed to send offline notice",
				zap.String("device_id", device.ID),
				zap.Error(err))
		}
	}

	return true, nil
}
