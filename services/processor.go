package services

import (
	"context"
	"errors"
	"sync"

	"coldwatch/models"

	"go.uber.org/zap"
)

// ReadingProcessor drains the readings channel into the coordinator. It runs
// a small worker pool; the coordinator's per-device locking keeps submissions
// for the same device serialized, so workers only add parallelism across
// devices.
type ReadingProcessor struct {
	coordinator *IngestionCoordinator
	workers     int
	logger      *zap.Logger
}

func NewReadingProcessor(coordinator *IngestionCoordinator, workers int, logger *zap.Logger) *ReadingProcessor {
	if workers <= 0 {
		workers = 1
	}
	return &ReadingProcessor{
		coordinator: coordinator,
		workers:     workers,
		logger:      logger,
	}
}

// Start consumes submissions until the context is cancelled or the channel
// closes. It blocks until all workers have drained.
func (p *ReadingProcessor) Start(ctx context.Context, submissions <-chan *models.ReadingSubmission) {
	p.logger.Info("Starting reading processor", zap.Int("workers", p.workers))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return

				case submission, ok := <-submissions:
					if !ok {
						return
					}
					p.process(ctx, submission)
				}
			}
		}()
	}

	wg.Wait()
	p.logger.Info("Reading processor stopped")
}

func (p *ReadingProcessor) process(ctx context.Context, submission *models.ReadingSubmission) {
	if submission.Temperature == nil {
		p.logger.Warn("Dropping reading without temperature",
			zap.String("device_key", submission.DeviceKey))
		return
	}

	err := p.coordinator.Submit(ctx, submission.DeviceKey, *submission.Temperature, submission.Timestamp)
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, ErrDeviceNotFound), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnauthorized):
		// Sender-side problem, the payload will never become valid
		p.logger.Warn("Rejected reading", zap.Error(err))
	default:
		p.logger.Error("Failed to ingest reading",
			zap.String("device_key", submission.DeviceKey),
			zap.Error(err))
	}
}

// HeartbeatProcessor drains the heartbeats channel into the coordinator
type HeartbeatProcessor struct {
	coordinator *IngestionCoordinator
	logger      *zap.Logger
}

func NewHeartbeatProcessor(coordinator *IngestionCoordinator, logger *zap.Logger) *HeartbeatProcessor {
	return &HeartbeatProcessor{
		coordinator: coordinator,
		logger:      logger,
	}
}

// Start consumes heartbeats until the context is cancelled or the channel
// closes
func (p *HeartbeatProcessor) Start(ctx context.Context, heartbeats <-chan *models.Heartbeat) {
	p.logger.Info("Starting heartbeat processor")

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping heartbeat processor")
			return

		case heartbeat, ok := <-heartbeats:
			if !ok {
				p.logger.Info("Heartbeat channel closed")
				return
			}
			p.process(ctx, heartbeat)
		}
	}
}

func (p *HeartbeatProcessor) process(ctx context.Context, heartbeat *models.Heartbeat) {
	err := p.coordinator.Heartbeat(ctx, heartbeat.DeviceID, heartbeat.DeviceKey)
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, ErrDeviceNotFound), errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnauthorized):
		p.logger.Warn("Rejected heartbeat",
			zap.String("device_id", heartbeat.DeviceID),
			zap.Error(err))
	default:
		p.logger.Error("Failed to process heartbeat",
			zap.String("device_id", heartbeat.DeviceID),
			zap.Error(err))
	}
}
