package services

import (
	"context"
	"sync"
	"time"

	"coldwatch/models"

	"go.uber.org/zap"
)

// AlertDispatcher fans one alert event out to its recipients without
// blocking ingestion: every send runs on its own goroutine behind a bounded
// semaphore, failures are retried a few times and then logged, and one
// recipient failing never affects the others. In-flight sends are tracked
// so shutdown and tests can wait for completion.
type AlertDispatcher struct {
	sender     AlertSender
	logger     *zap.Logger
	sem        chan struct{}
	wg         sync.WaitGroup
	maxRetries int
	retryDelay time.Duration
}

// NewAlertDispatcher creates a dispatcher with the given send concurrency
func NewAlertDispatcher(sender AlertSender, concurrency int, logger *zap.Logger) *AlertDispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &AlertDispatcher{
		sender:     sender,
		logger:     logger,
		sem:        make(chan struct{}, concurrency),
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Dispatch queues one send attempt per recipient and returns immediately
func (d *AlertDispatcher) Dispatch(ctx context.Context, event *models.AlertEvent, recipients []*models.User) {
	if len(recipients) == 0 {
		d.logger.Warn("Alert has no recipients",
			zap.String("device_id", event.DeviceID),
			zap.String("tenant_id", event.TenantID))
		return
	}

	d.logger.Info("Dispatching alert burst",
		zap.String("device_id", event.DeviceID),
		zap.String("summary", event.Summary()),
		zap.Int("recipient_count", len(recipients)))

	for _, recipient := range recipients {
		d.wg.Add(1)
		go func(recipient *models.User) {
			defer d.wg.Done()

			d.sem <- struct{}{}
			defer func() { <-d.sem }()

			d.sendWithRetry(ctx, recipient, event)
		}(recipient)
	}
}

// sendWithRetry attempts one recipient's delivery with linear backoff.
// Exhausted retries are logged and dropped; notification delivery failures
// never roll back ingestion.
func (d *AlertDispatcher) sendWithRetry(ctx context.Context, recipient *models.User, event *models.AlertEvent) {
	var err error

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		err = d.sender.SendAlert(ctx, recipient, event)
		if err == nil {
			d.logger.Info("Alert sent",
				zap.String("device_id", event.DeviceID),
				zap.String("recipient_id", recipient.ID),
				zap.String("email", recipient.Email))
			return
		}

		d.logger.Warn("Failed to send alert",
			zap.String("device_id", event.DeviceID),
			zap.String("recipient_id", recipient.ID),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", d.maxRetries),
			zap.Error(err))

		if attempt < d.maxRetries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(attempt) * d.retryDelay):
			}
		}
	}

	d.logger.Error("Alert delivery failed after all retries",
		zap.String("device_id", event.DeviceID),
		zap.String("recipient_id", recipient.ID),
		zap.Error(err))
}

// Flush waits for all in-flight sends to finish, up to timeout. Returns
// true when everything drained.
func (d *AlertDispatcher) Flush(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
