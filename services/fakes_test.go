package services

import (
	"context"
	"sync"
	"time"

	"coldwatch/models"

	"go.uber.org/zap"
)

// recordingSender captures every delivery handed to it. failFor lists
// recipient IDs whose sends always fail; failFirst makes the first N calls
// per recipient fail before succeeding.
type recordingSender struct {
	mu        sync.Mutex
	sent      []sentAlert
	attempts  map[string]int
	failFor   map[string]bool
	failFirst int
}

type sentAlert struct {
	recipientID string
	event       *models.AlertEvent
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		attempts: make(map[string]int),
		failFor:  make(map[string]bool),
	}
}

func (s *recordingSender) SendAlert(ctx context.Context, recipient *models.User, event *models.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[recipient.ID]++
	if s.failFor[recipient.ID] {
		return ErrStoreUnavailable
	}
	if s.attempts[recipient.ID] <= s.failFirst {
		return ErrStoreUnavailable
	}

	s.sent = append(s.sent, sentAlert{recipientID: recipient.ID, event: event})
	return nil
}

func (s *recordingSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *recordingSender) sentTo() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]int)
	for _, sa := range s.sent {
		out[sa.recipientID]++
	}
	return out
}

// recordingOps captures offline/recovered notices
type recordingOps struct {
	mu        sync.Mutex
	offline   []string
	recovered []string
}

func (o *recordingOps) DeviceOffline(device *models.Device, elapsed time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.offline = append(o.offline, device.ID)
	return nil
}

func (o *recordingOps) DeviceRecovered(device *models.Device, downFor time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recovered = append(o.recovered, device.ID)
	return nil
}

func (o *recordingOps) offlineIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.offline...)
}

func (o *recordingOps) recoveredIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.recovered...)
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

// newTestPipeline wires a coordinator over a fresh memory store with a
// controllable clock. The returned dispatcher retries fast so failure tests
// stay quick.
func newTestPipeline(sender AlertSender, ops OpsNotifier, cooldownWindow time.Duration) (*IngestionCoordinator, *MemoryStore, *AlertDispatcher, *time.Time) {
	store := NewMemoryStore()
	locks := NewDeviceLocks()
	cooldown := NewCooldownTracker(cooldownWindow)
	resolver := NewRecipientResolver(store)
	dispatcher := NewAlertDispatcher(sender, 4, testLogger())
	dispatcher.retryDelay = time.Millisecond

	coordinator := NewIngestionCoordinator(
		store, store, resolver, dispatcher, cooldown, locks, ops, testLogger())

	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := &current
	coordinator.now = func() time.Time { return *clock }

	return coordinator, store, dispatcher, clock
}
