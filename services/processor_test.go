package services

import (
	"context"
	"testing"
	"time"

	"coldwatch/models"

	"github.com/stretchr/testify/assert"
)

func TestReadingProcessorDrainsChannel(t *testing.T) {
	sender := newRecordingSender()
	coordinator, store, _, _ := newTestPipeline(sender, nil, 300*time.Second)
	seedDevice(store)

	processor := NewReadingProcessor(coordinator, 2, testLogger())

	submissions := make(chan *models.ReadingSubmission, 4)
	for _, temp := range []float64{4.0, 5.0, 6.0} {
		v := temp
		submissions <- &models.ReadingSubmission{DeviceKey: "key-1", Temperature: &v}
	}
	// No temperature: dropped without reaching the coordinator
	submissions <- &models.ReadingSubmission{DeviceKey: "key-1"}
	close(submissions)

	processor.Start(context.Background(), submissions)

	assert.Len(t, store.ReadingsForDevice("dev-1"), 3)
}

func TestHeartbeatProcessorDrainsChannel(t *testing.T) {
	sender := newRecordingSender()
	coordinator, store, _, clock := newTestPipeline(sender, nil, 300*time.Second)
	seedDevice(store)

	processor := NewHeartbeatProcessor(coordinator, testLogger())

	heartbeats := make(chan *models.Heartbeat, 2)
	heartbeats <- &models.Heartbeat{DeviceID: "dev-1", DeviceKey: "key-1"}
	// Bad key: rejected, must not stop the processor
	heartbeats <- &models.Heartbeat{DeviceID: "dev-1", DeviceKey: "wrong"}
	close(heartbeats)

	processor.Start(context.Background(), heartbeats)

	device, _ := store.GetDeviceByID(context.Background(), "dev-1")
	assert.Equal(t, *clock, device.LastSeen)
}
