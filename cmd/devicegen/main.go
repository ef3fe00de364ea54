package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coldwatch/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var (
	deviceID       = flag.String("device", "FRIDGE-MOCK-001", "Device ID for mock data")
	deviceKey      = flag.String("key", "mock-device-key", "Device ingestion key")
	readingEvery   = flag.Duration("reading-every", 10*time.Second, "Interval between readings")
	heartbeatEvery = flag.Duration("heartbeat-every", 60*time.Second, "Interval between heartbeats")
	anomaly        = flag.Float64("anomaly", 0.1, "Probability of an out-of-range reading (0.0-1.0)")
	tempMin        = flag.Float64("temp-min", 2.0, "Lower bound of the simulated operating range")
	tempMax        = flag.Float64("temp-max", 8.0, "Upper bound of the simulated operating range")
	mqttBroker     = flag.String("broker", "localhost:1883", "MQTT broker address (host:port)")
	mqttUser       = flag.String("user", "coldwatch", "MQTT username")
	mqttPass       = flag.String("pass", "coldwatch", "MQTT password")
	readingsTopic  = flag.String("readings-topic", "readings_queue", "MQTT topic for readings")
	heartbeatTopic = flag.String("heartbeats-topic", "heartbeats_queue", "MQTT topic for heartbeats")
)

// MockDeviceGenerator simulates one cold-storage sensor unit publishing
// readings and heartbeats the way the firmware does.
type MockDeviceGenerator struct {
	deviceID           string
	deviceKey          string
	anomalyProbability float64
	tempMin            float64
	tempMax            float64
	logger             *zap.Logger
}

func NewMockDeviceGenerator(deviceID, deviceKey string, anomalyProb, tempMin, tempMax float64, logger *zap.Logger) *MockDeviceGenerator {
	return &MockDeviceGenerator{
		deviceID:           deviceID,
		deviceKey:          deviceKey,
		anomalyProbability: anomalyProb,
		tempMin:            tempMin,
		tempMax:            tempMax,
		logger:             logger,
	}
}

// GenerateReading produces a temperature near the middle of the range, with
// occasional excursions past either bound.
func (m *MockDeviceGenerator) GenerateReading() (*models.ReadingSubmission, bool) {
	mid := (m.tempMin + m.tempMax) / 2
	span := m.tempMax - m.tempMin

	temperature := mid + (rand.Float64()-0.5)*span*0.6

	isAnomaly := rand.Float64() < m.anomalyProbability
	if isAnomaly {
		if rand.Float64() < 0.5 {
			temperature = m.tempMax + 0.5 + rand.Float64()*3.0
		} else {
			temperature = m.tempMin - 0.5 - rand.Float64()*3.0
		}
	}
	temperature = math.Round(temperature*10) / 10

	now := time.Now()
	return &models.ReadingSubmission{
		DeviceKey:   m.deviceKey,
		Temperature: &temperature,
		Timestamp:   &now,
	}, isAnomaly
}

// GenerateHeartbeat produces a liveness-only contact
func (m *MockDeviceGenerator) GenerateHeartbeat() *models.Heartbeat {
	return &models.Heartbeat{
		DeviceID:  m.deviceID,
		DeviceKey: m.deviceKey,
		Timestamp: time.Now(),
	}
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Mock device generator started",
		zap.String("device_id", *deviceID),
		zap.Duration("reading_every", *readingEvery),
		zap.Duration("heartbeat_every", *heartbeatEvery),
		zap.Float64("anomaly_probability", *anomaly),
		zap.String("mqtt_broker", *mqttBroker),
	)
	logger.Info("Press Ctrl+C to stop gracefully")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", *mqttBroker))
	opts.SetClientID(fmt.Sprintf("%s-generator", *deviceID))
	opts.SetUsername(*mqttUser)
	opts.SetPassword(*mqttPass)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", *mqttBroker))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	mqttClient := mqtt.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}
	defer mqttClient.Disconnect(250)

	mockGen := NewMockDeviceGenerator(*deviceID, *deviceKey, *anomaly, *tempMin, *tempMax, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping generator")
		cancel()
	}()

	readingTicker := time.NewTicker(*readingEvery)
	defer readingTicker.Stop()
	heartbeatTicker := time.NewTicker(*heartbeatEvery)
	defer heartbeatTicker.Stop()

	readingCount := 0
	anomalyCount := 0
	heartbeatCount := 0
	startTime := time.Now()

	publish := func(topic string, payload interface{}) error {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		token := mqttClient.Publish(topic, 0, false, jsonData)
		if token.Wait() && token.Error() != nil {
			return token.Error()
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			elapsed := time.Since(startTime)
			logger.Info("Shutting down",
				zap.Int("readings_published", readingCount),
				zap.Int("anomalies_generated", anomalyCount),
				zap.Int("heartbeats_published", heartbeatCount),
				zap.Duration("uptime", elapsed),
			)
			mqttClient.Disconnect(250)
			return

		case <-readingTicker.C:
			submission, isAnomaly := mockGen.GenerateReading()
			if err := publish(*readingsTopic, submission); err != nil {
				logger.Error("Failed to publish reading", zap.Error(err))
				continue
			}
			readingCount++
			if isAnomaly {
				anomalyCount++
			}

			logger.Debug("Published reading",
				zap.String("device_id", *deviceID),
				zap.Float64("temperature", *submission.Temperature),
				zap.Bool("is_anomaly", isAnomaly))

			if readingCount%100 == 0 {
				logger.Info("Readings published",
					zap.Int("count", readingCount),
					zap.Int("anomalies", anomalyCount))
			}

		case <-heartbeatTicker.C:
			heartbeat := mockGen.GenerateHeartbeat()
			if err := publish(*heartbeatTopic, heartbeat); err != nil {
				logger.Error("Failed to publish heartbeat", zap.Error(err))
				continue
			}
			heartbeatCount++

			logger.Debug("Published heartbeat", zap.String("device_id", *deviceID))
		}
	}
}
