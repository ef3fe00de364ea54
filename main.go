package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coldwatch/config"
	"coldwatch/log"
	"coldwatch/models"
	"coldwatch/services"

	"go.uber.org/zap"
)

func main() {
	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Initialize the device/reading/user store. Firebase when configured,
	// otherwise the in-memory store for local runs.
	var (
		registry  services.DeviceRegistry
		readings  services.ReadingStore
		directory services.UserDirectory
	)
	if cfg.FirebaseDbUrl != "" && cfg.FirebaseServiceAccountJSON != "" {
		firebaseStore, err := services.NewFirebaseStore(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Firebase store", zap.Error(err))
		}
		registry = firebaseStore
		readings = firebaseStore
		directory = firebaseStore
	} else {
		logger.Warn("Firebase not configured, using in-memory store; all state is lost on restart")
		memStore := services.NewMemoryStore()
		registry = memStore
		readings = memStore
		directory = memStore
	}

	// Ops notifications are optional
	var opsNotifier services.OpsNotifier
	var telegramService *services.TelegramService
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		telegramService, err = services.NewTelegramService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram service", zap.Error(err))
		}
		opsNotifier = telegramService
	} else {
		logger.Info("Telegram not configured, ops notices will only be logged")
	}

	// Tenant alert delivery goes to the notification gateway when one is
	// configured, otherwise to the log
	var alertSender services.AlertSender
	if cfg.AlertWebhookURL != "" {
		alertSender = services.NewWebhookAlertSender(cfg.AlertWebhookURL, logger)
		logger.Info("Alert webhook sender initialized", zap.String("url", cfg.AlertWebhookURL))
	} else {
		alertSender = services.NewLoggingAlertSender(logger)
		logger.Warn("No alert webhook configured, alerts will only be logged")
	}

	// Core pipeline
	locks := services.NewDeviceLocks()
	cooldown := services.NewCooldownTracker(time.Duration(cfg.AlertCooldownSeconds) * time.Second)
	resolver := services.NewRecipientResolver(directory)
	dispatcher := services.NewAlertDispatcher(alertSender, cfg.DispatchConcurrency, logger)
	coordinator := services.NewIngestionCoordinator(
		registry, readings, resolver, dispatcher, cooldown, locks, opsNotifier, logger)

	monitor := services.NewLivenessMonitor(
		registry,
		locks,
		opsNotifier,
		time.Duration(cfg.SweepIntervalSeconds)*time.Second,
		cfg.ToleranceFactor,
		time.Duration(cfg.DefaultHeartbeatIntervalSeconds)*time.Second,
		logger,
	)

	rabbitService, err := services.NewRabbitMQService(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize RabbitMQ service", zap.Error(err))
	}

	readingProcessor := services.NewReadingProcessor(coordinator, cfg.IngestWorkers, logger)
	heartbeatProcessor := services.NewHeartbeatProcessor(coordinator, logger)

	// Send startup notification
	if telegramService != nil {
		if err := telegramService.SendStartupMessage(); err != nil {
			logger.Warn("Failed to send startup message", zap.Error(err))
		}
	}

	logger.Info("Coldwatch ingestion service started",
		zap.Int("cooldown_seconds", cfg.AlertCooldownSeconds),
		zap.Int("sweep_interval_seconds", cfg.SweepIntervalSeconds),
		zap.Float64("tolerance_factor", cfg.ToleranceFactor),
		zap.Int("default_heartbeat_interval_seconds", cfg.DefaultHeartbeatIntervalSeconds),
		zap.Int("ingest_workers", cfg.IngestWorkers),
		zap.Int("dispatch_concurrency", cfg.DispatchConcurrency),
	)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal when cleanup is complete
	cleanupDone := make(chan bool, 1)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping services")

		// Cancel context to stop all goroutines
		cancel()

		// Wait for cleanup to complete or timeout
		select {
		case <-cleanupDone:
			logger.Info("Cleanup completed successfully")
		case <-time.After(10 * time.Second):
			logger.Warn("Cleanup timeout, forcing exit")
		}

		logger.Info("Coldwatch ingestion service stopped")
		os.Exit(0)
	}()

	// Pipeline channels between the broker consumers and the processors
	readingsChan := make(chan *models.ReadingSubmission, 100)
	heartbeatsChan := make(chan *models.Heartbeat, 100)

	go func() {
		if err := rabbitService.ConsumeReadings(ctx, readingsChan); err != nil {
			logger.Error("Readings consumer stopped with error", zap.Error(err))
		}
	}()
	go func() {
		if err := rabbitService.ConsumeHeartbeats(ctx, heartbeatsChan); err != nil {
			logger.Error("Heartbeats consumer stopped with error", zap.Error(err))
		}
	}()

	go readingProcessor.Start(ctx, readingsChan)
	go heartbeatProcessor.Start(ctx, heartbeatsChan)
	go monitor.Start(ctx)

	logger.Info("Ingestion pipeline running, waiting for device traffic")

	// Wait for shutdown signal
	<-ctx.Done()

	// Perform cleanup
	logger.Info("Starting cleanup")

	// Let in-flight alert sends finish before dropping the connections
	if !dispatcher.Flush(5 * time.Second) {
		logger.Warn("Some alert deliveries did not finish before shutdown")
	}

	if err := rabbitService.Close(); err != nil {
		logger.Error("Error closing RabbitMQ service", zap.Error(err))
	} else {
		logger.Info("RabbitMQ service closed")
	}

	// Signal cleanup completion
	cleanupDone <- true
}
