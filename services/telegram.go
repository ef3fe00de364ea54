package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"coldwatch/config"
	"coldwatch/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramService posts operational notices (startup, device offline, device
// recovered) to a single operator chat. Tenant-facing alert delivery goes
// through AlertSender instead; this channel is for the people running the
// fleet.
type TelegramService struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %v", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %v", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	ts := &TelegramService{
		bot:    bot,
		chatID: chatID,
		logger: logger,
	}

	if err := ts.testConnection(); err != nil {
		logger.Error("Telegram connection test failed", zap.Error(err))
		return nil, fmt.Errorf("telegram connection test failed: %v", err)
	}

	return ts, nil
}

// testConnection tests Telegram connection with retry logic
func (ts *TelegramService) testConnection() error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		ts.logger.Info("Testing Telegram connection",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries))

		_, err := ts.bot.GetMe()
		if err == nil {
			ts.logger.Info("Telegram connection successful")
			return nil
		}

		ts.logger.Warn("Telegram connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}

	return fmt.Errorf("failed to connect to Telegram after %d attempts", maxRetries)
}

// SendStatusMessage sends a general status message
func (ts *TelegramService) SendStatusMessage(message string) error {
	msg := tgbotapi.NewMessage(ts.chatID, message)
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	_, err := ts.bot.Send(msg)
	return err
}

// SendStartupMessage sends a message when the service starts
func (ts *TelegramService) SendStartupMessage() error {
	message := "🟢 <b>Coldwatch Ingestion Service Started</b>\n\n" +
		"📡 Consuming readings and heartbeats\n" +
		"👀 Liveness sweeps running\n\n" +
		"✅ System is ready and operational!"

	return ts.SendStatusMessage(message)
}

// DeviceOffline posts a notice that a device missed its heartbeat window
func (ts *TelegramService) DeviceOffline(device *models.Device, elapsed time.Duration) error {
	var sb strings.Builder

	sb.WriteString("⚠️ <b>DEVICE OFFLINE</b> ⚠️\n\n")
	sb.WriteString(fmt.Sprintf("📱 <b>Device:</b> %s\n", device.Name))
	sb.WriteString(fmt.Sprintf("🆔 <b>ID:</b> <code>%s</code>\n", device.ID))
	sb.WriteString(fmt.Sprintf("🕐 <b>Last Seen:</b> %s\n", device.LastSeen.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Silent For:</b> %s\n\n", formatDuration(elapsed)))
	sb.WriteString("🔴 <b>Status:</b> NO CONTACT")

	if err := ts.SendStatusMessage(sb.String()); err != nil {
		return fmt.Errorf("error sending offline notice: %v", err)
	}

	ts.logger.Info("Sent device offline notice",
		zap.String("device_id", device.ID),
		zap.Duration("elapsed", elapsed))
	return nil
}

// DeviceRecovered posts a notice that a previously offline device reported
// again
func (ts *TelegramService) DeviceRecovered(device *models.Device, downFor time.Duration) error {
	var sb strings.Builder

	sb.WriteString("✅ <b>DEVICE RECOVERED</b> ✅\n\n")
	sb.WriteString(fmt.Sprintf("📱 <b>Device:</b> %s\n", device.Name))
	sb.WriteString(fmt.Sprintf("🆔 <b>ID:</b> <code>%s</code>\n", device.ID))
	sb.WriteString(fmt.Sprintf("⏱️ <b>Downtime:</b> %s\n\n", formatDuration(downFor)))
	sb.WriteString("🟢 <b>Status:</b> DEVICE ONLINE")

	if err := ts.SendStatusMessage(sb.String()); err != nil {
		return fmt.Errorf("error sending recovery notice: %v", err)
	}

	ts.logger.Info("Sent device recovery notice",
		zap.String("device_id", device.ID),
		zap.Duration("down_for", downFor))
	return nil
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0f seconds", d.Seconds())
	} else if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%d min %d sec", minutes, seconds)
	} else if d < 24*time.Hour {
		hours := int(d.Hours())
		minutes := int(d.Minutes()) % 60
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%d days %d hr", days, hours)
}
