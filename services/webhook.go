package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"coldwatch/models"

	"go.uber.org/zap"
)

// WebhookAlertSender delivers tenant alerts to the notification gateway over
// HTTP. The gateway owns the actual transports (email, WhatsApp); this
// service only hands over one recipient-addressed alert per call.
type WebhookAlertSender struct {
	logger     *zap.Logger
	apiURL     string
	httpClient *http.Client
}

// AlertWebhookPayload is the body posted to the gateway for one recipient
type AlertWebhookPayload struct {
	Recipient AlertRecipient     `json:"recipient"`
	Event     *models.AlertEvent `json:"event"`
	Message   string             `json:"message"`
}

// AlertRecipient carries the contact fields the gateway routes on. The
// recipient's role and device bindings stay internal.
type AlertRecipient struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

func NewWebhookAlertSender(apiURL string, logger *zap.Logger) *WebhookAlertSender {
	return &WebhookAlertSender{
		logger: logger,
		apiURL: apiURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (w *WebhookAlertSender) SendAlert(ctx context.Context, recipient *models.User, event *models.AlertEvent) error {
	payload := AlertWebhookPayload{
		Recipient: AlertRecipient{
			UserID:      recipient.ID,
			Name:        recipient.Name,
			Email:       recipient.Email,
			PhoneNumber: recipient.PhoneNumber,
		},
		Event:   event,
		Message: event.Summary(),
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/alerts", w.apiURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Coldwatch-Ingestion-Service/1.0")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		w.logger.Info("Alert delivered to gateway",
			zap.String("device_id", event.DeviceID),
			zap.String("recipient", recipient.Email),
			zap.Int("status_code", resp.StatusCode))
		return nil
	}

	return fmt.Errorf("alert gateway error: %s", resp.Status)
}

// LoggingAlertSender is the fallback sender used when no gateway is
// configured. It records every would-be delivery so local runs still show
// the full fan-out.
type LoggingAlertSender struct {
	logger *zap.Logger
}

func NewLoggingAlertSender(logger *zap.Logger) *LoggingAlertSender {
	return &LoggingAlertSender{logger: logger}
}

func (l *LoggingAlertSender) SendAlert(ctx context.Context, recipient *models.User, event *models.AlertEvent) error {
	l.logger.Info("Alert (log only)",
		zap.String("device_id", event.DeviceID),
		zap.String("recipient", recipient.Email),
		zap.String("summary", event.Summary()))
	return nil
}
