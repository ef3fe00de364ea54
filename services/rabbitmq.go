package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"coldwatch/config"
	"coldwatch/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// RabbitMQService owns the broker connection and feeds the two ingestion
// queues (readings, heartbeats) into channel pipelines. Devices publish
// either directly over AMQP or through the broker's MQTT plugin, which is
// why both queues are additionally bound to the amq.topic exchange.
type RabbitMQService struct {
	config    *config.Config
	conn      *amqp.Connection
	channel   *amqp.Channel
	logger    *zap.Logger
	isClosing bool
}

func NewRabbitMQService(cfg *config.Config, logger *zap.Logger) (*RabbitMQService, error) {
	service := &RabbitMQService{
		config: cfg,
		logger: logger,
	}

	if err := service.connect(); err != nil {
		return nil, err
	}

	return service, nil
}

// connect establishes the connection and declares the exchange and queues
func (r *RabbitMQService) connect() error {
	var err error

	r.logger.Info("Connecting to RabbitMQ", zap.String("url", r.config.RabbitMQURL))

	maxRetries := 5
	for attempt := 1; attempt <= maxRetries; attempt++ {
		r.conn, err = amqp.Dial(r.config.RabbitMQURL)
		if err == nil {
			break
		}

		r.logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
	}

	r.channel, err = r.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}

	// Bound in-flight deliveries per consumer
	if err := r.channel.Qos(10, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	err = r.channel.ExchangeDeclare(
		r.config.RabbitMQExchange, // name
		"direct",                  // type
		true,                      // durable
		false,                     // auto-deleted
		false,                     // internal
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	for _, queue := range []string{r.config.ReadingsQueue, r.config.HeartbeatsQueue} {
		if err := r.declareAndBind(queue); err != nil {
			return err
		}
	}

	go r.handleReconnect()

	return nil
}

// declareAndBind declares one durable queue and binds it to the service
// exchange and to amq.topic for MQTT publishers.
func (r *RabbitMQService) declareAndBind(queueName string) error {
	queue, err := r.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	err = r.channel.QueueBind(
		queue.Name,                // queue name
		queueName,                 // routing key
		r.config.RabbitMQExchange, // exchange
		false,                     // no-wait
		nil,                       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", queueName, err)
	}

	err = r.channel.QueueBind(
		queue.Name,  // queue name
		queueName,   // routing key (MQTT topic)
		"amq.topic", // MQTT default exchange
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to bind queue %s to MQTT exchange: %w", queueName, err)
	}

	r.logger.Info("Queue declared and bound",
		zap.String("queue", queue.Name),
		zap.String("exchange", r.config.RabbitMQExchange))
	return nil
}

// handleReconnect redials when the connection drops; consumer loops notice
// their delivery channel closing and re-register afterwards.
func (r *RabbitMQService) handleReconnect() {
	closeErr := <-r.conn.NotifyClose(make(chan *amqp.Error))
	if r.isClosing {
		r.logger.Info("RabbitMQ connection closed gracefully")
		return
	}

	r.logger.Error("RabbitMQ connection lost", zap.Error(closeErr))

	for {
		r.logger.Info("Attempting to reconnect to RabbitMQ...")
		if err := r.connect(); err == nil {
			r.logger.Info("Successfully reconnected to RabbitMQ")
			return
		} else {
			r.logger.Error("Failed to reconnect", zap.Error(err))
			time.Sleep(5 * time.Second)
		}
	}
}

// ConsumeReadings feeds parsed reading submissions into out until the
// context is cancelled. Malformed payloads are dropped (no requeue) so a
// poison message cannot wedge the queue.
func (r *RabbitMQService) ConsumeReadings(ctx context.Context, out chan<- *models.ReadingSubmission) error {
	return r.consume(ctx, r.config.ReadingsQueue, "coldwatch-readings", func(msg amqp.Delivery) error {
		var submission models.ReadingSubmission
		if err := json.Unmarshal(msg.Body, &submission); err != nil {
			return fmt.Errorf("unmarshal reading: %w", err)
		}
		if submission.DeviceKey == "" {
			return fmt.Errorf("invalid reading: missing device_key")
		}

		select {
		case out <- &submission:
			return nil
		case <-time.After(5 * time.Second):
			return fmt.Errorf("timeout handing reading to pipeline")
		}
	})
}

// ConsumeHeartbeats feeds parsed heartbeats into out until the context is
// cancelled.
func (r *RabbitMQService) ConsumeHeartbeats(ctx context.Context, out chan<- *models.Heartbeat) error {
	return r.consume(ctx, r.config.HeartbeatsQueue, "coldwatch-heartbeats", func(msg amqp.Delivery) error {
		var heartbeat models.Heartbeat
		if err := json.Unmarshal(msg.Body, &heartbeat); err != nil {
			return fmt.Errorf("unmarshal heartbeat: %w", err)
		}
		if heartbeat.DeviceID == "" || heartbeat.DeviceKey == "" {
			return fmt.Errorf("invalid heartbeat: missing device_id or device_key")
		}

		select {
		case out <- &heartbeat:
			return nil
		case <-time.After(5 * time.Second):
			return fmt.Errorf("timeout handing heartbeat to pipeline")
		}
	})
}

func (r *RabbitMQService) consume(ctx context.Context, queueName, consumerTag string, handle func(amqp.Delivery) error) error {
	for {
		msgs, err := r.channel.Consume(
			queueName,   // queue
			consumerTag, // consumer tag
			false,       // auto-ack (false = manual ack)
			false,       // exclusive
			false,       // no-local
			false,       // no-wait
			nil,         // args
		)
		if err != nil {
			return fmt.Errorf("failed to register consumer on %s: %w", queueName, err)
		}

		r.logger.Info("Started consuming messages", zap.String("queue", queueName))

	consumeLoop:
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Stopping consumer", zap.String("queue", queueName))
				return nil

			case msg, ok := <-msgs:
				if !ok {
					r.logger.Warn("Delivery channel closed, re-registering consumer",
						zap.String("queue", queueName))
					time.Sleep(1 * time.Second)
					break consumeLoop
				}

				if err := handle(msg); err != nil {
					r.logger.Error("Dropping message",
						zap.String("queue", queueName),
						zap.String("message_id", msg.MessageId),
						zap.Error(err))

					// Terminal for this payload; do not requeue
					msg.Nack(false, false)
				} else {
					msg.Ack(false)
				}
			}
		}
	}
}

// PublishReading publishes one submission to the readings queue (used by
// tools and integration tests).
func (r *RabbitMQService) PublishReading(submission *models.ReadingSubmission) error {
	return r.publish(r.config.ReadingsQueue, submission)
}

// PublishHeartbeat publishes one heartbeat to the heartbeats queue
func (r *RabbitMQService) PublishHeartbeat(heartbeat *models.Heartbeat) error {
	return r.publish(r.config.HeartbeatsQueue, heartbeat)
}

func (r *RabbitMQService) publish(routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	err = r.channel.Publish(
		r.config.RabbitMQExchange, // exchange
		routingKey,                // routing key
		false,                     // mandatory
		false,                     // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close gracefully closes the RabbitMQ connection
func (r *RabbitMQService) Close() error {
	r.isClosing = true

	r.logger.Info("Closing RabbitMQ connection")

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Error("Error closing channel", zap.Error(err))
		}
	}

	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			r.logger.Error("Error closing connection", zap.Error(err))
			return err
		}
	}

	r.logger.Info("RabbitMQ connection closed")
	return nil
}
