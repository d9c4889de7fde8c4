package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"orderbus-go/internal/config"
	"orderbus-go/internal/domain"
	"orderbus-go/internal/metrics"
)

// messageWriter is the subset of kafka.Writer the notifier uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes a ProcessedOrderEvent per order to a Kafka topic,
// keyed by order id so events for one order land on one partition.
type KafkaNotifier struct {
	writer messageWriter
	logger *slog.Logger
}

// NewKafkaNotifier creates a notifier writing to the configured topic.
func NewKafkaNotifier(cfg *config.KafkaConfig, logger *slog.Logger) *KafkaNotifier {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // Use key-based partitioning
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaNotifier{
		writer: writer,
		logger: logger,
	}
}

// NotifyProcessed writes the order event to Kafka.
func (n *KafkaNotifier) NotifyProcessed(ctx context.Context, order domain.Order) error {
	event := buildEvent(order)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal order event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("order.processed")},
		},
	}

	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		metrics.NotificationsSentTotal.WithLabelValues("kafka", "failure").Inc()
		return fmt.Errorf("failed to write order event to kafka: %w", err)
	}

	metrics.NotificationsSentTotal.WithLabelValues("kafka", "success").Inc()
	n.logger.Debug("order event published", "orderID", event.OrderID)
	return nil
}

// Close closes the Kafka writer.
func (n *KafkaNotifier) Close() error {
	if n.writer != nil {
		return n.writer.Close()
	}
	return nil
}
