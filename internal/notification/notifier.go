// Package notification announces processed orders to downstream systems.
// The stub notifier only logs; the Kafka notifier publishes an event per order.
package notification

import (
	"context"
	"log/slog"
	"time"

	"orderbus-go/internal/domain"
	"orderbus-go/internal/metrics"
)

// ProcessedOrderEvent is the payload sent for every processed order.
type ProcessedOrderEvent struct {
	OrderID         string    `json:"orderId"`
	CustomerName    string    `json:"customerName"`
	ItemCount       int       `json:"itemCount"`
	TotalPrice      string    `json:"totalPrice"`
	DiscountApplied string    `json:"discountApplied"`
	FinalPrice      string    `json:"finalPrice"`
	ProcessedAt     time.Time `json:"processedAt"`
	Timestamp       time.Time `json:"timestamp"`
}

// Notifier defines the interface for processed-order notifications.
// Orders may be announced more than once when a delivery is retried.
type Notifier interface {
	// NotifyProcessed announces that order has been priced and stored.
	NotifyProcessed(ctx context.Context, order domain.Order) error
}

// StubNotifier is a no-op implementation that logs notifications.
type StubNotifier struct {
	logger *slog.Logger
}

// NewStubNotifier creates a new stub notifier.
func NewStubNotifier(logger *slog.Logger) *StubNotifier {
	return &StubNotifier{
		logger: logger,
	}
}

// NotifyProcessed logs the notification it would send.
func (n *StubNotifier) NotifyProcessed(ctx context.Context, order domain.Order) error {
	event := buildEvent(order)

	n.logger.Info("STUB: would send processed order notification",
		"orderID", event.OrderID,
		"customer", event.CustomerName,
		"finalPrice", event.FinalPrice,
	)

	metrics.NotificationsSentTotal.WithLabelValues("stub", "success").Inc()
	return nil
}

// buildEvent creates a notification payload from an order.
func buildEvent(order domain.Order) *ProcessedOrderEvent {
	processedAt, _ := order.ProcessedAt()
	return &ProcessedOrderEvent{
		OrderID:         order.ID().String(),
		CustomerName:    order.CustomerName(),
		ItemCount:       order.ItemCount(),
		TotalPrice:      order.TotalPrice().String(),
		DiscountApplied: order.DiscountApplied().String(),
		FinalPrice:      order.FinalPrice().String(),
		ProcessedAt:     processedAt,
		Timestamp:       time.Now().UTC(),
	}
}
