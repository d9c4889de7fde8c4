// Package publisher provides the order publishing service.
// It encodes orders into queue messages and sends them to the order queue.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orderbus-go/internal/apperr"
	"orderbus-go/internal/codec"
	"orderbus-go/internal/domain"
	"orderbus-go/internal/metrics"
	"orderbus-go/internal/queue"
)

// ErrPublishFailed is returned when an order could not be sent.
// It always wraps the underlying cause, so errors.Is also matches the cause.
var ErrPublishFailed = errors.New("failed to publish order to queue")

// Service publishes orders to a queue.
type Service struct {
	client    queue.Client
	queueName string
	logger    *slog.Logger
}

// NewService creates a new publisher service.
func NewService(client queue.Client, queueName string, logger *slog.Logger) *Service {
	return &Service{
		client:    client,
		queueName: queueName,
		logger:    logger,
	}
}

// Publish encodes order and sends it as a single message whose id is the order id.
// Send is one atomic queue operation: on failure nothing was enqueued by this call.
func (s *Service) Publish(ctx context.Context, order domain.Order) error {
	start := time.Now()

	msg, err := codec.EncodeMessage(order)
	if err != nil {
		s.logger.Error("failed to encode order", "error", err, "orderID", order.ID())
		return s.fail(fmt.Errorf("failed to encode order: %w", err))
	}

	if err := s.client.Send(ctx, msg); err != nil {
		s.logger.Error("failed to publish order", "error", err, "orderID", msg.MessageID)
		return s.fail(err)
	}

	metrics.PublishLatency.Observe(time.Since(start).Seconds())
	metrics.OrdersPublishedTotal.WithLabelValues(s.queueName).Inc()

	s.logger.Info("order sent",
		"orderID", msg.MessageID,
		"customer", order.CustomerName(),
		"itemCount", order.ItemCount(),
	)

	return nil
}

// PublishAll publishes orders in order and stops at the first failure.
// It returns the number of orders published.
func (s *Service) PublishAll(ctx context.Context, orders []domain.Order) (int, error) {
	for i, order := range orders {
		if err := s.Publish(ctx, order); err != nil {
			return i, err
		}
	}
	return len(orders), nil
}

func (s *Service) fail(cause error) error {
	metrics.PublishFailuresTotal.WithLabelValues(s.queueName, apperr.Kind(cause)).Inc()
	return fmt.Errorf("%w: %w", ErrPublishFailed, cause)
}

// SampleOrders builds n demo orders for "Customer 1" .. "Customer n",
// each with one laptop.
func SampleOrders(n int) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, n)
	for i := 1; i <= n; i++ {
		order, err := domain.NewOrderBuilder().
			WithCustomer(fmt.Sprintf("Customer %d", i)).
			AddLaptop(1).
			Build()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}
