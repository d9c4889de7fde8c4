// Package processor handles the core order processing logic.
// It decodes delivered messages, skips orders that were already processed,
// prices new ones and hands them to a Sink.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"orderbus-go/internal/codec"
	"orderbus-go/internal/domain"
	"orderbus-go/internal/metrics"
	"orderbus-go/internal/queue"
	"orderbus-go/internal/store"
)

// DefaultCacheSize is the number of recently processed order ids kept in memory.
const DefaultCacheSize = 10000

// Trigger is invoked once per delivered order. Service.HandleOrder satisfies it.
type Trigger func(ctx context.Context, order domain.Order) error

// Service processes delivered orders.
// It is responsible for:
// - Decoding message bodies into orders
// - Deduplicating deliveries by order id (LRU, then the processed ledger)
// - Applying the discount policy
// - Passing priced orders to the sink and recording them as processed
type Service struct {
	sink   Sink
	ledger store.ProcessedStore
	policy DiscountPolicy
	recent *lru.Cache[uuid.UUID, struct{}]
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithDiscountPolicy replaces the default NoDiscount policy.
func WithDiscountPolicy(policy DiscountPolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithCacheSize sets how many processed ids are remembered in memory.
func WithCacheSize(size int) Option {
	return func(s *Service) {
		if cache, err := lru.New[uuid.UUID, struct{}](size); err == nil {
			s.recent = cache
		}
	}
}

// WithClock sets the source of processing timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new processor service.
func NewService(sink Sink, ledger store.ProcessedStore, logger *slog.Logger, opts ...Option) *Service {
	recent, _ := lru.New[uuid.UUID, struct{}](DefaultCacheSize)

	s := &Service{
		sink:   sink,
		ledger: ledger,
		policy: NoDiscount{},
		recent: recent,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProcessDelivery decodes msg and handles the order it carries.
// A body that cannot be decoded yields an error wrapping codec.ErrMalformedPayload;
// the caller must not complete such a message.
func (s *Service) ProcessDelivery(ctx context.Context, msg *queue.Message) (domain.Order, error) {
	order, err := codec.DecodeMessage(msg)
	if err != nil {
		metrics.OrdersProcessedTotal.WithLabelValues("malformed").Inc()
		s.logger.Error("failed to decode message",
			"error", err,
			"messageID", msg.MessageID,
			"deliveryCount", msg.DeliveryCount,
		)
		return domain.Order{}, err
	}

	if err := s.HandleOrder(ctx, order); err != nil {
		return order, err
	}
	return order, nil
}

// HandleOrder prices and stores order unless it was processed before.
// Handling the same order twice has the same effect as handling it once.
func (s *Service) HandleOrder(ctx context.Context, order domain.Order) error {
	start := time.Now()
	id := order.ID()

	if s.recent.Contains(id) {
		s.duplicate(order)
		return nil
	}

	processed, err := s.isProcessed(ctx, id)
	if err != nil {
		metrics.OrdersProcessedTotal.WithLabelValues("failed").Inc()
		return err
	}
	if processed {
		s.recent.Add(id, struct{}{})
		s.duplicate(order)
		return nil
	}

	priced, err := order.WithPricing(s.policy.Discount(order), s.now())
	if err != nil {
		metrics.OrdersProcessedTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("failed to price order %s: %w", id, err)
	}

	if err := s.sink.Apply(ctx, priced); err != nil {
		metrics.OrdersProcessedTotal.WithLabelValues("failed").Inc()
		s.logger.Error("failed to apply order", "error", err, "orderID", id)
		return fmt.Errorf("failed to apply order %s: %w", id, err)
	}

	// A crash before this point replays the sink on redelivery.
	processedAt, _ := priced.ProcessedAt()
	if err := s.markProcessed(ctx, id, processedAt); err != nil {
		metrics.OrdersProcessedTotal.WithLabelValues("failed").Inc()
		return err
	}
	s.recent.Add(id, struct{}{})

	metrics.OrdersProcessedTotal.WithLabelValues("processed").Inc()
	metrics.ProcessingLatency.Observe(time.Since(start).Seconds())

	s.logger.Info("order processed",
		"orderID", id,
		"customer", priced.CustomerName(),
		"total", priced.TotalPrice().StringFixed(2),
		"discount", priced.DiscountApplied().StringFixed(2),
		"final", priced.FinalPrice().StringFixed(2),
	)

	return nil
}

func (s *Service) isProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	start := time.Now()
	processed, err := s.ledger.IsProcessed(ctx, id.String())
	observeStorage("ledger", "is_processed", start, err)
	if err != nil {
		s.logger.Error("failed to check processed ledger", "error", err, "orderID", id)
		return false, fmt.Errorf("failed to check processed ledger: %w", err)
	}
	return processed, nil
}

func (s *Service) markProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	start := time.Now()
	_, err := s.ledger.MarkProcessed(ctx, id.String(), at)
	observeStorage("ledger", "mark_processed", start, err)
	if err != nil {
		s.logger.Error("failed to mark order processed", "error", err, "orderID", id)
		return fmt.Errorf("failed to mark order processed: %w", err)
	}
	return nil
}

func (s *Service) duplicate(order domain.Order) {
	metrics.OrdersProcessedTotal.WithLabelValues("duplicate").Inc()
	s.logger.Debug("order already processed", "orderID", order.ID())
}

func observeStorage(storeName, operation string, start time.Time, err error) {
	metrics.StorageOperationLatency.WithLabelValues(storeName, operation).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.StorageOperationsTotal.WithLabelValues(storeName, operation, status).Inc()
}
