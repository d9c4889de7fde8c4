package processor

//go:generate mockgen -source=sink.go -destination=mocks/mock_sink.go -package=mocks

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"orderbus-go/internal/domain"
	"orderbus-go/internal/notification"
	"orderbus-go/internal/store"
)

// Sink receives every priced order.
// Apply may be called more than once for the same order id and must be idempotent.
type Sink interface {
	Apply(ctx context.Context, order domain.Order) error
}

// RepositorySink stores priced orders and announces them.
type RepositorySink struct {
	repo     store.OrderRepository
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewRepositorySink creates a sink backed by repo and notifier.
func NewRepositorySink(repo store.OrderRepository, notifier notification.Notifier, logger *slog.Logger) *RepositorySink {
	return &RepositorySink{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
	}
}

// Apply saves the order and sends the processed notification.
// The notification is sent even when the order was already stored, since an
// earlier attempt may have stopped between the two steps.
func (s *RepositorySink) Apply(ctx context.Context, order domain.Order) error {
	start := time.Now()
	created, err := s.repo.Save(ctx, order)
	observeStorage("repository", "save", start, err)
	if err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	if !created {
		s.logger.Debug("order already stored", "orderID", order.ID())
	}

	if err := s.notifier.NotifyProcessed(ctx, order); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return nil
}
