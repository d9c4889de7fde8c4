// Package store defines interfaces for order persistence and processing state.
// These abstractions allow swapping implementations (Redis, PostgreSQL, in-memory)
// without changing business logic.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"orderbus-go/internal/domain"
)

// OrderRepository stores processed orders.
// This is typically backed by PostgreSQL for production use.
// All methods must be safe for concurrent use.
type OrderRepository interface {
	// Save stores an order. Saving an id that is already stored is a no-op
	// and reports created == false, so redelivered orders are harmless.
	Save(ctx context.Context, order domain.Order) (created bool, err error)

	// GetByID retrieves an order by its id. Returns domain.ErrOrderNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Order, error)

	// List returns up to limit orders, most recently processed first.
	List(ctx context.Context, limit int) ([]domain.Order, error)
}

// ProcessedStore is the idempotency ledger of processed order ids.
// This is typically backed by Redis for production use.
// All methods must be safe for concurrent use.
type ProcessedStore interface {
	// IsProcessed reports whether orderID has been marked processed.
	IsProcessed(ctx context.Context, orderID string) (bool, error)

	// MarkProcessed records orderID as processed at the given time.
	// Returns false if the id was already marked.
	MarkProcessed(ctx context.Context, orderID string, at time.Time) (bool, error)

	// Close releases resources held by the store.
	Close() error
}
