package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderbus-go/internal/domain"
)

// OrderRepository is an in-memory implementation of store.OrderRepository.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]storedOrder
}

type storedOrder struct {
	order   domain.Order
	savedAt time.Time
}

// NewOrderRepository creates a new in-memory order repository.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders: make(map[uuid.UUID]storedOrder),
	}
}

// Save stores the order unless its id is already present.
// Orders are values, so no defensive copy is needed.
func (r *OrderRepository) Save(ctx context.Context, order domain.Order) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID()]; exists {
		return false, nil
	}
	r.orders[order.ID()] = storedOrder{order: order, savedAt: time.Now()}
	return true, nil
}

// GetByID retrieves an order by its id.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, exists := r.orders[id]
	if !exists {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return stored.order, nil
}

// List returns up to limit orders, most recently saved first. A limit <= 0 returns all.
func (r *OrderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	all := make([]storedOrder, 0, len(r.orders))
	for _, stored := range r.orders {
		all = append(all, stored)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].savedAt.After(all[j].savedAt) })

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	result := make([]domain.Order, len(all))
	for i, stored := range all {
		result[i] = stored.order
	}
	return result, nil
}

// Count returns the number of stored orders.
// Useful for testing to verify repository state.
func (r *OrderRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}
