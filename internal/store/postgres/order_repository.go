package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"orderbus-go/internal/domain"
)

// OrderRepository implements store.OrderRepository using PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Save stores the order and its items in one transaction.
// An order id that already exists is left untouched.
func (r *OrderRepository) Save(ctx context.Context, order domain.Order) (bool, error) {
	s := order.Snapshot()

	tx, err := r.db.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO orders (
			id, customer_name, total_price, discount_applied, final_price, processed_at
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := tx.Exec(ctx, query,
		s.ID,
		s.CustomerName,
		s.TotalPrice.String(),
		s.DiscountApplied.String(),
		s.FinalPrice.String(),
		s.ProcessedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert order: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	batch := &pgx.Batch{}
	for i, item := range s.Items {
		batch.Queue(`
			INSERT INTO order_items (order_id, position, product_name, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5::numeric)
		`, s.ID, i, item.ProductName, item.Quantity, item.UnitPrice.String())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, fmt.Errorf("failed to insert order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit order: %w", err)
	}

	return true, nil
}

// GetByID retrieves an order and its items.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	query := `
		SELECT id, customer_name, total_price::text, discount_applied::text,
			   final_price::text, processed_at
		FROM orders
		WHERE id = $1
	`

	s, err := scanOrder(r.db.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("failed to get order: %w", err)
	}

	return r.withItems(ctx, s)
}

// List returns up to limit orders, most recently processed first.
func (r *OrderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	query := `
		SELECT id, customer_name, total_price::text, discount_applied::text,
			   final_price::text, processed_at
		FROM orders
		ORDER BY processed_at DESC NULLS LAST, created_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	var snapshots []domain.OrderSnapshot
	for rows.Next() {
		s, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(snapshots))
	for _, s := range snapshots {
		order, err := r.withItems(ctx, s)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// withItems loads the items of s and restores the order.
func (r *OrderRepository) withItems(ctx context.Context, s domain.OrderSnapshot) (domain.Order, error) {
	query := `
		SELECT product_name, quantity, unit_price::text
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`

	rows, err := r.db.pool.Query(ctx, query, s.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("failed to get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item      domain.OrderItem
			unitPrice string
		)
		if err := rows.Scan(&item.ProductName, &item.Quantity, &unitPrice); err != nil {
			return domain.Order{}, fmt.Errorf("failed to scan order item: %w", err)
		}
		if item.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return domain.Order{}, fmt.Errorf("invalid unit price %q: %w", unitPrice, err)
		}
		s.Items = append(s.Items, item)
	}
	if err := rows.Err(); err != nil {
		return domain.Order{}, fmt.Errorf("failed to iterate order items: %w", err)
	}

	order, err := domain.Restore(s)
	if err != nil {
		return domain.Order{}, fmt.Errorf("stored order %s is inconsistent: %w", s.ID, err)
	}
	return order, nil
}

// scanOrder scans an orders row into a snapshot without items.
func scanOrder(row pgx.Row) (domain.OrderSnapshot, error) {
	var (
		s                      domain.OrderSnapshot
		total, discount, final string
		processedAt            *time.Time
	)

	if err := row.Scan(&s.ID, &s.CustomerName, &total, &discount, &final, &processedAt); err != nil {
		return s, err
	}

	var err error
	if s.TotalPrice, err = decimal.NewFromString(total); err != nil {
		return s, fmt.Errorf("invalid total price %q: %w", total, err)
	}
	if s.DiscountApplied, err = decimal.NewFromString(discount); err != nil {
		return s, fmt.Errorf("invalid discount %q: %w", discount, err)
	}
	if s.FinalPrice, err = decimal.NewFromString(final); err != nil {
		return s, fmt.Errorf("invalid final price %q: %w", final, err)
	}
	s.ProcessedAt = processedAt

	return s, nil
}
