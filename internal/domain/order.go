// Package domain contains the core business entities and value objects for OrderBus.
// Orders are value types: once built they are never mutated, and every
// derived state (pricing, processing) is produced as a new Order.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem is a single line of an order.
type OrderItem struct {
	// ProductName identifies the product. Must not be empty.
	ProductName string `json:"productName"`

	// Quantity is the number of units ordered. Must be at least 1.
	Quantity int `json:"quantity"`

	// UnitPrice is the price of a single unit. Must not be negative.
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// NewOrderItem creates a validated order item.
func NewOrderItem(productName string, quantity int, unitPrice decimal.Decimal) (OrderItem, error) {
	item := OrderItem{
		ProductName: productName,
		Quantity:    quantity,
		UnitPrice:   unitPrice,
	}
	if err := item.Validate(); err != nil {
		return OrderItem{}, err
	}
	return item, nil
}

// Validate checks the item fields, returning the first failure.
func (i OrderItem) Validate() error {
	if i.ProductName == "" {
		return ErrEmptyProductName
	}
	if i.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if i.UnitPrice.IsNegative() {
		return ErrNegativeUnitPrice
	}
	return nil
}

// Subtotal returns UnitPrice * Quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a customer order. The zero value is not a valid order; use
// OrderBuilder or Restore to obtain one.
type Order struct {
	id              uuid.UUID
	customerName    string
	items           []OrderItem
	totalPrice      decimal.Decimal
	discountApplied decimal.Decimal
	finalPrice      decimal.Decimal
	processedAt     time.Time
}

// ID returns the order identity.
func (o Order) ID() uuid.UUID { return o.id }

// CustomerName returns the name of the ordering customer.
func (o Order) CustomerName() string { return o.customerName }

// Items returns a copy of the order lines in insertion order.
func (o Order) Items() []OrderItem {
	items := make([]OrderItem, len(o.items))
	copy(items, o.items)
	return items
}

// ItemCount returns the number of order lines.
func (o Order) ItemCount() int { return len(o.items) }

// TotalPrice returns the sum of all item subtotals.
func (o Order) TotalPrice() decimal.Decimal { return o.totalPrice }

// DiscountApplied returns the discount set by the processor. Zero until priced.
func (o Order) DiscountApplied() decimal.Decimal { return o.discountApplied }

// FinalPrice returns TotalPrice - DiscountApplied. Zero until priced.
func (o Order) FinalPrice() decimal.Decimal { return o.finalPrice }

// ProcessedAt returns the processing timestamp and whether the order has been processed.
func (o Order) ProcessedAt() (time.Time, bool) {
	return o.processedAt, !o.processedAt.IsZero()
}

// IsProcessed reports whether the processor has priced this order.
func (o Order) IsProcessed() bool { return !o.processedAt.IsZero() }

// Subject returns the human-readable message subject for this order.
func (o Order) Subject() string {
	return "Order from " + o.customerName
}

// String implements fmt.Stringer for log output.
func (o Order) String() string {
	return fmt.Sprintf("order %s (%s, %d items, total %s)", o.id, o.customerName, len(o.items), o.totalPrice.StringFixed(2))
}

// WithPricing returns a copy of the order with the discount applied, the final
// price computed and the processing timestamp set.
func (o Order) WithPricing(discount decimal.Decimal, processedAt time.Time) (Order, error) {
	if processedAt.IsZero() {
		return Order{}, ErrMissingProcessedAt
	}
	if discount.IsNegative() {
		return Order{}, ErrNegativeDiscount
	}
	if discount.GreaterThan(o.totalPrice) {
		return Order{}, ErrDiscountExceedsTotal
	}

	priced := o
	priced.items = o.Items()
	priced.discountApplied = discount
	priced.finalPrice = o.totalPrice.Sub(discount)
	priced.processedAt = processedAt.UTC()
	return priced, nil
}

// Equal reports whether two orders carry the same values.
// Decimals are compared numerically and timestamps as instants.
func (o Order) Equal(other Order) bool {
	if o.id != other.id || o.customerName != other.customerName {
		return false
	}
	if len(o.items) != len(other.items) {
		return false
	}
	for i := range o.items {
		a, b := o.items[i], other.items[i]
		if a.ProductName != b.ProductName || a.Quantity != b.Quantity || !a.UnitPrice.Equal(b.UnitPrice) {
			return false
		}
	}
	return o.totalPrice.Equal(other.totalPrice) &&
		o.discountApplied.Equal(other.discountApplied) &&
		o.finalPrice.Equal(other.finalPrice) &&
		o.processedAt.Equal(other.processedAt)
}

// OrderSnapshot is the exported, plain-data view of an Order used by codecs
// and repositories.
type OrderSnapshot struct {
	ID              uuid.UUID
	CustomerName    string
	Items           []OrderItem
	TotalPrice      decimal.Decimal
	DiscountApplied decimal.Decimal
	FinalPrice      decimal.Decimal
	ProcessedAt     *time.Time
}

// Snapshot exports the order's data.
func (o Order) Snapshot() OrderSnapshot {
	s := OrderSnapshot{
		ID:              o.id,
		CustomerName:    o.customerName,
		Items:           o.Items(),
		TotalPrice:      o.totalPrice,
		DiscountApplied: o.discountApplied,
		FinalPrice:      o.finalPrice,
	}
	if !o.processedAt.IsZero() {
		at := o.processedAt
		s.ProcessedAt = &at
	}
	return s
}

// Restore rebuilds an Order from a snapshot and re-checks every invariant.
// It never recomputes derived values: a snapshot with inconsistent totals is rejected.
func Restore(s OrderSnapshot) (Order, error) {
	if s.ID == uuid.Nil {
		return Order{}, ErrMissingOrderID
	}
	if s.CustomerName == "" {
		return Order{}, ErrEmptyCustomerName
	}
	if len(s.Items) == 0 {
		return Order{}, ErrNoItems
	}

	total := decimal.Zero
	for idx, item := range s.Items {
		if err := item.Validate(); err != nil {
			return Order{}, fmt.Errorf("item %d: %w", idx, err)
		}
		total = total.Add(item.Subtotal())
	}
	if !total.Equal(s.TotalPrice) {
		return Order{}, fmt.Errorf("%w: got %s, items sum to %s", ErrTotalMismatch, s.TotalPrice, total)
	}

	o := Order{
		id:           s.ID,
		customerName: s.CustomerName,
		items:        append([]OrderItem(nil), s.Items...),
		totalPrice:   s.TotalPrice,
	}

	if s.ProcessedAt == nil {
		if !s.DiscountApplied.IsZero() || !s.FinalPrice.IsZero() {
			return Order{}, ErrUnprocessedPricing
		}
		return o, nil
	}

	if s.ProcessedAt.IsZero() {
		return Order{}, ErrMissingProcessedAt
	}
	if s.DiscountApplied.IsNegative() {
		return Order{}, ErrNegativeDiscount
	}
	if s.DiscountApplied.GreaterThan(s.TotalPrice) {
		return Order{}, ErrDiscountExceedsTotal
	}
	if !s.TotalPrice.Sub(s.DiscountApplied).Equal(s.FinalPrice) {
		return Order{}, ErrFinalPriceMismatch
	}

	o.discountApplied = s.DiscountApplied
	o.finalPrice = s.FinalPrice
	o.processedAt = s.ProcessedAt.UTC()
	return o, nil
}
