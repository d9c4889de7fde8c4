package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogItem is a fixed product with a list price.
type CatalogItem struct {
	ProductName string
	UnitPrice   decimal.Decimal
}

// Catalog entries offered by the convenience builder methods.
var (
	Laptop   = CatalogItem{ProductName: "Laptop", UnitPrice: decimal.RequireFromString("999.99")}
	Mouse    = CatalogItem{ProductName: "Mouse", UnitPrice: decimal.RequireFromString("29.99")}
	Keyboard = CatalogItem{ProductName: "Keyboard", UnitPrice: decimal.RequireFromString("59.99")}
)

// OrderBuilder assembles an Order fluently.
//
// Invalid input is recorded and reported by Build, so calls may come in any
// order. A builder is one-shot: after a successful Build every further Build
// fails with ErrBuilderConsumed and the other methods have no effect.
type OrderBuilder struct {
	id           uuid.UUID
	customerName string
	items        []OrderItem
	err          error
	built        bool
}

// NewOrderBuilder returns a builder with a fresh order id and no items.
func NewOrderBuilder() *OrderBuilder {
	return &OrderBuilder{id: uuid.New()}
}

// WithCustomer sets the customer name. Emptiness is checked by Build.
func (b *OrderBuilder) WithCustomer(name string) *OrderBuilder {
	if b.built {
		return b
	}
	b.customerName = name
	return b
}

// AddItem appends an order line.
func (b *OrderBuilder) AddItem(productName string, quantity int, unitPrice decimal.Decimal) *OrderBuilder {
	if b.built {
		return b
	}

	item, err := NewOrderItem(productName, quantity, unitPrice)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("item %d (%q): %w", len(b.items), productName, err)
		}
		return b
	}

	b.items = append(b.items, item)
	return b
}

// AddCatalogItem appends quantity units of a catalog product.
func (b *OrderBuilder) AddCatalogItem(item CatalogItem, quantity int) *OrderBuilder {
	return b.AddItem(item.ProductName, quantity, item.UnitPrice)
}

// AddLaptop appends quantity laptops.
func (b *OrderBuilder) AddLaptop(quantity int) *OrderBuilder {
	return b.AddCatalogItem(Laptop, quantity)
}

// AddMouse appends quantity mice.
func (b *OrderBuilder) AddMouse(quantity int) *OrderBuilder {
	return b.AddCatalogItem(Mouse, quantity)
}

// AddKeyboard appends quantity keyboards.
func (b *OrderBuilder) AddKeyboard(quantity int) *OrderBuilder {
	return b.AddCatalogItem(Keyboard, quantity)
}

// Build validates the collected input and returns the order. The total price
// is computed from the items; discount and final price stay zero until the
// order is processed.
func (b *OrderBuilder) Build() (Order, error) {
	if b.built {
		return Order{}, ErrBuilderConsumed
	}
	if b.err != nil {
		return Order{}, b.err
	}
	if b.customerName == "" {
		return Order{}, ErrEmptyCustomerName
	}
	if len(b.items) == 0 {
		return Order{}, ErrNoItems
	}

	total := decimal.Zero
	for _, item := range b.items {
		total = total.Add(item.Subtotal())
	}

	b.built = true

	return Order{
		id:           b.id,
		customerName: b.customerName,
		items:        append([]OrderItem(nil), b.items...),
		totalPrice:   total,
	}, nil
}
