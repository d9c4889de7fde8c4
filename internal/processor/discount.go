package processor

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"orderbus-go/internal/apperr"
	"orderbus-go/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// DiscountPolicy decides the discount applied to an order.
// The result must lie between zero and the order total.
type DiscountPolicy interface {
	Discount(order domain.Order) decimal.Decimal
}

// NoDiscount never discounts.
type NoDiscount struct{}

// Discount implements DiscountPolicy.
func (NoDiscount) Discount(domain.Order) decimal.Decimal {
	return decimal.Zero
}

// PercentageDiscount takes a fixed percentage off the total, rounded to cents.
type PercentageDiscount struct {
	percent decimal.Decimal
}

// NewPercentageDiscount returns a policy for percent, which must be within [0, 100].
func NewPercentageDiscount(percent decimal.Decimal) (PercentageDiscount, error) {
	if percent.IsNegative() || percent.GreaterThan(hundred) {
		return PercentageDiscount{}, fmt.Errorf("%w: discount percent %s out of range", apperr.ErrValidation, percent)
	}
	return PercentageDiscount{percent: percent}, nil
}

// Discount implements DiscountPolicy.
func (p PercentageDiscount) Discount(order domain.Order) decimal.Decimal {
	total := order.TotalPrice()
	discount := total.Mul(p.percent).Div(hundred).Round(2)
	if discount.GreaterThan(total) {
		return total
	}
	return discount
}

// PolicyFromConfig parses the configured discount percent.
// An empty value selects NoDiscount.
func PolicyFromConfig(percent string) (DiscountPolicy, error) {
	percent = strings.TrimSpace(percent)
	if percent == "" {
		return NoDiscount{}, nil
	}

	d, err := decimal.NewFromString(percent)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid discount percent %q", apperr.ErrValidation, percent)
	}
	if d.IsZero() {
		return NoDiscount{}, nil
	}
	return NewPercentageDiscount(d)
}
