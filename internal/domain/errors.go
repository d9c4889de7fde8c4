package domain

import (
	"errors"
	"fmt"

	"orderbus-go/internal/apperr"
)

// Validation errors for orders and order items.
var (
	ErrMissingOrderID     = fmt.Errorf("%w: order id is required", apperr.ErrValidation)
	ErrEmptyCustomerName  = fmt.Errorf("%w: customer name is required", apperr.ErrValidation)
	ErrNoItems            = fmt.Errorf("%w: order must contain at least one item", apperr.ErrValidation)
	ErrEmptyProductName   = fmt.Errorf("%w: product name is required", apperr.ErrValidation)
	ErrInvalidQuantity    = fmt.Errorf("%w: quantity must be at least 1", apperr.ErrValidation)
	ErrNegativeUnitPrice  = fmt.Errorf("%w: unit price must not be negative", apperr.ErrValidation)
	ErrNegativeDiscount   = fmt.Errorf("%w: discount must not be negative", apperr.ErrValidation)
	ErrMissingProcessedAt = fmt.Errorf("%w: processed timestamp is required", apperr.ErrValidation)

	ErrDiscountExceedsTotal = fmt.Errorf("%w: discount exceeds total price", apperr.ErrValidation)
	ErrTotalMismatch        = fmt.Errorf("%w: total price does not match items", apperr.ErrValidation)
	ErrFinalPriceMismatch   = fmt.Errorf("%w: final price must equal total minus discount", apperr.ErrValidation)
	ErrUnprocessedPricing   = fmt.Errorf("%w: unprocessed order must not carry discount or final price", apperr.ErrValidation)
)

// ErrBuilderConsumed is returned when Build is called on a builder that already built an order.
var ErrBuilderConsumed = fmt.Errorf("%w: order builder already used", apperr.ErrState)

// ErrOrderNotFound is returned when an order does not exist in a repository.
var ErrOrderNotFound = errors.New("order not found")
