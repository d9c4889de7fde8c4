package api

import (
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orderbus-go/internal/domain"
	"orderbus-go/internal/metrics"
	"orderbus-go/internal/publisher"
	"orderbus-go/internal/store"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// CreateOrderRequest is the body of POST /v1/orders.
type CreateOrderRequest struct {
	CustomerName string            `json:"customerName" validate:"required"`
	Items        []CreateOrderItem `json:"items" validate:"required,min=1,dive"`
}

// CreateOrderItem is one order line in a CreateOrderRequest.
type CreateOrderItem struct {
	ProductName string           `json:"productName" validate:"required"`
	Quantity    int              `json:"quantity" validate:"gte=1"`
	UnitPrice   *decimal.Decimal `json:"unitPrice" validate:"required"`
}

// OrderItemResponse is an order line as returned by the API.
type OrderItemResponse struct {
	ProductName string `json:"productName"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Subtotal    string `json:"subtotal"`
}

// OrderResponse is an order as returned by the API. Prices are decimal strings.
type OrderResponse struct {
	ID              string              `json:"id"`
	CustomerName    string              `json:"customerName"`
	Items           []OrderItemResponse `json:"items"`
	TotalPrice      string              `json:"totalPrice"`
	DiscountApplied string              `json:"discountApplied"`
	FinalPrice      string              `json:"finalPrice"`
	ProcessedAt     *time.Time          `json:"processedAt,omitempty"`
}

// OrderHandler handles HTTP requests for orders.
type OrderHandler struct {
	publisher *publisher.Service
	repo      store.OrderRepository
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewOrderHandler creates a new order handler.
func NewOrderHandler(pub *publisher.Service, repo store.OrderRepository, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		publisher: pub,
		repo:      repo,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Create handles POST /v1/orders
// Builds an order from the request and publishes it to the order queue.
// Returns 202 Accepted immediately - processing happens asynchronously.
func (h *OrderHandler) Create(c *fiber.Ctx) error {
	var req CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Debug("failed to parse order body", "error", err)
		metrics.OrdersReceivedTotal.WithLabelValues("rejected").Inc()
		return BadRequest(c, "invalid request body")
	}

	if err := h.validate.Struct(req); err != nil {
		h.logger.Debug("order request validation failed", "error", err)
		metrics.OrdersReceivedTotal.WithLabelValues("rejected").Inc()
		return ValidationError(c, err.Error())
	}

	builder := domain.NewOrderBuilder().WithCustomer(req.CustomerName)
	for _, item := range req.Items {
		builder.AddItem(item.ProductName, item.Quantity, *item.UnitPrice)
	}

	order, err := builder.Build()
	if err != nil {
		h.logger.Debug("order validation failed", "error", err)
		metrics.OrdersReceivedTotal.WithLabelValues("rejected").Inc()
		return ValidationError(c, err.Error())
	}

	if err := h.publisher.Publish(c.Context(), order); err != nil {
		h.logger.Error("failed to publish order", "error", err, "orderID", order.ID())
		metrics.OrdersReceivedTotal.WithLabelValues("rejected").Inc()
		return FromError(c, err, "failed to publish order")
	}

	metrics.OrdersReceivedTotal.WithLabelValues("accepted").Inc()
	h.logger.Debug("order accepted", "orderID", order.ID(), "customer", order.CustomerName())

	return Accepted(c, map[string]string{
		"status":     "accepted",
		"orderId":    order.ID().String(),
		"totalPrice": order.TotalPrice().String(),
	})
}

// GetByID handles GET /v1/orders/:id
// Returns the processed order, or 404 while it has not been processed yet.
func (h *OrderHandler) GetByID(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return BadRequest(c, "invalid order id")
	}

	order, err := h.repo.GetByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return NotFound(c, "order not found")
		}
		h.logger.Error("failed to get order", "error", err, "orderID", id)
		return InternalError(c, "failed to get order")
	}

	return Success(c, toOrderResponse(order))
}

// List handles GET /v1/orders?limit=N
func (h *OrderHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 || limit > maxListLimit {
		return BadRequest(c, "limit must be between 1 and 500")
	}

	orders, err := h.repo.List(c.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		return InternalError(c, "failed to list orders")
	}

	resp := make([]OrderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, toOrderResponse(order))
	}
	return Success(c, resp)
}

func toOrderResponse(order domain.Order) OrderResponse {
	s := order.Snapshot()

	items := make([]OrderItemResponse, 0, len(s.Items))
	for _, item := range s.Items {
		items = append(items, OrderItemResponse{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.String(),
			Subtotal:    item.Subtotal().String(),
		})
	}

	return OrderResponse{
		ID:              s.ID.String(),
		CustomerName:    s.CustomerName,
		Items:           items,
		TotalPrice:      s.TotalPrice.String(),
		DiscountApplied: s.DiscountApplied.String(),
		FinalPrice:      s.FinalPrice.String(),
		ProcessedAt:     s.ProcessedAt,
	}
}
