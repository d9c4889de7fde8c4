package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"orderbus-go/internal/harness"
	"orderbus-go/internal/queue"
)

const maxPeekLimit = 1000

// MessageResponse describes a queued message. Lock tokens are never exposed.
type MessageResponse struct {
	MessageID      string         `json:"messageId"`
	Subject        string         `json:"subject"`
	ContentType    string         `json:"contentType"`
	State          string         `json:"state"`
	SequenceNumber int64          `json:"sequenceNumber"`
	DeliveryCount  int            `json:"deliveryCount"`
	EnqueuedAt     time.Time      `json:"enqueuedAt"`
	LockedUntil    *time.Time     `json:"lockedUntil,omitempty"`
	Order          *OrderResponse `json:"order,omitempty"`
	DecodeError    string         `json:"decodeError,omitempty"`
}

// QueueHandler exposes read-only views of the order queue.
type QueueHandler struct {
	inspector *harness.Inspector
	logger    *slog.Logger
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(inspector *harness.Inspector, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		inspector: inspector,
		logger:    logger,
	}
}

// Messages handles GET /v1/queue/messages?max=N
// Peeks at available and locked messages without changing them.
func (h *QueueHandler) Messages(c *fiber.Ctx) error {
	limit, ok := peekLimit(c)
	if !ok {
		return BadRequest(c, "max must be between 1 and 1000")
	}

	peeked, err := h.inspector.PeekOrders(c.Context(), limit)
	if err != nil {
		h.logger.Error("failed to peek queue", "error", err)
		return FromError(c, err, "failed to peek queue")
	}

	resp := make([]MessageResponse, 0, len(peeked))
	for _, p := range peeked {
		m := toMessageResponse(p.Message)
		if p.DecodeErr != nil {
			m.DecodeError = p.DecodeErr.Error()
		} else {
			order := toOrderResponse(p.Order)
			m.Order = &order
		}
		resp = append(resp, m)
	}
	return Success(c, resp)
}

// DeadLetters handles GET /v1/queue/dead-letters?max=N
func (h *QueueHandler) DeadLetters(c *fiber.Ctx) error {
	limit, ok := peekLimit(c)
	if !ok {
		return BadRequest(c, "max must be between 1 and 1000")
	}

	msgs, err := h.inspector.DeadLetters(c.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read dead letters", "error", err)
		return FromError(c, err, "failed to read dead letters")
	}

	resp := make([]MessageResponse, 0, len(msgs))
	for _, msg := range msgs {
		resp = append(resp, toMessageResponse(msg))
	}
	return Success(c, resp)
}

func peekLimit(c *fiber.Ctx) (int, bool) {
	limit := c.QueryInt("max", harness.DefaultPeekSize)
	return limit, limit > 0 && limit <= maxPeekLimit
}

func toMessageResponse(msg *queue.Message) MessageResponse {
	m := MessageResponse{
		MessageID:      msg.MessageID,
		Subject:        msg.Subject,
		ContentType:    msg.ContentType,
		State:          string(msg.State),
		SequenceNumber: msg.SequenceNumber,
		DeliveryCount:  msg.DeliveryCount,
		EnqueuedAt:     msg.EnqueuedAt,
	}
	if !msg.LockedUntil.IsZero() {
		until := msg.LockedUntil
		m.LockedUntil = &until
	}
	return m
}
