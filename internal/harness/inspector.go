// Package harness provides read-mostly tooling for verifying the queue's
// contents: peeking decoded orders, counting messages and draining them.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"orderbus-go/internal/codec"
	"orderbus-go/internal/domain"
	"orderbus-go/internal/metrics"
	"orderbus-go/internal/queue"
)

// DefaultPeekSize is the number of messages inspected when no limit is given.
const DefaultPeekSize = 10

// countPageSize bounds a single Peek issued by Count.
const countPageSize = 1000

// PeekedOrder is a message seen by Peek together with its decoded order.
// DecodeErr is set, and Order left zero, when the body is not a valid order.
type PeekedOrder struct {
	Message   *queue.Message
	Order     domain.Order
	DecodeErr error
}

// Inspector looks at a queue without taking part in processing.
type Inspector struct {
	client    queue.Client
	queueName string
	logger    *slog.Logger
}

// NewInspector creates a new inspector.
func NewInspector(client queue.Client, queueName string, logger *slog.Logger) *Inspector {
	return &Inspector{
		client:    client,
		queueName: queueName,
		logger:    logger,
	}
}

// PeekOrders returns up to limit messages with their decoded orders.
// No message changes state. A non-positive limit means DefaultPeekSize.
func (i *Inspector) PeekOrders(ctx context.Context, limit int) ([]PeekedOrder, error) {
	if limit <= 0 {
		limit = DefaultPeekSize
	}

	msgs, err := i.client.Peek(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to peek queue %s: %w", i.queueName, err)
	}

	peeked := make([]PeekedOrder, 0, len(msgs))
	for _, msg := range msgs {
		order, decodeErr := codec.DecodeMessage(msg)
		if decodeErr != nil {
			i.logger.Warn("peeked message is not a valid order",
				"messageID", msg.MessageID,
				"error", decodeErr,
			)
		}
		peeked = append(peeked, PeekedOrder{Message: msg, Order: order, DecodeErr: decodeErr})
	}

	i.logger.Debug("peeked queue", "queue", i.queueName, "count", len(peeked))
	return peeked, nil
}

// Count returns the number of available and locked messages.
func (i *Inspector) Count(ctx context.Context) (int, error) {
	msgs, err := i.client.Peek(ctx, countPageSize)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue %s: %w", i.queueName, err)
	}

	metrics.QueueDepth.WithLabelValues(i.queueName).Set(float64(len(msgs)))
	return len(msgs), nil
}

// DeadLetters returns up to limit dead-lettered messages.
// Clients that keep no dead letters report none.
func (i *Inspector) DeadLetters(ctx context.Context, limit int) ([]*queue.Message, error) {
	reader, ok := i.client.(queue.DeadLetterReader)
	if !ok {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultPeekSize
	}

	msgs, err := reader.DeadLetters(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters of %s: %w", i.queueName, err)
	}

	metrics.DeadLetterDepth.WithLabelValues(i.queueName).Set(float64(len(msgs)))
	return msgs, nil
}

// ReceiveAndComplete receives one message, waiting up to wait, and completes it.
// It returns the decoded order, or found == false when nothing arrived in time.
// The message is completed even when its body does not decode; the decode
// error is returned alongside.
func (i *Inspector) ReceiveAndComplete(ctx context.Context, wait time.Duration) (order domain.Order, found bool, err error) {
	msgs, err := i.client.Receive(ctx, 1, wait)
	if err != nil {
		return domain.Order{}, false, fmt.Errorf("failed to receive from %s: %w", i.queueName, err)
	}
	if len(msgs) == 0 {
		return domain.Order{}, false, nil
	}
	msg := msgs[0]

	order, decodeErr := codec.DecodeMessage(msg)

	if err := i.client.Complete(ctx, msg); err != nil {
		return domain.Order{}, true, fmt.Errorf("failed to complete message %s: %w", msg.MessageID, err)
	}

	i.logger.Info("received and completed message",
		"messageID", msg.MessageID,
		"subject", msg.Subject,
		"deliveryCount", msg.DeliveryCount,
	)

	if decodeErr != nil {
		return domain.Order{}, true, decodeErr
	}
	return order, true, nil
}

// WaitForCount polls Count every poll interval until it equals want.
// It returns ctx's error if the count is not reached before ctx ends.
func (i *Inspector) WaitForCount(ctx context.Context, want int, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		got, err := i.Count(ctx)
		if err != nil {
			return err
		}
		if got == want {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("queue %s holds %d messages, want %d: %w", i.queueName, got, want, ctx.Err())
		case <-ticker.C:
		}
	}
}
