package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbus-go/internal/domain"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func processedOrder(t *testing.T) domain.Order {
	t.Helper()
	order, err := domain.NewOrderBuilder().WithCustomer("Acme Corp").AddLaptop(2).Build()
	require.NoError(t, err)
	priced, err := order.WithPricing(decimal.RequireFromString("100"), time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC))
	require.NoError(t, err)
	return priced
}

func TestKafkaNotifier_NotifyProcessed(t *testing.T) {
	writer := &fakeWriter{}
	n := &KafkaNotifier{writer: writer, logger: testLogger()}
	order := processedOrder(t)

	require.NoError(t, n.NotifyProcessed(context.Background(), order))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, order.ID().String(), string(msg.Key))

	var event ProcessedOrderEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, "Acme Corp", event.CustomerName)
	assert.Equal(t, 1, event.ItemCount)
	assert.Equal(t, "1999.98", event.TotalPrice)
	assert.Equal(t, "100", event.DiscountApplied)
	assert.Equal(t, "1899.98", event.FinalPrice)
	assert.True(t, event.ProcessedAt.Equal(time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)))

	require.NoError(t, n.Close())
	assert.True(t, writer.closed)
}

func TestKafkaNotifier_WriteError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker unavailable")}
	n := &KafkaNotifier{writer: writer, logger: testLogger()}

	err := n.NotifyProcessed(context.Background(), processedOrder(t))
	assert.ErrorContains(t, err, "broker unavailable")
}

func TestStubNotifier_NotifyProcessed(t *testing.T) {
	n := NewStubNotifier(testLogger())
	assert.NoError(t, n.NotifyProcessed(context.Background(), processedOrder(t)))
}
