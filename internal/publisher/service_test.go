package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"orderbus-go/internal/apperr"
	"orderbus-go/internal/codec"
	"orderbus-go/internal/domain"
	"orderbus-go/internal/queue"
	"orderbus-go/internal/queue/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// failingClient fails every Send with a connection error.
type failingClient struct {
	queue.Client
	sends int
}

func (c *failingClient) Send(ctx context.Context, msg *queue.Message) error {
	c.sends++
	return fmt.Errorf("%w: broker unreachable", queue.ErrConnection)
}

func TestService_Publish(t *testing.T) {
	msgQueue := memory.NewQueue(queue.Options{})
	defer msgQueue.Close()
	service := NewService(msgQueue, msgQueue.Name(), testLogger())
	ctx := context.Background()

	order, err := domain.NewOrderBuilder().WithCustomer("Acme Corp").AddLaptop(2).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if err := service.Publish(ctx, order); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	// Verify message was published
	if msgQueue.Len() != 1 {
		t.Fatalf("Queue should have 1 message, got %d", msgQueue.Len())
	}

	peeked, err := msgQueue.Peek(ctx, 10)
	if err != nil {
		t.Fatalf("Peek() error = %v", err)
	}
	msg := peeked[0]
	if msg.MessageID != order.ID().String() {
		t.Errorf("MessageID = %v, want %v", msg.MessageID, order.ID())
	}
	if msg.ContentType != "application/json" {
		t.Errorf("ContentType = %v, want application/json", msg.ContentType)
	}
	if msg.Subject != "Order from Acme Corp" {
		t.Errorf("Subject = %v", msg.Subject)
	}

	decoded, err := codec.DecodeMessage(msg)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if !decoded.Equal(order) {
		t.Errorf("decoded order = %v, want %v", decoded, order)
	}
}

func TestService_PublishTwiceEnqueuesTwice(t *testing.T) {
	msgQueue := memory.NewQueue(queue.Options{})
	defer msgQueue.Close()
	service := NewService(msgQueue, msgQueue.Name(), testLogger())

	order, _ := domain.NewOrderBuilder().WithCustomer("Acme Corp").AddMouse(1).Build()
	for i := 0; i < 2; i++ {
		if err := service.Publish(context.Background(), order); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	if msgQueue.Len() != 2 {
		t.Errorf("Queue should have 2 messages, got %d", msgQueue.Len())
	}
}

func TestService_Publish_ConnectionError(t *testing.T) {
	client := &failingClient{}
	service := NewService(client, "orders", testLogger())

	order, _ := domain.NewOrderBuilder().WithCustomer("Acme Corp").AddMouse(1).Build()
	err := service.Publish(context.Background(), order)

	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
	if !errors.Is(err, apperr.ErrConnection) {
		t.Errorf("Publish() error = %v should keep the connection cause", err)
	}
	if client.sends != 1 {
		t.Errorf("Send called %d times, want 1", client.sends)
	}
}

func TestService_Publish_InvalidOrder(t *testing.T) {
	msgQueue := memory.NewQueue(queue.Options{})
	defer msgQueue.Close()
	service := NewService(msgQueue, msgQueue.Name(), testLogger())

	err := service.Publish(context.Background(), domain.Order{})
	if !errors.Is(err, ErrPublishFailed) || !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Publish() error = %v, want a validation failure", err)
	}
	if msgQueue.Len() != 0 {
		t.Errorf("Queue should be empty, got %d", msgQueue.Len())
	}
}

func TestService_PublishAll(t *testing.T) {
	msgQueue := memory.NewQueue(queue.Options{})
	defer msgQueue.Close()
	service := NewService(msgQueue, msgQueue.Name(), testLogger())

	orders, err := SampleOrders(3)
	if err != nil {
		t.Fatalf("SampleOrders() error = %v", err)
	}

	n, err := service.PublishAll(context.Background(), orders)
	if err != nil {
		t.Fatalf("PublishAll() error = %v", err)
	}
	if n != 3 || msgQueue.Len() != 3 {
		t.Errorf("published %d, queue holds %d, want 3", n, msgQueue.Len())
	}
}

func TestService_PublishAll_StopsAtFirstFailure(t *testing.T) {
	client := &failingClient{}
	service := NewService(client, "orders", testLogger())

	orders, _ := SampleOrders(3)
	n, err := service.PublishAll(context.Background(), orders)
	if err == nil {
		t.Fatal("PublishAll() should fail")
	}
	if n != 0 || client.sends != 1 {
		t.Errorf("published %d with %d sends, want 0 and 1", n, client.sends)
	}
}

func TestService_Publish_CancelledContext(t *testing.T) {
	msgQueue := memory.NewQueue(queue.Options{})
	defer msgQueue.Close()
	service := NewService(msgQueue, msgQueue.Name(), testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	order, _ := domain.NewOrderBuilder().WithCustomer("Acme Corp").AddMouse(1).Build()
	if err := service.Publish(ctx, order); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Publish() error = %v, want DeadlineExceeded", err)
	}
}

func TestSampleOrders(t *testing.T) {
	orders, err := SampleOrders(3)
	if err != nil {
		t.Fatalf("SampleOrders() error = %v", err)
	}
	for i, order := range orders {
		want := fmt.Sprintf("Customer %d", i+1)
		if order.CustomerName() != want {
			t.Errorf("CustomerName = %v, want %v", order.CustomerName(), want)
		}
		if order.TotalPrice().String() != "999.99" {
			t.Errorf("TotalPrice = %v, want 999.99", order.TotalPrice())
		}
	}
}
