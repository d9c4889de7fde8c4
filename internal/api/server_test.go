package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderbus-go/internal/config"
	"orderbus-go/internal/domain"
	"orderbus-go/internal/harness"
	"orderbus-go/internal/notification"
	"orderbus-go/internal/processor"
	"orderbus-go/internal/publisher"
	"orderbus-go/internal/queue"
	"orderbus-go/internal/queue/memory"
	storemem "orderbus-go/internal/store/memory"
)

type testEnv struct {
	server *Server
	queue  *memory.Queue
	repo   *storemem.OrderRepository
}

// unreachableClient fails every operation with a connection error.
type unreachableClient struct {
	queue.Client
}

func (unreachableClient) Send(ctx context.Context, msg *queue.Message) error {
	return fmt.Errorf("%w: dial tcp: connection refused", queue.ErrConnection)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newServer(client queue.Client, repo *storemem.OrderRepository) *Server {
	logger := testLogger()
	return NewServer(ServerDeps{
		Config:            &config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Logger:            logger,
		OrderHandler:      NewOrderHandler(publisher.NewService(client, "orders", logger), repo, logger),
		QueueHandler:      NewQueueHandler(harness.NewInspector(client, "orders", logger), logger),
		DisableRequestLog: true,
	})
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	q := memory.NewQueue(queue.Options{})
	t.Cleanup(func() { _ = q.Close() })
	repo := storemem.NewOrderRepository()
	return &testEnv{server: newServer(q, repo), queue: q, repo: repo}
}

func do(t *testing.T, s *Server, method, target, body string) (int, APIResponse) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.App().Test(req, int((5 * time.Second).Milliseconds()))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out APIResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

// decodeData re-decodes the generic envelope payload into v.
func decodeData(t *testing.T, resp APIResponse, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

const acmeBody = `{"customerName":"Acme Corp","items":[{"productName":"Laptop","quantity":2,"unitPrice":999.99}]}`

func TestServer_HealthCheck(t *testing.T) {
	env := setup(t)

	status, resp := do(t, env.server, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, resp.Success)

	var health HealthResponse
	decodeData(t, resp, &health)
	assert.Equal(t, "healthy", health.Status)
}

func TestServer_Metrics(t *testing.T) {
	env := setup(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := env.server.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOrderHandler_Create(t *testing.T) {
	env := setup(t)

	status, resp := do(t, env.server, http.MethodPost, "/v1/orders", acmeBody)
	require.Equal(t, http.StatusAccepted, status)

	var data map[string]string
	decodeData(t, resp, &data)
	assert.Equal(t, "accepted", data["status"])
	assert.Equal(t, "1999.98", data["totalPrice"])
	assert.NotEmpty(t, data["orderId"])

	peeked, err := env.queue.Peek(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, peeked, 1)
	assert.Equal(t, data["orderId"], peeked[0].MessageID)
	assert.Equal(t, "Order from Acme Corp", peeked[0].Subject)
}

func TestOrderHandler_Create_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{
			name:     "invalid json",
			body:     `{"customerName":`,
			wantCode: ErrCodeBadRequest,
		},
		{
			name:     "missing customer",
			body:     `{"items":[{"productName":"Laptop","quantity":1,"unitPrice":"999.99"}]}`,
			wantCode: ErrCodeValidationFailed,
		},
		{
			name:     "no items",
			body:     `{"customerName":"Acme Corp","items":[]}`,
			wantCode: ErrCodeValidationFailed,
		},
		{
			name:     "zero quantity",
			body:     `{"customerName":"Acme Corp","items":[{"productName":"Laptop","quantity":0,"unitPrice":"1"}]}`,
			wantCode: ErrCodeValidationFailed,
		},
		{
			name:     "missing price",
			body:     `{"customerName":"Acme Corp","items":[{"productName":"Laptop","quantity":1}]}`,
			wantCode: ErrCodeValidationFailed,
		},
		{
			name:     "negative price",
			body:     `{"customerName":"Acme Corp","items":[{"productName":"Laptop","quantity":1,"unitPrice":"-5"}]}`,
			wantCode: ErrCodeValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)

			status, resp := do(t, env.server, http.MethodPost, "/v1/orders", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Zero(t, env.queue.Len())
		})
	}
}

func TestOrderHandler_Create_QueueUnavailable(t *testing.T) {
	server := newServer(unreachableClient{}, storemem.NewOrderRepository())

	status, resp := do(t, server, http.MethodPost, "/v1/orders", acmeBody)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeServiceUnavailable, resp.Error.Code)
}

func TestOrderHandler_GetByID(t *testing.T) {
	env := setup(t)
	logger := testLogger()
	ctx := context.Background()

	order, err := domain.NewOrderBuilder().WithCustomer("Acme Corp").AddLaptop(2).Build()
	require.NoError(t, err)

	status, _ := do(t, env.server, http.MethodGet, "/v1/orders/"+order.ID().String(), "")
	assert.Equal(t, http.StatusNotFound, status)

	sink := processor.NewRepositorySink(env.repo, notification.NewStubNotifier(logger), logger)
	service := processor.NewService(sink, storemem.NewProcessedStore(time.Hour), logger)
	require.NoError(t, service.HandleOrder(ctx, order))

	status, resp := do(t, env.server, http.MethodGet, "/v1/orders/"+order.ID().String(), "")
	require.Equal(t, http.StatusOK, status)

	var got OrderResponse
	decodeData(t, resp, &got)
	assert.Equal(t, order.ID().String(), got.ID)
	assert.Equal(t, "Acme Corp", got.CustomerName)
	assert.Equal(t, "1999.98", got.TotalPrice)
	assert.Equal(t, "1999.98", got.FinalPrice)
	assert.NotNil(t, got.ProcessedAt)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "1999.98", got.Items[0].Subtotal)

	status, resp = do(t, env.server, http.MethodGet, "/v1/orders", "")
	require.Equal(t, http.StatusOK, status)
	var list []OrderResponse
	decodeData(t, resp, &list)
	assert.Len(t, list, 1)
}

func TestOrderHandler_GetByID_InvalidID(t *testing.T) {
	env := setup(t)

	status, resp := do(t, env.server, http.MethodGet, "/v1/orders/not-a-uuid", "")
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeBadRequest, resp.Error.Code)
}

func TestQueueHandler_Messages(t *testing.T) {
	env := setup(t)

	status, _ := do(t, env.server, http.MethodPost, "/v1/orders", acmeBody)
	require.Equal(t, http.StatusAccepted, status)

	for i := 0; i < 2; i++ {
		status, resp := do(t, env.server, http.MethodGet, "/v1/queue/messages?max=5", "")
		require.Equal(t, http.StatusOK, status)

		var msgs []MessageResponse
		decodeData(t, resp, &msgs)
		require.Len(t, msgs, 1)
		assert.Equal(t, "available", msgs[0].State)
		assert.Equal(t, 0, msgs[0].DeliveryCount)
		assert.Equal(t, queue.ContentTypeJSON, msgs[0].ContentType)
		require.NotNil(t, msgs[0].Order)
		assert.Equal(t, "Acme Corp", msgs[0].Order.CustomerName)
	}

	status, _ = do(t, env.server, http.MethodGet, "/v1/queue/messages?max=0", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestQueueHandler_DeadLetters(t *testing.T) {
	env := setup(t)

	status, resp := do(t, env.server, http.MethodGet, "/v1/queue/dead-letters", "")
	require.Equal(t, http.StatusOK, status)

	var msgs []MessageResponse
	decodeData(t, resp, &msgs)
	assert.Empty(t, msgs)
}

func TestServer_UnknownRoute(t *testing.T) {
	env := setup(t)

	status, resp := do(t, env.server, http.MethodGet, "/v1/unknown", "")
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
}
