package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"orderbus-go/internal/api"
	"orderbus-go/internal/config"
	"orderbus-go/internal/harness"
	"orderbus-go/internal/notification"
	"orderbus-go/internal/processor"
	"orderbus-go/internal/publisher"
	"orderbus-go/internal/queue"
	"orderbus-go/internal/queue/memory"
	storemem "orderbus-go/internal/store/memory"
	"orderbus-go/internal/worker"
)

// httpClient creates an HTTP client with sensible defaults.
func httpClient() *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
	}
}

// doRequest performs an HTTP request against baseURL and returns the response.
func doRequest(baseURL, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return httpClient().Do(req)
}

// parseResponse parses JSON response into target.
func parseResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

var _ = Describe("HTTP Integration Tests", Ordered, func() {
	var (
		baseURL  string
		server   *api.Server
		msgQueue *memory.Queue
		cancel   context.CancelFunc
		loopDone chan error
		orderID  string
	)

	BeforeAll(func() {
		logger := quietLogger()
		msgQueue = memory.NewQueue(queue.Options{})
		repo := storemem.NewOrderRepository()

		sink := processor.NewRepositorySink(repo, notification.NewStubNotifier(logger), logger)
		service := processor.NewService(sink, storemem.NewProcessedStore(time.Hour), logger)

		server = api.NewServer(api.ServerDeps{
			Config:            &config.ServerConfig{Host: "127.0.0.1"},
			Logger:            logger,
			OrderHandler:      api.NewOrderHandler(publisher.NewService(msgQueue, msgQueue.Name(), logger), repo, logger),
			QueueHandler:      api.NewQueueHandler(harness.NewInspector(msgQueue, msgQueue.Name(), logger), logger),
			DisableRequestLog: true,
		})

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		baseURL = "http://" + ln.Addr().String()
		go func() {
			_ = server.App().Listener(ln)
		}()

		loop := worker.NewLoop(msgQueue, service, msgQueue.Name(), config.WorkerConfig{
			Concurrency: 2,
			BatchSize:   10,
			MaxWait:     20 * time.Millisecond,
			RetryBudget: 3,
			BaseBackoff: time.Millisecond,
			MaxBackoff:  10 * time.Millisecond,
		}, logger)

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		loopDone = make(chan error, 1)
		go func() {
			loopDone <- loop.Run(ctx)
		}()

		Eventually(func() error {
			resp, err := doRequest(baseURL, "GET", "/healthz", nil)
			if err == nil {
				resp.Body.Close()
			}
			return err
		}, 2*time.Second, 10*time.Millisecond).Should(Succeed())
	})

	AfterAll(func() {
		cancel()
		Eventually(loopDone, 2*time.Second).Should(Receive(BeNil()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		Expect(server.Shutdown(shutdownCtx)).To(Succeed())
		Expect(msgQueue.Close()).To(Succeed())
	})

	Describe("Health Check", func() {
		It("should return healthy status", func() {
			resp, err := doRequest(baseURL, "GET", "/healthz", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("Orders API", func() {
		It("should accept an order", func() {
			payload := map[string]interface{}{
				"customerName": "Acme Corp",
				"items": []map[string]interface{}{
					{"productName": "Laptop", "quantity": 2, "unitPrice": "999.99"},
				},
			}

			resp, err := doRequest(baseURL, "POST", "/v1/orders", payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))

			var result map[string]interface{}
			Expect(parseResponse(resp, &result)).To(Succeed())

			data, ok := result["data"].(map[string]interface{})
			Expect(ok).To(BeTrue())
			Expect(data["status"]).To(Equal("accepted"))
			Expect(data["totalPrice"]).To(Equal("1999.98"))
			orderID = data["orderId"].(string)
		})

		It("should expose the processed order", func() {
			Eventually(func() int {
				resp, err := doRequest(baseURL, "GET", "/v1/orders/"+orderID, nil)
				if err != nil {
					return 0
				}
				resp.Body.Close()
				return resp.StatusCode
			}, 2*time.Second, 20*time.Millisecond).Should(Equal(http.StatusOK))

			resp, err := doRequest(baseURL, "GET", "/v1/orders/"+orderID, nil)
			Expect(err).NotTo(HaveOccurred())

			var result map[string]interface{}
			Expect(parseResponse(resp, &result)).To(Succeed())

			data := result["data"].(map[string]interface{})
			Expect(data["customerName"]).To(Equal("Acme Corp"))
			Expect(data["totalPrice"]).To(Equal("1999.98"))
			Expect(data["finalPrice"]).To(Equal("1999.98"))
			Expect(data["processedAt"]).NotTo(BeNil())
		})

		It("should reject an order without items", func() {
			payload := map[string]interface{}{
				"customerName": "Acme Corp",
				"items":        []interface{}{},
			}

			resp, err := doRequest(baseURL, "POST", "/v1/orders", payload)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should return 404 for unknown orders", func() {
			resp, err := doRequest(baseURL, "GET", "/v1/orders/00000000-0000-0000-0000-000000000001", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Queue API", func() {
		It("should show a drained queue", func() {
			Eventually(func() int {
				resp, err := doRequest(baseURL, "GET", "/v1/queue/messages?max=10", nil)
				if err != nil {
					return -1
				}
				var result struct {
					Data []map[string]interface{} `json:"data"`
				}
				if err := parseResponse(resp, &result); err != nil {
					return -1
				}
				return len(result.Data)
			}, 2*time.Second, 20*time.Millisecond).Should(Equal(0))
		})

		It("should report no dead letters", func() {
			resp, err := doRequest(baseURL, "GET", "/v1/queue/dead-letters", nil)
			Expect(err).NotTo(HaveOccurred())

			var result map[string]interface{}
			Expect(parseResponse(resp, &result)).To(Succeed())
			Expect(result["success"]).To(BeTrue())
		})
	})

	Describe("Metrics", func() {
		It("should expose pipeline counters", func() {
			resp, err := doRequest(baseURL, "GET", "/metrics", nil)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("orderbus_orders_published_total"))
			Expect(string(body)).To(ContainSubstring("orderbus_orders_processed_total"))
		})
	})
})
