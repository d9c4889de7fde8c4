package integration

import (
	"context"
	"io"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"orderbus-go/internal/codec"
	"orderbus-go/internal/config"
	"orderbus-go/internal/domain"
	"orderbus-go/internal/harness"
	"orderbus-go/internal/notification"
	"orderbus-go/internal/processor"
	"orderbus-go/internal/publisher"
	"orderbus-go/internal/queue"
	"orderbus-go/internal/queue/memory"
	storemem "orderbus-go/internal/store/memory"
	"orderbus-go/internal/worker"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var _ = Describe("Order Pipeline", func() {
	var (
		ctx       context.Context
		logger    *slog.Logger
		msgQueue  *memory.Queue
		pub       *publisher.Service
		inspector *harness.Inspector
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = quietLogger()
		msgQueue = memory.NewQueue(queue.Options{Name: queue.DefaultQueueName})
		pub = publisher.NewService(msgQueue, msgQueue.Name(), logger)
		inspector = harness.NewInspector(msgQueue, msgQueue.Name(), logger)
	})

	AfterEach(func() {
		Expect(msgQueue.Close()).To(Succeed())
	})

	Describe("Acme Corp order", func() {
		It("should be published, inspected and consumed", func() {
			By("building the order")
			order, err := domain.NewOrderBuilder().WithCustomer("Acme Corp").AddLaptop(2).Build()
			Expect(err).NotTo(HaveOccurred())
			Expect(order.TotalPrice().String()).To(Equal("1999.98"))

			By("publishing it")
			Expect(pub.Publish(ctx, order)).To(Succeed())

			By("peeking without consuming")
			peeked, err := inspector.PeekOrders(ctx, harness.DefaultPeekSize)
			Expect(err).NotTo(HaveOccurred())
			Expect(peeked).To(HaveLen(1))
			Expect(peeked[0].DecodeErr).NotTo(HaveOccurred())
			Expect(peeked[0].Message.ContentType).To(Equal("application/json"))
			Expect(peeked[0].Message.Subject).To(ContainSubstring("Acme Corp"))
			Expect(peeked[0].Order.Equal(order)).To(BeTrue())

			By("receiving and completing it")
			received, found, err := inspector.ReceiveAndComplete(ctx, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(BeTrue())
			Expect(received.ID()).To(Equal(order.ID()))

			By("finding the queue empty")
			peeked, err = inspector.PeekOrders(ctx, harness.DefaultPeekSize)
			Expect(err).NotTo(HaveOccurred())
			Expect(peeked).To(BeEmpty())
		})
	})

	Describe("Order builder", func() {
		It("should assign unique ids", func() {
			seen := make(map[string]bool)
			for i := 0; i < 100; i++ {
				order, err := domain.NewOrderBuilder().WithCustomer("Acme Corp").AddMouse(1).Build()
				Expect(err).NotTo(HaveOccurred())
				Expect(seen).NotTo(HaveKey(order.ID().String()))
				seen[order.ID().String()] = true
			}
		})
	})

	Describe("Sample inspection flow", func() {
		It("should show every sample order in the peek", func() {
			orders, err := publisher.SampleOrders(3)
			Expect(err).NotTo(HaveOccurred())

			n, err := pub.PublishAll(ctx, orders)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))

			peeked, err := inspector.PeekOrders(ctx, harness.DefaultPeekSize)
			Expect(err).NotTo(HaveOccurred())
			Expect(peeked).To(HaveLen(3))

			customers := make([]string, 0, len(peeked))
			for _, p := range peeked {
				customers = append(customers, p.Order.CustomerName())
			}
			Expect(customers).To(ConsistOf("Customer 1", "Customer 2", "Customer 3"))

			count, err := inspector.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(3))
		})
	})

	Describe("Lock expiry", func() {
		It("should redeliver a message that was never settled", func() {
			shortLock := memory.NewQueue(queue.Options{LockDuration: 50 * time.Millisecond})
			defer shortLock.Close()

			order, err := domain.NewOrderBuilder().WithCustomer("Acme Corp").AddKeyboard(1).Build()
			Expect(err).NotTo(HaveOccurred())
			Expect(publisher.NewService(shortLock, shortLock.Name(), logger).Publish(ctx, order)).To(Succeed())

			first, err := shortLock.Receive(ctx, 1, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(HaveLen(1))
			Expect(first[0].DeliveryCount).To(Equal(1))

			second, err := shortLock.Receive(ctx, 1, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(HaveLen(1))
			Expect(second[0].MessageID).To(Equal(first[0].MessageID))
			Expect(second[0].DeliveryCount).To(Equal(2))

			By("rejecting settlement with the stale lock")
			Expect(shortLock.Complete(ctx, first[0])).To(MatchError(queue.ErrLockLost))
			Expect(shortLock.Complete(ctx, second[0])).To(Succeed())
		})
	})

	Describe("Processing", func() {
		var (
			repo     *storemem.OrderRepository
			loop     *worker.Loop
			cancel   context.CancelFunc
			loopDone chan error
		)

		BeforeEach(func() {
			repo = storemem.NewOrderRepository()
			sink := processor.NewRepositorySink(repo, notification.NewStubNotifier(logger), logger)
			service := processor.NewService(sink, storemem.NewProcessedStore(time.Hour), logger)
			loop = worker.NewLoop(msgQueue, service, msgQueue.Name(), config.WorkerConfig{
				Concurrency: 3,
				BatchSize:   4,
				MaxWait:     20 * time.Millisecond,
				RetryBudget: 3,
				BaseBackoff: time.Millisecond,
				MaxBackoff:  10 * time.Millisecond,
			}, logger)

			var loopCtx context.Context
			loopCtx, cancel = context.WithCancel(ctx)
			loopDone = make(chan error, 1)
			go func() {
				loopDone <- loop.Run(loopCtx)
			}()
		})

		AfterEach(func() {
			cancel()
			Eventually(loopDone, 2*time.Second).Should(Receive(BeNil()))
		})

		It("should price and store every published order", func() {
			orders, err := publisher.SampleOrders(10)
			Expect(err).NotTo(HaveOccurred())
			_, err = pub.PublishAll(ctx, orders)
			Expect(err).NotTo(HaveOccurred())

			Eventually(repo.Count, 2*time.Second, 10*time.Millisecond).Should(Equal(10))
			Eventually(msgQueue.Len, 2*time.Second, 10*time.Millisecond).Should(BeZero())

			for _, order := range orders {
				stored, err := repo.GetByID(ctx, order.ID())
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.FinalPrice().String()).To(Equal("999.99"))
				Expect(stored.IsProcessed()).To(BeTrue())
			}
		})

		It("should process a duplicated message once", func() {
			order, err := domain.NewOrderBuilder().WithCustomer("Acme Corp").AddLaptop(2).Build()
			Expect(err).NotTo(HaveOccurred())

			msg, err := codec.EncodeMessage(order)
			Expect(err).NotTo(HaveOccurred())
			for i := 0; i < 3; i++ {
				Expect(msgQueue.Send(ctx, msg)).To(Succeed())
			}

			Eventually(msgQueue.Len, 2*time.Second, 10*time.Millisecond).Should(BeZero())
			Expect(repo.Count()).To(Equal(1))

			stored, err := repo.GetByID(ctx, order.ID())
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.TotalPrice().String()).To(Equal("1999.98"))
		})
	})
})
