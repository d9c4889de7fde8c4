// Package worker runs the delivery loop that feeds queued orders to the processor.
// Each receiver claims a batch, processes every message and settles it:
// Complete on success, Abandon on failure so the queue can redeliver it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"orderbus-go/internal/apperr"
	"orderbus-go/internal/config"
	"orderbus-go/internal/domain"
	"orderbus-go/internal/metrics"
	"orderbus-go/internal/queue"
)

// Processor handles one delivered message.
type Processor interface {
	ProcessDelivery(ctx context.Context, msg *queue.Message) (domain.Order, error)
}

// Loop receives messages from a queue with a fixed number of concurrent receivers.
type Loop struct {
	client    queue.Client
	processor Processor
	queueName string
	cfg       config.WorkerConfig
	logger    *slog.Logger
}

// NewLoop creates a delivery loop. Zero settings fall back to the config defaults.
func NewLoop(client queue.Client, processor Processor, queueName string, cfg config.WorkerConfig, logger *slog.Logger) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = time.Second
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = cfg.BaseBackoff
	}

	return &Loop{
		client:    client,
		processor: processor,
		queueName: queueName,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks until ctx is cancelled, returning nil, or until a receiver gives up.
// A receiver gives up when more than RetryBudget consecutive receives fail with
// a connection error, or when the client reports any other receive error.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("starting worker loop",
		"queue", l.queueName,
		"concurrency", l.cfg.Concurrency,
		"batchSize", l.cfg.BatchSize,
	)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < l.cfg.Concurrency; i++ {
		id := i
		g.Go(func() error {
			return l.receive(gctx, id)
		})
	}

	if err := g.Wait(); err != nil {
		l.logger.Error("worker loop stopped", "error", err)
		return err
	}

	l.logger.Info("worker loop stopped")
	return nil
}

func (l *Loop) receive(ctx context.Context, id int) error {
	failures := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		msgs, err := l.client.Receive(ctx, l.cfg.BatchSize, l.cfg.MaxWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.ReceiveErrorsTotal.WithLabelValues(l.queueName, apperr.Kind(err)).Inc()

			if !errors.Is(err, queue.ErrConnection) {
				return fmt.Errorf("receiver %d: %w", id, err)
			}

			failures++
			if failures > l.cfg.RetryBudget {
				return fmt.Errorf("receiver %d: %d consecutive receive failures: %w", id, failures, err)
			}

			delay := l.backoff(failures)
			l.logger.Warn("receive failed, backing off",
				"error", err,
				"receiver", id,
				"attempt", failures,
				"delay", delay,
			)
			if !sleep(ctx, delay) {
				return nil
			}
			continue
		}

		failures = 0
		for _, msg := range msgs {
			l.handle(ctx, msg)
		}
	}
}

func (l *Loop) handle(ctx context.Context, msg *queue.Message) {
	metrics.MessagesReceivedTotal.WithLabelValues(l.queueName).Inc()
	if !msg.EnqueuedAt.IsZero() {
		metrics.QueueLatency.Observe(time.Since(msg.EnqueuedAt).Seconds())
	}

	if _, err := l.processor.ProcessDelivery(ctx, msg); err != nil {
		level := slog.LevelError
		if apperr.IsRecoverable(err) {
			level = slog.LevelWarn
		}
		l.logger.Log(ctx, level, "processing failed, abandoning message",
			"error", err,
			"kind", apperr.Kind(err),
			"messageID", msg.MessageID,
			"deliveryCount", msg.DeliveryCount,
		)
		l.settle(ctx, msg, "abandoned", l.client.Abandon)
		return
	}

	l.settle(ctx, msg, "completed", l.client.Complete)
}

// settle runs a settlement that is not cut short by ctx cancellation.
func (l *Loop) settle(ctx context.Context, msg *queue.Message, result string, fn func(context.Context, *queue.Message) error) {
	err := fn(context.WithoutCancel(ctx), msg)
	switch {
	case err == nil:
		metrics.MessagesSettledTotal.WithLabelValues(l.queueName, result).Inc()

	case errors.Is(err, queue.ErrLockLost):
		metrics.MessagesSettledTotal.WithLabelValues(l.queueName, "lock_lost").Inc()
		l.logger.Warn("lock lost before settlement",
			"messageID", msg.MessageID,
			"sequence", msg.SequenceNumber,
			"result", result,
		)

	default:
		metrics.MessagesSettledTotal.WithLabelValues(l.queueName, "failed").Inc()
		l.logger.Error("failed to settle message",
			"error", err,
			"messageID", msg.MessageID,
			"result", result,
		)
	}
}

// backoff returns BaseBackoff doubled per prior failure, capped at MaxBackoff.
func (l *Loop) backoff(attempt int) time.Duration {
	delay := l.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= l.cfg.MaxBackoff {
			return l.cfg.MaxBackoff
		}
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
