// Package metrics provides Prometheus metrics for OrderBus.
// It tracks order publishing, message delivery and processing latencies
// to help identify performance bottlenecks and measure SLOs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "orderbus"
)

// Publish metrics track the producer side.
var (
	// OrdersReceivedTotal counts orders submitted through the API.
	OrdersReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_received_total",
			Help:      "Total number of orders submitted through the API",
		},
		[]string{"result"}, // result: accepted, rejected
	)

	// OrdersPublishedTotal counts orders successfully sent to the queue.
	OrdersPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_published_total",
			Help:      "Total number of orders published to the queue",
		},
		[]string{"queue"},
	)

	// PublishFailuresTotal counts failed publish attempts by error kind.
	PublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Total number of orders that could not be published",
		},
		[]string{"queue", "kind"},
	)

	// PublishLatency measures time to encode and send an order.
	PublishLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_latency_seconds",
			Help:      "Time to encode and send an order to the queue in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// Delivery metrics track the consumer side.
var (
	// MessagesReceivedTotal counts messages handed to the delivery loop.
	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Total number of messages received from the queue",
		},
		[]string{"queue"},
	)

	// MessagesSettledTotal counts settlement outcomes.
	MessagesSettledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_settled_total",
			Help:      "Total number of settled messages by outcome",
		},
		[]string{"queue", "result"}, // result: completed, abandoned, lock_lost, failed
	)

	// ReceiveErrorsTotal counts failed receive calls.
	ReceiveErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receive_errors_total",
			Help:      "Total number of failed receive calls",
		},
		[]string{"queue", "kind"},
	)

	// QueueLatency measures time a message spent in the queue before delivery.
	QueueLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_latency_seconds",
			Help:      "Time from enqueue to delivery in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// QueueDepth tracks the number of messages seen by the last inspection.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of available or locked messages at the last inspection",
		},
		[]string{"queue"},
	)

	// DeadLetterDepth tracks the number of dead-lettered messages at the last inspection.
	DeadLetterDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dead_letter_depth",
			Help:      "Number of dead-lettered messages at the last inspection",
		},
		[]string{"queue"},
	)
)

// Processing metrics track the order processor.
var (
	// OrdersProcessedTotal counts processing outcomes.
	OrdersProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_processed_total",
			Help:      "Total number of handled orders by outcome",
		},
		[]string{"result"}, // result: processed, duplicate, malformed, failed
	)

	// ProcessingLatency measures time to process a single order.
	ProcessingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "processing_latency_seconds",
			Help:      "Time to process a single order in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// NotificationsSentTotal counts processed-order notifications.
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Total number of processed-order notifications sent",
		},
		[]string{"notifier", "status"}, // status: success, failure
	)
)

// Storage metrics track database and cache operations.
var (
	// StorageOperationLatency measures latency of storage operations.
	StorageOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_latency_seconds",
			Help:      "Latency of storage operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"store", "operation"}, // store: ledger, repository
	)

	// StorageOperationsTotal counts storage operations.
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Total number of storage operations",
		},
		[]string{"store", "operation", "status"}, // status: success, failure
	)
)
