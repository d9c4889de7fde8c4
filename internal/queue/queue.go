// Package queue defines the queue client contract used by the order pipeline.
// This abstraction allows swapping implementations (Redis, in-memory)
// without changing business logic.
//
// Delivery is at-least-once with peek-lock semantics. Each message is in one
// of three states: Available, Locked (claimed by one receiver until its lock
// expires or it is settled) and Removed (completed). A message that returns to
// Available after reaching the maximum delivery count is moved to the
// dead-letter sink instead.
package queue

import (
	"context"
	"fmt"
	"time"

	"orderbus-go/internal/apperr"
)

// DefaultQueueName is the queue the pipeline uses unless configured otherwise.
const DefaultQueueName = "order-processing-queue"

// ContentTypeJSON tags message bodies holding JSON.
const ContentTypeJSON = "application/json"

// Errors returned by queue clients.
var (
	// ErrConnection wraps transport failures. Nothing is guaranteed to have happened.
	ErrConnection = apperr.ErrConnection

	// ErrLockLost is returned by Complete and Abandon when the caller no longer
	// holds the lock: it expired, the message was settled already, or the lock
	// token is stale.
	ErrLockLost = apperr.ErrLockLost

	// ErrClientClosed is returned when a closed client is used.
	ErrClientClosed = fmt.Errorf("%w: queue client is closed", apperr.ErrState)

	// ErrInvalidMessage is returned by Send for messages without a message id.
	ErrInvalidMessage = fmt.Errorf("%w: message id is required", apperr.ErrValidation)
)

// State is the lifecycle state of a message held by the queue.
type State string

const (
	// StateAvailable means the message is visible and may be claimed.
	StateAvailable State = "available"
	// StateLocked means a receiver holds the message until LockedUntil.
	StateLocked State = "locked"
	// StateDeadLettered means the message exceeded the maximum delivery count.
	StateDeadLettered State = "dead_lettered"
)

// Message is the envelope exchanged with the queue.
type Message struct {
	// MessageID is the producer-assigned id. Consumers deduplicate on it.
	MessageID string `json:"messageId"`

	// ContentType describes the body encoding.
	ContentType string `json:"contentType"`

	// Subject is a human-readable summary.
	Subject string `json:"subject"`

	// Body is the opaque payload.
	Body []byte `json:"body"`

	// ApplicationProperties contains optional metadata.
	ApplicationProperties map[string]string `json:"applicationProperties,omitempty"`

	// The fields below are assigned by the queue and ignored by Send.

	// SequenceNumber uniquely identifies this copy of the message within the queue.
	SequenceNumber int64 `json:"sequenceNumber,omitempty"`

	// EnqueuedAt is when the queue accepted the message.
	EnqueuedAt time.Time `json:"enqueuedAt,omitempty"`

	// DeliveryCount is the number of times the message has been locked by a receiver.
	DeliveryCount int `json:"deliveryCount,omitempty"`

	// State is the state at the time the message was returned.
	State State `json:"state,omitempty"`

	// LockToken identifies the receiver's lock. Set only on received messages.
	LockToken string `json:"lockToken,omitempty"`

	// LockedUntil is when the lock expires. Set only while locked.
	LockedUntil time.Time `json:"lockedUntil,omitempty"`
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	c.Body = append([]byte(nil), m.Body...)
	if m.ApplicationProperties != nil {
		c.ApplicationProperties = make(map[string]string, len(m.ApplicationProperties))
		for k, v := range m.ApplicationProperties {
			c.ApplicationProperties[k] = v
		}
	}
	return &c
}

// Client defines the operations against a single named queue.
// Implementations must be safe for concurrent use.
type Client interface {
	// Send appends a message in the Available state. Sending the same message
	// twice produces two messages.
	Send(ctx context.Context, msg *Message) error

	// Receive claims up to maxMessages Available messages and locks them.
	// It waits up to maxWait for at least one message and returns an empty
	// result, not an error, when the wait elapses or ctx is cancelled.
	// No ordering relative to Send is guaranteed.
	Receive(ctx context.Context, maxMessages int, maxWait time.Duration) ([]*Message, error)

	// Peek returns a read-only snapshot of up to maxMessages Available or
	// Locked messages without changing any of them.
	Peek(ctx context.Context, maxMessages int) ([]*Message, error)

	// Complete removes a message the caller holds the lock for.
	Complete(ctx context.Context, msg *Message) error

	// Abandon releases the caller's lock so the message is immediately
	// available for redelivery.
	Abandon(ctx context.Context, msg *Message) error

	// Close releases any resources held by the client.
	Close() error
}

// DeadLetterReader is implemented by clients that can list dead-lettered messages.
type DeadLetterReader interface {
	DeadLetters(ctx context.Context, maxMessages int) ([]*Message, error)
}

// Options holds the queue behavior shared by all implementations.
type Options struct {
	// Name is the queue identifier.
	Name string

	// LockDuration is how long a received message stays invisible to other receivers.
	LockDuration time.Duration

	// MaxDeliveryCount is the number of deliveries after which a message that
	// returns to Available is dead-lettered instead.
	MaxDeliveryCount int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Name:             DefaultQueueName,
		LockDuration:     30 * time.Second,
		MaxDeliveryCount: 10,
	}
}

// WithDefaults fills unset fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Name == "" {
		o.Name = d.Name
	}
	if o.LockDuration <= 0 {
		o.LockDuration = d.LockDuration
	}
	if o.MaxDeliveryCount <= 0 {
		o.MaxDeliveryCount = d.MaxDeliveryCount
	}
	return o
}
