// Package memory provides an in-memory implementation of queue.Client.
// This is useful for testing and development without external dependencies.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderbus-go/internal/queue"
)

// Option customizes a Queue.
type Option func(*Queue)

// WithClock replaces the time source used for lock expiry.
// Tests use it to expire locks without sleeping.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// Queue is an in-memory implementation of queue.Client.
// All state transitions happen under a single mutex, so no two receivers can
// lock the same message. Lock expiry is applied lazily on every operation.
// This implementation is safe for concurrent use.
type Queue struct {
	opts queue.Options
	now  func() time.Time

	mu          sync.Mutex
	seq         int64
	messages    map[int64]*queue.Message // available and locked, keyed by sequence number
	deadLetters []*queue.Message
	closed      bool

	// changed is closed and replaced whenever a message becomes available.
	changed chan struct{}
}

// NewQueue creates a new in-memory queue.
func NewQueue(opts queue.Options, options ...Option) *Queue {
	q := &Queue{
		opts:     opts.WithDefaults(),
		now:      time.Now,
		messages: make(map[int64]*queue.Message),
		changed:  make(chan struct{}),
	}
	for _, opt := range options {
		opt(q)
	}
	return q
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.opts.Name
}

// Send appends a copy of msg in the Available state.
func (q *Queue) Send(ctx context.Context, msg *queue.Message) error {
	if msg == nil || msg.MessageID == "" {
		return queue.ErrInvalidMessage
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return queue.ErrClientClosed
	}

	q.seq++
	stored := msg.Clone()
	stored.SequenceNumber = q.seq
	stored.EnqueuedAt = q.now().UTC()
	stored.DeliveryCount = 0
	stored.State = queue.StateAvailable
	stored.LockToken = ""
	stored.LockedUntil = time.Time{}

	q.messages[stored.SequenceNumber] = stored
	q.broadcast()
	return nil
}

// Receive claims up to maxMessages available messages, waiting up to maxWait
// for at least one. Cancellation of ctx ends the wait with an empty result.
func (q *Queue) Receive(ctx context.Context, maxMessages int, maxWait time.Duration) ([]*queue.Message, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	deadline := time.Now().Add(maxWait)

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, queue.ErrClientClosed
		}
		if ctx.Err() != nil {
			q.mu.Unlock()
			return nil, nil
		}

		now := q.now()
		q.reclaimExpired(now)
		if claimed := q.claim(now, maxMessages); len(claimed) > 0 {
			q.mu.Unlock()
			return claimed, nil
		}

		changed := q.changed
		nextExpiry := q.nextExpiry()
		q.mu.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}
		if !nextExpiry.IsZero() {
			if untilExpiry := nextExpiry.Sub(now); untilExpiry < wait {
				wait = max(untilExpiry, time.Millisecond)
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil
		case <-changed:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// Peek returns copies of up to maxMessages messages without changing any state.
// Lock tokens are never exposed through Peek.
func (q *Queue) Peek(ctx context.Context, maxMessages int) ([]*queue.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, queue.ErrClientClosed
	}
	if maxMessages <= 0 {
		return nil, nil
	}

	now := q.now()
	result := make([]*queue.Message, 0, min(maxMessages, len(q.messages)))
	for _, seq := range q.sortedSequences() {
		if len(result) >= maxMessages {
			break
		}
		c := q.messages[seq].Clone()
		c.LockToken = ""
		if c.State == queue.StateLocked && !now.Before(c.LockedUntil) {
			// Expired but not yet reclaimed: report what a receiver would see.
			c.State = queue.StateAvailable
			c.LockedUntil = time.Time{}
		}
		result = append(result, c)
	}
	return result, nil
}

// Complete removes a locked message held by the caller.
func (q *Queue) Complete(ctx context.Context, msg *queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, err := q.lockedBy(msg)
	if err != nil {
		return err
	}

	delete(q.messages, stored.SequenceNumber)
	return nil
}

// Abandon releases the caller's lock, making the message available again
// (or dead-lettering it once the delivery limit is reached).
func (q *Queue) Abandon(ctx context.Context, msg *queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, err := q.lockedBy(msg)
	if err != nil {
		return err
	}

	q.release(stored)
	return nil
}

// DeadLetters returns copies of up to maxMessages dead-lettered messages.
func (q *Queue) DeadLetters(ctx context.Context, maxMessages int) ([]*queue.Message, error) {
	if maxMessages <= 0 {
		return nil, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.reclaimExpired(q.now())

	n := min(maxMessages, len(q.deadLetters))
	result := make([]*queue.Message, 0, n)
	for _, m := range q.deadLetters[:n] {
		result = append(result, m.Clone())
	}
	return result, nil
}

// Close shuts down the queue and wakes any waiting receivers.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	q.broadcast()
	return nil
}

// Len returns the number of messages that are available or locked.
// Useful for testing to verify queue state.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// lockedBy returns the stored message if msg's lock is still held. Must be called with mu held.
func (q *Queue) lockedBy(msg *queue.Message) (*queue.Message, error) {
	if q.closed {
		return nil, queue.ErrClientClosed
	}

	q.reclaimExpired(q.now())

	stored, ok := q.messages[msg.SequenceNumber]
	if !ok {
		return nil, fmt.Errorf("%w: message %s (seq %d) is no longer in the queue", queue.ErrLockLost, msg.MessageID, msg.SequenceNumber)
	}
	if stored.State != queue.StateLocked || msg.LockToken == "" || stored.LockToken != msg.LockToken {
		return nil, fmt.Errorf("%w: message %s (seq %d) is not locked by the caller", queue.ErrLockLost, msg.MessageID, msg.SequenceNumber)
	}
	return stored, nil
}

// claim locks up to n available messages. Must be called with mu held.
func (q *Queue) claim(now time.Time, n int) []*queue.Message {
	var claimed []*queue.Message
	for _, seq := range q.sortedSequences() {
		if len(claimed) >= n {
			break
		}
		m := q.messages[seq]
		if m.State != queue.StateAvailable {
			continue
		}

		m.State = queue.StateLocked
		m.DeliveryCount++
		m.LockToken = uuid.NewString()
		m.LockedUntil = now.Add(q.opts.LockDuration)
		claimed = append(claimed, m.Clone())
	}
	return claimed
}

// reclaimExpired returns messages with expired locks to Available. Must be called with mu held.
func (q *Queue) reclaimExpired(now time.Time) {
	for _, m := range q.messages {
		if m.State == queue.StateLocked && !now.Before(m.LockedUntil) {
			q.release(m)
		}
	}
}

// release drops the lock on m. Must be called with mu held.
func (q *Queue) release(m *queue.Message) {
	m.LockToken = ""
	m.LockedUntil = time.Time{}

	if m.DeliveryCount >= q.opts.MaxDeliveryCount {
		delete(q.messages, m.SequenceNumber)
		m.State = queue.StateDeadLettered
		q.deadLetters = append(q.deadLetters, m)
		return
	}

	m.State = queue.StateAvailable
	q.broadcast()
}

// nextExpiry returns the earliest lock expiry, or the zero time. Must be called with mu held.
func (q *Queue) nextExpiry() time.Time {
	var next time.Time
	for _, m := range q.messages {
		if m.State != queue.StateLocked {
			continue
		}
		if next.IsZero() || m.LockedUntil.Before(next) {
			next = m.LockedUntil
		}
	}
	return next
}

// sortedSequences returns the sequence numbers of held messages in ascending order.
func (q *Queue) sortedSequences() []int64 {
	seqs := make([]int64, 0, len(q.messages))
	for seq := range q.messages {
		seqs = append(seqs, seq)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs
}

// broadcast wakes all waiting receivers. Must be called with mu held.
func (q *Queue) broadcast() {
	close(q.changed)
	q.changed = make(chan struct{})
}
