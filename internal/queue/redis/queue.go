// Package redis provides a Redis-backed implementation of queue.Client.
//
// Queue state lives in a handful of keys per queue and every state
// transition runs as a Lua script, so Redis is the single serialization
// point for all receivers sharing the queue.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"orderbus-go/internal/config"
	"orderbus-go/internal/queue"
)

// DefaultPollInterval is how often Receive polls while waiting for messages.
const DefaultPollInterval = 100 * time.Millisecond

// Option customizes a Queue.
type Option func(*Queue)

// WithClock replaces the time source used for lock expiry.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// WithPollInterval sets how often Receive polls while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		q.pollInterval = d
	}
}

// WithSettleRetry sets the retry policy for Complete and Abandon.
func WithSettleRetry(r queue.SettleRetry) Option {
	return func(q *Queue) {
		q.settle = r
	}
}

// Queue implements queue.Client using Redis.
type Queue struct {
	client       redis.UniversalClient
	ownsClient   bool
	opts         queue.Options
	keys         []string
	now          func() time.Time
	pollInterval time.Duration
	settle       queue.SettleRetry
}

// record is the immutable part of a message stored in Redis.
type record struct {
	MessageID             string            `json:"messageId"`
	ContentType           string            `json:"contentType"`
	Subject               string            `json:"subject"`
	Body                  []byte            `json:"body"`
	ApplicationProperties map[string]string `json:"applicationProperties,omitempty"`
	EnqueuedAt            time.Time         `json:"enqueuedAt"`
}

// Dial connects to Redis and returns a queue that owns the connection.
func Dial(ctx context.Context, cfg *config.RedisConfig, opts queue.Options, options ...Option) (*Queue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: failed to connect to redis: %w", queue.ErrConnection, err)
	}

	q := New(client, cfg.KeyPrefix, opts, options...)
	q.ownsClient = true
	return q, nil
}

// New creates a queue on an existing client. The caller keeps ownership of client.
func New(client redis.UniversalClient, keyPrefix string, opts queue.Options, options ...Option) *Queue {
	opts = opts.WithDefaults()
	q := &Queue{
		client:       client,
		opts:         opts,
		keys:         queueKeys(keyPrefix, opts.Name),
		now:          time.Now,
		pollInterval: DefaultPollInterval,
		settle:       queue.DefaultSettleRetry(),
	}
	for _, opt := range options {
		opt(q)
	}
	return q
}

// queueKeys returns the script keys for a queue, in script order.
// The hash tag keeps all keys of one queue in the same cluster slot.
func queueKeys(prefix, name string) []string {
	base := fmt.Sprintf("%s:{%s}:", prefix, name)
	return []string{
		base + "msgs",
		base + "available",
		base + "locked",
		base + "deliveries",
		base + "tokens",
		base + "deadletter",
		base + "seq",
	}
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.opts.Name
}

// Send appends msg to the queue in the Available state.
func (q *Queue) Send(ctx context.Context, msg *queue.Message) error {
	if msg == nil || msg.MessageID == "" {
		return queue.ErrInvalidMessage
	}

	data, err := json.Marshal(record{
		MessageID:             msg.MessageID,
		ContentType:           msg.ContentType,
		Subject:               msg.Subject,
		Body:                  msg.Body,
		ApplicationProperties: msg.ApplicationProperties,
		EnqueuedAt:            q.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := sendScript.Run(ctx, q.client, q.keys, data).Err(); err != nil {
		return q.transportError("send", err)
	}
	return nil
}

// Receive claims up to maxMessages messages, polling until maxWait elapses.
// Cancellation of ctx ends the wait with an empty result.
func (q *Queue) Receive(ctx context.Context, maxMessages int, maxWait time.Duration) ([]*queue.Message, error) {
	if maxMessages <= 0 {
		maxMessages = 1
	}
	deadline := time.Now().Add(maxWait)

	for {
		msgs, err := q.claim(ctx, maxMessages)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil
			}
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(min(wait, q.pollInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, nil
		case <-timer.C:
		}
	}
}

func (q *Queue) claim(ctx context.Context, n int) ([]*queue.Message, error) {
	now := q.now()
	lockedUntil := now.Add(q.opts.LockDuration)

	args := make([]any, 0, 4+n)
	args = append(args, now.UnixMilli(), q.opts.MaxDeliveryCount, lockedUntil.UnixMilli(), n)
	for i := 0; i < n; i++ {
		args = append(args, uuid.NewString())
	}

	res, err := receiveScript.Run(ctx, q.client, q.keys, args...).Slice()
	if err != nil {
		return nil, q.transportError("receive", err)
	}

	msgs := make([]*queue.Message, 0, len(res))
	for _, row := range res {
		fields, ok := row.([]any)
		if !ok || len(fields) < 4 {
			return nil, fmt.Errorf("unexpected receive result %v", row)
		}
		msg, err := decodeRow(fields)
		if err != nil {
			return nil, err
		}
		msg.State = queue.StateLocked
		msg.LockToken = asString(fields[3])
		// Millisecond precision matches the stored lock expiry.
		msg.LockedUntil = time.UnixMilli(lockedUntil.UnixMilli()).UTC()
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Peek returns up to maxMessages available or locked messages, ordered by
// sequence number, without changing any state. Lock tokens are not exposed.
func (q *Queue) Peek(ctx context.Context, maxMessages int) ([]*queue.Message, error) {
	if maxMessages <= 0 {
		return nil, nil
	}

	res, err := peekScript.Run(ctx, q.client, q.keys, maxMessages).Slice()
	if err != nil {
		return nil, q.transportError("peek", err)
	}

	nowMs := q.now().UnixMilli()
	msgs := make([]*queue.Message, 0, len(res))
	for _, row := range res {
		fields, ok := row.([]any)
		if !ok || len(fields) < 4 {
			return nil, fmt.Errorf("unexpected peek result %v", row)
		}
		msg, err := decodeRow(fields)
		if err != nil {
			return nil, err
		}

		msg.State = queue.StateAvailable
		if expiry := asString(fields[3]); expiry != "" {
			ms, err := strconv.ParseFloat(expiry, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid lock expiry %q: %w", expiry, err)
			}
			// Expired but not yet reclaimed locks are reported as available.
			if int64(ms) > nowMs {
				msg.State = queue.StateLocked
				msg.LockedUntil = time.UnixMilli(int64(ms)).UTC()
			}
		}
		msgs = append(msgs, msg)
	}

	sort.Slice(msgs, func(i, j int) bool { return msgs[i].SequenceNumber < msgs[j].SequenceNumber })
	if len(msgs) > maxMessages {
		msgs = msgs[:maxMessages]
	}
	return msgs, nil
}

// Complete removes a message the caller holds the lock for.
func (q *Queue) Complete(ctx context.Context, msg *queue.Message) error {
	return q.settleWith(ctx, "complete", completeScript, msg)
}

// Abandon releases the caller's lock so the message can be redelivered.
func (q *Queue) Abandon(ctx context.Context, msg *queue.Message) error {
	return q.settleWith(ctx, "abandon", abandonScript, msg)
}

func (q *Queue) settleWith(ctx context.Context, op string, script *redis.Script, msg *queue.Message) error {
	if msg.LockToken == "" {
		return fmt.Errorf("%w: message %s has no lock token", queue.ErrLockLost, msg.MessageID)
	}

	return queue.Settle(ctx, q.settle, func(ctx context.Context) error {
		ok, err := script.Run(ctx, q.client, q.keys,
			q.now().UnixMilli(), q.opts.MaxDeliveryCount, msg.SequenceNumber, msg.LockToken,
		).Int()
		if err != nil {
			return q.transportError(op, err)
		}
		if ok == 0 {
			return fmt.Errorf("%w: message %s (seq %d) is not locked by the caller", queue.ErrLockLost, msg.MessageID, msg.SequenceNumber)
		}
		return nil
	})
}

// DeadLetters returns up to maxMessages dead-lettered messages.
func (q *Queue) DeadLetters(ctx context.Context, maxMessages int) ([]*queue.Message, error) {
	if maxMessages <= 0 {
		return nil, nil
	}

	res, err := deadLettersScript.Run(ctx, q.client, q.keys,
		q.now().UnixMilli(), q.opts.MaxDeliveryCount, maxMessages,
	).Slice()
	if err != nil {
		return nil, q.transportError("read dead letters", err)
	}

	msgs := make([]*queue.Message, 0, len(res))
	for _, row := range res {
		fields, ok := row.([]any)
		if !ok || len(fields) < 3 {
			return nil, fmt.Errorf("unexpected dead letter result %v", row)
		}
		msg, err := decodeRow(fields)
		if err != nil {
			return nil, err
		}
		msg.State = queue.StateDeadLettered
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Close closes the Redis connection if the queue created it.
func (q *Queue) Close() error {
	if q.ownsClient && q.client != nil {
		return q.client.Close()
	}
	return nil
}

// transportError classifies a Redis failure.
func (q *Queue) transportError(op string, err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: failed to %s on queue %s", queue.ErrClientClosed, op, q.opts.Name)
	}
	return fmt.Errorf("%w: failed to %s on queue %s: %w", queue.ErrConnection, op, q.opts.Name, err)
}

// decodeRow builds a message from {seq, record, deliveryCount, ...}.
func decodeRow(fields []any) (*queue.Message, error) {
	seq, err := strconv.ParseInt(asString(fields[0]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid sequence number %v: %w", fields[0], err)
	}

	var rec record
	if err := json.Unmarshal([]byte(asString(fields[1])), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message %d: %w", seq, err)
	}

	count, err := strconv.Atoi(asString(fields[2]))
	if err != nil {
		return nil, fmt.Errorf("invalid delivery count %v: %w", fields[2], err)
	}

	return &queue.Message{
		MessageID:             rec.MessageID,
		ContentType:           rec.ContentType,
		Subject:               rec.Subject,
		Body:                  rec.Body,
		ApplicationProperties: rec.ApplicationProperties,
		SequenceNumber:        seq,
		EnqueuedAt:            rec.EnqueuedAt,
		DeliveryCount:         count,
	}, nil
}

// asString normalizes the string and integer replies Lua scripts return.
func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
