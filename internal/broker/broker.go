// Package broker implements a durable work queue
// over a single Redis Stream (the "<stream>.jobs" subject), with consumer
// groups standing in for a pull consumer, a SETNX guard for dedup (Redis
// Streams has no native msg-id header the way a JetStream-like broker
// does), and XPENDING/XCLAIM for redelivery and max_deliver enforcement.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQueueFull is returned by Publish when the stream is at its configured
// MaxMsgs limit; overload is surfaced to the publisher, never silently
// dropped.
var ErrQueueFull = errors.New("broker: queue full")

// ErrNotFound is returned by Remove when no queued message exists for the
// job id (already consumed, already removed, or never published).
var ErrNotFound = errors.New("broker: message not found")

const (
	dataField     = "payload"
	jobIDField    = "job_id"
	enqueuedField = "enqueued_at"
)

// Config configures stream name, consumer identity, and the operational
// limits.
type Config struct {
	StreamName    string
	ConsumerGroup string
	ConsumerName  string
	MaxMsgs       int64
	DedupWindow   time.Duration
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
}

// DefaultConfig matches the stock deployment configuration.
func DefaultConfig() Config {
	return Config{
		StreamName:    "CRAWLER",
		ConsumerGroup: "workers",
		ConsumerName:  "worker",
		MaxMsgs:       100_000,
		DedupWindow:   300 * time.Second,
		AckWait:       300 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 10,
	}
}

// Message is one delivered unit of work.
type Message struct {
	ID          string
	JobID       string
	Payload     json.RawMessage
	EnqueuedAt  time.Time
	DeliveryNum int64
}

// Broker is a Redis Streams-backed implementation of the work-queue
// contract: publish with dedup, consumer-group delivery with redelivery up
// to MaxDeliver, targeted removal for cancellation, and depth/stats.
type Broker struct {
	rdb    *redis.Client
	cfg    Config
	stream string
}

// New wires a Broker over rdb and ensures the consumer group exists.
func New(ctx context.Context, rdb *redis.Client, cfg Config) (*Broker, error) {
	b := &Broker{rdb: rdb, cfg: cfg, stream: cfg.StreamName + ".jobs"}
	err := rdb.XGroupCreateMkStream(ctx, b.stream, cfg.ConsumerGroup, "0").Err()
	if err != nil && !isBusyGroupErr(err) {
		return nil, fmt.Errorf("broker: create consumer group: %w", err)
	}
	return b, nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists")
}

func dedupKey(jobID string) string { return "broker:dedup:" + jobID }
func msgIDKey(jobID string) string { return "broker:msgid:" + jobID }

// Publish enqueues payload for jobID. A publish for a jobID already
// in-queue or in-flight within the dedup window is a no-op, returning nil;
// Ack and Remove release the guard, so republishing a job after its
// previous delivery completed (the retry path) always goes through. When
// the stream is at MaxMsgs, Publish returns ErrQueueFull rather than
// dropping silently.
func (b *Broker) Publish(ctx context.Context, jobID string, payload json.RawMessage) error {
	if b.cfg.MaxMsgs > 0 {
		depth, err := b.Depth(ctx)
		if err != nil {
			return fmt.Errorf("broker: check depth: %w", err)
		}
		if depth >= b.cfg.MaxMsgs {
			return ErrQueueFull
		}
	}

	acquired, err := b.rdb.SetNX(ctx, dedupKey(jobID), "1", b.cfg.DedupWindow).Result()
	if err != nil {
		return fmt.Errorf("broker: dedup guard: %w", err)
	}
	if !acquired {
		return nil
	}

	now := time.Now().UTC()
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: b.cfg.MaxMsgs,
		Approx: true,
		Values: map[string]any{
			jobIDField:    jobID,
			dataField:     string(payload),
			enqueuedField: now.Format(time.RFC3339Nano),
		},
	}).Result()
	if err != nil {
		b.rdb.Del(ctx, dedupKey(jobID))
		return fmt.Errorf("broker: publish: %w", err)
	}

	if err := b.rdb.Set(ctx, msgIDKey(jobID), id, b.cfg.DedupWindow).Err(); err != nil {
		return fmt.Errorf("broker: record message id: %w", err)
	}
	return nil
}

// Consume blocks (respecting ctx) for up to one new message, reclaiming any
// idle pending entries first so redelivery happens ahead of fresh work.
func (b *Broker) Consume(ctx context.Context) (*Message, error) {
	if msg, err := b.reclaimOne(ctx); err != nil {
		return nil, err
	} else if msg != nil {
		return msg, nil
	}

	streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.cfg.ConsumerGroup,
		Consumer: b.cfg.ConsumerName,
		Streams:  []string{b.stream, ">"},
		Count:    1,
		Block:    2 * time.Second,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("broker: read group: %w", err)
	}
	for _, s := range streams {
		for _, m := range s.Messages {
			return messageFromRedis(m, 1), nil
		}
	}
	return nil, nil
}

// reclaimOne claims one pending entry idle longer than AckWait, dropping it
// (XAck without further processing) if it has already been delivered
// MaxDeliver times.
func (b *Broker) reclaimOne(ctx context.Context) (*Message, error) {
	pending, err := b.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: b.stream,
		Group:  b.cfg.ConsumerGroup,
		Idle:   b.cfg.AckWait,
		Start:  "-",
		End:    "+",
		Count:  1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("broker: xpending: %w", err)
	}
	if len(pending) == 0 {
		return nil, nil
	}
	entry := pending[0]

	if entry.RetryCount >= int64(b.cfg.MaxDeliver) {
		b.dropEntry(ctx, entry.ID)
		return nil, nil
	}

	claimed, err := b.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   b.stream,
		Group:    b.cfg.ConsumerGroup,
		Consumer: b.cfg.ConsumerName,
		MinIdle:  b.cfg.AckWait,
		Messages: []string{entry.ID},
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("broker: xclaim: %w", err)
	}
	if len(claimed) == 0 {
		return nil, nil
	}
	return messageFromRedis(claimed[0], entry.RetryCount+1), nil
}

// dropEntry discards a stream entry that exhausted MaxDeliver, releasing
// the job's dedup guard and message-id mapping along with it.
func (b *Broker) dropEntry(ctx context.Context, entryID string) {
	if entries, err := b.rdb.XRange(ctx, b.stream, entryID, entryID).Result(); err == nil && len(entries) > 0 {
		if jobID, ok := entries[0].Values[jobIDField].(string); ok && jobID != "" {
			b.rdb.Del(ctx, msgIDKey(jobID), dedupKey(jobID))
		}
	}
	b.rdb.XAck(ctx, b.stream, b.cfg.ConsumerGroup, entryID)
	b.rdb.XDel(ctx, b.stream, entryID)
}

func messageFromRedis(m redis.XMessage, deliveryNum int64) *Message {
	jobID, _ := m.Values[jobIDField].(string)
	payload, _ := m.Values[dataField].(string)
	enqueuedRaw, _ := m.Values[enqueuedField].(string)
	enqueuedAt, _ := time.Parse(time.RFC3339Nano, enqueuedRaw)
	return &Message{
		ID:          m.ID,
		JobID:       jobID,
		Payload:     json.RawMessage(payload),
		EnqueuedAt:  enqueuedAt,
		DeliveryNum: deliveryNum,
	}
}

// Ack acknowledges successful processing. Work-queue retention: the acked
// entry is deleted from the stream, so Depth counts only outstanding
// messages, and the job's dedup guard is released so a later republish of
// the same id (a scheduled retry) isn't swallowed by the original
// publish's window.
func (b *Broker) Ack(ctx context.Context, msg *Message) error {
	if err := b.rdb.XAck(ctx, b.stream, b.cfg.ConsumerGroup, msg.ID).Err(); err != nil {
		return fmt.Errorf("broker: ack: %w", err)
	}
	if err := b.rdb.XDel(ctx, b.stream, msg.ID).Err(); err != nil {
		return fmt.Errorf("broker: trim acked entry: %w", err)
	}
	b.rdb.Del(ctx, msgIDKey(msg.JobID), dedupKey(msg.JobID))
	return nil
}

// Nak releases the message back to the pending list without acking it; it
// becomes eligible for reclaim once it's idle past AckWait.
func (b *Broker) Nak(_ context.Context, _ *Message) error {
	return nil
}

// Remove best-effort deletes a not-yet-consumed message for jobID, used
// when a still-pending job is cancelled. Returns ErrNotFound if no mapping
// exists (already consumed/removed/never published).
func (b *Broker) Remove(ctx context.Context, jobID string) error {
	id, err := b.rdb.Get(ctx, msgIDKey(jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("broker: lookup message id: %w", err)
	}
	if err := b.rdb.XDel(ctx, b.stream, id).Err(); err != nil {
		return fmt.Errorf("broker: remove: %w", err)
	}
	b.rdb.Del(ctx, msgIDKey(jobID), dedupKey(jobID))
	return nil
}

// Depth returns the number of outstanding (not yet acked) messages.
func (b *Broker) Depth(ctx context.Context) (int64, error) {
	n, err := b.rdb.XLen(ctx, b.stream).Result()
	if err != nil {
		return 0, fmt.Errorf("broker: xlen: %w", err)
	}
	return n, nil
}

// ConsumerStats summarizes in-flight work for operator visibility.
type ConsumerStats struct {
	Pending   int64
	Consumers int
}

// ConsumerStats reports pending-entries-list size and active consumer count.
func (b *Broker) ConsumerStats(ctx context.Context) (ConsumerStats, error) {
	summary, err := b.rdb.XPending(ctx, b.stream, b.cfg.ConsumerGroup).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ConsumerStats{}, nil
		}
		return ConsumerStats{}, fmt.Errorf("broker: xpending summary: %w", err)
	}

	consumers, err := b.rdb.XInfoConsumers(ctx, b.stream, b.cfg.ConsumerGroup).Result()
	if err != nil {
		return ConsumerStats{Pending: summary.Count}, nil
	}
	return ConsumerStats{Pending: summary.Count, Consumers: len(consumers)}, nil
}
