// Package logbus implements LogBus: a publish/subscribe fan-out
// of log records at subject `logs.{job_id}`, over Redis pub/sub.
package logbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/crawlctl/internal/domain"
)

// Bus publishes and subscribes to per-job log subjects.
type Bus struct {
	rdb *redis.Client
}

// New wires a Bus over rdb.
func New(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

func subject(jobID string) string { return "logs." + jobID }

// Publish sends rec's wire encoding to subject logs.{job_id}.
func (b *Bus) Publish(ctx context.Context, rec *domain.LogRecord) error {
	payload, err := json.Marshal(rec.ToWire())
	if err != nil {
		return fmt.Errorf("logbus: encode record: %w", err)
	}
	if err := b.rdb.Publish(ctx, subject(rec.JobRef), payload).Err(); err != nil {
		return fmt.Errorf("logbus: publish: %w", err)
	}
	return nil
}

// Subscription is a live subscription to one job's log subject.
type Subscription struct {
	pubsub *redis.PubSub
	ch     <-chan *redis.Message
}

// Subscribe opens a subscription to jobID's subject. The caller must call
// Close when done.
func (b *Bus) Subscribe(ctx context.Context, jobID string) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, subject(jobID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("logbus: subscribe: %w", err)
	}
	return &Subscription{pubsub: pubsub, ch: pubsub.Channel()}, nil
}

// Messages returns the channel of raw wire-encoded payloads.
func (s *Subscription) Messages() <-chan *redis.Message { return s.ch }

// Close unsubscribes and releases the underlying connection.
func (s *Subscription) Close() error { return s.pubsub.Close() }

// Available reports whether the bus can currently be reached, used by
// StreamEndpoint to decide between live subscription and the polling
// fallback.
func (b *Bus) Available(ctx context.Context) bool {
	return b.rdb.Ping(ctx).Err() == nil
}
