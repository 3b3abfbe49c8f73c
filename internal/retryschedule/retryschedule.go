// Package retryschedule holds jobs awaiting retry in a timestamp-scored
// set backed by a Redis sorted set, with a poller loop that moves ready
// entries onto the Broker.
package retryschedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/crawlctl/internal/broker"
	"github.com/jonesrussell/crawlctl/internal/circuitbreaker"
	"github.com/jonesrussell/crawlctl/internal/logger"
)

const setKey = "retryschedule:jobs"

func payloadKey(jobID string) string { return "retryschedule:payload:" + jobID }

// Schedule is the Redis-ZSET-backed RetrySchedule: job ids scored by the
// unix second they become eligible for redelivery.
type Schedule struct {
	rdb *redis.Client
	ttl time.Duration
}

// New wires a Schedule over rdb. payloadTTL bounds how long a scheduled
// entry's broker payload survives if it's never popped (defensive cleanup;
// should exceed any realistic retry delay).
func New(rdb *redis.Client, payloadTTL time.Duration) *Schedule {
	if payloadTTL <= 0 {
		payloadTTL = 24 * time.Hour
	}
	return &Schedule{rdb: rdb, ttl: payloadTTL}
}

// ScheduleRetry adds jobID to the set, eligible at readyAt, carrying the
// broker payload to republish once ready.
func (s *Schedule) ScheduleRetry(ctx context.Context, jobID string, readyAt time.Time, payload json.RawMessage) error {
	if err := s.rdb.Set(ctx, payloadKey(jobID), string(payload), s.ttl).Err(); err != nil {
		return fmt.Errorf("retryschedule: store payload: %w", err)
	}
	score := float64(readyAt.Unix())
	if err := s.rdb.ZAdd(ctx, setKey, redis.Z{Score: score, Member: jobID}).Err(); err != nil {
		return fmt.Errorf("retryschedule: zadd: %w", err)
	}
	return nil
}

// Cancel removes jobID from the set and discards its payload (used by
// CancellationCoordinator when a retry-pending job is cancelled).
func (s *Schedule) Cancel(ctx context.Context, jobID string) error {
	if err := s.rdb.ZRem(ctx, setKey, jobID).Err(); err != nil {
		return fmt.Errorf("retryschedule: zrem: %w", err)
	}
	return s.rdb.Del(ctx, payloadKey(jobID)).Err()
}

// Due returns up to batch job ids whose score is <= now, in ascending score
// order, without removing them (the caller removes one at a time on
// publish success).
func (s *Schedule) Due(ctx context.Context, now time.Time, batch int64) ([]string, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, setKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.Unix()),
		Count: batch,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("retryschedule: zrangebyscore: %w", err)
	}
	return ids, nil
}

// Payload returns the stored broker payload for jobID.
func (s *Schedule) Payload(ctx context.Context, jobID string) (json.RawMessage, error) {
	raw, err := s.rdb.Get(ctx, payloadKey(jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("retryschedule: no payload for %s", jobID)
		}
		return nil, fmt.Errorf("retryschedule: get payload: %w", err)
	}
	return json.RawMessage(raw), nil
}

// Remove drops jobID from the set after a successful republish.
func (s *Schedule) Remove(ctx context.Context, jobID string) error {
	if err := s.rdb.ZRem(ctx, setKey, jobID).Err(); err != nil {
		return fmt.Errorf("retryschedule: zrem: %w", err)
	}
	return s.rdb.Del(ctx, payloadKey(jobID)).Err()
}

// Poller drives the retry-redelivery loop: every PollInterval, pop
// due entries and republish them to the Broker.
type Poller struct {
	schedule *Schedule
	br       *broker.Broker
	breaker  *circuitbreaker.Breaker
	log      logger.Interface

	PollInterval time.Duration
	BatchSize    int64
}

// NewPoller wires a Poller over schedule and br with the stock defaults
// (5 s interval, batch 100). The due-entry listing goes through a circuit
// breaker so an unreachable Redis is probed instead of polled hot.
func NewPoller(schedule *Schedule, br *broker.Broker, log logger.Interface) *Poller {
	return &Poller{
		schedule:     schedule,
		br:           br,
		breaker:      circuitbreaker.New(circuitbreaker.DefaultConfig()),
		log:          log,
		PollInterval: 5 * time.Second,
		BatchSize:    100,
	}
}

// Run blocks, polling until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick drains one batch of due entries immediately, independent of the
// Run loop cadence.
func (p *Poller) Tick(ctx context.Context) {
	var due []string
	err := p.breaker.Execute(ctx, func() error {
		var dueErr error
		due, dueErr = p.schedule.Due(ctx, time.Now().UTC(), p.BatchSize)
		return dueErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			p.log.Debug("retry poller: redis circuit open, skipping tick")
			return
		}
		p.log.Error("retry poller: list due entries failed", "error", err)
		return
	}
	for _, jobID := range due {
		if err := p.republish(ctx, jobID); err != nil {
			p.log.Warn("retry poller: republish failed, will retry next tick", "job_id", jobID, "error", err)
		}
	}
}

func (p *Poller) republish(ctx context.Context, jobID string) error {
	payload, err := p.schedule.Payload(ctx, jobID)
	if err != nil {
		// No payload to republish; drop the orphaned entry rather than spin forever.
		_ = p.schedule.Remove(ctx, jobID)
		return err
	}
	if err := p.br.Publish(ctx, jobID, payload); err != nil {
		return fmt.Errorf("retry poller: publish %s: %w", jobID, err)
	}
	return p.schedule.Remove(ctx, jobID)
}
