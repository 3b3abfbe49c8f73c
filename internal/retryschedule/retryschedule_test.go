package retryschedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/crawlctl/internal/broker"
	"github.com/jonesrussell/crawlctl/internal/logger"
	"github.com/jonesrussell/crawlctl/internal/retryschedule"
)

func newSchedule(t *testing.T) (*retryschedule.Schedule, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return retryschedule.New(rdb, time.Hour), rdb
}

func TestSchedule_DueReturnsOnlyRipeEntries(t *testing.T) {
	s, _ := newSchedule(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.ScheduleRetry(ctx, "ripe", now.Add(-time.Minute), []byte(`{"job_id":"ripe"}`)); err != nil {
		t.Fatalf("ScheduleRetry(ripe) error = %v", err)
	}
	if err := s.ScheduleRetry(ctx, "future", now.Add(time.Hour), []byte(`{"job_id":"future"}`)); err != nil {
		t.Fatalf("ScheduleRetry(future) error = %v", err)
	}

	due, err := s.Due(ctx, now, 100)
	if err != nil {
		t.Fatalf("Due() error = %v", err)
	}
	if len(due) != 1 || due[0] != "ripe" {
		t.Errorf("Due() = %v, want [ripe]", due)
	}
}

func TestSchedule_DueOrdersByScoreAscending(t *testing.T) {
	s, _ := newSchedule(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, id := range []string{"third", "first", "second"} {
		offsets := map[string]time.Duration{"first": -3 * time.Minute, "second": -2 * time.Minute, "third": -1 * time.Minute}
		if err := s.ScheduleRetry(ctx, id, now.Add(offsets[id]), []byte(`{}`)); err != nil {
			t.Fatalf("ScheduleRetry(%d) error = %v", i, err)
		}
	}

	due, err := s.Due(ctx, now, 100)
	if err != nil {
		t.Fatalf("Due() error = %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(due) != len(want) {
		t.Fatalf("Due() = %v, want %v", due, want)
	}
	for i := range want {
		if due[i] != want[i] {
			t.Errorf("Due()[%d] = %q, want %q", i, due[i], want[i])
		}
	}
}

func TestSchedule_RemoveDiscardsEntryAndPayload(t *testing.T) {
	s, _ := newSchedule(t)
	ctx := context.Background()

	if err := s.ScheduleRetry(ctx, "job-1", time.Now(), []byte(`{}`)); err != nil {
		t.Fatalf("ScheduleRetry() error = %v", err)
	}
	if err := s.Remove(ctx, "job-1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	due, err := s.Due(ctx, time.Now().Add(time.Minute), 100)
	if err != nil {
		t.Fatalf("Due() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("Due() after Remove = %v, want empty", due)
	}
	if _, err := s.Payload(ctx, "job-1"); err == nil {
		t.Error("Payload() after Remove should fail")
	}
}

func TestPoller_RepublishesDueEntriesToBroker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	cfg := broker.DefaultConfig()
	cfg.StreamName = "RETRYTEST"
	br, err := broker.New(ctx, rdb, cfg)
	if err != nil {
		t.Fatalf("broker.New() error = %v", err)
	}
	schedule := retryschedule.New(rdb, time.Hour)

	now := time.Now().UTC()
	if err := schedule.ScheduleRetry(ctx, "due-job", now.Add(-time.Second), []byte(`{"job_id":"due-job"}`)); err != nil {
		t.Fatalf("ScheduleRetry(due-job) error = %v", err)
	}
	if err := schedule.ScheduleRetry(ctx, "later-job", now.Add(time.Hour), []byte(`{"job_id":"later-job"}`)); err != nil {
		t.Fatalf("ScheduleRetry(later-job) error = %v", err)
	}

	poller := retryschedule.NewPoller(schedule, br, logger.NewNoOp())
	poller.Tick(ctx)

	depth, err := br.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if depth != 1 {
		t.Errorf("broker depth = %d, want 1 (only the due entry republished)", depth)
	}

	due, err := schedule.Due(ctx, now.Add(2*time.Hour), 100)
	if err != nil {
		t.Fatalf("Due() error = %v", err)
	}
	if len(due) != 1 || due[0] != "later-job" {
		t.Errorf("remaining schedule = %v, want [later-job]", due)
	}
}

func TestPoller_RepublishesJobAlreadyPublishedAndAcked(t *testing.T) {
	// The real retry path: the job was published at submission, consumed,
	// failed, and only then scheduled for retry. The republish of the same
	// job id must not be swallowed by the submission publish's dedup window.
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	cfg := broker.DefaultConfig()
	cfg.StreamName = "RETRYROUNDTRIP"
	br, err := broker.New(ctx, rdb, cfg)
	if err != nil {
		t.Fatalf("broker.New() error = %v", err)
	}

	payload := []byte(`{"job_id":"retry-job"}`)
	if err := br.Publish(ctx, "retry-job", payload); err != nil {
		t.Fatalf("submission Publish() error = %v", err)
	}
	msg, err := br.Consume(ctx)
	if err != nil || msg == nil {
		t.Fatalf("Consume() = %v, %v", msg, err)
	}
	if err := br.Ack(ctx, msg); err != nil {
		t.Fatalf("Ack() error = %v", err)
	}

	schedule := retryschedule.New(rdb, time.Hour)
	if err := schedule.ScheduleRetry(ctx, "retry-job", time.Now().UTC().Add(-time.Second), payload); err != nil {
		t.Fatalf("ScheduleRetry() error = %v", err)
	}

	poller := retryschedule.NewPoller(schedule, br, logger.NewNoOp())
	poller.Tick(ctx)

	depth, err := br.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth() error = %v", err)
	}
	if depth != 1 {
		t.Errorf("broker depth = %d, want 1 (retry republish must reach the stream)", depth)
	}
	due, err := schedule.Due(ctx, time.Now().UTC(), 100)
	if err != nil {
		t.Fatalf("Due() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("schedule after republish = %v, want empty", due)
	}
}

func TestPoller_LeavesEntryWhenPublishFails(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	// MaxMsgs=1 with a pre-filled stream forces ErrQueueFull on republish.
	cfg := broker.DefaultConfig()
	cfg.StreamName = "FULLTEST"
	cfg.MaxMsgs = 1
	br, err := broker.New(ctx, rdb, cfg)
	if err != nil {
		t.Fatalf("broker.New() error = %v", err)
	}
	if err := br.Publish(ctx, "occupant", []byte(`{}`)); err != nil {
		t.Fatalf("Publish(occupant) error = %v", err)
	}

	schedule := retryschedule.New(rdb, time.Hour)
	if err := schedule.ScheduleRetry(ctx, "blocked-job", time.Now().Add(-time.Second), []byte(`{}`)); err != nil {
		t.Fatalf("ScheduleRetry() error = %v", err)
	}

	poller := retryschedule.NewPoller(schedule, br, logger.NewNoOp())
	poller.Tick(ctx)

	// Publish failed, so the entry stays for the next tick.
	due, err := schedule.Due(ctx, time.Now(), 100)
	if err != nil {
		t.Fatalf("Due() error = %v", err)
	}
	if len(due) != 1 || due[0] != "blocked-job" {
		t.Errorf("schedule after failed publish = %v, want [blocked-job]", due)
	}
}
