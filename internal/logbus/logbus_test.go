package logbus_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/logbus"
)

func newBus(t *testing.T) (*logbus.Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return logbus.New(rdb), mr
}

func TestBus_PublishReachesSubscriber(t *testing.T) {
	bus, _ := newBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "job-1")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	rec := &domain.LogRecord{
		ID:        7,
		JobRef:    "job-1",
		Level:     domain.LogLevelInfo,
		Message:   "fetched listing page",
		CreatedAt: time.Now().UTC(),
	}
	if err := bus.Publish(ctx, rec); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-sub.Messages():
		var wire domain.WireRecord
		if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
			t.Fatalf("payload is not wire JSON: %v", err)
		}
		if wire.ID != 7 || wire.JobID != "job-1" || wire.LogLevel != domain.LogLevelInfo {
			t.Errorf("wire record = %+v", wire)
		}
		if wire.Message != "fetched listing page" {
			t.Errorf("Message = %q", wire.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the published record")
	}
}

func TestBus_SubjectsAreScopedByJob(t *testing.T) {
	bus, _ := newBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "job-a")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	other := &domain.LogRecord{ID: 1, JobRef: "job-b", Level: domain.LogLevelInfo, Message: "elsewhere"}
	if err := bus.Publish(ctx, other); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-sub.Messages():
		t.Errorf("job-a subscriber received job-b's record: %s", msg.Payload)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBus_Available(t *testing.T) {
	bus, mr := newBus(t)
	if !bus.Available(context.Background()) {
		t.Error("Available() = false with a live redis")
	}
	mr.Close()
	if bus.Available(context.Background()) {
		t.Error("Available() = true after redis went away")
	}
}
