package logbuffer_test

import (
	"testing"

	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/logbuffer"
)

func record(jobID string, id int64) *domain.LogRecord {
	return &domain.LogRecord{ID: id, JobRef: jobID, Level: domain.LogLevelInfo, Message: "line"}
}

func TestBuffer_EvictsOldestAtCapacity(t *testing.T) {
	b := logbuffer.NewWithCapacity(3)
	for id := int64(1); id <= 5; id++ {
		b.Append(record("job-1", id))
	}

	got := b.Tail("job-1", 0)
	if len(got) != 3 {
		t.Fatalf("Tail() returned %d records, want 3", len(got))
	}
	for i, want := range []int64{3, 4, 5} {
		if got[i].ID != want {
			t.Errorf("Tail()[%d].ID = %d, want %d", i, got[i].ID, want)
		}
	}
}

func TestBuffer_TailLimitsAndOrders(t *testing.T) {
	b := logbuffer.New()
	for id := int64(1); id <= 10; id++ {
		b.Append(record("job-1", id))
	}

	got := b.Tail("job-1", 4)
	if len(got) != 4 {
		t.Fatalf("Tail(4) returned %d records", len(got))
	}
	for i, want := range []int64{7, 8, 9, 10} {
		if got[i].ID != want {
			t.Errorf("Tail(4)[%d].ID = %d, want %d", i, got[i].ID, want)
		}
	}
}

func TestBuffer_AfterReplaysGaplessRange(t *testing.T) {
	// A subscriber that disconnected at id 42 and reconnects with
	// resume_after=42 gets 43..80 in order.
	b := logbuffer.New()
	for id := int64(1); id <= 80; id++ {
		b.Append(record("job-1", id))
	}

	got, ok := b.After("job-1", 42)
	if !ok {
		t.Fatal("After(42) reported the id as fallen out of a non-full buffer")
	}
	if len(got) != 38 {
		t.Fatalf("After(42) returned %d records, want 38", len(got))
	}
	for i, rec := range got {
		if want := int64(43 + i); rec.ID != want {
			t.Fatalf("After(42)[%d].ID = %d, want %d (no gaps, no duplicates)", i, rec.ID, want)
		}
	}
}

func TestBuffer_AfterDetectsEvictedResumePoint(t *testing.T) {
	b := logbuffer.NewWithCapacity(10)
	for id := int64(1); id <= 50; id++ {
		b.Append(record("job-1", id))
	}

	// Oldest buffered id is 41; resuming after 30 would skip 31..40.
	if _, ok := b.After("job-1", 30); ok {
		t.Error("After(30) should report a gap so the caller replays from the store")
	}

	// Resuming after 40 is exactly contiguous with the oldest entry.
	got, ok := b.After("job-1", 40)
	if !ok {
		t.Fatal("After(40) should be servable from the buffer")
	}
	if len(got) != 10 || got[0].ID != 41 {
		t.Errorf("After(40) = %d records starting at %d, want 10 starting at 41", len(got), got[0].ID)
	}
}

func TestBuffer_UnknownJob(t *testing.T) {
	b := logbuffer.New()
	if got := b.Tail("nope", 10); got != nil {
		t.Errorf("Tail(unknown) = %v, want nil", got)
	}
	if _, ok := b.After("nope", 0); ok {
		t.Error("After(unknown) should report not-servable")
	}
}

func TestBuffer_ReleaseDiscardsRing(t *testing.T) {
	b := logbuffer.New()
	b.Append(record("job-1", 1))
	b.Release("job-1")
	if got := b.Tail("job-1", 0); got != nil {
		t.Errorf("Tail() after Release = %v, want nil", got)
	}
}

func TestBuffer_JobsAreIsolated(t *testing.T) {
	b := logbuffer.NewWithCapacity(2)
	b.Append(record("job-a", 1))
	b.Append(record("job-b", 100))
	b.Append(record("job-a", 2))

	got := b.Tail("job-b", 0)
	if len(got) != 1 || got[0].ID != 100 {
		t.Errorf("Tail(job-b) = %+v, want the single record 100", got)
	}
}
