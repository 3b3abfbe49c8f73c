// Package logbuffer implements LogBuffer: a bounded,
// in-memory, per-job ring of the most recent log records, used to serve
// StreamEndpoint replay without a Store round-trip.
package logbuffer

import (
	"sync"

	"github.com/jonesrussell/crawlctl/internal/domain"
)

// DefaultCapacity is the default per-job ring size.
const DefaultCapacity = 1000

// ring is a fixed-capacity, insertion-ordered buffer of the most recent
// records for one job.
type ring struct {
	records []*domain.LogRecord // oldest first, length <= capacity
}

func (r *ring) push(rec *domain.LogRecord, capacity int) {
	r.records = append(r.records, rec)
	if len(r.records) > capacity {
		r.records = r.records[len(r.records)-capacity:]
	}
}

// Buffer holds one ring per job, created lazily on first Append.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	jobs     map[string]*ring
}

// New creates a Buffer with DefaultCapacity per job.
func New() *Buffer {
	return &Buffer{capacity: DefaultCapacity, jobs: make(map[string]*ring)}
}

// NewWithCapacity creates a Buffer with a custom per-job ring size,
// primarily for tests.
func NewWithCapacity(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity, jobs: make(map[string]*ring)}
}

// Append adds rec to its job's ring, evicting the oldest entry once the
// ring is at capacity.
func (b *Buffer) Append(rec *domain.LogRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.jobs[rec.JobRef]
	if !ok {
		r = &ring{}
		b.jobs[rec.JobRef] = r
	}
	r.push(rec, b.capacity)
}

// Tail returns up to n of the most recent buffered records for jobID,
// oldest first.
func (b *Buffer) Tail(jobID string, n int) []*domain.LogRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.jobs[jobID]
	if !ok {
		return nil
	}
	if n <= 0 || n > len(r.records) {
		n = len(r.records)
	}
	out := make([]*domain.LogRecord, n)
	copy(out, r.records[len(r.records)-n:])
	return out
}

// After returns the buffered records for jobID with id > afterID, oldest
// first. Returns (nil, false) if afterID has already fallen out of the
// buffer (the oldest buffered id is itself > afterID+1, i.e. there's a gap)
// so the caller must fall back to the Store.
func (b *Buffer) After(jobID string, afterID int64) ([]*domain.LogRecord, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.jobs[jobID]
	if !ok || len(r.records) == 0 {
		return nil, false
	}

	oldest := r.records[0].ID
	if afterID < oldest-1 {
		return nil, false
	}

	var out []*domain.LogRecord
	for _, rec := range r.records {
		if rec.ID > afterID {
			out = append(out, rec)
		}
	}
	return out, true
}

// Release discards jobID's ring once its job has reached a terminal state
// and no subscriber can still need replay.
func (b *Buffer) Release(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.jobs, jobID)
}
