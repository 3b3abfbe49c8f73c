// Package dlq implements DLQManager: quarantining jobs whose
// retries are exhausted or whose error is non-retryable, and recording
// operator-driven manual retry/resolution.
package dlq

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// Manager wraps the DLQ store repository with the quarantine workflow.
type Manager struct {
	repo *store.DLQRepository
}

// New wires a Manager over repo.
func New(repo *store.DLQRepository) *Manager {
	return &Manager{repo: repo}
}

// FailureSnapshot captures what's needed to quarantine a job: its current
// shape plus the final error that exhausted its retries.
type FailureSnapshot struct {
	JobID          string
	SeedURL        string
	WebsiteRef     *string
	JobType        string
	Priority       int
	ErrorCategory  string
	ErrorMessage   string
	StackTrace     *string
	HTTPStatus     *int
	TotalAttempts  int
	FirstAttemptAt time.Time
	LastAttemptAt  time.Time
}

// Quarantine inserts a DLQEntry capturing snap. The caller is responsible
// for marking the job status=failed in the same logical operation;
// Quarantine only owns the DLQ row.
func (m *Manager) Quarantine(ctx context.Context, snap FailureSnapshot) (*domain.DLQEntry, error) {
	entry := &domain.DLQEntry{
		JobRef:         snap.JobID,
		SeedURL:        snap.SeedURL,
		WebsiteRef:     snap.WebsiteRef,
		JobType:        snap.JobType,
		Priority:       snap.Priority,
		ErrorCategory:  snap.ErrorCategory,
		ErrorMessage:   snap.ErrorMessage,
		StackTrace:     snap.StackTrace,
		HTTPStatus:     snap.HTTPStatus,
		TotalAttempts:  snap.TotalAttempts,
		FirstAttemptAt: snap.FirstAttemptAt,
		LastAttemptAt:  snap.LastAttemptAt,
		AddedToDLQAt:   time.Now().UTC(),
	}
	if err := m.repo.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("dlq: insert entry: %w", err)
	}
	return entry, nil
}

// Get returns the active (unresolved) DLQ entry for jobID, if any.
func (m *Manager) Get(ctx context.Context, jobID string) (*domain.DLQEntry, error) {
	return m.repo.GetActiveByJob(ctx, jobID)
}

// List returns DLQ entries, optionally filtered to unresolved ones.
func (m *Manager) List(ctx context.Context, unresolvedOnly bool, limit, offset int) ([]*domain.DLQEntry, error) {
	return m.repo.List(ctx, unresolvedOnly, limit, offset)
}

// RecordManualRetry marks entry id as having been manually retried by an
// operator: retry_attempted and retry_attempted_at always, retry_success
// once known.
func (m *Manager) RecordManualRetry(ctx context.Context, id int64, success *bool) error {
	if err := m.repo.MarkRetryAttempted(ctx, id, success); err != nil {
		return fmt.Errorf("dlq: record manual retry: %w", err)
	}
	return nil
}

// Resolve closes out entry id with operator notes.
func (m *Manager) Resolve(ctx context.Context, id int64, notes string) error {
	if err := m.repo.Resolve(ctx, id, notes); err != nil {
		return fmt.Errorf("dlq: resolve: %w", err)
	}
	return nil
}
