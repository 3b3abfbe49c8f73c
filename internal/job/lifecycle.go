package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/crawlctl/internal/dlq"
	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/errkind"
	"github.com/jonesrussell/crawlctl/internal/logger"
	"github.com/jonesrussell/crawlctl/internal/retryschedule"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// Lifecycle drives the job status state machine past submission:
// running/completed/failed transitions and the retry-vs-DLQ decision.
type Lifecycle struct {
	jobs          *store.JobRepository
	retryHistory  *store.RetryHistoryRepository
	retryPolicies *store.RetryPolicyRepository
	schedule      *retryschedule.Schedule
	dlqMgr        *dlq.Manager
	log           logger.Interface
}

// NewLifecycle wires a Lifecycle over the stores and downstream components
// a failure decision may touch.
func NewLifecycle(
	jobs *store.JobRepository,
	retryHistory *store.RetryHistoryRepository,
	retryPolicies *store.RetryPolicyRepository,
	schedule *retryschedule.Schedule,
	dlqMgr *dlq.Manager,
	log logger.Interface,
) *Lifecycle {
	return &Lifecycle{
		jobs:          jobs,
		retryHistory:  retryHistory,
		retryPolicies: retryPolicies,
		schedule:      schedule,
		dlqMgr:        dlqMgr,
		log:           log,
	}
}

// MarkRunning transitions a picked-up job from pending to running.
func (l *Lifecycle) MarkRunning(ctx context.Context, jobID string) error {
	return l.jobs.MarkRunning(ctx, jobID)
}

// MarkCompleted transitions a successfully finished job to completed.
func (l *Lifecycle) MarkCompleted(ctx context.Context, jobID string) error {
	return l.jobs.MarkCompleted(ctx, jobID)
}

// Failure describes one job failure as reported by a worker: enough to
// classify it, record it, and decide whether to retry or quarantine.
type Failure struct {
	Category   string
	Message    string
	Stack      *string
	HTTPStatus *int
}

// HandleFailure records the
// attempt in RetryHistory, then either reschedule via RetrySchedule with an
// incremented attempt_count, or mark the job failed and hand it to
// DLQManager. job must reflect the job's state before this attempt
// (AttemptCount is the count of attempts already made).
func (l *Lifecycle) HandleFailure(ctx context.Context, j *domain.Job, f Failure) error {
	policy := l.resolvePolicy(ctx, f.Category)
	attemptNumber := j.AttemptCount + 1

	if err := l.retryHistory.Append(ctx, &domain.RetryHistory{
		JobRef:        j.ID,
		AttemptNumber: attemptNumber,
		ErrorCategory: f.Category,
		Message:       f.Message,
		Stack:         f.Stack,
		DelayApplied:  int(policy.Delay(attemptNumber).Seconds()),
		Timestamp:     time.Now().UTC(),
	}); err != nil {
		l.log.Error("lifecycle: append retry history failed", "job_id", j.ID, "error", err)
	}

	if !policy.Retryable || attemptNumber >= policy.MaxAttempts {
		return l.quarantine(ctx, j, f, attemptNumber)
	}
	return l.reschedule(ctx, j, policy, attemptNumber)
}

func (l *Lifecycle) resolvePolicy(ctx context.Context, category string) errkind.Policy {
	if l.retryPolicies != nil {
		if p, err := l.retryPolicies.GetByCategory(ctx, category); err == nil {
			return errkind.Policy{
				Category:     errkind.Category(p.ErrorCategory),
				Retryable:    p.IsRetryable,
				MaxAttempts:  p.MaxAttempts,
				Strategy:     errkind.Strategy(p.Strategy),
				InitialDelay: time.Duration(p.InitialDelaySecs) * time.Second,
				MaxDelay:     time.Duration(p.MaxDelaySecs) * time.Second,
				Multiplier:   p.Multiplier,
			}
		}
	}
	if p, ok := errkind.Defaults[errkind.Category(category)]; ok {
		return p
	}
	return errkind.Defaults[errkind.Unknown]
}

func (l *Lifecycle) reschedule(ctx context.Context, j *domain.Job, policy errkind.Policy, attemptNumber int) error {
	if err := l.jobs.RequeueForRetry(ctx, j.ID); err != nil {
		return fmt.Errorf("lifecycle: requeue for retry: %w", err)
	}

	payload, err := json.Marshal(WirePayload{
		JobID:           j.ID,
		SeedURL:         j.SeedURL,
		JobType:         j.JobType,
		Priority:        j.Priority,
		HasInlineConfig: j.InlineConfig != nil,
	})
	if err != nil {
		return fmt.Errorf("lifecycle: encode retry payload: %w", err)
	}

	delay := policy.Delay(attemptNumber)
	readyAt := time.Now().UTC().Add(delay)
	if err := l.schedule.ScheduleRetry(ctx, j.ID, readyAt, payload); err != nil {
		return fmt.Errorf("lifecycle: schedule retry: %w", err)
	}
	return nil
}

func (l *Lifecycle) quarantine(ctx context.Context, j *domain.Job, f Failure, attemptNumber int) error {
	if err := l.jobs.MarkFailedTerminal(ctx, j.ID); err != nil {
		return fmt.Errorf("lifecycle: mark failed: %w", err)
	}

	now := time.Now().UTC()
	firstAttempt := j.CreatedAt
	if j.StartedAt != nil {
		firstAttempt = *j.StartedAt
	}
	_, err := l.dlqMgr.Quarantine(ctx, dlq.FailureSnapshot{
		JobID:          j.ID,
		SeedURL:        j.SeedURL,
		WebsiteRef:     j.WebsiteRef,
		JobType:        j.JobType,
		Priority:       j.Priority,
		ErrorCategory:  f.Category,
		ErrorMessage:   f.Message,
		StackTrace:     f.Stack,
		HTTPStatus:     f.HTTPStatus,
		TotalAttempts:  attemptNumber,
		FirstAttemptAt: firstAttempt,
		LastAttemptAt:  now,
	})
	if err != nil {
		return fmt.Errorf("lifecycle: quarantine: %w", err)
	}
	return nil
}

// Cancel validates terminality and transitions jobID to cancelled. Callers
// needing the full CancellationCoordinator flow (flag + broker removal +
// worker teardown) should use the cancel package, which calls this last.
func (l *Lifecycle) Cancel(ctx context.Context, jobID, cancelledBy, reason string) error {
	j, err := l.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if j.IsTerminal() {
		return fmt.Errorf("%w: job %s", ErrAlreadyTerminal, jobID)
	}
	if err := l.jobs.Cancel(ctx, jobID, cancelledBy, reason); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return fmt.Errorf("%w: job %s", ErrAlreadyTerminal, jobID)
		}
		return err
	}
	return nil
}
