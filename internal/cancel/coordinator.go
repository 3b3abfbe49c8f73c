// Package cancel implements CancellationCoordinator: raising a
// shared cancellation flag, best-effort Broker removal for queued jobs,
// concurrent graceful-then-forced teardown of a running job's resources,
// and the final status=cancelled persistence.
package cancel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/crawlctl/internal/broker"
	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/job"
	"github.com/jonesrussell/crawlctl/internal/logger"
	"github.com/jonesrussell/crawlctl/internal/retryschedule"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// Coordinator drives the full cancel flow across the Store, Broker,
// RetrySchedule, the flag store, and the resource registry.
type Coordinator struct {
	jobs       *store.JobRepository
	lifecycle  *job.Lifecycle
	br         *broker.Broker
	schedule   *retryschedule.Schedule
	flags      *FlagStore
	registry   *Registry
	log        logger.Interface

	GracefulTimeout time.Duration
}

// New wires a Coordinator. GracefulTimeout defaults to
// DefaultGracefulTimeout.
func New(
	jobs *store.JobRepository,
	lifecycle *job.Lifecycle,
	br *broker.Broker,
	schedule *retryschedule.Schedule,
	flags *FlagStore,
	registry *Registry,
	log logger.Interface,
) *Coordinator {
	return &Coordinator{
		jobs:            jobs,
		lifecycle:       lifecycle,
		br:              br,
		schedule:        schedule,
		flags:           flags,
		registry:        registry,
		log:             log,
		GracefulTimeout: DefaultGracefulTimeout,
	}
}

// Result is the cancellation outcome metadata: cleanup start/end,
// duration, and the per-resource outcomes.
type Result struct {
	JobID          string
	CleanupStarted time.Time
	CleanupEnded   time.Time
	Resources      []ResourceOutcome
}

// Duration returns how long resource teardown took.
func (r Result) Duration() time.Duration { return r.CleanupEnded.Sub(r.CleanupStarted) }

// Cancel runs the full cancellation flow for jobID. Returns job.ErrAlreadyTerminal
// if the job has already reached an absorbing state.
func (c *Coordinator) Cancel(ctx context.Context, jobID, cancelledBy, reason string) (*Result, error) {
	j, err := c.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.IsTerminal() {
		return nil, fmt.Errorf("%w: job %s", job.ErrAlreadyTerminal, jobID)
	}

	if err := c.flags.Set(ctx, jobID); err != nil {
		return nil, fmt.Errorf("cancel: raise flag: %w", err)
	}

	switch j.Status {
	case domain.JobStatusPending:
		c.removeFromQueues(ctx, jobID)
	case domain.JobStatusRunning:
		// fall through to teardown below; the flag alone tells the worker to
		// stop at its next suspension point.
	}

	started := time.Now().UTC()
	outcomes := c.registry.TeardownAll(ctx, jobID, c.GracefulTimeout)
	ended := time.Now().UTC()

	if err := c.lifecycle.Cancel(ctx, jobID, cancelledBy, reason); err != nil {
		if !errors.Is(err, job.ErrAlreadyTerminal) {
			return nil, fmt.Errorf("cancel: persist status: %w", err)
		}
		// Lost a race with the worker reaching a terminal status first.
		return nil, err
	}

	if err := c.flags.Clear(ctx, jobID); err != nil {
		c.log.Warn("cancel: clear flag failed", "job_id", jobID, "error", err)
	}

	return &Result{JobID: jobID, CleanupStarted: started, CleanupEnded: ended, Resources: outcomes}, nil
}

// removeFromQueues best-effort removes a not-yet-started job from the
// Broker and, if it was awaiting a scheduled retry, from RetrySchedule too.
// Failure here is logged but never fatal: the worker
// will see the flag on pickup and finish early if the removal lost a race.
func (c *Coordinator) removeFromQueues(ctx context.Context, jobID string) {
	if err := c.br.Remove(ctx, jobID); err != nil && !errors.Is(err, broker.ErrNotFound) {
		c.log.Warn("cancel: broker remove failed", "job_id", jobID, "error", err)
	}
	if err := c.schedule.Cancel(ctx, jobID); err != nil {
		c.log.Warn("cancel: retry schedule remove failed", "job_id", jobID, "error", err)
	}
}

// IsCancelled reports whether jobID has been flagged. Workers poll this at
// every suspension point while a job runs.
func (c *Coordinator) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	return c.flags.IsSet(ctx, jobID)
}

// RegisterResource associates res with jobID for this coordinator's
// registry, called by a worker as it opens each externally visible handle.
func (c *Coordinator) RegisterResource(jobID string, res Resource) {
	c.registry.Register(jobID, res)
}

// ReleaseResources drops jobID's registered resources once it finishes
// through its normal (non-cancelled) path.
func (c *Coordinator) ReleaseResources(jobID string) {
	c.registry.Release(jobID)
}
