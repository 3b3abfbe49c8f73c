package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/crawlctl/internal/apierrors"
	"github.com/jonesrussell/crawlctl/internal/broker"
	"github.com/jonesrussell/crawlctl/internal/cancel"
	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/errkind"
	"github.com/jonesrussell/crawlctl/internal/job"
	"github.com/jonesrussell/crawlctl/internal/logger"
	"github.com/jonesrussell/crawlctl/internal/logingest"
	"github.com/jonesrussell/crawlctl/internal/store"
	"github.com/jonesrussell/crawlctl/internal/variables"
)

// Runner is the contract this module requires from the actual HTML
// fetcher/browser driver, which lives outside this control plane.
// An implementation crawls j (a template-based or inline job, already
// variable-substituted into vars) and returns once finished or ctx is
// cancelled.
type Runner interface {
	Run(ctx context.Context, j *domain.Job, vars *variables.Context) error
}

// RunError lets a Runner classify its own failure into the error
// taxonomy. A plain error from Run is treated as errkind.Unknown.
type RunError struct {
	Category   errkind.Category
	Message    string
	Stack      *string
	HTTPStatus *int
}

func (e *RunError) Error() string { return e.Message }

// flagPollInterval is how often the handler checks the cancellation flag
// while a Runner is executing, deriving ctx cancellation from it so the
// cancel stays cooperative without the Runner polling Redis itself.
const flagPollInterval = 500 * time.Millisecond

// LifecycleHandler wires Runner execution into the job status state
// machine, LogIngest, and cooperative cancellation. It implements
// JobHandler.
type LifecycleHandler struct {
	jobs      *store.JobRepository
	lifecycle *job.Lifecycle
	ingest    *logingest.Ingest
	flags     *cancel.FlagStore
	registry  *cancel.Registry
	runner    Runner
	log       logger.Interface
}

// NewLifecycleHandler wires a LifecycleHandler. registry may be nil if the
// worker process registers no externally-visible Resources of its own
// (the Runner implementation owns that bookkeeping internally).
func NewLifecycleHandler(
	jobs *store.JobRepository,
	lifecycle *job.Lifecycle,
	ingest *logingest.Ingest,
	flags *cancel.FlagStore,
	registry *cancel.Registry,
	runner Runner,
	log logger.Interface,
) *LifecycleHandler {
	return &LifecycleHandler{
		jobs: jobs, lifecycle: lifecycle, ingest: ingest,
		flags: flags, registry: registry, runner: runner, log: log,
	}
}

// Handle implements JobHandler: it decodes msg, checks for a cancellation
// that raced ahead of delivery, drives pending->running->terminal, and
// ingests one log record per phase.
func (h *LifecycleHandler) Handle(ctx context.Context, msg *broker.Message) error {
	var payload job.WirePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("worker: decode payload: %w", err)
	}
	jobID := payload.JobID
	if jobID == "" {
		jobID = msg.JobID
	}

	j, err := h.jobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.log.Warn("worker: job no longer exists, dropping message", "job_id", jobID)
			return nil
		}
		return fmt.Errorf("worker: load job: %w", err)
	}

	if cancelled, cerr := h.flagIsSet(ctx, jobID); cerr == nil && cancelled {
		h.log.Info("worker: job flagged cancelled before pickup, skipping", "job_id", jobID)
		return nil
	}

	if err := h.lifecycle.MarkRunning(ctx, jobID); err != nil {
		return fmt.Errorf("worker: mark running: %w", err)
	}
	h.recordLog(ctx, j, domain.LogLevelInfo, "job started", nil)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	stopWatch := h.watchCancellation(runCtx, cancelRun, jobID)
	defer stopWatch()

	runErr := h.runner.Run(runCtx, j, buildVariableContext(j))

	if h.registry != nil {
		h.registry.Release(jobID)
	}

	if runErr == nil {
		if err := h.lifecycle.MarkCompleted(ctx, jobID); err != nil {
			return fmt.Errorf("worker: mark completed: %w", err)
		}
		h.recordLog(ctx, j, domain.LogLevelInfo, "job completed", nil)
		return nil
	}

	if errors.Is(runErr, context.Canceled) {
		h.log.Info("worker: job run cancelled", "job_id", jobID)
		return nil
	}

	failure := classify(runErr)
	h.recordLog(ctx, j, domain.LogLevelError, failure.Message, map[string]any{"category": failure.Category})
	if err := h.lifecycle.HandleFailure(ctx, j, failure); err != nil {
		return fmt.Errorf("worker: handle failure: %w", err)
	}
	return nil
}

// watchCancellation polls the FlagStore and cancels runCtx the moment the
// flag is set, giving Runner implementations a cooperative cancel signal
// without needing their own Redis access.
func (h *LifecycleHandler) watchCancellation(ctx context.Context, cancelRun context.CancelFunc, jobID string) (stop func()) {
	if h.flags == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(flagPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if set, err := h.flags.IsSet(ctx, jobID); err == nil && set {
					cancelRun()
					return
				}
			}
		}
	}()
	return func() { close(done) }
}

func (h *LifecycleHandler) flagIsSet(ctx context.Context, jobID string) (bool, error) {
	if h.flags == nil {
		return false, nil
	}
	return h.flags.IsSet(ctx, jobID)
}

func (h *LifecycleHandler) recordLog(ctx context.Context, j *domain.Job, level, message string, fields map[string]any) {
	if h.ingest == nil {
		return
	}
	rec := &domain.LogRecord{
		JobRef:     j.ID,
		WebsiteRef: j.WebsiteRef,
		Level:      level,
		Message:    message,
		Context:    domain.JSONMap(fields),
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.ingest.Record(ctx, rec); err != nil {
		h.log.Error("worker: log ingest failed", "job_id", j.ID, "error", err)
	}
}

// buildVariableContext seeds a VariableEngine Context from the job's own
// resolved variables plus its metadata provider values.
func buildVariableContext(j *domain.Job) *variables.Context {
	ctx := variables.NewContext()
	for k, v := range j.Variables {
		ctx.Variables[k] = v
	}
	ctx.Metadata["job_id"] = j.ID
	if j.WebsiteRef != nil {
		ctx.Metadata["website_id"] = *j.WebsiteRef
	}
	return ctx
}

// classify maps a Runner error into a Failure for Lifecycle.HandleFailure:
// RunError's explicit category wins; an HTTP error response from the
// crawled origin is bucketed by status code; anything else falls into
// Unknown.
func classify(err error) job.Failure {
	var re *RunError
	if errors.As(err, &re) {
		return job.Failure{
			Category:   string(re.Category),
			Message:    re.Message,
			Stack:      re.Stack,
			HTTPStatus: re.HTTPStatus,
		}
	}
	var he *apierrors.HTTPError
	if errors.As(err, &he) {
		status := he.StatusCode
		return job.Failure{
			Category:   string(errkind.CategoryForStatus(status)),
			Message:    he.Error(),
			HTTPStatus: &status,
		}
	}
	return job.Failure{
		Category: string(errkind.Unknown),
		Message:  err.Error(),
	}
}
