package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonesrussell/crawlctl/internal/broker"
	"github.com/jonesrussell/crawlctl/internal/logger"
)

// WorkerState represents the current state of a worker.
type WorkerState int32

const (
	WorkerStateIdle WorkerState = iota
	WorkerStateBusy
	WorkerStateStopping
	WorkerStateStopped

	stuckThresholdMultiplier = 2
	percentageMultiplier     = 100
)

func (s WorkerState) String() string {
	switch s {
	case WorkerStateIdle:
		return "idle"
	case WorkerStateBusy:
		return "busy"
	case WorkerStateStopping:
		return "stopping"
	case WorkerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// JobHandler processes one delivered Message, driving whatever job-lifecycle
// status transitions and log ingestion the job requires. A non-nil error
// leaves the message un-acked so it becomes eligible for broker redelivery.
type JobHandler func(ctx context.Context, msg *broker.Message) error

// Worker represents an individual consumer in the pool.
type Worker struct {
	id         int
	state      atomic.Int32
	handler    JobHandler
	jobTimeout time.Duration
	log        logger.Interface

	jobsProcessed atomic.Int64
	jobsSucceeded atomic.Int64
	jobsFailed    atomic.Int64
	lastJobAt     atomic.Int64
	lastError     atomic.Value

	currentJobID atomic.Value
	jobStartedAt atomic.Int64
}

// NewWorker creates a new worker.
func NewWorker(id int, handler JobHandler, jobTimeout time.Duration, log logger.Interface) *Worker {
	w := &Worker{id: id, handler: handler, jobTimeout: jobTimeout, log: log}
	w.state.Store(int32(WorkerStateIdle))
	w.currentJobID.Store("")
	return w
}

func (w *Worker) ID() int { return w.id }

func (w *Worker) State() WorkerState { return WorkerState(w.state.Load()) }

func (w *Worker) IsIdle() bool { return w.State() == WorkerStateIdle }

func (w *Worker) IsBusy() bool { return w.State() == WorkerStateBusy }

// Process runs the handler against msg under a per-job timeout derived
// from jobTimeout, tracking per-worker stats.
func (w *Worker) Process(ctx context.Context, msg *broker.Message) error {
	if msg == nil {
		return fmt.Errorf("worker %d: message cannot be nil", w.id)
	}
	if !w.state.CompareAndSwap(int32(WorkerStateIdle), int32(WorkerStateBusy)) {
		return fmt.Errorf("worker %d: not idle, current state: %s", w.id, w.State())
	}

	w.currentJobID.Store(msg.JobID)
	w.jobStartedAt.Store(time.Now().UnixNano())
	defer func() {
		w.currentJobID.Store("")
		w.jobStartedAt.Store(0)
		w.state.Store(int32(WorkerStateIdle))
	}()

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	w.log.Info("worker processing job", "worker_id", w.id, "job_id", msg.JobID, "delivery_num", msg.DeliveryNum)

	start := time.Now()
	err := w.handler(jobCtx, msg)
	duration := time.Since(start)

	w.jobsProcessed.Add(1)
	w.lastJobAt.Store(time.Now().UnixNano())

	if err != nil {
		w.jobsFailed.Add(1)
		w.lastError.Store(err)
		w.log.Error("worker job failed", "worker_id", w.id, "job_id", msg.JobID, "duration", duration.String(), "error", err.Error())
		return fmt.Errorf("worker %d: job %s failed: %w", w.id, msg.JobID, err)
	}

	w.jobsSucceeded.Add(1)
	w.log.Info("worker job completed", "worker_id", w.id, "job_id", msg.JobID, "duration", duration.String())
	return nil
}

// Stats returns the worker's statistics.
func (w *Worker) Stats() WorkerStats {
	var lastErr error
	if v := w.lastError.Load(); v != nil {
		lastErr, _ = v.(error)
	}
	currentJobID, _ := w.currentJobID.Load().(string)

	var lastJobTime time.Time
	if ts := w.lastJobAt.Load(); ts > 0 {
		lastJobTime = time.Unix(0, ts)
	}
	var jobStartTime time.Time
	if ts := w.jobStartedAt.Load(); ts > 0 {
		jobStartTime = time.Unix(0, ts)
	}

	return WorkerStats{
		ID:            w.id,
		State:         w.State(),
		JobsProcessed: w.jobsProcessed.Load(),
		JobsSucceeded: w.jobsSucceeded.Load(),
		JobsFailed:    w.jobsFailed.Load(),
		LastJobAt:     lastJobTime,
		LastError:     lastErr,
		CurrentJobID:  currentJobID,
		JobStartedAt:  jobStartTime,
	}
}

// WorkerStats holds statistics for a worker.
type WorkerStats struct {
	ID            int
	State         WorkerState
	JobsProcessed int64
	JobsSucceeded int64
	JobsFailed    int64
	LastJobAt     time.Time
	LastError     error
	CurrentJobID  string
	JobStartedAt  time.Time
}

// SuccessRate returns the success rate as a percentage.
func (s WorkerStats) SuccessRate() float64 {
	if s.JobsProcessed == 0 {
		return 0
	}
	return float64(s.JobsSucceeded) / float64(s.JobsProcessed) * percentageMultiplier
}

// IsHealthy reports whether the worker looks alive: not stopped, and not
// stuck on the same job for more than two hours (stuckThresholdMultiplier
// hours, a fixed threshold independent of the configured job timeout).
func (s WorkerStats) IsHealthy() bool {
	if s.State == WorkerStateStopped {
		return false
	}
	if s.State == WorkerStateBusy && !s.JobStartedAt.IsZero() {
		if time.Since(s.JobStartedAt) > stuckThresholdMultiplier*time.Hour {
			return false
		}
	}
	return true
}
