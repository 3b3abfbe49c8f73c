// Package scheduler materializes one-shot Jobs from ScheduledJob cron
// triggers and publishes them to the Broker, guaranteeing at-most-once
// materialization per due tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/crawlctl/internal/circuitbreaker"
	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/job"
	"github.com/jonesrussell/crawlctl/internal/logger"
	"github.com/jonesrussell/crawlctl/internal/store"
)

const (
	// pollInterval is how often the scheduler checks for due ScheduledJobs.
	pollInterval = 5 * time.Second
	// dueBatchLimit bounds how many due entries are materialized per tick.
	dueBatchLimit = 100
)

// cronParser accepts the optional-seconds 6-field form alongside the
// standard 5-field minute-hour-dom-month-dow form.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Scheduler polls the Store for ScheduledJobs whose next_run_time has
// arrived, materializes a one-shot Job for each via Submission, and
// publishes it to the Broker. It never runs a due entry twice: the Store's
// optimistic AdvanceNextRun update is the only thing that authorizes a
// materialization.
type Scheduler struct {
	log        logger.Interface
	scheduled  *store.ScheduledJobRepository
	submission *job.Service
	breaker    *circuitbreaker.Breaker
	wg         sync.WaitGroup
	cancel     context.CancelFunc
}

// New wires a Scheduler over the ScheduledJob store and the job Submission
// service (which owns Job-row creation and Broker publish together). Store
// reads go through a circuit breaker so a down database is probed once a
// minute instead of queried every tick.
func New(log logger.Interface, scheduled *store.ScheduledJobRepository, submission *job.Service) *Scheduler {
	return &Scheduler{
		log:        log,
		scheduled:  scheduled,
		submission: submission,
		breaker:    circuitbreaker.New(circuitbreaker.DefaultConfig()),
	}
}

// Start begins the poll loop in a background goroutine and returns
// immediately, following db_scheduler.go's Start/Stop shape.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)
	s.log.Info("scheduler started", "poll_interval", pollInterval.String())
	return nil
}

// Stop cancels the poll loop and waits for it to exit.
func (s *Scheduler) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				s.log.Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// tick materializes every ScheduledJob due as of now, one at a time so a
// race lost against another scheduler instance skips that entry cleanly.
func (s *Scheduler) tick(ctx context.Context) error {
	now := time.Now().UTC()
	var due []*domain.ScheduledJob
	err := s.breaker.Execute(ctx, func() error {
		var listErr error
		due, listErr = s.scheduled.DueForMaterialization(ctx, now, dueBatchLimit)
		return listErr
	})
	if err != nil {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			s.log.Debug("scheduler: store circuit open, skipping tick")
			return nil
		}
		return fmt.Errorf("scheduler: list due jobs: %w", err)
	}

	for _, sj := range due {
		if err := s.materialize(ctx, sj, now); err != nil {
			s.log.Error("failed to materialize scheduled job", "scheduled_job_id", sj.ID, "error", err)
		}
	}
	return nil
}

// materialize computes the next run time in the ScheduledJob's own IANA
// timezone, advances next_run_time optimistically, and publishes a
// one-shot Job only if this goroutine won that race.
func (s *Scheduler) materialize(ctx context.Context, sj *domain.ScheduledJob, now time.Time) error {
	loc, err := time.LoadLocation(sj.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", sj.Timezone, err)
	}

	schedule, err := cronParser.Parse(sj.CronSchedule)
	if err != nil {
		return fmt.Errorf("parse cron schedule %q: %w", sj.CronSchedule, err)
	}

	nextRun := schedule.Next(now.In(loc)).UTC()
	// Re-advance if the computed instant is still not in the future (clock
	// skew, DST fold): a missed tick beats scheduling one in the past.
	for !nextRun.After(now) {
		nextRun = schedule.Next(nextRun.In(loc)).UTC()
	}
	prevRun := sj.NextRunTime

	won, err := s.scheduled.AdvanceNextRun(ctx, sj.ID, prevRun, nextRun, now)
	if err != nil {
		return fmt.Errorf("advance next_run_time: %w", err)
	}
	if !won {
		s.log.Debug("lost materialization race, skipping publish", "scheduled_job_id", sj.ID)
		return nil
	}

	materialized, err := s.submission.CreateScheduledJob(ctx, sj.WebsiteRef, sj.JobConfig, now)
	if err != nil {
		if errors.Is(err, job.ErrWebsiteNotFound) || errors.Is(err, job.ErrWebsiteInactive) {
			// next_run_time already advanced; by design this tick is simply
			// missed rather than retried.
			s.log.Warn("scheduled job's website is gone or inactive, skipping materialization",
				"scheduled_job_id", sj.ID, "website_ref", sj.WebsiteRef, "error", err)
			return nil
		}
		return fmt.Errorf("materialize job: %w", err)
	}

	s.log.Info("materialized scheduled job", "scheduled_job_id", sj.ID, "job_id", materialized.ID, "next_run_time", nextRun)
	return nil
}
