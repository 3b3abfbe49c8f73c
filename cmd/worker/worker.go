// Package worker implements the `crawlctl worker` subcommand: the pool of
// goroutines that pull jobs off the Broker and drive them through the
// lifecycle state machine.
package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/crawlctl/internal/bootstrap"
	"github.com/jonesrussell/crawlctl/internal/cancel"
	"github.com/jonesrussell/crawlctl/internal/dlq"
	"github.com/jonesrussell/crawlctl/internal/domain"
	"github.com/jonesrussell/crawlctl/internal/job"
	"github.com/jonesrussell/crawlctl/internal/logbuffer"
	"github.com/jonesrussell/crawlctl/internal/logbus"
	"github.com/jonesrussell/crawlctl/internal/logingest"
	"github.com/jonesrussell/crawlctl/internal/retryschedule"
	"github.com/jonesrussell/crawlctl/internal/variables"
	workerpool "github.com/jonesrussell/crawlctl/internal/worker"
)

const (
	healthCheckInterval = 30 * time.Second
	retryPayloadTTL     = 24 * time.Hour
)

// Command returns the `worker` subcommand.
func Command() *cobra.Command {
	var poolSize int
	c := &cobra.Command{
		Use:   "worker",
		Short: "Run the job-processing worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), poolSize)
		},
	}
	c.Flags().IntVar(&poolSize, "pool-size", workerpool.DefaultPoolSize, "number of concurrent consumers")
	return c
}

func run(ctx context.Context, poolSize int) error {
	app, err := bootstrap.New(ctx)
	if err != nil {
		return fmt.Errorf("worker: bootstrap: %w", err)
	}
	defer app.Close()

	st := app.Store
	schedule := retryschedule.New(app.Redis, retryPayloadTTL)
	dlqMgr := dlq.New(st.DLQ)
	lifecycle := job.NewLifecycle(st.Jobs, st.RetryHistory, st.RetryPolicies, schedule, dlqMgr, app.Log)

	buffer := logbuffer.New()
	bus := logbus.New(app.Redis)
	ingest := logingest.New(st.Logs, buffer, bus, app.Log)

	flags := cancel.NewFlagStore(app.Redis)
	registry := cancel.NewRegistry()

	handler := workerpool.NewLifecycleHandler(st.Jobs, lifecycle, ingest, flags, registry, noopRunner{}, app.Log)

	cfg := workerpool.DefaultConfig()
	if poolSize > 0 {
		cfg.PoolSize = poolSize
	}

	pool, err := workerpool.NewPool(cfg, app.Broker, handler.Handle, app.Log)
	if err != nil {
		return fmt.Errorf("worker: new pool: %w", err)
	}
	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("worker: start pool: %w", err)
	}

	monitor := workerpool.NewHealthMonitor(pool, healthCheckInterval, app.Log)
	monitor.Start(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	app.Log.Info("worker: shutting down")
	monitor.Stop()

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.DrainTimeout)
	defer cancelDrain()
	return pool.Stop(drainCtx)
}

// noopRunner is the placeholder Runner wired in place of an actual HTML
// fetcher/browser driver, which this module treats as an external
// collaborator outside its scope. It lets the worker pool, lifecycle
// transitions, and log ingestion run end-to-end without one.
type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, j *domain.Job, vars *variables.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
