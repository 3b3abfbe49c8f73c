// Package scheduler implements the `crawlctl scheduler` subcommand: the
// cron-driven loop that materializes ScheduledJobs into submitted jobs.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/crawlctl/internal/bootstrap"
	"github.com/jonesrussell/crawlctl/internal/job"
	"github.com/jonesrussell/crawlctl/internal/logger"
	schedsvc "github.com/jonesrussell/crawlctl/internal/scheduler"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// partitionMaintenanceInterval is how often log partitions are created
// ahead and expired ones dropped. Partition churn is monthly, so daily is
// plenty.
const partitionMaintenanceInterval = 24 * time.Hour

// Command returns the `scheduler` subcommand.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the cron scheduling loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	app, err := bootstrap.New(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: bootstrap: %w", err)
	}
	defer app.Close()

	st := app.Store
	submission := job.New(st.Websites, st.Jobs, app.Broker)

	svc := schedsvc.New(app.Log, st.ScheduledJobs, submission)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("scheduler: start: %w", err)
	}

	maintCtx, stopMaint := context.WithCancel(ctx)
	defer stopMaint()
	go maintainLogPartitions(maintCtx, st.Logs, app.Config.Logs.PartitionMonthsAhead,
		app.Config.Logs.RetentionDays, app.Log)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	app.Log.Info("scheduler: shutting down")
	return svc.Stop()
}

// maintainLogPartitions keeps crawl_log partitions created monthsAhead
// months out and drops those past the retention horizon, once at startup
// and then daily. Partition management stays off the log-write hot path.
func maintainLogPartitions(ctx context.Context, logs *store.LogRepository, monthsAhead, retentionDays int, log logger.Interface) {
	runOnce := func() {
		if err := logs.EnsurePartitions(ctx, monthsAhead); err != nil {
			log.Error("scheduler: ensure log partitions failed", "error", err)
		}
		if err := logs.DropPartitionsOlderThan(ctx, retentionDays); err != nil {
			log.Error("scheduler: drop expired log partitions failed", "error", err)
		}
	}
	runOnce()

	ticker := time.NewTicker(partitionMaintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
