// Package retrypoller implements the `crawlctl retrypoller` subcommand:
// the loop that republishes jobs whose retry delay has elapsed.
package retrypoller

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/crawlctl/internal/bootstrap"
	"github.com/jonesrussell/crawlctl/internal/retryschedule"
)

// payloadTTL bounds how long a scheduled retry's wire payload survives in
// Redis before it's considered stale: long enough to outlive the longest
// configured retry delay.
const payloadTTL = 24 * time.Hour

// Command returns the `retrypoller` subcommand.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "retrypoller",
		Short: "Run the retry-schedule poller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	app, err := bootstrap.New(ctx)
	if err != nil {
		return fmt.Errorf("retrypoller: bootstrap: %w", err)
	}
	defer app.Close()

	schedule := retryschedule.New(app.Redis, payloadTTL)
	poller := retryschedule.NewPoller(schedule, app.Broker, app.Log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		poller.Run(runCtx)
		close(done)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	app.Log.Info("retrypoller: shutting down")
	cancel()
	<-done
	return nil
}
