// Package serve implements the `crawlctl serve` subcommand: the HTTP API
// and log stream endpoint.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/crawlctl/internal/api"
	"github.com/jonesrussell/crawlctl/internal/bootstrap"
	"github.com/jonesrussell/crawlctl/internal/cancel"
	"github.com/jonesrussell/crawlctl/internal/dlq"
	"github.com/jonesrussell/crawlctl/internal/job"
	"github.com/jonesrussell/crawlctl/internal/logbuffer"
	"github.com/jonesrussell/crawlctl/internal/logbus"
	"github.com/jonesrussell/crawlctl/internal/retryschedule"
	"github.com/jonesrussell/crawlctl/internal/streamapi"
)

// retryPayloadTTL bounds how long a scheduled retry's wire payload
// survives in Redis, shared with the retrypoller and worker binaries.
const retryPayloadTTL = 24 * time.Hour

// Command returns the `serve` subcommand.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and log stream endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	app, err := bootstrap.New(ctx)
	if err != nil {
		return fmt.Errorf("serve: bootstrap: %w", err)
	}
	defer app.Close()

	st := app.Store
	submission := job.New(st.Websites, st.Jobs, app.Broker)
	schedule := retryschedule.New(app.Redis, retryPayloadTTL)
	dlqMgr := dlq.New(st.DLQ)
	lifecycle := job.NewLifecycle(st.Jobs, st.RetryHistory, st.RetryPolicies, schedule, dlqMgr, app.Log)

	flags := cancel.NewFlagStore(app.Redis)
	registry := cancel.NewRegistry()
	coord := cancel.New(st.Jobs, lifecycle, app.Broker, schedule, flags, registry, app.Log)

	buffer := logbuffer.New()
	bus := logbus.New(app.Redis)

	tokens := streamapi.NewTokenIssuer(app.Redis, app.Config.Stream.TokenSigningKey, app.Config.Stream.TokenTTL)
	stream := streamapi.New(st.Jobs, st.Logs, buffer, bus, tokens, app.Log,
		app.Config.Stream.BatchWindow, app.Config.Stream.PollFallback)

	handlers := api.Handlers{
		Websites:      api.NewWebsitesHandler(st.Websites),
		Jobs:          api.NewJobsHandler(submission, st.Jobs, coord),
		ScheduledJobs: api.NewScheduledJobsHandler(st.ScheduledJobs),
		DLQ:           api.NewDLQHandler(dlqMgr),
		Stream:        stream,
	}

	router := api.SetupRouter(app.Log, handlers)
	server := api.StartHTTPServer(app.Config.Server.Address, router)

	errCh := make(chan error, 1)
	go func() {
		app.Log.Info("serve: listening", "address", app.Config.Server.Address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: listen: %w", err)
	case <-sig:
	}

	app.Log.Info("serve: shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), app.Config.Stream.GracefulCleanupTimeout)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}
