// Package cmd implements the command-line interface for crawlctl: the
// HTTP API/stream server, the worker pool, the cron scheduler, the retry
// poller, database migrations, and dead-letter-queue operator commands.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/crawlctl/cmd/dlq"
	"github.com/jonesrussell/crawlctl/cmd/migrate"
	"github.com/jonesrussell/crawlctl/cmd/retrypoller"
	"github.com/jonesrussell/crawlctl/cmd/scheduler"
	"github.com/jonesrussell/crawlctl/cmd/serve"
	"github.com/jonesrussell/crawlctl/cmd/worker"
)

// version is set at build time via -ldflags; "dev" otherwise.
var version = "dev"

// cfgFile, when set via --config, is picked up by internal/config.Load
// through the CRAWLCTL_CONFIG_FILE environment variable rather than a
// direct Viper binding, since Load builds its own Viper instance per call.
var cfgFile string

// debug enables debug-level logging across every subcommand.
var debug bool

var rootCmd = &cobra.Command{
	Use:   "crawlctl",
	Short: "Distributed web-crawling control plane",
	Long: `crawlctl drives crawl-job submission, queue delivery, cron
scheduling, retry scheduling, cancellation, dead-letter quarantine, and
live log streaming. Each subcommand runs one component of the control
plane as its own process.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if cfgFile != "" {
			if err := os.Setenv("CRAWLCTL_CONFIG_FILE", cfgFile); err != nil {
				return fmt.Errorf("set config file env: %w", err)
			}
		}
		if debug {
			return os.Setenv("APP_ENV", "development")
		}
		return nil
	},
	RunE: func(c *cobra.Command, _ []string) error {
		return c.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug mode")

	rootCmd.AddCommand(serve.Command())
	rootCmd.AddCommand(worker.Command())
	rootCmd.AddCommand(scheduler.Command())
	rootCmd.AddCommand(retrypoller.Command())
	rootCmd.AddCommand(migrate.Command())
	rootCmd.AddCommand(dlq.Command())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "crawlctl version %s\n", version)
		},
	})
}
