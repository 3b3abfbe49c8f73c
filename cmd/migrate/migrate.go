// Package migrate implements the `crawlctl migrate` subcommands: applying
// and rolling back the Postgres schema, reporting the current version, and
// managing crawl_log partitions by hand when the scheduler's daily
// maintenance isn't enough.
package migrate

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/crawlctl/internal/config"
	"github.com/jonesrussell/crawlctl/internal/store"
)

// Command returns the `migrate` parent command and its up/down/version/
// partitions children.
func Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	root.AddCommand(upCmd())
	root.AddCommand(downCmd())
	root.AddCommand(versionCmd())
	root.AddCommand(partitionsCmd())
	return root
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("migrate up: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func downCmd() *cobra.Command {
	var steps int
	c := &cobra.Command{
		Use:   "down",
		Short: "Roll back N migrations (default 1)",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if steps <= 0 {
				steps = 1
			}
			if err := store.MigrateDown(cfg.DatabaseURL, steps); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			fmt.Printf("rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	c.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	return c
}

func partitionsCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "partitions",
		Short: "Manage crawl_log monthly partitions",
	}

	withLogs := func(fn func(context.Context, *store.LogRepository, *config.Config) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := store.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()
			return fn(cmd.Context(), store.NewLogRepository(db), cfg)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List existing crawl_log partitions",
		RunE: withLogs(func(ctx context.Context, logs *store.LogRepository, _ *config.Config) error {
			names, err := logs.ListPartitions(ctx)
			if err != nil {
				return fmt.Errorf("partitions list: %w", err)
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}),
	})
	root.AddCommand(&cobra.Command{
		Use:   "ensure",
		Short: "Create partitions for the configured months ahead",
		RunE: withLogs(func(ctx context.Context, logs *store.LogRepository, cfg *config.Config) error {
			if err := logs.EnsurePartitions(ctx, cfg.Logs.PartitionMonthsAhead); err != nil {
				return fmt.Errorf("partitions ensure: %w", err)
			}
			fmt.Printf("partitions ensured %d month(s) ahead\n", cfg.Logs.PartitionMonthsAhead)
			return nil
		}),
	})
	root.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Drop partitions past the retention horizon",
		RunE: withLogs(func(ctx context.Context, logs *store.LogRepository, cfg *config.Config) error {
			if err := logs.DropPartitionsOlderThan(ctx, cfg.Logs.RetentionDays); err != nil {
				return fmt.Errorf("partitions prune: %w", err)
			}
			fmt.Printf("partitions older than %d day(s) dropped\n", cfg.Logs.RetentionDays)
			return nil
		}),
	})
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			version, dirty, ok, err := store.MigrationVersion(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("migrate version: %w", err)
			}
			if !ok {
				fmt.Println("no migrations applied")
				return nil
			}
			fmt.Printf("version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}
